package scape

import (
	"fmt"

	"stickreach/internal/kinematics"
	"stickreach/internal/model"
	"stickreach/internal/nn"
)

// Couple is a pair of chains where the holding chain is anchored at the
// world and the non-holding chain hangs off the holding chain's free end.
// A couple without non-holding links is a single chain.
type Couple struct {
	holding    *kinematics.Chain
	nonHolding *kinematics.Chain
	switches   int
}

// CoupleState is a rendering snapshot. NonHolding is nil for a single chain.
type CoupleState struct {
	Holding    kinematics.State  `json:"holding"`
	NonHolding *kinematics.State `json:"non_holding,omitempty"`
	Switches   int               `json:"switches"`
}

func NewCouple(
	origin kinematics.Vec2,
	holdingLengths, holdingAngles []float64, holdingClamps []kinematics.Clamp,
	nonHoldingLengths, nonHoldingAngles []float64, nonHoldingClamps []kinematics.Clamp,
) (*Couple, error) {
	holding, err := kinematics.NewChain(origin, holdingLengths, holdingAngles, holdingClamps)
	if err != nil {
		return nil, fmt.Errorf("holding chain: %w", err)
	}
	c := &Couple{holding: holding}
	if len(nonHoldingLengths) == 0 && len(nonHoldingAngles) == 0 {
		return c, nil
	}
	c.nonHolding, err = kinematics.NewChain(holding.FreeEnd(), nonHoldingLengths, nonHoldingAngles, nonHoldingClamps)
	if err != nil {
		return nil, fmt.Errorf("non-holding chain: %w", err)
	}
	return c, nil
}

func (c *Couple) Holding() *kinematics.Chain {
	return c.holding
}

// NonHolding returns nil for a single chain.
func (c *Couple) NonHolding() *kinematics.Chain {
	return c.nonHolding
}

func (c *Couple) TotalLength() float64 {
	total := c.holding.TotalLength()
	if c.nonHolding != nil {
		total += c.nonHolding.TotalLength()
	}
	return total
}

// FreeEnd is the end the couple is trying to place: the non-holding free
// end, or the holding free end for a single chain.
func (c *Couple) FreeEnd() kinematics.Vec2 {
	if c.nonHolding != nil {
		return c.nonHolding.FreeEnd()
	}
	return c.holding.FreeEnd()
}

// Reanchor moves the non-holding origin onto the holding free end.
func (c *Couple) Reanchor() {
	if c.nonHolding != nil {
		c.nonHolding.SetOrigin(c.holding.FreeEnd())
	}
}

// Switch makes the non-holding free end the new anchor. Both chains are
// walked in reverse, so relative joint angles flip sign and clamps are
// mirrored. The base joint of a reversed chain is unbounded.
func (c *Couple) Switch() error {
	if c.nonHolding == nil {
		return fmt.Errorf("%w: a single chain cannot switch", model.ErrConfiguration)
	}
	c.Reanchor()
	holding, err := reversed(c.nonHolding)
	if err != nil {
		return err
	}
	nonHolding, err := reversed(c.holding)
	if err != nil {
		return err
	}
	c.holding, c.nonHolding = holding, nonHolding
	c.switches++
	return nil
}

// reversed negates joint angles past the base exactly, so a joint resting on
// a ±π clamp bound stays inside the mirrored clamp. Only the base heading is
// recovered from the vertices.
func reversed(chain *kinematics.Chain) (*kinematics.Chain, error) {
	n := chain.Links()
	vertices := kinematics.Reverse(chain.Shape().Vertices)
	origin, _, base := kinematics.FromVertices(vertices[:2])
	lengths := make([]float64, n)
	angles := make([]float64, n)
	clamps := make([]kinematics.Clamp, n)
	angles[0] = base[0]
	for k := 0; k < n; k++ {
		lengths[k] = chain.Lengths[n-1-k]
		if k > 0 {
			angles[k] = -chain.Angles[n-k]
			clamps[k] = chain.Clamps[n-k].Mirror()
		}
	}
	return kinematics.NewChain(origin, lengths, angles, clamps)
}

func (c *Couple) State() CoupleState {
	state := CoupleState{Holding: c.holding.State(), Switches: c.switches}
	if c.nonHolding != nil {
		nonHolding := c.nonHolding.State()
		state.NonHolding = &nonHolding
	}
	return state
}

// InputSize is the encoded scene width for a couple with the given link
// counts: every joint angle plus a relative goal.
func InputSize(holdingLinks, nonHoldingLinks int) int {
	return holdingLinks + nonHoldingLinks + 2
}

// Encode flattens the couple's joint angles and the goal, taken relative to
// the holding origin and divided by the couple's total length. It returns
// the encoding and that scale.
func Encode(c *Couple, goal kinematics.Vec2) ([]float64, float64) {
	scale := c.TotalLength()
	input := make([]float64, 0, InputSize(c.holding.Links(), linksOf(c.nonHolding)))
	input = append(input, c.holding.Angles...)
	if c.nonHolding != nil {
		input = append(input, c.nonHolding.Angles...)
	}
	relative := goal.Sub(c.holding.Origin).Scale(1 / scale)
	return append(input, relative.X, relative.Y), scale
}

// Decode turns a controller output into a point relative to origin. Each
// coordinate is saturated to one scale unit.
func Decode(output []float64, scale float64, origin kinematics.Vec2) (kinematics.Vec2, error) {
	if len(output) != 2 {
		return kinematics.Vec2{}, fmt.Errorf("%w: decode needs 2 outputs, got %d", model.ErrConfiguration, len(output))
	}
	offset := kinematics.V(nn.SaturationWithSpread(output[0], 1), nn.SaturationWithSpread(output[1], 1))
	return origin.Add(offset.Scale(scale)), nil
}

func linksOf(chain *kinematics.Chain) int {
	if chain == nil {
		return 0
	}
	return chain.Links()
}

package scape

import (
	"fmt"
	"math"

	"stickreach/internal/ik"
	"stickreach/internal/kinematics"
	"stickreach/internal/model"
)

// Settings tune the per-tick control law and the reward.
type Settings struct {
	StepSize      float64
	BalanceGain   float64
	Policy        ik.ComTargetPolicy
	Tolerance     float64
	TerminalBonus float64
}

func DefaultSettings() Settings {
	return Settings{
		StepSize:    0.01,
		BalanceGain: 1,
		Policy:      ik.ComTargetMidpoint,
		Tolerance:   0.01,
	}
}

func (s Settings) Validate() error {
	if !(s.StepSize > 0) || math.IsInf(s.StepSize, 0) {
		return fmt.Errorf("%w: step size must be positive and finite", model.ErrConfiguration)
	}
	if !(s.BalanceGain >= 0) || math.IsInf(s.BalanceGain, 0) {
		return fmt.Errorf("%w: balance gain must be finite and >= 0", model.ErrConfiguration)
	}
	if !(s.Tolerance >= 0) {
		return fmt.Errorf("%w: tolerance must be >= 0", model.ErrConfiguration)
	}
	if math.IsNaN(s.TerminalBonus) || math.IsInf(s.TerminalBonus, 0) {
		return fmt.Errorf("%w: terminal bonus must be finite", model.ErrConfiguration)
	}
	return nil
}

// Episode owns one couple and its goals for the length of a rollout. Every
// mutation happens in Tick, SetGoal or Switch.
type Episode struct {
	couple      *Couple
	ctrl        Controller
	settings    Settings
	goal        kinematics.Vec2
	holdingGoal kinematics.Vec2
	ticks       int
	distanceSum float64
}

type EpisodeState struct {
	Tick        int             `json:"tick"`
	Couple      CoupleState     `json:"couple"`
	Goal        kinematics.Vec2 `json:"goal"`
	HoldingGoal kinematics.Vec2 `json:"holding_goal"`
	Distance    float64         `json:"distance"`
}

// NewEpisode sets goal and, for a couple with a controller, asks the
// controller where the holding chain should reach.
func NewEpisode(couple *Couple, ctrl Controller, goal kinematics.Vec2, settings Settings) (*Episode, error) {
	if couple == nil {
		return nil, fmt.Errorf("%w: episode requires a couple", model.ErrConfiguration)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	e := &Episode{couple: couple, ctrl: ctrl, settings: settings}
	if err := e.SetGoal(goal); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Episode) Couple() *Couple {
	return e.couple
}

// SetGoal retargets the free end. A single chain reaches the goal itself;
// a couple without a controller keeps its holding end where it is.
func (e *Episode) SetGoal(goal kinematics.Vec2) error {
	e.goal = goal
	switch {
	case e.couple.NonHolding() == nil:
		e.holdingGoal = goal
	case e.ctrl == nil:
		e.holdingGoal = e.couple.Holding().FreeEnd()
	default:
		input, scale := Encode(e.couple, goal)
		output, err := e.ctrl.At(input)
		if err != nil {
			return err
		}
		holdingGoal, err := Decode(output, scale, e.couple.Holding().Origin)
		if err != nil {
			return err
		}
		e.holdingGoal = holdingGoal
	}
	return nil
}

// Tick advances both chains by one reach-and-balance update and accumulates
// the distance from the free end to the goal.
func (e *Episode) Tick() error {
	if err := e.step(e.couple.Holding(), e.holdingGoal); err != nil {
		return err
	}
	if nonHolding := e.couple.NonHolding(); nonHolding != nil {
		e.couple.Reanchor()
		if err := e.step(nonHolding, e.goal); err != nil {
			return err
		}
	}

	distance := e.Distance()
	if math.IsNaN(distance) || math.IsInf(distance, 0) {
		return fmt.Errorf("%w: distance to goal is %v at tick %d", model.ErrNumericalDegeneracy, distance, e.ticks)
	}
	e.distanceSum += distance
	e.ticks++
	return nil
}

func (e *Episode) step(chain *kinematics.Chain, goal kinematics.Vec2) error {
	reach, balance := ik.Step(chain.Origin, chain.Lengths, chain.Angles, goal, e.settings.Policy)
	return chain.Apply(ik.Combine(reach, balance, 1, e.settings.BalanceGain), e.settings.StepSize)
}

// Switch swaps the holding and non-holding roles. The caller is expected to
// set a new goal afterwards.
func (e *Episode) Switch() error {
	return e.couple.Switch()
}

func (e *Episode) Ticks() int {
	return e.ticks
}

func (e *Episode) Goal() kinematics.Vec2 {
	return e.goal
}

func (e *Episode) HoldingGoal() kinematics.Vec2 {
	return e.holdingGoal
}

func (e *Episode) Distance() float64 {
	return e.couple.FreeEnd().Dist(e.goal)
}

// MeanDistance averages the per-tick distances; before the first tick it is
// the current distance.
func (e *Episode) MeanDistance() float64 {
	if e.ticks == 0 {
		return e.Distance()
	}
	return e.distanceSum / float64(e.ticks)
}

func (e *Episode) Reached() bool {
	return e.Distance() <= e.settings.Tolerance
}

// Reward is the negative mean distance plus the terminal bonus when the
// free end finished within tolerance.
func (e *Episode) Reward() float64 {
	reward := -e.MeanDistance()
	if e.Reached() {
		reward += e.settings.TerminalBonus
	}
	return reward
}

func (e *Episode) State() EpisodeState {
	return EpisodeState{
		Tick:        e.ticks,
		Couple:      e.couple.State(),
		Goal:        e.goal,
		HoldingGoal: e.holdingGoal,
		Distance:    e.Distance(),
	}
}

package stickreach

import (
	"context"
	"errors"
	"fmt"

	"stickreach/internal/model"
	"stickreach/internal/nn"
	"stickreach/internal/platform"
	"stickreach/internal/scape"
)

// SimulateRequest replays one episode. With an Experiment the trained
// network drives its scape and world; otherwise Scape and World (or their
// defaults) are used with no controller.
type SimulateRequest struct {
	Experiment *model.Experiment
	Scape      string
	World      *model.WorldRecord
	Ticks      int
	Seed       int64
	// AutoSwitch swaps the holding chain once the free end reaches its goal
	// and samples a new goal around the new anchor.
	AutoSwitch    bool
	StepSize      float64
	BalanceGain   *float64
	ComTarget     string
	Tolerance     *float64
	TerminalBonus float64
	OnTick        func(scape.EpisodeState)
}

type SimulateResult struct {
	Scape         string
	Frames        []scape.EpisodeState
	Switches      int
	Reward        float64
	FinalDistance float64
	MeanDistance  float64
	Reached       bool
}

func (c *Client) Simulate(ctx context.Context, req SimulateRequest) (SimulateResult, error) {
	if req.Ticks <= 0 {
		req.Ticks = 200
	}

	var (
		ctrl      scape.Controller
		scapeName = req.Scape
		world     scape.World
		err       error
	)
	if req.Experiment != nil {
		if req.World != nil {
			return SimulateResult{}, errors.New("use either an experiment or a world")
		}
		net, err := nn.FromRecord(req.Experiment.Network)
		if err != nil {
			return SimulateResult{}, err
		}
		ctrl = net
		if world, err = scape.WorldFromRecord(req.Experiment.World); err != nil {
			return SimulateResult{}, err
		}
		if scapeName == "" {
			scapeName = req.Experiment.Scape
		}
	} else {
		if world, err = worldFromRequest(req.World); err != nil {
			return SimulateResult{}, err
		}
		if scapeName == "" {
			scapeName = "reach"
		}
	}
	settings, err := settingsFromRequest(req.StepSize, req.BalanceGain, req.ComTarget, req.Tolerance, req.TerminalBonus)
	if err != nil {
		return SimulateResult{}, err
	}

	p, err := c.ensurePolis(ctx)
	if err != nil {
		return SimulateResult{}, err
	}
	registered, ok := p.GetScape(scapeName)
	if !ok {
		return SimulateResult{}, fmt.Errorf("%w: unknown scape %q", model.ErrConfiguration, scapeName)
	}
	rng := newRand(req.Seed)
	ep, err := platform.ConfigureScape(registered, world, settings).NewEpisode(ctrl, rng)
	if err != nil {
		return SimulateResult{}, err
	}

	result := SimulateResult{
		Scape:  scapeName,
		Frames: make([]scape.EpisodeState, 0, req.Ticks+1),
	}
	record := func() {
		state := ep.State()
		result.Frames = append(result.Frames, state)
		if req.OnTick != nil {
			req.OnTick(state)
		}
	}
	record()
	for tick := 0; tick < req.Ticks; tick++ {
		if err := ctx.Err(); err != nil {
			return SimulateResult{}, err
		}
		if err := ep.Tick(); err != nil {
			return SimulateResult{}, err
		}
		record()
		if req.AutoSwitch && ep.Couple().NonHolding() != nil && ep.Reached() {
			if err := ep.Switch(); err != nil {
				return SimulateResult{}, err
			}
			if err := ep.SetGoal(world.SampleGoalFrom(ep.Couple().Holding().Origin, rng)); err != nil {
				return SimulateResult{}, err
			}
			result.Switches++
		}
	}

	result.Reward = ep.Reward()
	result.FinalDistance = ep.Distance()
	result.MeanDistance = ep.MeanDistance()
	result.Reached = ep.Reached()
	return result, nil
}

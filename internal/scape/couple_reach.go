package scape

import (
	"context"
	"fmt"
	"math/rand"

	"stickreach/internal/model"
)

// CoupleReachScape places the non-holding free end on a sampled goal. The
// controller picks where the holding chain should reach from the encoded
// scene.
type CoupleReachScape struct {
	World    World
	Settings Settings
}

func (CoupleReachScape) Name() string {
	return "couple-reach"
}

func (s CoupleReachScape) ControllerIO() (int, int) {
	world := withDefaults(s.World)
	return InputSize(len(world.HoldingLengths), len(world.NonHoldingLengths)), 2
}

func (s CoupleReachScape) NewEpisode(ctrl Controller, rng *rand.Rand) (*Episode, error) {
	if ctrl == nil {
		return nil, fmt.Errorf("%w: %s requires a controller", model.ErrConfiguration, s.Name())
	}
	world := withDefaults(s.World)
	if len(world.NonHoldingLengths) == 0 {
		return nil, fmt.Errorf("%w: %s requires a non-holding chain", model.ErrConfiguration, s.Name())
	}
	if err := world.Validate(); err != nil {
		return nil, err
	}
	couple, err := world.NewCouple(rng)
	if err != nil {
		return nil, err
	}
	return NewEpisode(couple, ctrl, world.SampleGoal(rng), settingsOrDefault(s.Settings))
}

func (s CoupleReachScape) Evaluate(ctx context.Context, ctrl Controller, rng *rand.Rand, ticks int) (Fitness, error) {
	ep, err := s.NewEpisode(ctrl, rng)
	if err != nil {
		return 0, err
	}
	return run(ctx, ep, ticks)
}

package scape

import (
	"context"
	"math/rand"
)

// ReachScape drives the holding chain straight at a sampled goal with no
// controller in the loop.
type ReachScape struct {
	World    World
	Settings Settings
}

func (ReachScape) Name() string {
	return "reach"
}

func (s ReachScape) NewEpisode(ctrl Controller, rng *rand.Rand) (*Episode, error) {
	world := withDefaults(s.World)
	world.NonHoldingLengths, world.NonHoldingClamps = nil, nil
	if err := world.Validate(); err != nil {
		return nil, err
	}
	couple, err := world.NewCouple(rng)
	if err != nil {
		return nil, err
	}
	return NewEpisode(couple, nil, world.SampleGoal(rng), settingsOrDefault(s.Settings))
}

func (s ReachScape) Evaluate(ctx context.Context, ctrl Controller, rng *rand.Rand, ticks int) (Fitness, error) {
	ep, err := s.NewEpisode(ctrl, rng)
	if err != nil {
		return 0, err
	}
	return run(ctx, ep, ticks)
}

func withDefaults(w World) World {
	if len(w.HoldingLengths) == 0 {
		return DefaultWorld()
	}
	return w
}

func settingsOrDefault(s Settings) Settings {
	if s == (Settings{}) {
		return DefaultSettings()
	}
	return s
}

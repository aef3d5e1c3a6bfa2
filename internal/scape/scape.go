package scape

import (
	"context"
	"math/rand"
)

type Fitness float64

// Controller maps an encoded scene to a decoded action. *nn.Network
// satisfies it.
type Controller interface {
	At(input []float64) ([]float64, error)
}

type Scape interface {
	Name() string
	// NewEpisode samples a fresh world state from rng. ctrl may be nil for
	// scapes that do not consult a controller.
	NewEpisode(ctrl Controller, rng *rand.Rand) (*Episode, error)
	Evaluate(ctx context.Context, ctrl Controller, rng *rand.Rand, ticks int) (Fitness, error)
}

// ControlledScape is a scape that needs a controller with the given input
// and output widths.
type ControlledScape interface {
	Scape
	ControllerIO() (inputs, outputs int)
}

// run ticks ep to completion and reports the episode reward.
func run(ctx context.Context, ep *Episode, ticks int) (Fitness, error) {
	for i := 0; i < ticks; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := ep.Tick(); err != nil {
			return 0, err
		}
	}
	return Fitness(ep.Reward()), nil
}

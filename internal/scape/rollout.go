package scape

import (
	"context"
	"fmt"

	"stickreach/internal/model"
	"stickreach/internal/nn"
	"stickreach/internal/tuning"
)

// Rollout scores a candidate parameter vector by running one episode of
// Scape with a network built from Layers. Only controlled scapes can be
// trained; an uncontrolled scape would score every candidate the same way.
type Rollout struct {
	Scape  Scape
	Layers []nn.LayerSpec
}

func (r Rollout) Validate() error {
	if r.Scape == nil {
		return fmt.Errorf("%w: rollout requires a scape", model.ErrConfiguration)
	}
	if _, err := nn.New(r.Layers); err != nil {
		return err
	}
	controlled, ok := r.Scape.(ControlledScape)
	if !ok {
		return fmt.Errorf("%w: scape %s has no controller to train", model.ErrConfiguration, r.Scape.Name())
	}
	in, out := controlled.ControllerIO()
	if first, last := r.Layers[0].Size, r.Layers[len(r.Layers)-1].Size; first != in || last != out {
		return fmt.Errorf("%w: scape %s needs a %d->%d controller, network is %d->%d", model.ErrConfiguration, r.Scape.Name(), in, out, first, last)
	}
	return nil
}

// Evaluate builds a private network per call, so concurrent episodes share
// nothing.
func (r Rollout) Evaluate(ctx context.Context, params []float64, episode tuning.Episode) (float64, error) {
	if _, ok := r.Scape.(ControlledScape); !ok {
		return 0, fmt.Errorf("%w: scape %s has no controller to train", model.ErrConfiguration, r.Scape.Name())
	}
	net, err := nn.New(r.Layers)
	if err != nil {
		return 0, err
	}
	if err := net.SetParameters(params); err != nil {
		return 0, err
	}
	fitness, err := r.Scape.Evaluate(ctx, net, episode.Rand, episode.Ticks)
	if err != nil {
		return 0, err
	}
	return float64(fitness), nil
}

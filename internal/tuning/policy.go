package tuning

import (
	"fmt"
	"strings"

	"stickreach/internal/model"
)

// NoiseSchedule scales the noise added to the refit standard deviation at
// generation g of total.
type NoiseSchedule interface {
	Name() string
	Scale(generation, total int) float64
}

const (
	NoiseDecayHarmonic = "harmonic"
	NoiseDecayLinear   = "linear"
	NoiseDecayNone     = "none"
)

type HarmonicNoiseSchedule struct{}

func (HarmonicNoiseSchedule) Name() string { return NoiseDecayHarmonic }

func (HarmonicNoiseSchedule) Scale(generation, _ int) float64 {
	if generation < 0 {
		generation = 0
	}
	return 1 / float64(generation+1)
}

// LinearNoiseSchedule reaches zero halfway through the run.
type LinearNoiseSchedule struct{}

func (LinearNoiseSchedule) Name() string { return NoiseDecayLinear }

func (LinearNoiseSchedule) Scale(generation, total int) float64 {
	half := float64(total) / 2
	if half <= 0 {
		return 0
	}
	scale := 1 - float64(generation)/half
	if scale < 0 {
		return 0
	}
	return scale
}

type NoNoiseSchedule struct{}

func (NoNoiseSchedule) Name() string { return NoiseDecayNone }

func (NoNoiseSchedule) Scale(_, _ int) float64 { return 0 }

func ParseNoiseSchedule(name string) (NoiseSchedule, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NoiseDecayHarmonic:
		return HarmonicNoiseSchedule{}, nil
	case NoiseDecayLinear:
		return LinearNoiseSchedule{}, nil
	case NoiseDecayNone:
		return NoNoiseSchedule{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported noise decay schedule: %s", model.ErrConfiguration, name)
	}
}

package nn

import (
	"fmt"
	"math"
	"strings"

	"stickreach/internal/model"
)

// ActivationKind is the closed set of layer activations.
type ActivationKind uint8

const (
	Identity ActivationKind = iota
	LeakyReLU
)

const (
	activationIdentity  = "identity"
	activationLinear    = "linear"
	activationLeakyReLU = "leaky_relu"
)

// Activation is a tagged variant; Slope is only read for LeakyReLU.
type Activation struct {
	Kind  ActivationKind
	Slope float64
}

func Linear() Activation {
	return Activation{Kind: Identity}
}

func Leaky(slope float64) Activation {
	return Activation{Kind: LeakyReLU, Slope: slope}
}

func (a Activation) Apply(x float64) float64 {
	switch a.Kind {
	case LeakyReLU:
		if x >= 0 {
			return x
		}
		return a.Slope * x
	default:
		return x
	}
}

func (a Activation) applyAll(values []float64) {
	if a.Kind == Identity {
		return
	}
	for i, v := range values {
		values[i] = a.Apply(v)
	}
}

func (a Activation) Name() string {
	switch a.Kind {
	case LeakyReLU:
		return activationLeakyReLU
	default:
		return activationIdentity
	}
}

func (a Activation) String() string {
	if a.Kind == LeakyReLU {
		return fmt.Sprintf("%s(%g)", activationLeakyReLU, a.Slope)
	}
	return activationIdentity
}

func (a Activation) validate() error {
	switch a.Kind {
	case Identity:
		return nil
	case LeakyReLU:
		if math.IsNaN(a.Slope) || math.IsInf(a.Slope, 0) {
			return fmt.Errorf("%w: leaky_relu slope must be finite", model.ErrConfiguration)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown activation kind %d", model.ErrConfiguration, a.Kind)
	}
}

// ParseActivation maps a persisted activation name to its variant.
func ParseActivation(name string, slope float64) (Activation, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", activationIdentity, activationLinear:
		return Linear(), nil
	case activationLeakyReLU, "leakyrelu":
		return Leaky(slope), nil
	default:
		return Activation{}, fmt.Errorf("%w: unsupported activation: %s", model.ErrConfiguration, name)
	}
}

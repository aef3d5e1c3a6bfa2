package tuning

import (
	"context"
	"math/rand"
)

// Parameterized is anything that accepts a flat parameter vector, typically
// an *nn.Network.
type Parameterized interface {
	ParameterCount() int
	SetParameters(p []float64) error
}

// Episode identifies one rollout of one candidate. Rand is private to the
// episode and seeded by the optimizer before evaluation starts.
type Episode struct {
	Index int
	Ticks int
	Rand  *rand.Rand
}

// Evaluator scores one candidate parameter vector over one episode. It must
// not retain or mutate params and must be safe for concurrent use.
type Evaluator interface {
	Evaluate(ctx context.Context, params []float64, episode Episode) (float64, error)
}

type EvaluatorFunc func(ctx context.Context, params []float64, episode Episode) (float64, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, params []float64, episode Episode) (float64, error) {
	return f(ctx, params, episode)
}

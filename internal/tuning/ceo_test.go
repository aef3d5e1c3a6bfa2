package tuning

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync/atomic"
	"testing"

	"stickreach/internal/model"
)

type vectorTarget struct {
	params []float64
	sets   int
}

func (v *vectorTarget) ParameterCount() int { return len(v.params) }

func (v *vectorTarget) SetParameters(p []float64) error {
	if len(p) != len(v.params) {
		return errors.New("length mismatch")
	}
	copy(v.params, p)
	v.sets++
	return nil
}

func quadratic(_ context.Context, p []float64, _ Episode) (float64, error) {
	a := p[0] - 1
	b := p[1] + 2
	return -(a*a + b*b), nil
}

func testCEO(seed int64) *CEO {
	return &CEO{
		Rand:            rand.New(rand.NewSource(seed)),
		Generations:     30,
		BatchSize:       40,
		NumEpisodes:     2,
		NumEpisodeTicks: 1,
		EliteFrac:       0.25,
		InitialMean:     0,
		InitialStd:      1,
		NoiseFactor:     0.5,
		Workers:         4,
	}
}

func TestCEOConvergesOnQuadratic(t *testing.T) {
	target := &vectorTarget{params: make([]float64, 2)}
	result, err := testCEO(7).Optimize(context.Background(), target, EvaluatorFunc(quadratic))
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if math.Abs(result.Mean[0]-1) > 0.2 || math.Abs(result.Mean[1]+2) > 0.2 {
		t.Fatalf("expected mean near (1,-2), got %v", result.Mean)
	}
	if target.sets != 1 || target.params[0] != result.Mean[0] || target.params[1] != result.Mean[1] {
		t.Fatalf("expected final mean installed once, sets=%d params=%v", target.sets, target.params)
	}
	if len(result.History) != 30 {
		t.Fatalf("expected 30 generations of history, got %d", len(result.History))
	}
	first, last := result.History[0], result.History[len(result.History)-1]
	if last.EliteMeanFitness <= first.EliteMeanFitness {
		t.Fatalf("expected elite fitness to improve: first=%f last=%f", first.EliteMeanFitness, last.EliteMeanFitness)
	}
	if result.MeanReward != last.MeanFitness {
		t.Fatalf("mean reward should report the final generation: %f vs %f", result.MeanReward, last.MeanFitness)
	}
	for _, gen := range result.History {
		if gen.BestFitness > result.BestReward {
			t.Fatalf("best reward %f below generation best %f", result.BestReward, gen.BestFitness)
		}
		if gen.EliteMeanFitness > gen.BestFitness || gen.MeanFitness > gen.EliteMeanFitness {
			t.Fatalf("inconsistent generation stats: %+v", gen)
		}
	}
	if len(result.Std) != 2 {
		t.Fatalf("expected std per dimension, got %v", result.Std)
	}
}

func TestCEOIsDeterministicAcrossWorkerCounts(t *testing.T) {
	noisy := EvaluatorFunc(func(_ context.Context, p []float64, ep Episode) (float64, error) {
		return -p[0]*p[0] + 0.01*ep.Rand.Float64(), nil
	})

	run := func(workers int) Result {
		ceo := testCEO(11)
		ceo.Generations = 5
		ceo.Workers = workers
		result, err := ceo.Optimize(context.Background(), &vectorTarget{params: make([]float64, 1)}, noisy)
		if err != nil {
			t.Fatalf("optimize workers=%d: %v", workers, err)
		}
		return result
	}

	a := run(1)
	b := run(8)
	if a.Mean[0] != b.Mean[0] || a.Std[0] != b.Std[0] || a.BestReward != b.BestReward {
		t.Fatalf("expected identical results, got %+v vs %+v", a, b)
	}
}

func TestCEOPassesEpisodeShape(t *testing.T) {
	var calls atomic.Int64
	eval := EvaluatorFunc(func(_ context.Context, p []float64, ep Episode) (float64, error) {
		calls.Add(1)
		if ep.Ticks != 7 {
			return 0, errors.New("unexpected tick count")
		}
		if ep.Index < 0 || ep.Index >= 3 {
			return 0, errors.New("unexpected episode index")
		}
		if ep.Rand == nil || len(p) != 4 {
			return 0, errors.New("unexpected episode inputs")
		}
		return 0, nil
	})
	ceo := testCEO(1)
	ceo.Generations = 2
	ceo.BatchSize = 5
	ceo.EliteFrac = 0.4
	ceo.NumEpisodes = 3
	ceo.NumEpisodeTicks = 7
	if _, err := ceo.Optimize(context.Background(), &vectorTarget{params: make([]float64, 4)}, eval); err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if got := calls.Load(); got != 2*5*3 {
		t.Fatalf("expected 30 evaluations, got %d", got)
	}
}

func TestCEOReportsEachGeneration(t *testing.T) {
	var seen []int
	ceo := testCEO(3)
	ceo.Generations = 4
	ceo.OnGeneration = func(stats model.GenerationStats) {
		seen = append(seen, stats.Generation)
	}
	if _, err := ceo.Optimize(context.Background(), &vectorTarget{params: make([]float64, 2)}, EvaluatorFunc(quadratic)); err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if len(seen) != 4 || seen[0] != 1 || seen[3] != 4 {
		t.Fatalf("unexpected generation callbacks: %v", seen)
	}
}

func TestCEOValidation(t *testing.T) {
	cases := map[string]func(*CEO){
		"nil rand":         func(c *CEO) { c.Rand = nil },
		"zero generations": func(c *CEO) { c.Generations = 0 },
		"zero batch":       func(c *CEO) { c.BatchSize = 0 },
		"zero episodes":    func(c *CEO) { c.NumEpisodes = 0 },
		"zero ticks":       func(c *CEO) { c.NumEpisodeTicks = 0 },
		"elite frac zero":  func(c *CEO) { c.EliteFrac = 0 },
		"elite frac > 1":   func(c *CEO) { c.EliteFrac = 1.5 },
		"no elites":        func(c *CEO) { c.BatchSize = 3; c.EliteFrac = 0.25 },
		"negative std":     func(c *CEO) { c.InitialStd = -1 },
		"nan std":          func(c *CEO) { c.InitialStd = math.NaN() },
		"negative noise":   func(c *CEO) { c.NoiseFactor = -0.1 },
		"unknown decay":    func(c *CEO) { c.NoiseDecay = "cosine" },
		"infinite mean":    func(c *CEO) { c.InitialMean = math.Inf(1) },
	}
	for name, mutate := range cases {
		ceo := testCEO(1)
		mutate(ceo)
		if err := ceo.Validate(); !errors.Is(err, model.ErrConfiguration) {
			t.Fatalf("%s: expected configuration error, got %v", name, err)
		}
		_, err := ceo.Optimize(context.Background(), &vectorTarget{params: make([]float64, 1)}, EvaluatorFunc(quadratic))
		if !errors.Is(err, model.ErrConfiguration) {
			t.Fatalf("%s: expected optimize configuration error, got %v", name, err)
		}
	}
	if err := testCEO(1).Validate(); err != nil {
		t.Fatalf("expected default test config to validate: %v", err)
	}
}

func TestCEORejectsEmptyTarget(t *testing.T) {
	_, err := testCEO(1).Optimize(context.Background(), &vectorTarget{}, EvaluatorFunc(quadratic))
	if !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestCEOPropagatesEvaluationErrors(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int64
	eval := EvaluatorFunc(func(context.Context, []float64, Episode) (float64, error) {
		if calls.Add(1) == 3 {
			return 0, boom
		}
		return 0, nil
	})
	target := &vectorTarget{params: make([]float64, 2)}
	if _, err := testCEO(1).Optimize(context.Background(), target, eval); !errors.Is(err, boom) {
		t.Fatalf("expected evaluation error, got %v", err)
	}
	if target.sets != 0 {
		t.Fatal("failed run must not install parameters")
	}
}

func TestCEORejectsNonFiniteReward(t *testing.T) {
	eval := EvaluatorFunc(func(context.Context, []float64, Episode) (float64, error) {
		return math.NaN(), nil
	})
	_, err := testCEO(1).Optimize(context.Background(), &vectorTarget{params: make([]float64, 1)}, eval)
	if !errors.Is(err, model.ErrNumericalDegeneracy) {
		t.Fatalf("expected numerical degeneracy, got %v", err)
	}
}

func TestCEOHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testCEO(1).Optimize(ctx, &vectorTarget{params: make([]float64, 1)}, EvaluatorFunc(quadratic))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestCEORecordRoundTrip(t *testing.T) {
	ceo := testCEO(1)
	ceo.NoiseDecay = NoiseDecayLinear
	record := ceo.Record()
	record.Seed = 42
	back := FromRecord(record)
	if back.Rand == nil || back.BatchSize != 40 || back.NoiseDecay != NoiseDecayLinear || back.EliteFrac != 0.25 {
		t.Fatalf("unexpected optimizer from record: %+v", back)
	}
	if err := back.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

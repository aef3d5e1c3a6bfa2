// Package tuning fits a diagonal Gaussian over flat parameter vectors with
// the cross-entropy method.
package tuning

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"stickreach/internal/model"
)

type CEO struct {
	Rand            *rand.Rand
	Generations     int
	BatchSize       int
	NumEpisodes     int
	NumEpisodeTicks int
	EliteFrac       float64
	InitialMean     float64
	InitialStd      float64
	NoiseFactor     float64
	NoiseDecay      string
	Workers         int
	OnGeneration    func(model.GenerationStats)
}

type Result struct {
	// MeanReward is the mean candidate fitness of the final generation.
	MeanReward float64
	BestReward float64
	Mean       []float64
	Std        []float64
	History    []model.GenerationStats
}

func (c *CEO) Name() string {
	return "cross_entropy"
}

// EliteCount returns floor(BatchSize*EliteFrac).
func (c *CEO) EliteCount() int {
	return int(math.Floor(float64(c.BatchSize) * c.EliteFrac))
}

func (c *CEO) Validate() error {
	if c == nil || c.Rand == nil {
		return fmt.Errorf("%w: random source is required", model.ErrConfiguration)
	}
	if c.Generations <= 0 {
		return fmt.Errorf("%w: generations must be > 0", model.ErrConfiguration)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be > 0", model.ErrConfiguration)
	}
	if c.NumEpisodes <= 0 {
		return fmt.Errorf("%w: episodes must be > 0", model.ErrConfiguration)
	}
	if c.NumEpisodeTicks <= 0 {
		return fmt.Errorf("%w: episode ticks must be > 0", model.ErrConfiguration)
	}
	if !(c.EliteFrac > 0 && c.EliteFrac <= 1) {
		return fmt.Errorf("%w: elite fraction must be in (0, 1], got %g", model.ErrConfiguration, c.EliteFrac)
	}
	if c.EliteCount() < 1 {
		return fmt.Errorf("%w: batch size %d with elite fraction %g selects no elites", model.ErrConfiguration, c.BatchSize, c.EliteFrac)
	}
	if math.IsNaN(c.InitialMean) || math.IsInf(c.InitialMean, 0) {
		return fmt.Errorf("%w: initial mean must be finite", model.ErrConfiguration)
	}
	if !(c.InitialStd >= 0) || math.IsInf(c.InitialStd, 0) {
		return fmt.Errorf("%w: initial std must be finite and >= 0", model.ErrConfiguration)
	}
	if !(c.NoiseFactor >= 0) || math.IsInf(c.NoiseFactor, 0) {
		return fmt.Errorf("%w: noise factor must be finite and >= 0", model.ErrConfiguration)
	}
	if _, err := ParseNoiseSchedule(c.NoiseDecay); err != nil {
		return err
	}
	return nil
}

// Optimize runs the configured number of generations and installs the final
// mean into target.
func (c *CEO) Optimize(ctx context.Context, target Parameterized, eval Evaluator) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if err := c.Validate(); err != nil {
		return Result{}, err
	}
	if target == nil || eval == nil {
		return Result{}, fmt.Errorf("%w: target and evaluator are required", model.ErrConfiguration)
	}
	dim := target.ParameterCount()
	if dim <= 0 {
		return Result{}, fmt.Errorf("%w: target has no parameters", model.ErrConfiguration)
	}
	schedule, _ := ParseNoiseSchedule(c.NoiseDecay)

	mean := make([]float64, dim)
	std := make([]float64, dim)
	for d := range mean {
		mean[d] = c.InitialMean
		std[d] = c.InitialStd
	}

	result := Result{BestReward: math.Inf(-1)}
	eliteCount := c.EliteCount()
	for g := 0; g < c.Generations; g++ {
		candidates, seeds := c.sample(mean, std)

		fitness, err := c.evaluateBatch(ctx, candidates, seeds, eval)
		if err != nil {
			return Result{}, fmt.Errorf("generation %d: %w", g, err)
		}

		order := make([]int, len(fitness))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(i, j int) bool {
			return fitness[order[i]] > fitness[order[j]]
		})

		noise := c.NoiseFactor * schedule.Scale(g, c.Generations)
		column := make([]float64, eliteCount)
		for d := 0; d < dim; d++ {
			for k := 0; k < eliteCount; k++ {
				column[k] = candidates[order[k]][d]
			}
			m, variance := stat.PopMeanVariance(column, nil)
			mean[d] = m
			std[d] = math.Sqrt(variance) + noise
		}

		eliteFitness := make([]float64, eliteCount)
		for k := range eliteFitness {
			eliteFitness[k] = fitness[order[k]]
		}
		stats := model.GenerationStats{
			Generation:       g + 1,
			BestFitness:      fitness[order[0]],
			MeanFitness:      stat.Mean(fitness, nil),
			EliteMeanFitness: stat.Mean(eliteFitness, nil),
			MeanStd:          stat.Mean(std, nil),
		}
		result.History = append(result.History, stats)
		result.MeanReward = stats.MeanFitness
		if stats.BestFitness > result.BestReward {
			result.BestReward = stats.BestFitness
		}
		if c.OnGeneration != nil {
			c.OnGeneration(stats)
		}
	}

	if err := target.SetParameters(mean); err != nil {
		return Result{}, err
	}
	result.Mean = append([]float64(nil), mean...)
	result.Std = append([]float64(nil), std...)
	return result, nil
}

// sample draws the generation's candidates and one seed per
// (candidate, episode) so evaluation order does not affect results.
func (c *CEO) sample(mean, std []float64) ([][]float64, [][]int64) {
	candidates := make([][]float64, c.BatchSize)
	seeds := make([][]int64, c.BatchSize)
	for i := range candidates {
		candidate := make([]float64, len(mean))
		for d := range candidate {
			candidate[d] = mean[d] + std[d]*c.Rand.NormFloat64()
		}
		candidates[i] = candidate
		seeds[i] = make([]int64, c.NumEpisodes)
		for e := range seeds[i] {
			seeds[i][e] = c.Rand.Int63()
		}
	}
	return candidates, seeds
}

func (c *CEO) evaluateBatch(ctx context.Context, candidates [][]float64, seeds [][]int64, eval Evaluator) ([]float64, error) {
	type job struct {
		candidate int
		episode   int
	}
	type result struct {
		candidate int
		episode   int
		reward    float64
		err       error
	}

	total := len(candidates) * c.NumEpisodes
	jobs := make(chan job)
	results := make(chan result, total)

	workerCount := c.Workers
	if workerCount < 1 {
		workerCount = 1
	}
	if workerCount > total {
		workerCount = total
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{candidate: j.candidate, episode: j.episode, err: err}
					continue
				}
				episode := Episode{
					Index: j.episode,
					Ticks: c.NumEpisodeTicks,
					Rand:  rand.New(rand.NewSource(seeds[j.candidate][j.episode])),
				}
				reward, err := eval.Evaluate(ctx, candidates[j.candidate], episode)
				if err == nil && (math.IsNaN(reward) || math.IsInf(reward, 0)) {
					err = fmt.Errorf("%w: candidate %d episode %d reward is %v", model.ErrNumericalDegeneracy, j.candidate, j.episode, reward)
				}
				results <- result{candidate: j.candidate, episode: j.episode, reward: reward, err: err}
			}
		}()
	}

	for i := range candidates {
		for e := 0; e < c.NumEpisodes; e++ {
			jobs <- job{candidate: i, episode: e}
		}
	}
	close(jobs)

	wg.Wait()
	close(results)

	rewards := make([][]float64, len(candidates))
	for i := range rewards {
		rewards[i] = make([]float64, c.NumEpisodes)
	}
	for res := range results {
		if res.err != nil {
			return nil, res.err
		}
		rewards[res.candidate][res.episode] = res.reward
	}

	fitness := make([]float64, len(candidates))
	for i, r := range rewards {
		fitness[i] = stat.Mean(r, nil)
	}
	return fitness, nil
}

func (c *CEO) Record() model.OptimizerRecord {
	return model.OptimizerRecord{
		Generations:     c.Generations,
		BatchSize:       c.BatchSize,
		NumEpisodes:     c.NumEpisodes,
		NumEpisodeTicks: c.NumEpisodeTicks,
		EliteFrac:       c.EliteFrac,
		InitialMean:     c.InitialMean,
		InitialStd:      c.InitialStd,
		NoiseFactor:     c.NoiseFactor,
		NoiseDecay:      c.NoiseDecay,
		Workers:         c.Workers,
	}
}

// FromRecord builds an optimizer seeded with record.Seed.
func FromRecord(record model.OptimizerRecord) *CEO {
	return &CEO{
		Rand:            rand.New(rand.NewSource(record.Seed)),
		Generations:     record.Generations,
		BatchSize:       record.BatchSize,
		NumEpisodes:     record.NumEpisodes,
		NumEpisodeTicks: record.NumEpisodeTicks,
		EliteFrac:       record.EliteFrac,
		InitialMean:     record.InitialMean,
		InitialStd:      record.InitialStd,
		NoiseFactor:     record.NoiseFactor,
		NoiseDecay:      record.NoiseDecay,
		Workers:         record.Workers,
	}
}

package platform

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"stickreach/internal/model"
	"stickreach/internal/nn"
	"stickreach/internal/scape"
	"stickreach/internal/storage"
	"stickreach/internal/tuning"
)

type Config struct {
	Store  storage.Store
	Logger *slog.Logger
}

// OptimizationConfig describes one CEO run against a registered scape. A
// zero World or Settings means the scape's defaults.
type OptimizationConfig struct {
	RunID        string
	ScapeName    string
	World        scape.World
	Settings     scape.Settings
	Layers       []nn.LayerSpec
	Optimizer    model.OptimizerRecord
	OnGeneration func(model.GenerationStats)
}

type OptimizationResult struct {
	Experiment model.Experiment
	History    []model.GenerationStats
	MeanReward float64
	BestReward float64
}

type Polis struct {
	store storage.Store
	log   *slog.Logger

	mu sync.RWMutex

	scapes  map[string]scape.Scape
	started bool
}

var (
	defaultPolisMu sync.Mutex
	defaultPolis   *Polis
)

func NewPolis(cfg Config) *Polis {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Polis{
		store:  cfg.Store,
		log:    logger,
		scapes: make(map[string]scape.Scape),
	}
}

// StartDefault initializes the process-wide polis once.
func StartDefault(ctx context.Context, cfg Config) (*Polis, error) {
	defaultPolisMu.Lock()
	defer defaultPolisMu.Unlock()

	if defaultPolis != nil && defaultPolis.Started() {
		return defaultPolis, nil
	}

	p := NewPolis(cfg)
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	defaultPolis = p
	return defaultPolis, nil
}

func Default() (*Polis, bool) {
	defaultPolisMu.Lock()
	p := defaultPolis
	defaultPolisMu.Unlock()

	if p == nil || !p.Started() {
		return nil, false
	}
	return p, true
}

func StopDefault() {
	defaultPolisMu.Lock()
	defer defaultPolisMu.Unlock()
	if defaultPolis != nil {
		defaultPolis.Stop()
		defaultPolis = nil
	}
}

// Init prepares the store and registers the built-in scapes. Calling it
// again on a started polis is a no-op.
func (p *Polis) Init(ctx context.Context) error {
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	if err := p.store.Init(ctx); err != nil {
		return err
	}
	for _, s := range builtinScapes() {
		p.scapes[s.Name()] = s
	}
	p.started = true
	p.log.Debug("polis started", "scapes", len(p.scapes))
	return nil
}

// Reset clears every persisted record and restarts with only the built-in
// scapes.
func (p *Polis) Reset(ctx context.Context) error {
	p.Stop()
	if p.store == nil {
		return fmt.Errorf("store is required")
	}
	if err := p.store.Reset(ctx); err != nil {
		return err
	}
	return p.Init(ctx)
}

func (p *Polis) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scapes = make(map[string]scape.Scape)
	p.started = false
}

func (p *Polis) Started() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.started
}

func (p *Polis) Store() storage.Store {
	return p.store
}

func (p *Polis) RegisterScape(s scape.Scape) error {
	if s == nil {
		return fmt.Errorf("scape is nil")
	}

	name := s.Name()
	if name == "" {
		return fmt.Errorf("scape name is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return fmt.Errorf("polis is not initialized")
	}
	p.scapes[name] = s
	return nil
}

func (p *Polis) GetScape(name string) (scape.Scape, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.scapes[name]
	return s, ok
}

func (p *Polis) RegisteredScapes() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.scapes))
	for name := range p.scapes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunOptimization trains a network on the named scape and persists the
// resulting experiment, its fitness history and the scape's best reward.
func (p *Polis) RunOptimization(ctx context.Context, cfg OptimizationConfig) (OptimizationResult, error) {
	if !p.Started() {
		return OptimizationResult{}, fmt.Errorf("polis is not initialized")
	}
	registered, ok := p.GetScape(cfg.ScapeName)
	if !ok {
		return OptimizationResult{}, fmt.Errorf("%w: unknown scape %q", model.ErrConfiguration, cfg.ScapeName)
	}

	world := cfg.World
	if len(world.HoldingLengths) == 0 {
		world = scape.DefaultWorld()
	}
	if err := world.Validate(); err != nil {
		return OptimizationResult{}, err
	}
	settings := cfg.Settings
	if settings == (scape.Settings{}) {
		settings = scape.DefaultSettings()
	}
	if err := settings.Validate(); err != nil {
		return OptimizationResult{}, err
	}
	configured := ConfigureScape(registered, world, settings)

	rollout := scape.Rollout{Scape: configured, Layers: cfg.Layers}
	if err := rollout.Validate(); err != nil {
		return OptimizationResult{}, err
	}
	net, err := nn.New(cfg.Layers)
	if err != nil {
		return OptimizationResult{}, err
	}

	ceo := tuning.FromRecord(cfg.Optimizer)
	if ceo.NoiseDecay == "" {
		ceo.NoiseDecay = tuning.NoiseDecayHarmonic
	}
	ceo.OnGeneration = func(stats model.GenerationStats) {
		p.log.Info("generation",
			"run_id", cfg.RunID,
			"scape", cfg.ScapeName,
			"generation", stats.Generation,
			"best", stats.BestFitness,
			"mean", stats.MeanFitness,
			"elite_mean", stats.EliteMeanFitness,
			"mean_std", stats.MeanStd,
		)
		if cfg.OnGeneration != nil {
			cfg.OnGeneration(stats)
		}
	}
	if err := ceo.Validate(); err != nil {
		return OptimizationResult{}, err
	}

	p.log.Info("optimization started",
		"run_id", cfg.RunID,
		"scape", cfg.ScapeName,
		"parameters", net.ParameterCount(),
		"generations", ceo.Generations,
		"batch_size", ceo.BatchSize,
		"elite_count", ceo.EliteCount(),
	)
	result, err := ceo.Optimize(ctx, net, rollout)
	if err != nil {
		return OptimizationResult{}, err
	}

	optimizer := ceo.Record()
	optimizer.Seed = cfg.Optimizer.Seed
	experiment := model.Experiment{
		VersionedRecord: storage.CurrentVersion(),
		ID:              uuid.NewString(),
		RunID:           cfg.RunID,
		Scape:           cfg.ScapeName,
		CreatedAtUTC:    time.Now().UTC().Format(time.RFC3339),
		Network:         net.Record(),
		Optimizer:       optimizer,
		World:           world.Record(),
		MeanReward:      result.MeanReward,
		BestReward:      result.BestReward,
		FinalStd:        append([]float64(nil), result.Std...),
	}
	if err := p.store.SaveExperiment(ctx, experiment); err != nil {
		return OptimizationResult{}, err
	}
	historyKey := cfg.RunID
	if historyKey == "" {
		historyKey = experiment.ID
	}
	if err := p.store.SaveFitnessHistory(ctx, historyKey, result.History); err != nil {
		return OptimizationResult{}, err
	}
	if err := p.updateScapeSummary(ctx, cfg.ScapeName, result.BestReward); err != nil {
		return OptimizationResult{}, err
	}
	p.log.Info("optimization finished",
		"run_id", cfg.RunID,
		"experiment_id", experiment.ID,
		"mean_reward", result.MeanReward,
		"best_reward", result.BestReward,
	)

	return OptimizationResult{
		Experiment: experiment,
		History:    result.History,
		MeanReward: result.MeanReward,
		BestReward: result.BestReward,
	}, nil
}

func (p *Polis) updateScapeSummary(ctx context.Context, scapeName string, fitness float64) error {
	summary, ok, err := p.store.GetScapeSummary(ctx, scapeName)
	if err != nil {
		return err
	}
	if !ok {
		summary = model.ScapeSummary{
			VersionedRecord: storage.CurrentVersion(),
			Name:            scapeName,
			Description:     fmt.Sprintf("best observed reward for scape %s", scapeName),
			BestFitness:     fitness,
		}
		return p.store.SaveScapeSummary(ctx, summary)
	}
	if fitness <= summary.BestFitness {
		return nil
	}
	summary.BestFitness = fitness
	return p.store.SaveScapeSummary(ctx, summary)
}

func builtinScapes() []scape.Scape {
	return []scape.Scape{
		scape.ReachScape{},
		scape.CoupleReachScape{},
	}
}

// ConfigureScape returns a copy of a built-in scape bound to world and
// settings. Other scapes are returned unchanged.
func ConfigureScape(s scape.Scape, world scape.World, settings scape.Settings) scape.Scape {
	switch typed := s.(type) {
	case scape.ReachScape:
		typed.World, typed.Settings = world, settings
		return typed
	case scape.CoupleReachScape:
		typed.World, typed.Settings = world, settings
		return typed
	default:
		return s
	}
}

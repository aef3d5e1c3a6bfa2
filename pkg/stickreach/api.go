package stickreach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ncruces/go-strftime"

	"stickreach/internal/ik"
	"stickreach/internal/model"
	"stickreach/internal/nn"
	"stickreach/internal/platform"
	"stickreach/internal/scape"
	"stickreach/internal/stats"
	"stickreach/internal/storage"
)

const (
	defaultBenchmarksDir = "benchmarks"
	defaultExportsDir    = "exports"
	defaultDBPath        = "stickreach.db"
	defaultScape         = "couple-reach"
	runIDTimeLayout      = "%Y%m%dT%H%M%SZ"
)

type Options struct {
	StoreKind     string
	DBPath        string
	BenchmarksDir string
	ExportsDir    string
	Logger        *slog.Logger
}

type Client struct {
	store  storage.Store
	polis  *platform.Polis
	logger *slog.Logger

	benchmarksDir string
	exportsDir    string
}

// RunRequest configures one training run. Zero fields take the defaults of
// the reference couple-reach experiment.
type RunRequest struct {
	Scape        string
	Generations  int
	BatchSize    int
	Episodes     int
	EpisodeTicks int
	EliteFrac    float64
	InitialMean  float64
	InitialStd   float64
	NoiseFactor  float64
	NoiseDecay   string
	Seed         int64
	Workers      int
	// Network lists the layers after the input layer, whose width comes
	// from the world.
	Network       []model.LayerRecord
	World         *model.WorldRecord
	StepSize      float64
	// BalanceGain and Tolerance are pointers so an explicit zero is kept;
	// nil selects the default.
	BalanceGain   *float64
	ComTarget     string
	Tolerance     *float64
	TerminalBonus float64
	OnGeneration  func(model.GenerationStats)
}

type RunSummary struct {
	RunID          string
	ExperimentID   string
	ArtifactsDir   string
	ExperimentPath string
	History        []model.GenerationStats
	MeanReward     float64
	BestReward     float64
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID            string
	ExperimentID     string
	CreatedAtUTC     string
	Scape            string
	Seed             int64
	Generations      int
	BatchSize        int
	MeanReward       float64
	FinalBestFitness float64
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

type FitnessHistoryRequest struct {
	RunID  string
	Latest bool
	Limit  int
}

// ExperimentRequest selects an experiment by file path, stored id, or run.
// Exactly one selector must be set.
type ExperimentRequest struct {
	Path         string
	ExperimentID string
	RunID        string
	Latest       bool
}

type RunReportRequest struct {
	RunID  string
	Latest bool
}

// RunReport is the on-disk summary of one run: the settings it ran with and
// how its best fitness moved over the generations.
type RunReport struct {
	RunID       string
	Scape       string
	Seed        int64
	Workers     int
	ComTarget   string
	BalanceGain float64
	Generations int
	InitialBest float64
	FinalBest   float64
	BestMean    float64
	BestStd     float64
	Improvement float64
}

type ScapeItem struct {
	Name        string
	Controlled  bool
	InputSize   int
	OutputSize  int
	BestFitness *float64
}

type ScapeSummaryItem struct {
	Name        string
	Description string
	BestFitness float64
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	benchmarksDir := opts.BenchmarksDir
	if benchmarksDir == "" {
		benchmarksDir = defaultBenchmarksDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:         store,
		logger:        logger,
		benchmarksDir: benchmarksDir,
		exportsDir:    exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	_, err := c.ensurePolis(ctx)
	return err
}

// Reset drops every stored record. Run artifacts on disk are kept.
func (c *Client) Reset(ctx context.Context) error {
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return err
	}
	return p.Reset(ctx)
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if req.Scape == "" {
		req.Scape = defaultScape
	}
	if req.Generations <= 0 {
		req.Generations = 500
	}
	if req.BatchSize <= 0 {
		req.BatchSize = 50
	}
	if req.Episodes <= 0 {
		req.Episodes = 15
	}
	if req.EpisodeTicks <= 0 {
		req.EpisodeTicks = 200
	}
	if req.EliteFrac <= 0 {
		req.EliteFrac = 0.25
	}
	if req.InitialStd <= 0 {
		req.InitialStd = 1
	}
	if req.NoiseFactor <= 0 {
		req.NoiseFactor = 1
	}
	if req.Workers <= 0 {
		req.Workers = 4
	}
	if len(req.Network) == 0 {
		req.Network = DefaultNetwork()
	}

	world, err := worldFromRequest(req.World)
	if err != nil {
		return RunSummary{}, err
	}
	settings, err := settingsFromRequest(req.StepSize, req.BalanceGain, req.ComTarget, req.Tolerance, req.TerminalBonus)
	if err != nil {
		return RunSummary{}, err
	}
	layers, err := networkLayers(world, req.Network)
	if err != nil {
		return RunSummary{}, err
	}

	p, err := c.ensurePolis(ctx)
	if err != nil {
		return RunSummary{}, err
	}

	now := time.Now().UTC()
	runID := fmt.Sprintf("%s-%s-%s", req.Scape, strftime.Format(runIDTimeLayout, now), uuid.NewString()[:8])
	optimizer := model.OptimizerRecord{
		Generations:     req.Generations,
		BatchSize:       req.BatchSize,
		NumEpisodes:     req.Episodes,
		NumEpisodeTicks: req.EpisodeTicks,
		EliteFrac:       req.EliteFrac,
		InitialMean:     req.InitialMean,
		InitialStd:      req.InitialStd,
		NoiseFactor:     req.NoiseFactor,
		NoiseDecay:      req.NoiseDecay,
		Workers:         req.Workers,
		Seed:            req.Seed,
	}

	result, err := p.RunOptimization(ctx, platform.OptimizationConfig{
		RunID:        runID,
		ScapeName:    req.Scape,
		World:        world,
		Settings:     settings,
		Layers:       layers,
		Optimizer:    optimizer,
		OnGeneration: req.OnGeneration,
	})
	if err != nil {
		return RunSummary{}, err
	}

	runConfig := stats.RunConfig{
		RunID:         runID,
		Scape:         req.Scape,
		Seed:          req.Seed,
		Workers:       req.Workers,
		Optimizer:     result.Experiment.Optimizer,
		Network:       nn.LayerRecords(layers),
		World:         world.Record(),
		StepSize:      settings.StepSize,
		BalanceGain:   settings.BalanceGain,
		ComTarget:     settings.Policy.String(),
		Tolerance:     settings.Tolerance,
		TerminalBonus: settings.TerminalBonus,
	}
	runDir, err := stats.WriteRunArtifacts(c.benchmarksDir, stats.RunArtifacts{
		Config:           runConfig,
		History:          result.History,
		MeanReward:       result.MeanReward,
		FinalBestFitness: result.BestReward,
		Experiment:       result.Experiment,
	})
	if err != nil {
		return RunSummary{}, err
	}

	if err := stats.AppendRunIndex(c.benchmarksDir, stats.RunIndexEntry{
		RunID:            runID,
		ExperimentID:     result.Experiment.ID,
		Scape:            req.Scape,
		Generations:      req.Generations,
		BatchSize:        req.BatchSize,
		Seed:             req.Seed,
		Workers:          req.Workers,
		EliteCount:       int(float64(req.BatchSize) * req.EliteFrac),
		MeanReward:       result.MeanReward,
		FinalBestFitness: result.BestReward,
		CreatedAtUTC:     now.Format(time.RFC3339Nano),
	}); err != nil {
		return RunSummary{}, err
	}
	c.logger.Info("run artifacts written", "run_id", runID, "dir", runDir)

	return RunSummary{
		RunID:          runID,
		ExperimentID:   result.Experiment.ID,
		ArtifactsDir:   filepath.Clean(runDir),
		ExperimentPath: stats.ExperimentPath(c.benchmarksDir, runID),
		History:        append([]model.GenerationStats(nil), result.History...),
		MeanReward:     result.MeanReward,
		BestReward:     result.BestReward,
	}, nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.benchmarksDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:            e.RunID,
			ExperimentID:     e.ExperimentID,
			CreatedAtUTC:     e.CreatedAtUTC,
			Scape:            e.Scape,
			Seed:             e.Seed,
			Generations:      e.Generations,
			BatchSize:        e.BatchSize,
			MeanReward:       e.MeanReward,
			FinalBestFitness: e.FinalBestFitness,
		})
	}
	return out, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}

	exportedDir, err := stats.ExportRunArtifacts(c.benchmarksDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

// FitnessHistory reads from the store first and falls back to the run's
// artifacts, so memory-backed clients still see earlier runs.
func (c *Client) FitnessHistory(ctx context.Context, req FitnessHistoryRequest) ([]model.GenerationStats, error) {
	if req.RunID != "" && req.Latest {
		return nil, errors.New("use either run id or latest")
	}
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if req.RunID == "" && !req.Latest {
		return nil, errors.New("fitness history requires run id or latest")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}

	if _, err := c.ensurePolis(ctx); err != nil {
		return nil, err
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		history, err = c.artifactHistory(runID)
		if err != nil {
			return nil, err
		}
	}
	if req.Limit > 0 && len(history) > req.Limit {
		history = history[:req.Limit]
	}
	return append([]model.GenerationStats(nil), history...), nil
}

// artifactHistory reads a run's history from disk, preferring
// fitness_history.json over the CSV series.
func (c *Client) artifactHistory(runID string) ([]model.GenerationStats, error) {
	artifact, found, err := stats.ReadFitnessHistory(c.benchmarksDir, runID)
	if err != nil {
		return nil, err
	}
	if found {
		return artifact.History, nil
	}
	series, found, err := stats.ReadBenchmarkSeries(c.benchmarksDir, runID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	return series, nil
}

func (c *Client) RunReport(_ context.Context, req RunReportRequest) (RunReport, error) {
	if req.RunID != "" && req.Latest {
		return RunReport{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return RunReport{}, errors.New("run report requires run id or latest")
	}
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return RunReport{}, err
	}

	cfg, ok, err := stats.ReadRunConfig(c.benchmarksDir, runID)
	if err != nil {
		return RunReport{}, err
	}
	if !ok {
		return RunReport{}, fmt.Errorf("run config not found for run id: %s", runID)
	}
	summary, ok, err := stats.ReadBenchmarkSummary(c.benchmarksDir, runID)
	if err != nil {
		return RunReport{}, err
	}
	if !ok {
		history, err := c.artifactHistory(runID)
		if err != nil {
			return RunReport{}, err
		}
		summary = stats.SummarizeRun(cfg, history)
	}

	return RunReport{
		RunID:       runID,
		Scape:       cfg.Scape,
		Seed:        cfg.Seed,
		Workers:     cfg.Workers,
		ComTarget:   cfg.ComTarget,
		BalanceGain: cfg.BalanceGain,
		Generations: summary.Generations,
		InitialBest: summary.InitialBest,
		FinalBest:   summary.FinalBest,
		BestMean:    summary.BestMean,
		BestStd:     summary.BestStd,
		Improvement: summary.Improvement,
	}, nil
}

func (c *Client) LoadExperiment(ctx context.Context, req ExperimentRequest) (model.Experiment, error) {
	selectors := 0
	for _, set := range []bool{req.Path != "", req.ExperimentID != "", req.RunID != "", req.Latest} {
		if set {
			selectors++
		}
	}
	if selectors != 1 {
		return model.Experiment{}, errors.New("experiment requires exactly one of path, experiment id, run id or latest")
	}

	switch {
	case req.Path != "":
		return stats.LoadExperiment(req.Path)
	case req.ExperimentID != "":
		if _, err := c.ensurePolis(ctx); err != nil {
			return model.Experiment{}, err
		}
		experiment, ok, err := c.store.GetExperiment(ctx, req.ExperimentID)
		if err != nil {
			return model.Experiment{}, err
		}
		if !ok {
			return model.Experiment{}, fmt.Errorf("experiment not found: %s", req.ExperimentID)
		}
		return experiment, nil
	default:
		runID, err := c.resolveRunID(req.RunID, req.Latest)
		if err != nil {
			return model.Experiment{}, err
		}
		return stats.LoadExperiment(stats.ExperimentPath(c.benchmarksDir, runID))
	}
}

// Scapes lists the registered scapes with their controller shapes and the
// best reward recorded for each.
func (c *Client) Scapes(ctx context.Context) ([]ScapeItem, error) {
	p, err := c.ensurePolis(ctx)
	if err != nil {
		return nil, err
	}
	names := p.RegisteredScapes()
	out := make([]ScapeItem, 0, len(names))
	for _, name := range names {
		s, ok := p.GetScape(name)
		if !ok {
			continue
		}
		item := ScapeItem{Name: name}
		if controlled, ok := s.(scape.ControlledScape); ok {
			item.Controlled = true
			item.InputSize, item.OutputSize = controlled.ControllerIO()
		}
		summary, ok, err := c.store.GetScapeSummary(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			best := summary.BestFitness
			item.BestFitness = &best
		}
		out = append(out, item)
	}
	return out, nil
}

func (c *Client) ScapeSummary(ctx context.Context, scapeName string) (ScapeSummaryItem, error) {
	if scapeName == "" {
		return ScapeSummaryItem{}, errors.New("scape name is required")
	}
	if _, err := c.ensurePolis(ctx); err != nil {
		return ScapeSummaryItem{}, err
	}
	summary, ok, err := c.store.GetScapeSummary(ctx, scapeName)
	if err != nil {
		return ScapeSummaryItem{}, err
	}
	if !ok {
		return ScapeSummaryItem{}, fmt.Errorf("scape summary not found: %s", scapeName)
	}
	return ScapeSummaryItem{
		Name:        summary.Name,
		Description: summary.Description,
		BestFitness: summary.BestFitness,
	}, nil
}

// DefaultNetwork is two leaky hidden layers of 16 and a linear 2-wide
// output.
func DefaultNetwork() []model.LayerRecord {
	return []model.LayerRecord{
		{Size: 16, Activation: "leaky_relu", Slope: 0.1},
		{Size: 16, Activation: "leaky_relu", Slope: 0.1},
		{Size: 2, Activation: "identity"},
	}
}

func (c *Client) ensurePolis(ctx context.Context) (*platform.Polis, error) {
	if c.polis != nil {
		return c.polis, nil
	}
	p := platform.NewPolis(platform.Config{Store: c.store, Logger: c.logger})
	if err := p.Init(ctx); err != nil {
		return nil, err
	}
	c.polis = p
	return c.polis, nil
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if !latest {
		return runID, nil
	}
	entries, err := stats.ListRunIndex(c.benchmarksDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func worldFromRequest(record *model.WorldRecord) (scape.World, error) {
	if record == nil {
		return scape.DefaultWorld(), nil
	}
	return scape.WorldFromRecord(*record)
}

func settingsFromRequest(stepSize float64, balanceGain *float64, comTarget string, tolerance *float64, bonus float64) (scape.Settings, error) {
	settings := scape.DefaultSettings()
	if stepSize != 0 {
		settings.StepSize = stepSize
	}
	if balanceGain != nil {
		settings.BalanceGain = *balanceGain
	}
	if comTarget != "" {
		policy, err := ik.ParseComTargetPolicy(comTarget)
		if err != nil {
			return scape.Settings{}, fmt.Errorf("%w: %v", model.ErrConfiguration, err)
		}
		settings.Policy = policy
	}
	if tolerance != nil {
		settings.Tolerance = *tolerance
	}
	settings.TerminalBonus = bonus
	if err := settings.Validate(); err != nil {
		return scape.Settings{}, err
	}
	return settings, nil
}

// networkLayers prepends the input layer sized for world's encoded scene.
func networkLayers(world scape.World, rest []model.LayerRecord) ([]nn.LayerSpec, error) {
	records := make([]model.LayerRecord, 0, len(rest)+1)
	records = append(records, model.LayerRecord{
		Size:       scape.InputSize(len(world.HoldingLengths), len(world.NonHoldingLengths)),
		Activation: "identity",
	})
	records = append(records, rest...)
	return nn.LayersFromRecords(records)
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

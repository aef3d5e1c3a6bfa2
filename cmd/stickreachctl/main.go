package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"stickreach/internal/model"
	"stickreach/internal/storage"
	"stickreach/pkg/stickreach"
)

const (
	benchmarksDir = "benchmarks"
	exportsDir    = "exports"
	defaultDBPath = "stickreach.db"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "reset":
		return runReset(ctx, args[1:])
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "fitness":
		return runFitness(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "show":
		return runShow(ctx, args[1:])
	case "simulate":
		return runSimulate(ctx, args[1:])
	case "scapes":
		return runScapes(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

type clientFlags struct {
	storeKind *string
	dbPath    *string
	logLevel  *string
}

func addClientFlags(fs *flag.FlagSet) clientFlags {
	return clientFlags{
		storeKind: fs.String("store", storage.DefaultStoreKind, "store backend: memory|sqlite"),
		dbPath:    fs.String("db-path", defaultDBPath, "sqlite database path"),
		logLevel:  fs.String("log-level", "info", "log level: debug|info|warn|error"),
	}
}

func (f clientFlags) open() (*stickreach.Client, error) {
	logger, err := newLogger(*f.logLevel)
	if err != nil {
		return nil, err
	}
	return stickreach.New(stickreach.Options{
		StoreKind:     *f.storeKind,
		DBPath:        *f.dbPath,
		BenchmarksDir: benchmarksDir,
		ExportsDir:    exportsDir,
		Logger:        logger,
	})
}

// newLogger writes text to an interactive stderr and JSON otherwise.
func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	fd := os.Stderr.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	fmt.Printf("initialized store=%s\n", *cf.storeKind)
	return nil
}

func runReset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Reset(ctx); err != nil {
		return err
	}

	fmt.Printf("reset store=%s\n", *cf.storeKind)
	return nil
}

func runRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional run config file (YAML or JSON)")
	scapeName := fs.String("scape", "couple-reach", "scape name")
	generations := fs.Int("gens", 500, "generation count")
	batchSize := fs.Int("batch", 50, "candidates per generation")
	episodes := fs.Int("episodes", 15, "episodes per candidate")
	ticks := fs.Int("ticks", 200, "ticks per episode")
	eliteFrac := fs.Float64("elite-frac", 0.25, "fraction of the batch kept as elites")
	initialMean := fs.Float64("initial-mean", 0, "initial parameter mean")
	initialStd := fs.Float64("initial-std", 1, "initial parameter std")
	noiseFactor := fs.Float64("noise", 1, "extra std added after each refit")
	noiseDecay := fs.String("noise-decay", "harmonic", "noise schedule: harmonic|linear|none")
	hidden := fs.String("hidden", "16,16", "comma separated hidden layer sizes")
	leakSlope := fs.Float64("leak-slope", 0.1, "leaky relu slope of hidden layers")
	seed := fs.Int64("seed", 1, "rng seed")
	workers := fs.Int("workers", 4, "worker count")
	stepSize := fs.Float64("step-size", 0.01, "per tick step size")
	balanceGain := fs.Float64("balance-gain", 1, "weight of the balance step")
	comTarget := fs.String("com-target", "midpoint", "center of mass target: midpoint|origin")
	tolerance := fs.Float64("tolerance", 0.01, "goal reached distance")
	terminalBonus := fs.Float64("terminal-bonus", 0, "reward added when the goal is reached")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})
	use := func(name string) bool {
		return *configPath == "" || setFlags[name]
	}

	var req stickreach.RunRequest
	if *configPath != "" {
		loaded, err := loadRunRequestFromConfig(*configPath)
		if err != nil {
			return err
		}
		req = loaded
	}
	if use("scape") {
		req.Scape = *scapeName
	}
	if use("gens") {
		req.Generations = *generations
	}
	if use("batch") {
		req.BatchSize = *batchSize
	}
	if use("episodes") {
		req.Episodes = *episodes
	}
	if use("ticks") {
		req.EpisodeTicks = *ticks
	}
	if use("elite-frac") {
		req.EliteFrac = *eliteFrac
	}
	if use("initial-mean") {
		req.InitialMean = *initialMean
	}
	if use("initial-std") {
		req.InitialStd = *initialStd
	}
	if use("noise") {
		req.NoiseFactor = *noiseFactor
	}
	if use("noise-decay") {
		req.NoiseDecay = *noiseDecay
	}
	if use("hidden") || use("leak-slope") {
		network, err := parseHiddenLayers(*hidden, *leakSlope)
		if err != nil {
			return err
		}
		req.Network = network
	}
	if use("seed") {
		req.Seed = *seed
	}
	if use("workers") {
		req.Workers = *workers
	}
	if use("step-size") {
		req.StepSize = *stepSize
	}
	if use("balance-gain") {
		req.BalanceGain = balanceGain
	}
	if use("com-target") {
		req.ComTarget = *comTarget
	}
	if use("tolerance") {
		req.Tolerance = tolerance
	}
	if use("terminal-bonus") {
		req.TerminalBonus = *terminalBonus
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	start := time.Now()
	summary, err := client.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("run_id=%s experiment_id=%s generations=%d mean_reward=%.6f best_reward=%.6f elapsed=%s artifacts=%s\n",
		summary.RunID,
		summary.ExperimentID,
		len(summary.History),
		summary.MeanReward,
		summary.BestReward,
		time.Since(start).Round(time.Millisecond),
		summary.ArtifactsDir,
	)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, stickreach.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(items)
	}
	if len(items) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	for _, item := range items {
		fmt.Printf("run_id=%s created=%s scape=%s seed=%d gens=%s batch=%d mean_reward=%.6f best_reward=%.6f\n",
			item.RunID,
			relativeTime(item.CreatedAtUTC),
			item.Scape,
			item.Seed,
			humanize.Comma(int64(item.Generations)),
			item.BatchSize,
			item.MeanReward,
			item.FinalBestFitness,
		)
	}
	return nil
}

func runFitness(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fitness", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show fitness history for the most recent run from run index")
	limit := fs.Int("limit", 50, "max generations to print (<=0 for all)")
	jsonOut := fs.Bool("json", false, "emit fitness history as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("fitness requires --run-id or --latest")
	}
	if *limit < 0 {
		*limit = 0
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	history, err := client.FitnessHistory(ctx, stickreach.FitnessHistoryRequest{
		RunID:  *runID,
		Latest: *latest,
		Limit:  *limit,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(history)
	}
	if len(history) == 0 {
		fmt.Println("no fitness history")
		return nil
	}

	for _, gen := range history {
		fmt.Printf("generation=%d best=%.6f mean=%.6f elite_mean=%.6f mean_std=%.6f\n",
			gen.Generation,
			gen.BestFitness,
			gen.MeanFitness,
			gen.EliteMeanFitness,
			gen.MeanStd,
		)
	}
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run from run index")
	outDir := fs.String("out", exportsDir, "export output directory")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *runID != "" && *latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if *runID == "" && !*latest {
		return errors.New("export requires --run-id or --latest")
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	exported, err := client.Export(ctx, stickreach.ExportRequest{RunID: *runID, Latest: *latest, OutDir: *outDir})
	if err != nil {
		return err
	}

	fmt.Printf("exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
	return nil
}

func runShow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	path := fs.String("experiment", "", "experiment file path")
	experimentID := fs.String("experiment-id", "", "stored experiment id")
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the experiment of the most recent run")
	jsonOut := fs.Bool("json", false, "emit the experiment as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	experiment, err := client.LoadExperiment(ctx, stickreach.ExperimentRequest{
		Path:         *path,
		ExperimentID: *experimentID,
		RunID:        *runID,
		Latest:       *latest,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(experiment)
	}

	fmt.Printf("experiment_id=%s run_id=%s scape=%s created=%s\n",
		experiment.ID,
		experiment.RunID,
		experiment.Scape,
		relativeTime(experiment.CreatedAtUTC),
	)
	fmt.Printf("network=%s parameters=%s\n",
		describeLayers(experiment.Network.Layers),
		humanize.Comma(int64(len(experiment.Network.Parameters))),
	)
	fmt.Printf("optimizer gens=%d batch=%d episodes=%d ticks=%d elite_frac=%g noise=%g decay=%s seed=%d\n",
		experiment.Optimizer.Generations,
		experiment.Optimizer.BatchSize,
		experiment.Optimizer.NumEpisodes,
		experiment.Optimizer.NumEpisodeTicks,
		experiment.Optimizer.EliteFrac,
		experiment.Optimizer.NoiseFactor,
		experiment.Optimizer.NoiseDecay,
		experiment.Optimizer.Seed,
	)
	fmt.Printf("mean_reward=%.6f best_reward=%.6f\n", experiment.MeanReward, experiment.BestReward)

	// Experiments loaded from a file may come from a run this workspace
	// has no artifacts for.
	if experiment.RunID == "" {
		return nil
	}
	report, err := client.RunReport(ctx, stickreach.RunReportRequest{RunID: experiment.RunID})
	if err != nil {
		return nil
	}
	fmt.Printf("fitness initial_best=%.6f final_best=%.6f improvement=%.6f best_std=%.6f com_target=%s balance_gain=%g\n",
		report.InitialBest,
		report.FinalBest,
		report.Improvement,
		report.BestStd,
		report.ComTarget,
		report.BalanceGain,
	)
	return nil
}

func runSimulate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	path := fs.String("experiment", "", "experiment file path to replay")
	runID := fs.String("run-id", "", "replay the experiment of a run")
	latest := fs.Bool("latest", false, "replay the experiment of the most recent run")
	scapeName := fs.String("scape", "", "scape to simulate without an experiment (default reach)")
	ticks := fs.Int("ticks", 200, "ticks to simulate")
	seed := fs.Int64("seed", 1, "rng seed")
	autoSwitch := fs.Bool("auto-switch", false, "switch the holding chain whenever the goal is reached")
	stepSize := fs.Float64("step-size", 0.01, "per tick step size")
	balanceGain := fs.Float64("balance-gain", 1, "weight of the balance step")
	comTarget := fs.String("com-target", "midpoint", "center of mass target: midpoint|origin")
	tolerance := fs.Float64("tolerance", 0.01, "goal reached distance")
	trace := fs.Bool("trace", false, "print every tick")
	jsonOut := fs.Bool("json", false, "emit the full simulation as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	req := stickreach.SimulateRequest{
		Scape:       *scapeName,
		Ticks:       *ticks,
		Seed:        *seed,
		AutoSwitch:  *autoSwitch,
		StepSize:    *stepSize,
		BalanceGain: balanceGain,
		ComTarget:   *comTarget,
		Tolerance:   tolerance,
	}
	if *path != "" || *runID != "" || *latest {
		experiment, err := client.LoadExperiment(ctx, stickreach.ExperimentRequest{Path: *path, RunID: *runID, Latest: *latest})
		if err != nil {
			return err
		}
		req.Experiment = &experiment
	}

	result, err := client.Simulate(ctx, req)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(result)
	}
	if *trace {
		for _, frame := range result.Frames {
			end := frame.Couple.Holding.FreeEnd
			if frame.Couple.NonHolding != nil {
				end = frame.Couple.NonHolding.FreeEnd
			}
			fmt.Printf("tick=%d free_end=(%.4f,%.4f) goal=(%.4f,%.4f) distance=%.6f switches=%d\n",
				frame.Tick, end.X, end.Y, frame.Goal.X, frame.Goal.Y, frame.Distance, frame.Couple.Switches)
		}
	}

	fmt.Printf("scape=%s ticks=%d switches=%d reward=%.6f mean_distance=%.6f final_distance=%.6f reached=%t\n",
		result.Scape,
		len(result.Frames)-1,
		result.Switches,
		result.Reward,
		result.MeanDistance,
		result.FinalDistance,
		result.Reached,
	)
	return nil
}

func runScapes(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scapes", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "emit scapes as JSON")
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := cf.open()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Scapes(ctx)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(items)
	}
	for _, item := range items {
		best := "n/a"
		if item.BestFitness != nil {
			best = fmt.Sprintf("%.6f", *item.BestFitness)
		}
		controller := "none"
		if item.Controlled {
			controller = fmt.Sprintf("%d->%d", item.InputSize, item.OutputSize)
		}
		fmt.Printf("scape=%s controller=%s best_reward=%s\n", item.Name, controller, best)
	}
	return nil
}

func parseHiddenLayers(hidden string, slope float64) ([]model.LayerRecord, error) {
	var layers []model.LayerRecord
	for _, field := range strings.Split(hidden, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		size, err := strconv.Atoi(field)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("invalid hidden layer size %q", field)
		}
		layers = append(layers, model.LayerRecord{Size: size, Activation: "leaky_relu", Slope: slope})
	}
	return append(layers, model.LayerRecord{Size: 2, Activation: "identity"}), nil
}

func describeLayers(layers []model.LayerRecord) string {
	parts := make([]string, len(layers))
	for i, layer := range layers {
		parts[i] = strconv.Itoa(layer.Size)
		if layer.Activation == "leaky_relu" {
			parts[i] += fmt.Sprintf("(leaky %g)", layer.Slope)
		}
	}
	return strings.Join(parts, "-")
}

func relativeTime(stamp string) string {
	t, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return stamp
	}
	return humanize.Time(t)
}

func printJSON(value any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: stickreachctl <init|reset|run|runs|fitness|export|show|simulate|scapes> [flags]", msg)
}

package stickreach

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"stickreach/internal/model"
	"stickreach/internal/scape"
	"stickreach/internal/stats"
)

func newTestClient(t *testing.T, base string) *Client {
	t.Helper()
	client, err := New(Options{
		StoreKind:     "memory",
		BenchmarksDir: filepath.Join(base, "benchmarks"),
		ExportsDir:    filepath.Join(base, "exports"),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func smallRun(seed int64) RunRequest {
	return RunRequest{
		Scape:        "couple-reach",
		Generations:  2,
		BatchSize:    4,
		Episodes:     1,
		EpisodeTicks: 5,
		EliteFrac:    0.5,
		Seed:         seed,
		Workers:      2,
		Network: []model.LayerRecord{
			{Size: 4, Activation: "leaky_relu", Slope: 0.1},
			{Size: 2, Activation: "identity"},
		},
	}
}

func TestClientRunRunsAndExport(t *testing.T) {
	base := t.TempDir()
	client := newTestClient(t, base)
	ctx := context.Background()

	var seen []int
	req := smallRun(42)
	req.OnGeneration = func(stats model.GenerationStats) {
		seen = append(seen, stats.Generation)
	}
	summary, err := client.Run(ctx, req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(summary.RunID, "couple-reach-") {
		t.Fatalf("unexpected run id: %s", summary.RunID)
	}
	if len(summary.History) != 2 || !reflect.DeepEqual(seen, []int{1, 2}) {
		t.Fatalf("unexpected history %+v callbacks %v", summary.History, seen)
	}
	for _, name := range []string{"config.json", "fitness_history.json", "experiment.json", "benchmark_series.csv", "benchmark_summary.json", "fitness.png"} {
		if _, err := os.Stat(filepath.Join(summary.ArtifactsDir, name)); err != nil {
			t.Fatalf("expected artifact %s: %v", name, err)
		}
	}

	cfg, ok, err := stats.ReadRunConfig(filepath.Join(base, "benchmarks"), summary.RunID)
	if err != nil || !ok {
		t.Fatalf("read run config: ok=%t err=%v", ok, err)
	}
	if cfg.ComTarget != "midpoint" || cfg.StepSize != 0.01 || cfg.Optimizer.Seed != 42 {
		t.Fatalf("unexpected run config: %+v", cfg)
	}
	if len(cfg.Network) != 3 || cfg.Network[0].Size != 6 {
		t.Fatalf("expected 6-wide input layer, got %+v", cfg.Network)
	}

	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != summary.RunID || runs[0].ExperimentID != summary.ExperimentID {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if runs[0].FinalBestFitness != summary.BestReward || runs[0].MeanReward != summary.MeanReward {
		t.Fatalf("run index rewards differ: %+v vs %+v", runs[0], summary)
	}

	history, err := client.FitnessHistory(ctx, FitnessHistoryRequest{Latest: true, Limit: 1})
	if err != nil {
		t.Fatalf("fitness history: %v", err)
	}
	if len(history) != 1 || history[0] != summary.History[0] {
		t.Fatalf("unexpected limited history: %+v", history)
	}

	exported, err := client.Export(ctx, ExportRequest{Latest: true})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exported.RunID != summary.RunID {
		t.Fatalf("exported wrong run: %s", exported.RunID)
	}
	if _, err := os.Stat(filepath.Join(exported.Directory, "experiment.json")); err != nil {
		t.Fatalf("expected exported experiment: %v", err)
	}
}

func TestClientLoadExperimentSelectors(t *testing.T) {
	client := newTestClient(t, t.TempDir())
	ctx := context.Background()
	summary, err := client.Run(ctx, smallRun(5))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	requests := map[string]ExperimentRequest{
		"path":   {Path: summary.ExperimentPath},
		"id":     {ExperimentID: summary.ExperimentID},
		"run":    {RunID: summary.RunID},
		"latest": {Latest: true},
	}
	for name, req := range requests {
		t.Run(name, func(t *testing.T) {
			experiment, err := client.LoadExperiment(ctx, req)
			if err != nil {
				t.Fatalf("load experiment: %v", err)
			}
			if experiment.ID != summary.ExperimentID || experiment.RunID != summary.RunID {
				t.Fatalf("unexpected experiment: id=%s run=%s", experiment.ID, experiment.RunID)
			}
			if experiment.BestReward != summary.BestReward {
				t.Fatalf("best reward %f, want %f", experiment.BestReward, summary.BestReward)
			}
		})
	}

	if _, err := client.LoadExperiment(ctx, ExperimentRequest{}); err == nil {
		t.Fatal("expected error without selector")
	}
	if _, err := client.LoadExperiment(ctx, ExperimentRequest{RunID: summary.RunID, Latest: true}); err == nil {
		t.Fatal("expected error with two selectors")
	}
	if _, err := client.LoadExperiment(ctx, ExperimentRequest{ExperimentID: "missing"}); err == nil {
		t.Fatal("expected missing experiment error")
	}
}

func TestClientFitnessHistoryFallsBackToArtifacts(t *testing.T) {
	base := t.TempDir()
	first := newTestClient(t, base)
	summary, err := first.Run(context.Background(), smallRun(9))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	second := newTestClient(t, base)
	history, err := second.FitnessHistory(context.Background(), FitnessHistoryRequest{RunID: summary.RunID})
	if err != nil {
		t.Fatalf("fitness history: %v", err)
	}
	if !reflect.DeepEqual(history, summary.History) {
		t.Fatalf("artifact history differs: got=%+v want=%+v", history, summary.History)
	}
	if _, err := second.FitnessHistory(context.Background(), FitnessHistoryRequest{RunID: "missing"}); err == nil {
		t.Fatal("expected missing history error")
	}

	if err := os.Remove(filepath.Join(base, "benchmarks", summary.RunID, "fitness_history.json")); err != nil {
		t.Fatalf("remove history artifact: %v", err)
	}
	history, err = second.FitnessHistory(context.Background(), FitnessHistoryRequest{RunID: summary.RunID})
	if err != nil {
		t.Fatalf("fitness history from series: %v", err)
	}
	if !reflect.DeepEqual(history, summary.History) {
		t.Fatalf("series history differs: got=%+v want=%+v", history, summary.History)
	}
}

func TestClientRunReport(t *testing.T) {
	base := t.TempDir()
	client := newTestClient(t, base)
	ctx := context.Background()
	req := smallRun(5)
	req.BalanceGain = ptr(0.0)
	summary, err := client.Run(ctx, req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	report, err := client.RunReport(ctx, RunReportRequest{Latest: true})
	if err != nil {
		t.Fatalf("run report: %v", err)
	}
	if report.RunID != summary.RunID || report.Scape != "couple-reach" || report.Seed != 5 || report.Generations != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.BalanceGain != 0 || report.ComTarget != "midpoint" {
		t.Fatalf("unexpected episode settings in report: %+v", report)
	}
	first, last := summary.History[0].BestFitness, summary.History[1].BestFitness
	if report.InitialBest != first || report.FinalBest != last || report.Improvement != last-first {
		t.Fatalf("unexpected fitness summary: %+v", report)
	}

	if err := os.Remove(filepath.Join(base, "benchmarks", summary.RunID, "benchmark_summary.json")); err != nil {
		t.Fatalf("remove summary artifact: %v", err)
	}
	recomputed, err := client.RunReport(ctx, RunReportRequest{RunID: summary.RunID})
	if err != nil {
		t.Fatalf("run report without summary: %v", err)
	}
	if recomputed != report {
		t.Fatalf("recomputed report differs: got=%+v want=%+v", recomputed, report)
	}

	if _, err := client.RunReport(ctx, RunReportRequest{}); err == nil {
		t.Fatal("expected selector error")
	}
	if _, err := client.RunReport(ctx, RunReportRequest{RunID: "missing"}); err == nil {
		t.Fatal("expected missing run error")
	}
}

func TestClientRequestValidation(t *testing.T) {
	client := newTestClient(t, t.TempDir())
	ctx := context.Background()

	if _, err := client.Export(ctx, ExportRequest{RunID: "a", Latest: true}); err == nil {
		t.Fatal("expected export selector conflict")
	}
	if _, err := client.Export(ctx, ExportRequest{}); err == nil {
		t.Fatal("expected export selector error")
	}
	if _, err := client.Export(ctx, ExportRequest{Latest: true}); err == nil {
		t.Fatal("expected export error without runs")
	}
	if _, err := client.FitnessHistory(ctx, FitnessHistoryRequest{RunID: "a", Limit: -1}); err == nil {
		t.Fatal("expected negative limit error")
	}

	unknown := smallRun(1)
	unknown.Scape = "missing"
	if _, err := client.Run(ctx, unknown); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error for unknown scape, got %v", err)
	}
	policy := smallRun(1)
	policy.ComTarget = "knee"
	if _, err := client.Run(ctx, policy); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error for com target, got %v", err)
	}
	width := smallRun(1)
	width.Network = []model.LayerRecord{{Size: 3, Activation: "identity"}}
	if _, err := client.Run(ctx, width); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error for output width, got %v", err)
	}
	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("failed runs must not be indexed: %+v", runs)
	}
}

func TestClientScapesAndReset(t *testing.T) {
	client := newTestClient(t, t.TempDir())
	ctx := context.Background()

	items, err := client.Scapes(ctx)
	if err != nil {
		t.Fatalf("scapes: %v", err)
	}
	if len(items) != 2 || items[0].Name != "couple-reach" || items[1].Name != "reach" {
		t.Fatalf("unexpected scapes: %+v", items)
	}
	if !items[0].Controlled || items[0].InputSize != 6 || items[0].OutputSize != 2 {
		t.Fatalf("unexpected couple-reach shape: %+v", items[0])
	}
	if items[1].Controlled || items[0].BestFitness != nil {
		t.Fatalf("unexpected scape items before run: %+v", items)
	}

	summary, err := client.Run(ctx, smallRun(3))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	items, err = client.Scapes(ctx)
	if err != nil {
		t.Fatalf("scapes: %v", err)
	}
	if items[0].BestFitness == nil || *items[0].BestFitness != summary.BestReward {
		t.Fatalf("expected best fitness %f, got %+v", summary.BestReward, items[0].BestFitness)
	}
	scapeSummary, err := client.ScapeSummary(ctx, "couple-reach")
	if err != nil {
		t.Fatalf("scape summary: %v", err)
	}
	if scapeSummary.BestFitness != summary.BestReward {
		t.Fatalf("unexpected scape summary: %+v", scapeSummary)
	}

	if err := client.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := client.ScapeSummary(ctx, "couple-reach"); err == nil {
		t.Fatal("expected scape summary to be cleared")
	}
	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected artifacts to survive reset: runs=%+v err=%v", runs, err)
	}
}

func TestDefaultNetworkShape(t *testing.T) {
	layers, err := networkLayers(scape.DefaultWorld(), DefaultNetwork())
	if err != nil {
		t.Fatalf("network layers: %v", err)
	}
	sizes := make([]int, len(layers))
	for i, layer := range layers {
		sizes[i] = layer.Size
	}
	if !reflect.DeepEqual(sizes, []int{6, 16, 16, 2}) {
		t.Fatalf("unexpected default sizes: %v", sizes)
	}
	if layers[1].Activation.Slope != 0.1 || layers[3].Activation.Name() != "identity" {
		t.Fatalf("unexpected default activations: %+v", layers)
	}
}

func ptr[T any](v T) *T {
	return &v
}

func TestSettingsKeepExplicitZeros(t *testing.T) {
	settings, err := settingsFromRequest(0, ptr(0.0), "", ptr(0.0), 0)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if settings.BalanceGain != 0 || settings.Tolerance != 0 {
		t.Fatalf("explicit zeros were replaced: %+v", settings)
	}
	defaults, err := settingsFromRequest(0, nil, "", nil, 0)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if defaults != scape.DefaultSettings() {
		t.Fatalf("expected defaults, got %+v", defaults)
	}
}

func TestSimulateWithoutBalanceStep(t *testing.T) {
	client := newTestClient(t, t.TempDir())
	simulate := func(gain *float64) SimulateResult {
		result, err := client.Simulate(context.Background(), SimulateRequest{Ticks: 50, Seed: 4, BalanceGain: gain})
		if err != nil {
			t.Fatalf("simulate: %v", err)
		}
		return result
	}
	pure, balanced := simulate(ptr(0.0)), simulate(nil)
	if pure.FinalDistance == balanced.FinalDistance {
		t.Fatalf("zero balance gain had no effect: final distance %f", pure.FinalDistance)
	}
}

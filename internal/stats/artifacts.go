package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"stickreach/internal/model"
	"stickreach/internal/storage"
)

const (
	runIndexFile       = "run_index.json"
	configFile         = "config.json"
	fitnessHistoryFile = "fitness_history.json"
	experimentFile     = "experiment.json"
	seriesFile         = "benchmark_series.csv"
	summaryFile        = "benchmark_summary.json"
	plotFile           = "fitness.png"
)

// RunConfig is everything needed to repeat a run.
type RunConfig struct {
	RunID         string                `json:"run_id"`
	Scape         string                `json:"scape"`
	Seed          int64                 `json:"seed"`
	Workers       int                   `json:"workers"`
	Optimizer     model.OptimizerRecord `json:"optimizer"`
	Network       []model.LayerRecord   `json:"network"`
	World         model.WorldRecord     `json:"world"`
	StepSize      float64               `json:"step_size"`
	BalanceGain   float64               `json:"balance_gain"`
	ComTarget     string                `json:"com_target"`
	Tolerance     float64               `json:"tolerance"`
	TerminalBonus float64               `json:"terminal_bonus"`
}

type RunArtifacts struct {
	Config           RunConfig
	History          []model.GenerationStats
	MeanReward       float64
	FinalBestFitness float64
	Experiment       model.Experiment
}

type FitnessHistory struct {
	History          []model.GenerationStats `json:"history"`
	MeanReward       float64                 `json:"mean_reward"`
	FinalBestFitness float64                 `json:"final_best_fitness"`
}

type BenchmarkSummary struct {
	RunID       string  `json:"run_id"`
	Scape       string  `json:"scape"`
	Generations int     `json:"generations"`
	Seed        int64   `json:"seed"`
	InitialBest float64 `json:"initial_best"`
	FinalBest   float64 `json:"final_best"`
	BestMean    float64 `json:"best_mean"`
	BestStd     float64 `json:"best_std"`
	BestMax     float64 `json:"best_max"`
	BestMin     float64 `json:"best_min"`
	Improvement float64 `json:"improvement"`
}

type RunIndexEntry struct {
	RunID            string  `json:"run_id"`
	ExperimentID     string  `json:"experiment_id"`
	Scape            string  `json:"scape"`
	Generations      int     `json:"generations"`
	BatchSize        int     `json:"batch_size"`
	Seed             int64   `json:"seed"`
	Workers          int     `json:"workers"`
	EliteCount       int     `json:"elite_count"`
	MeanReward       float64 `json:"mean_reward"`
	FinalBestFitness float64 `json:"final_best_fitness"`
	CreatedAtUTC     string  `json:"created_at_utc"`
}

// WriteRunArtifacts lays out one run directory under baseDir and returns
// its path.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := WriteRunConfig(baseDir, artifacts.Config.RunID, artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, fitnessHistoryFile), FitnessHistory{
		History:          artifacts.History,
		MeanReward:       artifacts.MeanReward,
		FinalBestFitness: artifacts.FinalBestFitness,
	}); err != nil {
		return "", err
	}
	if err := WriteExperiment(filepath.Join(runDir, experimentFile), artifacts.Experiment); err != nil {
		return "", err
	}
	if err := WriteBenchmarkSeries(runDir, artifacts.History); err != nil {
		return "", err
	}
	if len(artifacts.History) > 0 {
		summary := SummarizeRun(artifacts.Config, artifacts.History)
		if err := writeJSON(filepath.Join(runDir, summaryFile), summary); err != nil {
			return "", err
		}
		if err := WriteFitnessPlot(filepath.Join(runDir, plotFile), artifacts.Config.Scape, artifacts.History); err != nil {
			return "", err
		}
	}

	return runDir, nil
}

// WriteExperiment stores an experiment document that LoadExperiment can
// read back.
func WriteExperiment(path string, experiment model.Experiment) error {
	data, err := storage.EncodeExperiment(experiment)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func LoadExperiment(path string) (model.Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Experiment{}, err
	}
	experiment, err := storage.DecodeExperiment(data)
	if err != nil {
		return model.Experiment{}, fmt.Errorf("load experiment %s: %w", path, err)
	}
	return experiment, nil
}

// ExperimentPath returns where WriteRunArtifacts put the run's experiment.
func ExperimentPath(baseDir, runID string) string {
	return filepath.Join(baseDir, runID, experimentFile)
}

func SummarizeRun(cfg RunConfig, history []model.GenerationStats) BenchmarkSummary {
	best := make([]float64, len(history))
	for i, gen := range history {
		best[i] = gen.BestFitness
	}
	summary := BenchmarkSummary{
		RunID:       cfg.RunID,
		Scape:       cfg.Scape,
		Generations: len(history),
		Seed:        cfg.Seed,
	}
	if len(best) == 0 {
		return summary
	}
	summary.InitialBest = best[0]
	summary.FinalBest = best[len(best)-1]
	mean, variance := stat.PopMeanVariance(best, nil)
	summary.BestMean, summary.BestStd = mean, math.Sqrt(variance)
	summary.BestMax, summary.BestMin = floats.Max(best), floats.Min(best)
	summary.Improvement = summary.FinalBest - summary.InitialBest
	return summary
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the index newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Later appends win ties.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, fitnessHistoryFile, experimentFile, seriesFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, file := range []string{summaryFile, plotFile} {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err == nil {
			if err := copyFile(path, filepath.Join(dst, file)); err != nil {
				return "", err
			}
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	return cfg, ok, err
}

func ReadFitnessHistory(baseDir, runID string) (FitnessHistory, bool, error) {
	var history FitnessHistory
	ok, err := readJSON(filepath.Join(baseDir, runID, fitnessHistoryFile), &history)
	return history, ok, err
}

func ReadBenchmarkSummary(baseDir, runID string) (BenchmarkSummary, bool, error) {
	var summary BenchmarkSummary
	ok, err := readJSON(filepath.Join(baseDir, runID, summaryFile), &summary)
	return summary, ok, err
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, configFile), cfg)
}

var seriesHeader = []string{"generation", "best_fitness", "mean_fitness", "elite_mean_fitness", "mean_std"}

func WriteBenchmarkSeries(runDir string, history []model.GenerationStats) error {
	file, err := os.Create(filepath.Join(runDir, seriesFile))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(seriesHeader); err != nil {
		return err
	}
	for _, gen := range history {
		if err := writer.Write([]string{
			strconv.Itoa(gen.Generation),
			formatFloat(gen.BestFitness),
			formatFloat(gen.MeanFitness),
			formatFloat(gen.EliteMeanFitness),
			formatFloat(gen.MeanStd),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadBenchmarkSeries(baseDir, runID string) ([]model.GenerationStats, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, seriesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.GenerationStats{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < len(seriesHeader) {
		return nil, false, fmt.Errorf("benchmark series header must have %d columns", len(seriesHeader))
	}

	series := make([]model.GenerationStats, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		gen, err := parseSeriesRow(record)
		if err != nil {
			return nil, false, err
		}
		series = append(series, gen)
	}
	return series, true, nil
}

func parseSeriesRow(record []string) (model.GenerationStats, error) {
	if len(record) < len(seriesHeader) {
		return model.GenerationStats{}, fmt.Errorf("benchmark series row must have %d columns", len(seriesHeader))
	}
	generation, err := strconv.Atoi(record[0])
	if err != nil {
		return model.GenerationStats{}, err
	}
	values := make([]float64, len(seriesHeader)-1)
	for i := range values {
		if values[i], err = strconv.ParseFloat(record[i+1], 64); err != nil {
			return model.GenerationStats{}, err
		}
	}
	return model.GenerationStats{
		Generation:       generation,
		BestFitness:      values[0],
		MeanFitness:      values[1],
		EliteMeanFitness: values[2],
		MeanStd:          values[3],
	}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

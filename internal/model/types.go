package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Clamp bounds a joint angle. A nil side is unbounded.
type Clamp struct {
	Min *float64 `json:"min" yaml:"min"`
	Max *float64 `json:"max" yaml:"max"`
}

type Region struct {
	Min Point `json:"min" yaml:"min"`
	Max Point `json:"max" yaml:"max"`
}

type LayerRecord struct {
	Size       int     `json:"size" yaml:"size"`
	Activation string  `json:"activation" yaml:"activation"`
	Slope      float64 `json:"slope,omitempty" yaml:"slope,omitempty"`
}

type NetworkRecord struct {
	Layers     []LayerRecord `json:"layers"`
	Parameters []float64     `json:"parameters"`
}

type OptimizerRecord struct {
	Generations     int     `json:"generations" yaml:"generations"`
	BatchSize       int     `json:"batch_size" yaml:"batch_size"`
	NumEpisodes     int     `json:"num_episodes" yaml:"num_episodes"`
	NumEpisodeTicks int     `json:"num_episode_ticks" yaml:"num_episode_ticks"`
	EliteFrac       float64 `json:"elite_frac" yaml:"elite_frac"`
	InitialMean     float64 `json:"initial_mean" yaml:"initial_mean"`
	InitialStd      float64 `json:"initial_std" yaml:"initial_std"`
	NoiseFactor     float64 `json:"noise_factor" yaml:"noise_factor"`
	NoiseDecay      string  `json:"noise_decay,omitempty" yaml:"noise_decay,omitempty"`
	Workers         int     `json:"workers" yaml:"workers"`
	Seed            int64   `json:"seed" yaml:"seed"`
}

type WorldRecord struct {
	Origin            Point     `json:"origin" yaml:"origin"`
	HoldingLengths    []float64 `json:"holding_lengths" yaml:"holding_lengths"`
	HoldingClamps     []Clamp   `json:"holding_clamps" yaml:"holding_clamps"`
	NonHoldingLengths []float64 `json:"non_holding_lengths" yaml:"non_holding_lengths"`
	NonHoldingClamps  []Clamp   `json:"non_holding_clamps" yaml:"non_holding_clamps"`
	GoalRegion        Region    `json:"unscaled_relative_goal_region" yaml:"unscaled_relative_goal_region"`
}

// Experiment bundles a trained network with the optimizer and task it was
// trained under.
type Experiment struct {
	VersionedRecord
	ID           string          `json:"id"`
	RunID        string          `json:"run_id,omitempty"`
	Scape        string          `json:"scape"`
	CreatedAtUTC string          `json:"created_at_utc"`
	Network      NetworkRecord   `json:"network"`
	Optimizer    OptimizerRecord `json:"optimizer"`
	World        WorldRecord     `json:"world"`
	MeanReward   float64         `json:"mean_reward"`
	BestReward   float64         `json:"best_reward"`
	FinalStd     []float64       `json:"final_std,omitempty"`
}

type GenerationStats struct {
	Generation       int     `json:"generation"`
	BestFitness      float64 `json:"best_fitness"`
	MeanFitness      float64 `json:"mean_fitness"`
	EliteMeanFitness float64 `json:"elite_mean_fitness"`
	MeanStd          float64 `json:"mean_std"`
}

type ScapeSummary struct {
	VersionedRecord
	Name        string  `json:"name"`
	Description string  `json:"description"`
	BestFitness float64 `json:"best_fitness"`
}

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"stickreach/internal/model"
	"stickreach/pkg/stickreach"
)

// runConfig is the on-disk run description. JSON files parse too, since
// JSON is a subset of YAML.
type runConfig struct {
	Scape     string                `yaml:"scape"`
	Optimizer model.OptimizerRecord `yaml:"optimizer"`
	Network   []model.LayerRecord   `yaml:"network"`
	World     *model.WorldRecord    `yaml:"world"`
	Episode   episodeConfig         `yaml:"episode"`
}

type episodeConfig struct {
	StepSize      float64  `yaml:"step_size"`
	BalanceGain   *float64 `yaml:"balance_gain"`
	ComTarget     string   `yaml:"com_target"`
	Tolerance     *float64 `yaml:"tolerance"`
	TerminalBonus float64  `yaml:"terminal_bonus"`
}

func loadRunRequestFromConfig(path string) (stickreach.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return stickreach.RunRequest{}, err
	}

	var cfg runConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return stickreach.RunRequest{}, fmt.Errorf("%w: run config %s is empty", model.ErrConfiguration, path)
		}
		return stickreach.RunRequest{}, fmt.Errorf("%w: run config %s: %v", model.ErrConfiguration, path, err)
	}

	return stickreach.RunRequest{
		Scape:         cfg.Scape,
		Generations:   cfg.Optimizer.Generations,
		BatchSize:     cfg.Optimizer.BatchSize,
		Episodes:      cfg.Optimizer.NumEpisodes,
		EpisodeTicks:  cfg.Optimizer.NumEpisodeTicks,
		EliteFrac:     cfg.Optimizer.EliteFrac,
		InitialMean:   cfg.Optimizer.InitialMean,
		InitialStd:    cfg.Optimizer.InitialStd,
		NoiseFactor:   cfg.Optimizer.NoiseFactor,
		NoiseDecay:    cfg.Optimizer.NoiseDecay,
		Seed:          cfg.Optimizer.Seed,
		Workers:       cfg.Optimizer.Workers,
		Network:       cfg.Network,
		World:         cfg.World,
		StepSize:      cfg.Episode.StepSize,
		BalanceGain:   cfg.Episode.BalanceGain,
		ComTarget:     cfg.Episode.ComTarget,
		Tolerance:     cfg.Episode.Tolerance,
		TerminalBonus: cfg.Episode.TerminalBonus,
	}, nil
}

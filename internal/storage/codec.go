package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"stickreach/internal/model"
	"stickreach/internal/nn"
	"stickreach/internal/scape"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = fmt.Errorf("%w: record version mismatch", model.ErrConfiguration)

func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

// EncodeExperiment writes an experiment as indented JSON.
func EncodeExperiment(e model.Experiment) ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}

// DecodeExperiment rejects unknown fields, foreign versions, a parameter
// vector that does not fit the declared layers, and an invalid world.
func DecodeExperiment(data []byte) (model.Experiment, error) {
	var experiment model.Experiment
	if err := decodeStrict(data, &experiment); err != nil {
		return model.Experiment{}, err
	}
	if err := checkVersion(experiment.VersionedRecord); err != nil {
		return model.Experiment{}, err
	}
	if _, err := nn.FromRecord(experiment.Network); err != nil {
		return model.Experiment{}, fmt.Errorf("network: %w", err)
	}
	if _, err := scape.WorldFromRecord(experiment.World); err != nil {
		return model.Experiment{}, fmt.Errorf("world: %w", err)
	}
	return experiment, nil
}

func decodeStrict(data []byte, out any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", model.ErrConfiguration, err)
	}
	if decoder.More() {
		return fmt.Errorf("%w: trailing data after record", model.ErrConfiguration)
	}
	return nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}

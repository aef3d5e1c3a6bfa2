package nn

import (
	"fmt"

	"stickreach/internal/model"
)

func LayerRecords(layers []LayerSpec) []model.LayerRecord {
	out := make([]model.LayerRecord, len(layers))
	for i, layer := range layers {
		out[i] = model.LayerRecord{Size: layer.Size, Activation: layer.Activation.Name()}
		if layer.Activation.Kind == LeakyReLU {
			out[i].Slope = layer.Activation.Slope
		}
	}
	return out
}

func LayersFromRecords(records []model.LayerRecord) ([]LayerSpec, error) {
	out := make([]LayerSpec, len(records))
	for i, record := range records {
		activation, err := ParseActivation(record.Activation, record.Slope)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		out[i] = LayerSpec{Size: record.Size, Activation: activation}
	}
	return out, nil
}

func (n *Network) Record() model.NetworkRecord {
	return model.NetworkRecord{
		Layers:     LayerRecords(n.layers),
		Parameters: n.Parameters(),
	}
}

// FromRecord rebuilds a network and installs its parameters. A parameter
// vector inconsistent with the layer descriptors is a configuration error.
func FromRecord(record model.NetworkRecord) (*Network, error) {
	layers, err := LayersFromRecords(record.Layers)
	if err != nil {
		return nil, err
	}
	n, err := New(layers)
	if err != nil {
		return nil, err
	}
	if err := n.SetParameters(record.Parameters); err != nil {
		return nil, err
	}
	return n, nil
}

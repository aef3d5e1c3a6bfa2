// Package nn implements a fixed-topology dense network evaluated forward
// only. Parameters are owned externally and installed as one flat vector.
package nn

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"stickreach/internal/model"
)

// LayerSpec declares one layer's width and activation. The first spec of a
// network is its input width and carries no weights.
type LayerSpec struct {
	Size       int
	Activation Activation
}

type Network struct {
	layers  []LayerSpec
	params  []float64
	weights []*mat.Dense
	biases  []*mat.VecDense
}

// ParameterCount returns sum(in*out + out) over the weighted layers.
func ParameterCount(layers []LayerSpec) int {
	total := 0
	for i := 1; i < len(layers); i++ {
		total += layers[i-1].Size*layers[i].Size + layers[i].Size
	}
	return total
}

// New allocates a network with all weights and biases set to zero.
func New(layers []LayerSpec) (*Network, error) {
	if len(layers) < 2 {
		return nil, fmt.Errorf("%w: network needs an input and at least one weighted layer, got %d specs", model.ErrConfiguration, len(layers))
	}
	for i, layer := range layers {
		if layer.Size <= 0 {
			return nil, fmt.Errorf("%w: layer %d size must be > 0, got %d", model.ErrConfiguration, i, layer.Size)
		}
		if err := layer.Activation.validate(); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
	}

	n := &Network{
		layers: append([]LayerSpec(nil), layers...),
		params: make([]float64, ParameterCount(layers)),
	}
	n.bind()
	return n, nil
}

// bind lays the weight and bias views over params: per layer, the out x in
// weight matrix in row-major order followed by the out biases.
func (n *Network) bind() {
	n.weights = make([]*mat.Dense, 0, len(n.layers)-1)
	n.biases = make([]*mat.VecDense, 0, len(n.layers)-1)
	offset := 0
	for i := 1; i < len(n.layers); i++ {
		in, out := n.layers[i-1].Size, n.layers[i].Size
		n.weights = append(n.weights, mat.NewDense(out, in, n.params[offset:offset+in*out]))
		offset += in * out
		n.biases = append(n.biases, mat.NewVecDense(out, n.params[offset:offset+out]))
		offset += out
	}
}

func (n *Network) Layers() []LayerSpec {
	return append([]LayerSpec(nil), n.layers...)
}

func (n *Network) InputSize() int {
	return n.layers[0].Size
}

func (n *Network) OutputSize() int {
	return n.layers[len(n.layers)-1].Size
}

func (n *Network) ParameterCount() int {
	return len(n.params)
}

// SetParameters copies p into the network. A vector of the wrong length is
// rejected rather than truncated or padded.
func (n *Network) SetParameters(p []float64) error {
	if len(p) != len(n.params) {
		return fmt.Errorf("%w: parameter vector has %d entries, network needs %d", model.ErrConfiguration, len(p), len(n.params))
	}
	copy(n.params, p)
	return nil
}

func (n *Network) Parameters() []float64 {
	return append([]float64(nil), n.params...)
}

// At evaluates the network on input. It allocates its own buffers and does
// not mutate the network, so concurrent calls are safe.
func (n *Network) At(input []float64) ([]float64, error) {
	if len(input) != n.InputSize() {
		return nil, fmt.Errorf("%w: input has %d values, network expects %d", model.ErrConfiguration, len(input), n.InputSize())
	}

	x := mat.NewVecDense(len(input), append([]float64(nil), input...))
	for i := range n.weights {
		out := n.layers[i+1]
		y := mat.NewVecDense(out.Size, nil)
		y.MulVec(n.weights[i], x)
		y.AddVec(y, n.biases[i])
		out.Activation.applyAll(y.RawVector().Data)
		x = y
	}
	return x.RawVector().Data, nil
}

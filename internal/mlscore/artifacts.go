package mlscore

import (
	"encoding/json"
	"fmt"
	"os"
)

// Artifact formats for the exported classifier. The training job (out of
// process) fits the preprocessor and network, then exports both as JSON.
// The column order produced by featureVector must match the order the
// exporter wrote: numeric, boolean, categorical one-hot blocks.

// numericColumn is a standard-scaled numeric feature.
type numericColumn struct {
	Name string  `json:"name"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// categoricalColumn is a one-hot encoded feature with a fitted vocabulary.
// Values outside the vocabulary encode as all zeros.
type categoricalColumn struct {
	Name       string   `json:"name"`
	Categories []string `json:"categories"`
}

// preprocessorSpec mirrors the fitted feature preprocessor.
type preprocessorSpec struct {
	Numeric     []numericColumn     `json:"numeric"`
	Boolean     []string            `json:"boolean"`
	Categorical []categoricalColumn `json:"categorical"`
}

// denseLayer holds weights for one fully connected layer.
// Weights is indexed [input][output].
type denseLayer struct {
	Weights [][]float64 `json:"weights"`
	Biases  []float64   `json:"biases"`
}

// networkSpec is the trained binary classifier: one ReLU hidden layer
// feeding a single sigmoid output unit.
type networkSpec struct {
	Hidden denseLayer `json:"hidden"`
	Output denseLayer `json:"output"`
}

// inputDim returns the expected feature vector length.
func (n *networkSpec) inputDim() int {
	return len(n.Hidden.Weights)
}

func (p *preprocessorSpec) featureCount() int {
	count := len(p.Numeric) + len(p.Boolean)
	for _, c := range p.Categorical {
		count += len(c.Categories)
	}
	return count
}

// loadArtifacts reads and cross-validates both artifact files.
func loadArtifacts(preprocessorPath, weightsPath string) (*preprocessorSpec, *networkSpec, error) {
	var pre preprocessorSpec
	if err := readJSON(preprocessorPath, &pre); err != nil {
		return nil, nil, fmt.Errorf("preprocessor: %w", err)
	}

	var net networkSpec
	if err := readJSON(weightsPath, &net); err != nil {
		return nil, nil, fmt.Errorf("weights: %w", err)
	}

	if err := validateNetwork(&net); err != nil {
		return nil, nil, err
	}

	if got, want := pre.featureCount(), net.inputDim(); got != want {
		return nil, nil, fmt.Errorf("feature count %d does not match network input dim %d", got, want)
	}

	return &pre, &net, nil
}

func validateNetwork(net *networkSpec) error {
	hidden := len(net.Hidden.Biases)
	if hidden == 0 || len(net.Hidden.Weights) == 0 {
		return fmt.Errorf("hidden layer is empty")
	}
	for i, row := range net.Hidden.Weights {
		if len(row) != hidden {
			return fmt.Errorf("hidden weights row %d has %d outputs, want %d", i, len(row), hidden)
		}
	}
	if len(net.Output.Biases) != 1 {
		return fmt.Errorf("output layer must have exactly one unit, got %d", len(net.Output.Biases))
	}
	if len(net.Output.Weights) != hidden {
		return fmt.Errorf("output weights have %d inputs, want %d", len(net.Output.Weights), hidden)
	}
	for i, row := range net.Output.Weights {
		if len(row) != 1 {
			return fmt.Errorf("output weights row %d has %d outputs, want 1", i, len(row))
		}
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

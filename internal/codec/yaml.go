package codec

import (
	"fmt"
	"io"

	"dendroreduce/internal/biophys"
	"dendroreduce/internal/morphology"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles model files in YAML
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// Parse reads a model from YAML
func (c *YAMLCodec) Parse(r io.Reader, registry *biophys.Registry, opts ...morphology.Option) (*morphology.Morphology, error) {
	var model Model
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&model); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return model.Build(registry, opts...)
}

// Export writes the model of m to YAML
func (c *YAMLCodec) Export(m *morphology.Morphology, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(FromMorphology(m)); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}

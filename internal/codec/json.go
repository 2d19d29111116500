package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"dendroreduce/internal/biophys"
	"dendroreduce/internal/morphology"
)

// JSONCodec handles model files in JSON
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Parse reads a model from JSON
func (c *JSONCodec) Parse(r io.Reader, registry *biophys.Registry, opts ...morphology.Option) (*morphology.Morphology, error) {
	var model Model
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&model); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return model.Build(registry, opts...)
}

// Export writes the model of m to JSON
func (c *JSONCodec) Export(m *morphology.Morphology, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(FromMorphology(m)); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

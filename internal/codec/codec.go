package codec

import (
	"errors"
	"io"

	"dendroreduce/internal/biophys"
	"dendroreduce/internal/morphology"
)

// ErrUnknownFormat is returned by ForFormat for unsupported format names
var ErrUnknownFormat = errors.New("unknown morphology format")

// Importer interface for reading morphologies from various formats
type Importer interface {
	Parse(r io.Reader, registry *biophys.Registry, opts ...morphology.Option) (*morphology.Morphology, error)
	Format() string
}

// Exporter interface for writing morphologies to various formats
type Exporter interface {
	Export(m *morphology.Morphology, w io.Writer) error
	Format() string
}

// Codec both reads and writes a format
type Codec interface {
	Importer
	Exporter
}

// ForFormat returns the codec for a format name or file extension
func ForFormat(format string) (Codec, error) {
	switch format {
	case "yaml", "yml", ".yaml", ".yml":
		return NewYAMLCodec(), nil
	case "json", ".json":
		return NewJSONCodec(), nil
	case "swc", ".swc":
		return NewSWCCodec(), nil
	default:
		return nil, ErrUnknownFormat
	}
}

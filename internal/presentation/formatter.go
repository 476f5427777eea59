package presentation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/szhem/osgi-utils/internal/registry"
)

// ErrUnknownFormat is returned for an output format other than text, json
// or yaml.
var ErrUnknownFormat = errors.New("unknown output format")

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates s. An empty string means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
	format Format
}

// NewFormatter creates a new formatter
func NewFormatter(writer io.Writer, format Format) *Formatter {
	return &Formatter{
		writer: writer,
		format: format,
	}
}

// FormatReferences writes refs. text renders one line per reference through
// line; the encoded formats write ReferenceDTOs.
func (f *Formatter) FormatReferences(refs []registry.Reference, line func(registry.Reference) string) error {
	if f.format != FormatText {
		return f.encode(FromReferences(refs))
	}
	for _, r := range refs {
		if _, err := fmt.Fprintln(f.writer, line(r)); err != nil {
			return err
		}
	}
	return nil
}

// FormatPublication writes a single stored publication. text prints the key
// only, so the output can be captured by scripts.
func (f *Formatter) FormatPublication(p PublicationDTO) error {
	if f.format != FormatText {
		return f.encode(p)
	}
	_, err := fmt.Fprintln(f.writer, p.Key)
	return err
}

// FormatPublications writes stored publications, one "key interfaces" line
// each in text.
func (f *Formatter) FormatPublications(pubs []PublicationDTO) error {
	if f.format != FormatText {
		return f.encode(pubs)
	}
	for _, p := range pubs {
		if _, err := fmt.Fprintf(f.writer, "%s %s\n", p.Key, strings.Join(p.Interfaces, ",")); err != nil {
			return err
		}
	}
	return nil
}

func (f *Formatter) encode(v any) error {
	switch f.format {
	case FormatJSON:
		encoder := json.NewEncoder(f.writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case FormatYAML:
		encoder := yaml.NewEncoder(f.writer)
		encoder.SetIndent(2)
		if err := encoder.Encode(v); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f.format)
	}
}

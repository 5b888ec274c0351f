package analytics

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatYAML:
		return f, nil
	}

	return "", fmt.Errorf("unknown report format %q", s)
}

// Write renders r to w. JSON output is indented and newline terminated.
func Write(w io.Writer, r *Report, format Format) error {
	switch format {
	case FormatJSON:
		b, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}

		if _, err := w.Write(append(b, '\n')); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}

		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}

		return enc.Close()
	}

	return fmt.Errorf("unknown report format %q", format)
}

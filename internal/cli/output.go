package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func validateOutputFormat(output string) error {
	switch output {
	case outputText, outputJSON, outputYAML:
		return nil
	}
	return fmt.Errorf("unsupported output format %q: use 'text', 'json' or 'yaml'", output)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// emit writes v as JSON or YAML, or calls text for the text format.
func (s *session) emit(v any, text func(w io.Writer) error) error {
	switch s.output {
	case outputJSON:
		return printJSON(s.streams.Out, v)
	case outputYAML:
		return printYAML(s.streams.Out, v)
	default:
		return text(s.streams.Out)
	}
}

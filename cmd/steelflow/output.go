package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) (*printer, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "", formatJSON:
		return &printer{w: w, format: formatJSON}, nil
	case formatYAML, "yml":
		return &printer{w: w, format: formatYAML}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// Print writes v in the configured format. YAML output is derived from the
// JSON encoding so both formats share field names and omit rules.
func (p *printer) Print(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if p.format == formatJSON {
		_, err := fmt.Fprintln(p.w, string(data))
		return err
	}

	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(p.w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

// Raw writes a pre-encoded JSON document unchanged.
func (p *printer) Raw(doc json.RawMessage) error {
	if _, err := p.w.Write(doc); err != nil {
		return err
	}
	_, err := fmt.Fprintln(p.w)
	return err
}

type stepView struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

package eventlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sebastiandunzer/dcr-log-filter/internal/ir"
)

// Format is an on-disk log encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFor picks the format from a file extension. Anything that is not
// .json is treated as YAML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// DecodeError reports a structurally valid document with invalid content.
type DecodeError struct {
	Trace   int // 1-based trace position, 0 if not trace-specific
	Event   int // 1-based event position, 0 if not event-specific
	Field   string
	Message string
}

func (e *DecodeError) Error() string {
	switch {
	case e.Event > 0:
		return fmt.Sprintf("trace %d event %d: %s: %s", e.Trace, e.Event, e.Field, e.Message)
	case e.Trace > 0:
		return fmt.Sprintf("trace %d: %s: %s", e.Trace, e.Field, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
}

// document is the on-disk shape of a log.
type document struct {
	Name   string          `yaml:"name,omitempty" json:"name,omitempty"`
	Traces []traceDocument `yaml:"traces" json:"traces"`
}

type traceDocument struct {
	ID     string          `yaml:"id,omitempty" json:"id,omitempty"`
	Events []eventDocument `yaml:"events" json:"events"`
}

type eventDocument struct {
	Activity   string            `yaml:"activity" json:"activity"`
	Role       string            `yaml:"role,omitempty" json:"role,omitempty"`
	Resource   string            `yaml:"resource,omitempty" json:"resource,omitempty"`
	Timestamp  string            `yaml:"timestamp,omitempty" json:"timestamp,omitempty"`
	Attributes map[string]string `yaml:"attributes,omitempty" json:"attributes,omitempty"`
}

// Load reads the log at path, choosing the format from its extension.
func Load(path string) (ir.EventLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ir.EventLog{}, fmt.Errorf("failed to read event log: %w", err)
	}
	log, err := Decode(bytes.NewReader(data), FormatFor(path))
	if err != nil {
		return ir.EventLog{}, fmt.Errorf("%s: %w", path, err)
	}
	return log, nil
}

// Decode parses a log with strict field validation.
func Decode(r io.Reader, format Format) (ir.EventLog, error) {
	var doc document
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return ir.EventLog{}, fmt.Errorf("failed to parse JSON: %w", err)
		}
	case FormatYAML, "":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true) // Reject unknown fields
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return ir.EventLog{}, nil
			}
			return ir.EventLog{}, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		return ir.EventLog{}, fmt.Errorf("unsupported log format %q", format)
	}
	return doc.toLog()
}

func (d document) toLog() (ir.EventLog, error) {
	log := ir.EventLog{Name: d.Name, Traces: make([]ir.Trace, 0, len(d.Traces))}
	for i, td := range d.Traces {
		tr := ir.Trace{ID: strings.TrimSpace(td.ID)}
		for j, ed := range td.Events {
			ev, err := ed.toEvent()
			if err != nil {
				err.Trace, err.Event = i+1, j+1
				return ir.EventLog{}, err
			}
			tr.Events = append(tr.Events, ev)
		}
		log.Traces = append(log.Traces, tr)
	}
	ir.AssignMissingIDs(log.Traces)
	return log, nil
}

func (e eventDocument) toEvent() (ir.Event, *DecodeError) {
	ev := ir.Event{
		Activity:   strings.TrimSpace(e.Activity),
		Role:       strings.TrimSpace(e.Role),
		Attributes: e.Attributes,
	}
	if ev.Activity == "" {
		return ev, &DecodeError{Field: "activity", Message: "activity is required"}
	}
	if ev.Role == "" {
		ev.Role = strings.TrimSpace(e.Resource)
	}
	if e.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, e.Timestamp)
		if err != nil {
			return ev, &DecodeError{Field: "timestamp", Message: fmt.Sprintf("not RFC 3339: %q", e.Timestamp)}
		}
		ev.Timestamp = &ts
	}
	return ev, nil
}

// Write encodes log in format. Timestamps are written in RFC 3339 with the
// precision they were read with.
func Write(w io.Writer, log ir.EventLog, format Format) error {
	doc := fromLog(log)
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatYAML, "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported log format %q", format)
	}
}

// Save writes log to path, choosing the format from its extension.
func Save(path string, log ir.EventLog) error {
	var buf bytes.Buffer
	if err := Write(&buf, log, FormatFor(path)); err != nil {
		return fmt.Errorf("failed to encode event log: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write event log: %w", err)
	}
	return nil
}

func fromLog(log ir.EventLog) document {
	doc := document{Name: log.Name, Traces: make([]traceDocument, len(log.Traces))}
	for i, tr := range log.Traces {
		td := traceDocument{ID: tr.ID, Events: make([]eventDocument, len(tr.Events))}
		for j, ev := range tr.Events {
			ed := eventDocument{
				Activity:   ev.Activity,
				Role:       ev.Role,
				Attributes: ev.Attributes,
			}
			if ev.Timestamp != nil {
				ed.Timestamp = ev.Timestamp.Format(time.RFC3339Nano)
			}
			td.Events[j] = ed
		}
		doc.Traces[i] = td
	}
	return doc
}

// FilterResult describes a Filter call.
type FilterResult struct {
	Log     ir.EventLog
	Removed int
}

// Filter returns a copy of log without the traces whose ID is in ids.
// Every trace carrying a listed ID is removed, including duplicates.
// The original log is not modified.
func Filter(log ir.EventLog, ids []string) FilterResult {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	out := ir.EventLog{Name: log.Name, Traces: make([]ir.Trace, 0, len(log.Traces))}
	removed := 0
	for _, tr := range log.Traces {
		if drop[tr.ID] {
			removed++
			continue
		}
		tr.Events = slices.Clone(tr.Events)
		out.Traces = append(out.Traces, tr)
	}
	return FilterResult{Log: out, Removed: removed}
}

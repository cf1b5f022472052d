package dcr

import (
	"errors"
	"fmt"
)

// ErrMalformedGraph is the sentinel wrapped by every MalformedGraphError.
var ErrMalformedGraph = errors.New("malformed DCR graph")

// MalformedReason identifies why a graph definition was rejected.
type MalformedReason string

const (
	ReasonEmptyName         MalformedReason = "EMPTY_NAME"
	ReasonDuplicateActivity MalformedReason = "DUPLICATE_ACTIVITY"
	ReasonUnknownActivity   MalformedReason = "UNKNOWN_ACTIVITY"
	ReasonUnknownRelation   MalformedReason = "UNKNOWN_RELATION"
)

// MalformedGraphError reports a definition that cannot be turned into a Graph.
type MalformedGraphError struct {
	Graph    string
	Reason   MalformedReason
	Activity string
	Msg      string
}

func (e *MalformedGraphError) Error() string {
	if e == nil {
		return ""
	}
	prefix := ErrMalformedGraph.Error()
	if e.Graph != "" {
		prefix = fmt.Sprintf("%s %q", prefix, e.Graph)
	}
	if e.Activity != "" {
		return fmt.Sprintf("%s: %s: %s (activity=%s)", prefix, e.Reason, e.Msg, e.Activity)
	}
	return fmt.Sprintf("%s: %s: %s", prefix, e.Reason, e.Msg)
}

func (e *MalformedGraphError) Unwrap() error { return ErrMalformedGraph }

// IsMalformedGraph reports whether err is (or wraps) a MalformedGraphError.
func IsMalformedGraph(err error) bool {
	return errors.Is(err, ErrMalformedGraph)
}

func malformed(graph string, reason MalformedReason, activity, format string, args ...any) error {
	return &MalformedGraphError{
		Graph:    graph,
		Reason:   reason,
		Activity: activity,
		Msg:      fmt.Sprintf(format, args...),
	}
}

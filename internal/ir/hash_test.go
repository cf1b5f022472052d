package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphHashDeterministic(t *testing.T) {
	desc := map[string]any{
		"name":       "loan",
		"activities": []any{"A", "B"},
	}

	h1, err := GraphHash(desc)
	require.NoError(t, err)
	h2, err := GraphHash(map[string]any{
		"activities": []any{"A", "B"},
		"name":       "loan",
	})
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestGraphHashDomainSeparated(t *testing.T) {
	log := EventLog{Traces: []Trace{}}
	logHash, err := LogHash(log)
	require.NoError(t, err)

	graphHash, err := GraphHash(map[string]any{"traces": []any{}})
	require.NoError(t, err)

	assert.NotEqual(t, logHash, graphHash, "same canonical bytes must hash differently per domain")
}

func TestLogHashIgnoresTimestampsAndAttributes(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	plain := EventLog{Traces: []Trace{{ID: "1", Events: []Event{{Activity: "A", Role: "Clerk"}}}}}
	rich := EventLog{Name: "other", Traces: []Trace{{ID: "1", Events: []Event{{
		Activity:   "A",
		Role:       "Clerk",
		Timestamp:  &ts,
		Attributes: map[string]string{"cost": "12"},
	}}}}}

	h1, err := LogHash(plain)
	require.NoError(t, err)
	h2, err := LogHash(rich)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestLogHashSensitiveToOrder(t *testing.T) {
	ab := EventLog{Traces: []Trace{{ID: "1", Events: []Event{{Activity: "A"}, {Activity: "B"}}}}}
	ba := EventLog{Traces: []Trace{{ID: "1", Events: []Event{{Activity: "B"}, {Activity: "A"}}}}}

	h1, err := LogHash(ab)
	require.NoError(t, err)
	h2, err := LogHash(ba)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

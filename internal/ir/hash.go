package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainGraph = "dcrcheck/graph/v1"
	DomainLog   = "dcrcheck/log/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// GraphHash computes the content hash of a canonical graph description.
// The description must only contain values MarshalCanonical accepts.
func GraphHash(description map[string]any) (string, error) {
	canonical, err := MarshalCanonical(description)
	if err != nil {
		return "", fmt.Errorf("GraphHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainGraph, canonical), nil
}

// LogHash computes the content hash of an event log.
// Only trace IDs, activity names and roles participate: they are the only
// inputs replay reads, so timestamps and attributes never invalidate a cache.
func LogHash(log EventLog) (string, error) {
	traces := make([]any, len(log.Traces))
	for i, tr := range log.Traces {
		events := make([]any, len(tr.Events))
		for j, ev := range tr.Events {
			events[j] = map[string]any{
				"activity": NormalizeName(ev.Activity),
				"role":     ev.Role,
			}
		}
		traces[i] = map[string]any{
			"id":     tr.ID,
			"events": events,
		}
	}

	canonical, err := MarshalCanonical(map[string]any{"traces": traces})
	if err != nil {
		return "", fmt.Errorf("LogHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainLog, canonical), nil
}

package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed hashes.
// Version suffix enables future algorithm migration.
const (
	DomainSnapshot = "sigsync/snapshot/v1"
	DomainEvent    = "sigsync/event/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotHash computes a content hash of a snapshot event.
// Two signals with the same entries produce the same hash regardless of the
// key order or whitespace of the values they were built from.
func SnapshotHash(e Event) (string, error) {
	if e.Command.Snapshot == nil {
		return "", fmt.Errorf("SnapshotHash: event is not a snapshot")
	}
	canonical, err := canonicalEvent(e)
	if err != nil {
		return "", fmt.Errorf("SnapshotHash: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}

// EventHash computes a content hash of any event, including its id.
// Used to compare journaled histories.
func EventHash(e Event) (string, error) {
	canonical, err := canonicalEvent(e)
	if err != nil {
		return "", fmt.Errorf("EventHash: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// CanonicalEvent returns the canonical JSON of an event's wire form.
func CanonicalEvent(e Event) ([]byte, error) {
	return canonicalEvent(e)
}

func canonicalEvent(e Event) ([]byte, error) {
	wire, err := EncodeEvent(e)
	if err != nil {
		return nil, err
	}
	return Canonicalize(Value(wire))
}

// MustSnapshotHash is like SnapshotHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustSnapshotHash(e Event) string {
	h, err := SnapshotHash(e)
	if err != nil {
		panic(err)
	}
	return h
}

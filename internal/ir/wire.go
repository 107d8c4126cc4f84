package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Wire field names. "id" is reserved for the event identifier; all other
// fields belong to the command payload.
const (
	fieldID         = "id"
	fieldConditions = "conditions"
	fieldSet        = "set"
	fieldValue      = "value"
	fieldRemove     = "remove"
	fieldParent     = "parent"
	fieldEntry      = "entry"
	fieldDirection  = "direction"
	fieldReference  = "reference"
	fieldEntries    = "entries"
)

// EncodeEvent merges the event ID into the command payload and returns the
// wire text. Snapshot events encode with "id": null.
func EncodeEvent(e Event) (string, error) {
	obj := make(map[string]any, 6)
	if e.ID != nil {
		obj[fieldID] = *e.ID
	} else {
		obj[fieldID] = nil
	}

	cmd := e.Command
	if len(cmd.Conditions) > 0 {
		conds := make([]map[string]any, len(cmd.Conditions))
		for i, c := range cmd.Conditions {
			m := map[string]any{fieldID: c.ID}
			if c.Value != nil {
				m[fieldValue] = c.Value
			}
			conds[i] = m
		}
		obj[fieldConditions] = conds
	}

	switch cmd.Kind() {
	case KindSet:
		obj[fieldSet] = cmd.Set.ID
		obj[fieldValue] = valueOrNull(cmd.Set.Value)
	case KindRemove:
		obj[fieldRemove] = cmd.Remove.ID
		obj[fieldParent] = cmd.Remove.Parent
	case KindInsert:
		obj[fieldEntry] = cmd.Insert.Entry
		obj[fieldDirection] = string(cmd.Insert.Direction)
		if cmd.Insert.Reference != nil {
			obj[fieldReference] = *cmd.Insert.Reference
		}
		obj[fieldValue] = valueOrNull(cmd.Insert.Value)
	case KindSnapshot:
		entries := cmd.Snapshot.Entries
		if entries == nil {
			entries = []EntrySnapshot{}
		}
		obj[fieldEntries] = entries
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(obj); err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// MustEncodeEvent is like EncodeEvent but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEncodeEvent(e Event) string {
	s, err := EncodeEvent(e)
	if err != nil {
		panic(err)
	}
	return s
}

// DecodeEvent splits the reserved "id" field from the payload and decodes the
// payload into a Command.
//
// Precedence when several operation fields are present: set, remove,
// insert (keyed by "direction"), entries. Returns a *ProtocolError for
// anything that is not a recognisable event.
func DecodeEvent(wire string) (Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(wire), &fields); err != nil {
		return Event{}, NewMalformedError("", "event is not a JSON object: %v", err)
	}
	if fields == nil {
		return Event{}, NewMalformedError("", "event is null")
	}

	var ev Event
	id, present, err := optionalString(fields, fieldID)
	if err != nil {
		return Event{}, NewMalformedError("", "%v", err)
	}
	if present {
		ev.ID = &id
	}

	cmd, err := decodeCommand(fields, id)
	if err != nil {
		return Event{}, err
	}
	ev.Command = cmd
	return ev, nil
}

// DecodeUpdate decodes a client-submitted event. On top of DecodeEvent it
// requires an event id and rejects snapshot payloads, which only the server
// produces.
func DecodeUpdate(wire string) (Event, error) {
	ev, err := DecodeEvent(wire)
	if err != nil {
		return Event{}, err
	}
	kind := ev.Command.Kind()
	if kind == KindSnapshot {
		return Event{}, NewUnknownCommandError(derefOr(ev.ID, ""))
	}
	if ev.ID == nil {
		return Event{}, NewMissingEventIDError(kind)
	}
	return ev, nil
}

func decodeCommand(fields map[string]json.RawMessage, eventID string) (Command, error) {
	var cmd Command

	if raw, ok := fields[fieldConditions]; ok && !isNullRaw(raw) {
		conds, err := decodeConditions(raw)
		if err != nil {
			return Command{}, NewMalformedError(eventID, "conditions: %v", err)
		}
		cmd.Conditions = conds
	}

	switch {
	case has(fields, fieldSet):
		target, err := requiredString(fields, fieldSet)
		if err != nil {
			return Command{}, NewMalformedError(eventID, "%v", err)
		}
		cmd.Set = &SetOp{ID: target, Value: rawValue(fields, fieldValue)}

	case has(fields, fieldRemove):
		target, err := requiredString(fields, fieldRemove)
		if err != nil {
			return Command{}, NewMalformedError(eventID, "%v", err)
		}
		parent, err := requiredString(fields, fieldParent)
		if err != nil {
			return Command{}, NewMalformedError(eventID, "%v", err)
		}
		cmd.Remove = &RemoveOp{ID: target, Parent: parent}

	case has(fields, fieldDirection):
		dir, err := requiredString(fields, fieldDirection)
		if err != nil {
			return Command{}, NewMalformedError(eventID, "%v", err)
		}
		if !Direction(dir).Valid() {
			return Command{}, NewMalformedError(eventID, "direction must be AFTER or BEFORE, got %q", dir)
		}
		entry, err := requiredString(fields, fieldEntry)
		if err != nil {
			return Command{}, NewMalformedError(eventID, "%v", err)
		}
		op := &InsertOp{Entry: entry, Direction: Direction(dir), Value: rawValue(fields, fieldValue)}
		ref, present, err := optionalString(fields, fieldReference)
		if err != nil {
			return Command{}, NewMalformedError(eventID, "%v", err)
		}
		if present {
			op.Reference = &ref
		}
		cmd.Insert = op

	case has(fields, fieldEntries):
		var entries []EntrySnapshot
		if err := json.Unmarshal(fields[fieldEntries], &entries); err != nil {
			return Command{}, NewMalformedError(eventID, "entries: %v", err)
		}
		cmd.Snapshot = &Snapshot{Entries: entries}

	default:
		return Command{}, NewUnknownCommandError(eventID)
	}

	return cmd, nil
}

func decodeConditions(raw json.RawMessage) ([]Condition, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	conds := make([]Condition, 0, len(items))
	for i, item := range items {
		id, err := requiredString(item, fieldID)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		c := Condition{ID: id}
		if _, ok := item[fieldValue]; ok {
			c.Value = rawValue(item, fieldValue)
		}
		conds = append(conds, c)
	}
	return conds, nil
}

func has(fields map[string]json.RawMessage, name string) bool {
	_, ok := fields[name]
	return ok
}

// isNullRaw reports whether a raw field holds JSON null. A map value decoded
// from literal null may arrive as nil or as the bytes "null".
func isNullRaw(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), Null)
}

func requiredString(fields map[string]json.RawMessage, name string) (string, error) {
	s, present, err := optionalString(fields, name)
	if err != nil {
		return "", err
	}
	if !present {
		return "", fmt.Errorf("field %q is required", name)
	}
	return s, nil
}

// optionalString reads a string field. Absent and null both report
// present=false.
func optionalString(fields map[string]json.RawMessage, name string) (string, bool, error) {
	raw, ok := fields[name]
	if !ok || isNullRaw(raw) {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false, fmt.Errorf("field %q must be a string", name)
	}
	return s, true, nil
}

// rawValue returns the named field as a Value; absent fields become Null.
func rawValue(fields map[string]json.RawMessage, name string) Value {
	raw, ok := fields[name]
	if !ok || len(raw) == 0 {
		return Null
	}
	return Value(bytes.Clone(raw))
}

func valueOrNull(v Value) Value {
	if v == nil {
		return Null
	}
	return v
}

func derefOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}

package signal

import (
	"github.com/roach88/sigsync/internal/ir"
)

// Lookup finds an entry in a snapshot event by id.
func Lookup(snap ir.Event, id string) (ir.EntrySnapshot, bool) {
	if snap.Command.Snapshot == nil {
		return ir.EntrySnapshot{}, false
	}
	for _, e := range snap.Command.Snapshot.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return ir.EntrySnapshot{}, false
}

// ListOrder walks the list rooted at listID in a snapshot and returns the
// entry ids head to tail. It reports false when listID is missing or is not
// a list root. A broken or cyclic chain stops the walk early.
func ListOrder(snap ir.Event, listID string) ([]string, bool) {
	root, ok := Lookup(snap, listID)
	if !ok {
		return nil, false
	}
	list, ok := parseListRoot(root.Value)
	if !ok {
		return nil, false
	}

	byID := make(map[string]ir.EntrySnapshot)
	for _, e := range snap.Command.Snapshot.Entries {
		byID[e.ID] = e
	}

	order := []string{}
	seen := make(map[string]bool)
	for cur := list.Head; cur != nil && !seen[*cur]; {
		entry, ok := byID[*cur]
		if !ok {
			break
		}
		seen[entry.ID] = true
		order = append(order, entry.ID)
		cur = entry.Next
	}
	return order, true
}

// ListValues returns the values of a list in chain order.
func ListValues(snap ir.Event, listID string) ([]ir.Value, bool) {
	order, ok := ListOrder(snap, listID)
	if !ok {
		return nil, false
	}
	out := make([]ir.Value, 0, len(order))
	for _, id := range order {
		e, _ := Lookup(snap, id)
		out = append(out, e.Value)
	}
	return out, true
}

package signal

import (
	"slices"

	"github.com/roach88/sigsync/internal/ir"
)

// DropReason says why a well-formed command changed nothing.
type DropReason string

const (
	// DropConditionFailed: a condition's entry is missing or holds another value.
	DropConditionFailed DropReason = "condition_failed"
	// DropMissingTarget: the set/remove target no longer exists.
	DropMissingTarget DropReason = "missing_target"
	// DropMissingList: the insert/remove list root no longer exists.
	DropMissingList DropReason = "missing_list"
	// DropNotAList: the list root's value is not a {head, tail} object.
	DropNotAList DropReason = "not_a_list"
	// DropNotInList: the remove target or insert reference is not linked into
	// the named list.
	DropNotInList DropReason = "not_in_list"
	// DropMissingNeighbor: an insert reference or computed neighbor is gone.
	DropMissingNeighbor DropReason = "missing_neighbor"
	// DropDuplicateEntry: an insert would reuse an existing entry id.
	DropDuplicateEntry DropReason = "duplicate_entry"
	// DropRootRemoval: remove targeted the ROOT entry.
	DropRootRemoval DropReason = "root_removal"
)

// processor owns the entry map. It implements eventlog.Processor and is only
// ever called with the log's lock held.
type processor struct {
	entries map[string]*Entry
	onDrop  func(DropReason)
}

func newProcessor(root ir.Value, onDrop func(DropReason)) *processor {
	return &processor{
		entries: map[string]*Entry{
			ir.RootID: {ID: ir.RootID, Value: root},
		},
		onDrop: onDrop,
	}
}

// Process applies one event. Benign races return nil without touching state;
// only an unusable event shape is an error.
func (p *processor) Process(e ir.Event) error {
	cmd := e.Command
	eventID, _ := ir.EventID(e)

	kind := cmd.Kind()
	switch kind {
	case ir.KindSet, ir.KindRemove:
	case ir.KindInsert:
		if e.ID == nil {
			return ir.NewMissingEventIDError(kind)
		}
	default:
		return ir.NewUnknownCommandError(eventID)
	}

	if !p.conditionsHold(cmd.Conditions) {
		p.drop(DropConditionFailed)
		return nil
	}

	switch kind {
	case ir.KindSet:
		p.applySet(cmd.Set)
	case ir.KindRemove:
		p.applyRemove(cmd.Remove)
	case ir.KindInsert:
		p.applyInsert(eventID, cmd.Insert)
	}
	return nil
}

// conditionsHold checks every precondition. A condition without a value only
// requires the entry to exist.
func (p *processor) conditionsHold(conds []ir.Condition) bool {
	for _, c := range conds {
		entry, ok := p.entries[c.ID]
		if !ok {
			return false
		}
		if c.Value != nil && !c.Value.Equal(entry.Value) {
			return false
		}
	}
	return true
}

func (p *processor) applySet(op *ir.SetOp) {
	entry, ok := p.entries[op.ID]
	if !ok {
		p.drop(DropMissingTarget)
		return
	}
	entry.Value = op.Value
}

// applyRemove unlinks the target from its neighbors (or from the list root's
// head/tail) and deletes it. Entries in a list owned by the target are left
// in place.
func (p *processor) applyRemove(op *ir.RemoveOp) {
	if op.ID == ir.RootID {
		p.drop(DropRootRemoval)
		return
	}
	parent, ok := p.entries[op.Parent]
	if !ok {
		p.drop(DropMissingList)
		return
	}
	target, ok := p.entries[op.ID]
	if !ok {
		p.drop(DropMissingTarget)
		return
	}
	list, ok := parseListRoot(parent.Value)
	if !ok {
		p.drop(DropNotAList)
		return
	}
	if !p.linkedIn(list, target.ID) {
		p.drop(DropNotInList)
		return
	}

	if target.Prev == nil {
		list.Head = clonePtr(target.Next)
	} else if prev, ok := p.entries[*target.Prev]; ok {
		prev.Next = clonePtr(target.Next)
	}
	if target.Next == nil {
		list.Tail = clonePtr(target.Prev)
	} else if next, ok := p.entries[*target.Next]; ok {
		next.Prev = clonePtr(target.Prev)
	}

	parent.Value = list.value()
	delete(p.entries, target.ID)
}

// linkedIn reports whether id belongs to list: following Prev links from id
// must end at the list's head. The walk is bounded by the entry count.
func (p *processor) linkedIn(list listRoot, id string) bool {
	cur := id
	for range len(p.entries) {
		e, ok := p.entries[cur]
		if !ok {
			return false
		}
		if e.Prev == nil {
			return ptrIs(list.Head, cur)
		}
		cur = *e.Prev
	}
	return false
}

// applyInsert links a new entry keyed by the event id next to its anchor.
func (p *processor) applyInsert(newID string, op *ir.InsertOp) {
	listEntry, ok := p.entries[op.Entry]
	if !ok {
		p.drop(DropMissingList)
		return
	}
	list, ok := parseListRoot(listEntry.Value)
	if !ok {
		p.drop(DropNotAList)
		return
	}
	if _, exists := p.entries[newID]; exists {
		p.drop(DropDuplicateEntry)
		return
	}

	var prev, next *string
	if op.Reference != nil {
		ref, ok := p.entries[*op.Reference]
		if !ok {
			p.drop(DropMissingNeighbor)
			return
		}
		if op.Direction == ir.DirectionAfter {
			prev, next = strPtr(ref.ID), clonePtr(ref.Next)
		} else {
			prev, next = clonePtr(ref.Prev), strPtr(ref.ID)
		}
		if !p.linkedIn(list, ref.ID) {
			p.drop(DropNotInList)
			return
		}
	} else if op.Direction == ir.DirectionAfter {
		prev = clonePtr(list.Tail)
	} else {
		next = clonePtr(list.Head)
	}

	var prevEntry, nextEntry *Entry
	if prev != nil {
		if prevEntry, ok = p.entries[*prev]; !ok {
			p.drop(DropMissingNeighbor)
			return
		}
	}
	if next != nil {
		if nextEntry, ok = p.entries[*next]; !ok {
			p.drop(DropMissingNeighbor)
			return
		}
	}

	p.entries[newID] = &Entry{ID: newID, Prev: prev, Next: next, Value: op.Value}

	if prevEntry != nil {
		prevEntry.Next = strPtr(newID)
	} else {
		list.Head = strPtr(newID)
	}
	if nextEntry != nil {
		nextEntry.Prev = strPtr(newID)
	} else {
		list.Tail = strPtr(newID)
	}
	listEntry.Value = list.value()
}

// Snapshot serializes every live entry into one synthetic event with no id.
//
// Order is deterministic: ROOT first, then each list in chain order with
// nested lists expanded depth-first, then any unreachable entries by id.
func (p *processor) Snapshot() ir.Event {
	out := make([]ir.EntrySnapshot, 0, len(p.entries))
	seen := make(map[string]bool, len(p.entries))

	var visit func(id string)
	visit = func(id string) {
		entry, ok := p.entries[id]
		if !ok || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, entry.snapshot())

		list, ok := parseListRoot(entry.Value)
		if !ok {
			return
		}
		for cur := list.Head; cur != nil && !seen[*cur]; {
			child, ok := p.entries[*cur]
			if !ok {
				break
			}
			visit(child.ID)
			cur = child.Next
		}
	}
	visit(ir.RootID)

	if len(seen) < len(p.entries) {
		rest := make([]string, 0, len(p.entries)-len(seen))
		for id := range p.entries {
			if !seen[id] {
				rest = append(rest, id)
			}
		}
		slices.Sort(rest)
		for _, id := range rest {
			visit(id)
		}
	}

	return ir.Event{Command: ir.Command{Snapshot: &ir.Snapshot{Entries: out}}}
}

func (p *processor) drop(reason DropReason) {
	if p.onDrop != nil {
		p.onDrop(reason)
	}
}

func ptrIs(p *string, id string) bool {
	return p != nil && *p == id
}

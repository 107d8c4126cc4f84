package signal

import (
	"encoding/json"

	"github.com/roach88/sigsync/internal/ir"
)

// Entry is one addressable node of a signal's value tree.
type Entry struct {
	ID    string
	Prev  *string
	Next  *string
	Value ir.Value
}

// snapshot returns the wire form of the entry. Pointers are copied so the
// snapshot never aliases live state.
func (e *Entry) snapshot() ir.EntrySnapshot {
	return ir.EntrySnapshot{
		ID:    e.ID,
		Prev:  clonePtr(e.Prev),
		Next:  clonePtr(e.Next),
		Value: e.Value,
	}
}

// listRoot is the decoded {head, tail} value of a list-root entry.
// extra keeps any other fields so rewriting head/tail never loses data.
type listRoot struct {
	Head  *string
	Tail  *string
	extra map[string]json.RawMessage
}

// emptyListValue is the value of a list root with no children.
var emptyListValue = ir.Value(`{"head":null,"tail":null}`)

// parseListRoot decodes v as a list root. It reports false when v is not an
// object with string-or-null "head" and "tail" fields.
func parseListRoot(v ir.Value) (listRoot, bool) {
	var fields map[string]json.RawMessage
	if err := v.Decode(&fields); err != nil || fields == nil {
		return listRoot{}, false
	}
	headRaw, okHead := fields["head"]
	tailRaw, okTail := fields["tail"]
	if !okHead || !okTail {
		return listRoot{}, false
	}

	var root listRoot
	if err := ir.Value(headRaw).Decode(&root.Head); err != nil {
		return listRoot{}, false
	}
	if err := ir.Value(tailRaw).Decode(&root.Tail); err != nil {
		return listRoot{}, false
	}
	delete(fields, "head")
	delete(fields, "tail")
	root.extra = fields
	return root, true
}

// value encodes the list root back into an entry value.
func (l listRoot) value() ir.Value {
	obj := make(map[string]any, len(l.extra)+2)
	for k, v := range l.extra {
		obj[k] = v
	}
	obj["head"] = l.Head
	obj["tail"] = l.Tail
	return ir.MustValue(obj)
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := *p
	return &s
}

func strPtr(s string) *string {
	return &s
}

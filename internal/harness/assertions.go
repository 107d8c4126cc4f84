package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/sigsync/internal/ir"
	"github.com/roach88/sigsync/internal/signal"
)

// AssertionError is returned when an assertion fails.
// It includes the final entries to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Entries  []ir.EntrySnapshot
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFinal entries:\n")
	for _, entry := range e.Entries {
		fmt.Fprintf(&buf, "  %s prev=%s next=%s value=%s\n",
			entry.ID, ptrString(entry.Prev), ptrString(entry.Next), entry.Value)
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against a result and returns the
// failure messages.
func EvaluateAssertions(r *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(r, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(r *Result, a Assertion) error {
	switch a.Type {
	case AssertEntryValue:
		return assertEntryValue(r, expandID(a.Entry), a)
	case AssertRootValue:
		return assertEntryValue(r, ir.RootID, a)
	case AssertEntryMissing:
		if entry, ok := signal.Lookup(r.Snapshot, expandID(a.Entry)); ok {
			return fail(r, a, "no entry "+a.Entry, "entry with value "+entry.Value.String())
		}
	case AssertListOrder:
		return assertListOrder(r, a)
	case AssertEntryCount:
		if n := len(r.Entries()); n != *a.Count {
			return fail(r, a, fmt.Sprintf("%d entries", *a.Count), fmt.Sprintf("%d entries", n))
		}
	case AssertDropCount:
		if n := r.Drops[a.Reason]; n != *a.Count {
			return fail(r, a, fmt.Sprintf("%d drops for %s", *a.Count, a.Reason), fmt.Sprintf("%d", n))
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

func assertEntryValue(r *Result, id string, a Assertion) error {
	want, err := ir.NewValue(expandValue(a.Value))
	if err != nil {
		return fmt.Errorf("expected value: %w", err)
	}
	entry, ok := signal.Lookup(r.Snapshot, id)
	if !ok {
		return fail(r, a, fmt.Sprintf("entry %s = %s", id, want), "entry missing")
	}
	if !want.Equal(entry.Value) {
		return fail(r, a, fmt.Sprintf("entry %s = %s", id, want), entry.Value.String())
	}
	return nil
}

func assertListOrder(r *Result, a Assertion) error {
	list := ir.RootID
	if a.List != "" {
		list = expandID(a.List)
	}
	want := make([]string, len(a.Order))
	for i, id := range a.Order {
		want[i] = expandID(id)
	}

	got, ok := signal.ListOrder(r.Snapshot, list)
	if !ok {
		return fail(r, a, fmt.Sprintf("list %s = %v", list, want), "not a list")
	}
	if !slices.Equal(got, want) {
		return fail(r, a, fmt.Sprintf("list %s = %v", list, want), fmt.Sprintf("%v", got))
	}
	return nil
}

func fail(r *Result, a Assertion, expected, actual string) error {
	return &AssertionError{
		Type:     a.Type,
		Expected: expected,
		Actual:   actual,
		Entries:  r.Entries(),
	}
}

func ptrString(p *string) string {
	if p == nil {
		return "null"
	}
	return *p
}

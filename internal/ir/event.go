package ir

// Event is the immutable envelope appended to a signal's history.
//
// ID is nil only for synthetic snapshot events. Every client-submitted event
// carries a unique ID, which doubles as the checkpoint subscribers resume from.
type Event struct {
	ID      *string
	Command Command
}

// NewEvent creates an event with the given ID and command.
func NewEvent(id string, cmd Command) Event {
	return Event{ID: &id, Command: cmd}
}

// EventID returns the event ID and whether it is present.
// Matches the eventlog id-extractor signature.
func EventID(e Event) (string, bool) {
	if e.ID == nil {
		return "", false
	}
	return *e.ID, true
}

// IsSnapshot reports whether the event is a synthetic snapshot.
func (e Event) IsSnapshot() bool {
	return e.ID == nil && e.Command.Snapshot != nil
}

// Direction selects which side of the anchor an insert lands on.
type Direction string

const (
	// DirectionAfter inserts after the reference (or at the tail).
	DirectionAfter Direction = "AFTER"
	// DirectionBefore inserts before the reference (or at the head).
	DirectionBefore Direction = "BEFORE"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	return d == DirectionAfter || d == DirectionBefore
}

// CommandKind identifies which branch of the Command union is populated.
type CommandKind int

const (
	// KindUnknown means no recognised operation is present.
	KindUnknown CommandKind = iota
	// KindSet overwrites an entry value.
	KindSet
	// KindRemove unlinks an entry from its list.
	KindRemove
	// KindInsert adds a new entry to a list.
	KindInsert
	// KindSnapshot carries the full entry set (outbound only).
	KindSnapshot
)

// String returns the wire name of the kind.
func (k CommandKind) String() string {
	switch k {
	case KindSet:
		return "set"
	case KindRemove:
		return "remove"
	case KindInsert:
		return "insert"
	case KindSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// Command is the tagged union of everything an event can ask for.
//
// Conditions may prefix any operation. Exactly one of Set, Remove, Insert or
// Snapshot is non-nil in a well-formed command; Kind reports which.
type Command struct {
	Conditions []Condition
	Set        *SetOp
	Remove     *RemoveOp
	Insert     *InsertOp
	Snapshot   *Snapshot
}

// Kind returns the populated operation. Precedence follows the wire
// precedence: set, remove, insert, snapshot.
func (c Command) Kind() CommandKind {
	switch {
	case c.Set != nil:
		return KindSet
	case c.Remove != nil:
		return KindRemove
	case c.Insert != nil:
		return KindInsert
	case c.Snapshot != nil:
		return KindSnapshot
	default:
		return KindUnknown
	}
}

// Condition is an optimistic-concurrency precondition.
// A nil Value only checks that the entry exists.
type Condition struct {
	ID    string
	Value Value
}

// SetOp overwrites the value of an existing entry.
type SetOp struct {
	ID    string
	Value Value
}

// RemoveOp unlinks ID from the list rooted at Parent.
type RemoveOp struct {
	ID     string
	Parent string
}

// InsertOp adds a new entry to the list rooted at Entry.
// Without a Reference the new entry goes to the tail (AFTER) or head (BEFORE).
type InsertOp struct {
	Entry     string
	Direction Direction
	Reference *string
	Value     Value
}

// Snapshot is the complete entry set of a signal.
type Snapshot struct {
	Entries []EntrySnapshot
}

// EntrySnapshot is one serialized entry.
type EntrySnapshot struct {
	ID    string  `json:"id"`
	Next  *string `json:"next"`
	Prev  *string `json:"prev"`
	Value Value   `json:"value"`
}

// Set builds a set command.
func Set(id string, value Value) Command {
	return Command{Set: &SetOp{ID: id, Value: value}}
}

// Remove builds a remove command.
func Remove(id, parent string) Command {
	return Command{Remove: &RemoveOp{ID: id, Parent: parent}}
}

// Insert builds an insert command anchored at the list head or tail.
func Insert(entry string, dir Direction, value Value) Command {
	return Command{Insert: &InsertOp{Entry: entry, Direction: dir, Value: value}}
}

// InsertAt builds an insert command anchored at a reference entry.
func InsertAt(entry string, dir Direction, reference string, value Value) Command {
	return Command{Insert: &InsertOp{Entry: entry, Direction: dir, Reference: &reference, Value: value}}
}

// When returns a copy of c prefixed with the given conditions.
func (c Command) When(conds ...Condition) Command {
	c.Conditions = append(append([]Condition(nil), c.Conditions...), conds...)
	return c
}

// Exists builds a condition that only checks entry existence.
func Exists(id string) Condition {
	return Condition{ID: id}
}

// Expect builds a condition that checks an entry's current value.
func Expect(id string, value Value) Condition {
	return Condition{ID: id, Value: value}
}

// Package signal implements the state held by one signal: a tree of
// addressable entries mutated only through the command language, plus the
// event log that orders, records and fans out those commands.
//
// The ROOT entry (ir.RootID) holds either a scalar (value mode) or a
// {head, tail} list root (list mode) pointing into a doubly linked chain of
// entries. Any entry whose value is a {head, tail} object can itself act as a
// list root.
//
// Failure tiers:
//   - Stale references and failed conditions are benign races. The command is
//     dropped, nothing changes, and the event is still appended and broadcast.
//   - An event with no recognised operation is a protocol violation and is
//     returned from Submit as an *ir.ProtocolError.
//
// Every branch of the processor is a pure function of the current entries and
// the event, so replaying the same events from the same starting state always
// yields the same entries. Subscribers that fall off the bounded history rely
// on this when they restart from a snapshot.
package signal

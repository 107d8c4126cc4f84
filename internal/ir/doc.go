// Package ir provides the wire-level types shared by every sigsync package.
//
// This package contains the event envelope, the command union, JSON values,
// the canonical encoder and the wire codec. All other internal packages
// import ir; ir imports nothing internal. This keeps the wire format the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Commands are decoded ONCE at the boundary into a tagged union (Command).
//     Nothing downstream inspects raw field presence.
//   - A nil event ID is reserved for synthetic snapshot events.
//   - Value equality is canonical-JSON equality (RFC 8785 key order, NFC),
//     never byte equality of whatever the client sent.
//   - The wire shape is a flat JSON object: command fields plus a reserved
//     "id" field.
package ir

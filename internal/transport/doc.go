// Package transport serves signals over HTTP and WebSocket.
//
// A Hub creates signals with their observers wired (metrics, drop counts and,
// when configured, the SQLite journal) and owns the directory they live in.
// A Server exposes the hub through a gin router:
//
//	GET    /healthz
//	GET    /metrics
//	GET    /signals
//	POST   /signals                 create an ephemeral signal
//	DELETE /signals/:id
//	GET    /signals/:id/snapshot
//	POST   /signals/:id/events      submit one wire event
//	GET    /signals/:id/ws          subscribe and submit over a WebSocket
//
// Each WebSocket connection is one subscriber. Outbound text frames are wire
// events starting with a snapshot or the replay after ?checkpoint=. Inbound
// text frames are updates. A protocol violation closes the connection with
// status 1002.
package transport

// internal/ws/codes.go
package ws

import "github.com/coder/websocket"

// Custom close codes used by the live-connection handlers. These give
// clients a more specific reason than the standard set.
const (
	BadSubprotocol  websocket.StatusCode = 3000 // client spoke an unsupported subprotocol
	AuthFailed      websocket.StatusCode = 3001 // auth token invalid; the only violation that force-closes
	LivenessTimeout websocket.StatusCode = 3002 // liveness probe went unanswered for a full interval
)

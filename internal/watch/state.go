// Package watch drives a session against one wearable: scan, connect,
// subscribe, decode the update stream, classify gestures, and fan the
// results out to registered handlers. It reconnects on its own when
// the link drops.
package watch

// ConnectionState is the session's position in the connection lifecycle.
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateScanning
	StateConnecting
	StateSubscribing
	StateStreaming
	StateDisconnected
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

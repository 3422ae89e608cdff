package model

// ConnectionState is the supervisor-owned lifecycle state of the single
// transport connection.
type ConnectionState string

const (
	StateDisconnected    ConnectionState = "disconnected"
	StateConnecting      ConnectionState = "connecting"
	StateAwaitingQR      ConnectionState = "awaiting_qr"
	StateAwaitingPairAck ConnectionState = "awaiting_pairing_ack"
	StateOpen            ConnectionState = "open"
	StateClosing         ConnectionState = "closing"
)

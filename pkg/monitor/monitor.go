package monitor

import "time"

// MonitorMessage is one mirrored chat message.
type MonitorMessage struct {
	Timestamp   time.Time
	MessageType string // "USER" or "ASSISTANT"
	ChannelID   string
	Username    string
	Content     string
}

// Monitor mirrors traffic from every channel.
type Monitor interface {
	Start() error
	Stop() error

	// OnMessage displays one message.
	OnMessage(msg MonitorMessage)
}

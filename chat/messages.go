package chat

import "github.com/luciancaetano/kephaschat/internal/protocol"

type (
	Message     = protocol.Message
	MessageType = protocol.MessageType
	Connect     = protocol.Connect
	Disconnect  = protocol.Disconnect
	Text        = protocol.Text
	Private     = protocol.Private
	ChatUsers   = protocol.ChatUsers
	Heartbeat   = protocol.Heartbeat
)

const (
	TypeConnect    = protocol.TypeConnect
	TypeDisconnect = protocol.TypeDisconnect
	TypeText       = protocol.TypeText
	TypePrivate    = protocol.TypePrivate
	TypeChatUsers  = protocol.TypeChatUsers
	TypeHeartbeat  = protocol.TypeHeartbeat
)

// Encode returns the wire frame for msg.
func Encode(msg Message) ([]byte, error) {
	return protocol.Encode(msg)
}

// Decode parses one complete wire frame.
func Decode(frame []byte) (Message, error) {
	return protocol.Decode(frame)
}

package protocol

import "encoding/binary"

// MessageType is the 1-byte tag that opens every frame.
type MessageType uint8

const (
	TypeConnect MessageType = iota
	TypeDisconnect
	TypeText
	TypePrivate
	TypeChatUsers
	TypeHeartbeat
)

// Valid reports whether t is a known tag.
func (t MessageType) Valid() bool {
	return t <= TypeHeartbeat
}

func (t MessageType) String() string {
	switch t {
	case TypeConnect:
		return "Connect"
	case TypeDisconnect:
		return "Disconnect"
	case TypeText:
		return "Text"
	case TypePrivate:
		return "Private"
	case TypeChatUsers:
		return "ChatUsers"
	case TypeHeartbeat:
		return "Heartbeat"
	default:
		return "Unknown"
	}
}

// Message is one of Connect, Disconnect, Text, Private, ChatUsers or
// Heartbeat. The set is closed: only this package can add variants.
type Message interface {
	Type() MessageType
	bodySize() uint64
	appendBody(dst []byte) []byte
}

// Connect announces that a session joined the chat under Nick.
type Connect struct {
	Nick string
}

func (Connect) Type() MessageType { return TypeConnect }

func (m Connect) bodySize() uint64 { return stringSize(m.Nick) }

func (m Connect) appendBody(dst []byte) []byte { return appendString(dst, m.Nick) }

// Disconnect announces that Nick left the chat.
type Disconnect struct {
	Nick string
}

func (Disconnect) Type() MessageType { return TypeDisconnect }

func (m Disconnect) bodySize() uint64 { return stringSize(m.Nick) }

func (m Disconnect) appendBody(dst []byte) []byte { return appendString(dst, m.Nick) }

// Text is a message broadcast to everyone in the chat.
type Text struct {
	From    string
	Message string
}

func (Text) Type() MessageType { return TypeText }

func (m Text) bodySize() uint64 { return stringSize(m.From) + stringSize(m.Message) }

func (m Text) appendBody(dst []byte) []byte {
	dst = appendString(dst, m.From)
	return appendString(dst, m.Message)
}

// Private is delivered only to the session holding the To nickname.
type Private struct {
	From    string
	To      string
	Message string
}

func (Private) Type() MessageType { return TypePrivate }

func (m Private) bodySize() uint64 {
	return stringSize(m.From) + stringSize(m.To) + stringSize(m.Message)
}

func (m Private) appendBody(dst []byte) []byte {
	dst = appendString(dst, m.From)
	dst = appendString(dst, m.To)
	return appendString(dst, m.Message)
}

// ChatUsers carries a roster of nicknames. Sent empty by a client it asks the
// server for the current roster.
type ChatUsers struct {
	Users []string
}

func (ChatUsers) Type() MessageType { return TypeChatUsers }

func (m ChatUsers) bodySize() uint64 {
	size := uint64(lengthSize)
	for _, u := range m.Users {
		size += stringSize(u)
	}
	return size
}

func (m ChatUsers) appendBody(dst []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(m.Users)))
	for _, u := range m.Users {
		dst = appendString(dst, u)
	}
	return dst
}

// Heartbeat has an empty body and only probes liveness.
type Heartbeat struct{}

func (Heartbeat) Type() MessageType { return TypeHeartbeat }

func (Heartbeat) bodySize() uint64 { return 0 }

func (Heartbeat) appendBody(dst []byte) []byte { return dst }

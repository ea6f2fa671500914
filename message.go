// Package gochat implements the client side of the IPK25 chat protocol
// over two interchangeable transports : a text line form over TCP and a
// binary datagram form over UDP.
package gochat

// Message type codes, shared between both wire forms.
// The numeric values are the binary form's type byte.
type MessageType uint8

const (
	TypeConfirm MessageType = 0x00
	TypeReply   MessageType = 0x01
	TypeAuth    MessageType = 0x02
	TypeJoin    MessageType = 0x03
	TypeMsg     MessageType = 0x04
	TypePing    MessageType = 0xFD
	TypeErr     MessageType = 0xFE
	TypeBye     MessageType = 0xFF
)

var typeDescription = map[MessageType]string{
	TypeConfirm: "CONFIRM",
	TypeReply:   "REPLY",
	TypeAuth:    "AUTH",
	TypeJoin:    "JOIN",
	TypeMsg:     "MSG",
	TypePing:    "PING",
	TypeErr:     "ERR",
	TypeBye:     "BYE",
}

func (t MessageType) String() string {
	desc, ok := typeDescription[t]
	if !ok {
		return "UNKNOWN"
	}
	return desc
}

// A single protocol message, any direction, any transport.
// Only the fields relevant to Type are meaningful :
//
//	CONFIRM : ID (the reference id being acknowledged)
//	REPLY   : ID, Result, RefID, Content
//	AUTH    : ID, Username, DisplayName, Secret
//	JOIN    : ID, Channel, DisplayName
//	MSG     : ID, DisplayName, Content
//	ERR     : ID, DisplayName, Content
//	BYE     : ID, DisplayName
//	PING    : ID
//
// Message ids are allocated by the sender as a strictly increasing
// counter modulo 2^16. The text form carries no id.
type Message struct {
	Type        MessageType
	ID          uint16
	RefID       uint16
	Result      bool
	Username    string
	DisplayName string
	Secret      string
	Channel     string
	Content     string
}

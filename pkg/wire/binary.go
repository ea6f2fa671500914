package wire

import (
	"bytes"
	"encoding/binary"

	gochat "github.com/samsamfire/gochat"
)

// Binary framing : type:u8 || id:u16-be || body
// String fields are UTF-8 followed by a single NUL, which the encoder
// always emits.

const headerSize = 3

// MarshalBinary encodes a message into a datagram payload.
func MarshalBinary(m *gochat.Message) ([]byte, error) {
	buf := make([]byte, headerSize, 64)
	buf[0] = byte(m.Type)
	binary.BigEndian.PutUint16(buf[1:3], m.ID)

	switch m.Type {
	case gochat.TypeConfirm, gochat.TypePing:
		// Header only, id is the reference id for CONFIRM
	case gochat.TypeReply:
		result := byte(0)
		if m.Result {
			result = 1
		}
		buf = append(buf, result)
		buf = binary.BigEndian.AppendUint16(buf, m.RefID)
		buf = appendField(buf, m.Content)
	case gochat.TypeAuth:
		buf = appendField(buf, m.Username)
		buf = appendField(buf, m.DisplayName)
		buf = appendField(buf, m.Secret)
	case gochat.TypeJoin:
		buf = appendField(buf, m.Channel)
		buf = appendField(buf, m.DisplayName)
	case gochat.TypeMsg, gochat.TypeErr:
		buf = appendField(buf, m.DisplayName)
		buf = appendField(buf, m.Content)
	case gochat.TypeBye:
		buf = appendField(buf, m.DisplayName)
	default:
		return nil, gochat.ErrMalformedPacket
	}
	return buf, nil
}

func appendField(buf []byte, field string) []byte {
	buf = append(buf, field...)
	return append(buf, 0)
}

// UnmarshalBinary decodes and validates a received datagram.
// A packet failing validation returns ErrMalformedPacket.
func UnmarshalBinary(data []byte) (*gochat.Message, error) {
	if len(data) < headerSize {
		return nil, gochat.ErrMalformedPacket
	}
	m := &gochat.Message{
		Type: gochat.MessageType(data[0]),
		ID:   binary.BigEndian.Uint16(data[1:3]),
	}
	body := data[headerSize:]

	switch m.Type {
	case gochat.TypeConfirm, gochat.TypePing:
		if len(body) != 0 {
			return nil, gochat.ErrMalformedPacket
		}
	case gochat.TypeReply:
		if len(body) < 3 || body[0] > 1 {
			return nil, gochat.ErrMalformedPacket
		}
		m.Result = body[0] == 1
		m.RefID = binary.BigEndian.Uint16(body[1:3])
		fields, err := splitFields(body[3:], 1, true)
		if err != nil {
			return nil, err
		}
		m.Content = fields[0]
	case gochat.TypeAuth:
		fields, err := splitFields(body, 3, false)
		if err != nil {
			return nil, err
		}
		m.Username, m.DisplayName, m.Secret = fields[0], fields[1], fields[2]
	case gochat.TypeJoin:
		fields, err := splitFields(body, 2, false)
		if err != nil {
			return nil, err
		}
		m.Channel, m.DisplayName = fields[0], fields[1]
	case gochat.TypeMsg, gochat.TypeErr:
		fields, err := splitFields(body, 2, false)
		if err != nil {
			return nil, err
		}
		m.DisplayName, m.Content = fields[0], fields[1]
	case gochat.TypeBye:
		fields, err := splitFields(body, 1, false)
		if err != nil {
			return nil, err
		}
		m.DisplayName = fields[0]
	default:
		return nil, gochat.ErrMalformedPacket
	}
	return m, nil
}

// splitFields validates that body is exactly n NUL-terminated strings,
// with the last byte a NUL. Empty strings are rejected unless allowEmpty.
func splitFields(body []byte, n int, allowEmpty bool) ([]string, error) {
	if len(body) == 0 || body[len(body)-1] != 0 {
		return nil, gochat.ErrMalformedPacket
	}
	parts := bytes.Split(body[:len(body)-1], []byte{0})
	if len(parts) != n {
		return nil, gochat.ErrMalformedPacket
	}
	fields := make([]string, n)
	for i, part := range parts {
		if len(part) == 0 && !allowEmpty {
			return nil, gochat.ErrMalformedPacket
		}
		fields[i] = string(part)
	}
	return fields, nil
}

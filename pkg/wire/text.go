package wire

import (
	"fmt"
	"strings"

	gochat "github.com/samsamfire/gochat"
)

// Text grammar : a fixed keyword prefix, space separated fields and a
// CRLF terminator. CONFIRM and PING exist only in the binary form.

// MarshalText encodes a message as a single CRLF terminated line.
func MarshalText(m *gochat.Message) (string, error) {
	switch m.Type {
	case gochat.TypeAuth:
		return fmt.Sprintf("AUTH %s AS %s USING %s\r\n", m.Username, m.DisplayName, m.Secret), nil
	case gochat.TypeJoin:
		return fmt.Sprintf("JOIN %s AS %s\r\n", m.Channel, m.DisplayName), nil
	case gochat.TypeMsg:
		return fmt.Sprintf("MSG FROM %s IS %s\r\n", m.DisplayName, m.Content), nil
	case gochat.TypeErr:
		return fmt.Sprintf("ERR FROM %s IS %s\r\n", m.DisplayName, m.Content), nil
	case gochat.TypeReply:
		result := "NOK"
		if m.Result {
			result = "OK"
		}
		return fmt.Sprintf("REPLY %s IS %s\r\n", result, m.Content), nil
	case gochat.TypeBye:
		return fmt.Sprintf("BYE FROM %s\r\n", m.DisplayName), nil
	default:
		return "", gochat.ErrNoTextForm
	}
}

// UnmarshalText decodes one line with the CRLF terminator already
// stripped. Prefixes are matched in grammar order, a line matching no
// prefix or failing its shape returns ErrMalformedLine.
func UnmarshalText(line string) (*gochat.Message, error) {
	switch {
	case strings.HasPrefix(line, "AUTH "):
		username, rest, ok := cut(line[len("AUTH "):], " AS ")
		if !ok {
			return nil, gochat.ErrMalformedLine
		}
		display, secret, ok := cut(rest, " USING ")
		if !ok || secret == "" {
			return nil, gochat.ErrMalformedLine
		}
		return &gochat.Message{Type: gochat.TypeAuth, Username: username, DisplayName: display, Secret: secret}, nil

	case strings.HasPrefix(line, "JOIN "):
		channel, display, ok := cut(line[len("JOIN "):], " AS ")
		if !ok || display == "" {
			return nil, gochat.ErrMalformedLine
		}
		return &gochat.Message{Type: gochat.TypeJoin, Channel: channel, DisplayName: display}, nil

	case strings.HasPrefix(line, "MSG FROM "):
		display, content, ok := cut(line[len("MSG FROM "):], " IS ")
		if !ok {
			return nil, gochat.ErrMalformedLine
		}
		return &gochat.Message{Type: gochat.TypeMsg, DisplayName: display, Content: content}, nil

	case strings.HasPrefix(line, "ERR FROM "):
		display, content, ok := cut(line[len("ERR FROM "):], " IS ")
		if !ok {
			return nil, gochat.ErrMalformedLine
		}
		return &gochat.Message{Type: gochat.TypeErr, DisplayName: display, Content: content}, nil

	case strings.HasPrefix(line, "REPLY "):
		rest := line[len("REPLY "):]
		var result bool
		var content string
		switch {
		case strings.HasPrefix(rest, "OK IS "):
			result = true
			content = rest[len("OK IS "):]
		case strings.HasPrefix(rest, "NOK IS "):
			content = rest[len("NOK IS "):]
		default:
			return nil, gochat.ErrMalformedLine
		}
		return &gochat.Message{Type: gochat.TypeReply, Result: result, Content: content}, nil

	case strings.HasPrefix(line, "BYE FROM "):
		display := line[len("BYE FROM "):]
		if display == "" {
			return nil, gochat.ErrMalformedLine
		}
		return &gochat.Message{Type: gochat.TypeBye, DisplayName: display}, nil
	}
	return nil, gochat.ErrMalformedLine
}

// cut splits around the first occurrence of sep, requiring a non empty
// left side.
func cut(s string, sep string) (left string, right string, ok bool) {
	left, right, ok = strings.Cut(s, sep)
	if !ok || left == "" {
		return "", "", false
	}
	return left, right, true
}

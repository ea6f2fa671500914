package session

import (
	"fmt"
	"log/slog"
	"strings"

	gochat "github.com/samsamfire/gochat"
)

// Possible session states
const (
	StateClosed      uint8 = 0
	StateAuthPending uint8 = 1
	StateOpen        uint8 = 2
	StateTerminated  uint8 = 3
)

var stateMap = map[uint8]string{
	StateClosed:      "CLOSED",
	StateAuthPending: "AUTH-PENDING",
	StateOpen:        "OPEN",
	StateTerminated:  "TERMINATED",
}

const defaultDisplayName = "anonymous"

const helpText = "Commands:\n" +
	"  /auth <username> <secret> <display_name>\n" +
	"  /join <channel>\n" +
	"  /rename <display_name>\n" +
	"  /quit\n" +
	"  /help"

// An Action is what the state machine asks the transport and terminal
// to do in response to a single input.
type Action struct {
	Out         *gochat.Message // outbound message, nil if none
	ExpectReply bool            // Out expects a REPLY from the server
	Output      string          // user visible line, empty if none
	Terminate   bool            // session reached TERMINATED
}

// Session is the client side state machine shared by both transports.
// It is owned by a single goroutine, the event loop, and is driven by
// user lines and decoded server messages.
type Session struct {
	logger        *slog.Logger
	state         uint8
	username      string
	displayName   string
	secret        string
	awaitingReply bool
}

func NewSession(logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		logger:      logger.With("service", "[SESSION]"),
		state:       StateClosed,
		username:    defaultDisplayName,
		displayName: defaultDisplayName,
	}
}

func (s *Session) State() uint8 {
	return s.state
}

func (s *Session) DisplayName() string {
	return s.displayName
}

func (s *Session) AwaitingReply() bool {
	return s.awaitingReply
}

func (s *Session) setState(state uint8) {
	if state == s.state {
		return
	}
	s.logger.Debug("state transition", "from", stateMap[s.state], "to", stateMap[state])
	s.state = state
}

// HandleUser applies one line of user input. Command errors are local,
// the session stays in its current state.
func (s *Session) HandleUser(line string) (Action, error) {
	if s.state == StateTerminated {
		return Action{}, gochat.ErrTerminated
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Action{}, nil
	}
	if strings.HasPrefix(line, "/") {
		return s.handleCommand(line)
	}
	// Free text is a chat message, legal in OPEN only
	if s.state != StateOpen {
		return Action{}, gochat.ErrNotAuthenticated
	}
	if s.awaitingReply {
		return Action{}, gochat.ErrAwaitingReply
	}
	return Action{
		Out: &gochat.Message{Type: gochat.TypeMsg, DisplayName: s.displayName, Content: line},
	}, nil
}

func (s *Session) handleCommand(line string) (Action, error) {
	tokens := strings.Fields(line)
	switch tokens[0] {
	case "/auth":
		if s.awaitingReply {
			return Action{}, gochat.ErrAwaitingReply
		}
		if s.state == StateOpen {
			return Action{}, gochat.ErrAlreadyOpen
		}
		if len(tokens) != 4 {
			return Action{}, fmt.Errorf("%w : usage /auth <username> <secret> <display_name>", gochat.ErrBadCommand)
		}
		s.username = tokens[1]
		s.secret = tokens[2]
		s.displayName = tokens[3]
		s.setState(StateAuthPending)
		s.awaitingReply = true
		return Action{
			Out: &gochat.Message{
				Type:        gochat.TypeAuth,
				Username:    s.username,
				DisplayName: s.displayName,
				Secret:      s.secret,
			},
			ExpectReply: true,
		}, nil

	case "/join":
		if s.state != StateOpen {
			return Action{}, gochat.ErrNotAuthenticated
		}
		if s.awaitingReply {
			return Action{}, gochat.ErrAwaitingReply
		}
		if len(tokens) != 2 {
			return Action{}, fmt.Errorf("%w : usage /join <channel>", gochat.ErrBadCommand)
		}
		s.awaitingReply = true
		return Action{
			Out: &gochat.Message{
				Type:        gochat.TypeJoin,
				Channel:     tokens[1],
				DisplayName: s.displayName,
			},
			ExpectReply: true,
		}, nil

	case "/rename":
		// Local only, no network traffic
		if len(tokens) != 2 {
			return Action{}, fmt.Errorf("%w : usage /rename <display_name>", gochat.ErrBadCommand)
		}
		s.displayName = tokens[1]
		s.logger.Debug("display name updated", "display", s.displayName)
		return Action{}, nil

	case "/quit":
		return Action{Out: s.Bye(), Terminate: true}, nil

	case "/help":
		return Action{Output: helpText}, nil
	}
	return Action{}, fmt.Errorf("%w : unknown command %v", gochat.ErrBadCommand, tokens[0])
}

// HandleInbound applies one decoded server message.
func (s *Session) HandleInbound(m *gochat.Message) Action {
	switch m.Type {
	case gochat.TypeReply:
		s.awaitingReply = false
		if s.state == StateAuthPending {
			if m.Result {
				s.setState(StateOpen)
			} else {
				// User may retry /auth
				s.setState(StateClosed)
			}
		}
		if m.Result {
			return Action{Output: "Action Success: " + m.Content}
		}
		return Action{Output: "Action Failure: " + m.Content}

	case gochat.TypeMsg:
		return Action{Output: m.DisplayName + ": " + m.Content}

	case gochat.TypeErr:
		s.awaitingReply = false
		s.setState(StateTerminated)
		return Action{
			Output:    "ERROR FROM " + m.DisplayName + ": " + m.Content,
			Terminate: true,
		}

	case gochat.TypeBye:
		s.awaitingReply = false
		s.setState(StateTerminated)
		return Action{Terminate: true}
	}
	// CONFIRM and PING are consumed by the reliability layer, inbound
	// AUTH and JOIN are valid lines with no client side effect
	return Action{}
}

// Bye marks the session terminated and returns the BYE to send.
func (s *Session) Bye() *gochat.Message {
	s.setState(StateTerminated)
	return &gochat.Message{Type: gochat.TypeBye, DisplayName: s.displayName}
}

// ProtocolError marks the session terminated and returns the ERR to
// send toward the peer before BYE.
func (s *Session) ProtocolError(content string) *gochat.Message {
	s.setState(StateTerminated)
	return &gochat.Message{Type: gochat.TypeErr, DisplayName: s.displayName, Content: content}
}

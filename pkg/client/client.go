package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	gochat "github.com/samsamfire/gochat"
	"github.com/samsamfire/gochat/pkg/config"
	"github.com/samsamfire/gochat/pkg/session"
	"github.com/samsamfire/gochat/pkg/tcp"
	"github.com/samsamfire/gochat/pkg/udp"
)

const malformedContent = "Malformed packet"

// A Transport carries encoded messages between the session and the
// server. The stream and datagram forms are interchangeable behind it :
// Request marks a reply-expecting send, and every transport delivers
// the REPLY through Messages so the session consumes it identically.
type Transport interface {
	Send(ctx context.Context, m *gochat.Message) error
	Request(ctx context.Context, m *gochat.Message) error
	Bye(m *gochat.Message)
	Messages() <-chan *gochat.Message
	Errors() <-chan error
	Close() error
}

// Client runs one chat session : it multiplexes user input and inbound
// network traffic, hands each event to the session state machine and
// executes the resulting actions on the transport and the terminal.
type Client struct {
	logger    *slog.Logger
	transport Transport
	session   *session.Session
	input     io.Reader
	output    io.Writer
}

// NewClient connects the configured transport and assembles a session.
func NewClient(logger *slog.Logger, cfg *config.Config) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var transport Transport
	switch cfg.Transport {
	case config.TransportTCP:
		t, err := tcp.Dial(logger, cfg.Address())
		if err != nil {
			return nil, err
		}
		transport = t
	case config.TransportUDP:
		remote, err := net.ResolveUDPAddr("udp", cfg.Address())
		if err != nil {
			return nil, fmt.Errorf("resolve : %w", err)
		}
		t, err := udp.NewClient(logger, remote, cfg.ConfirmTimeout, cfg.ReplyTimeout, cfg.MaxRetries)
		if err != nil {
			return nil, err
		}
		transport = t
	default:
		return nil, fmt.Errorf("unsupported transport : %v", cfg.Transport)
	}
	return NewClientWithTransport(logger, transport), nil
}

// NewClientWithTransport assembles a session over an already connected
// transport.
func NewClientWithTransport(logger *slog.Logger, transport Transport) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		logger:    logger.With("service", "[CLIENT]"),
		transport: transport,
		session:   session.NewSession(logger),
		input:     os.Stdin,
		output:    os.Stdout,
	}
}

// SetInput replaces the user input stream, default is stdin.
func (c *Client) SetInput(r io.Reader) {
	c.input = r
}

// SetOutput replaces the user visible output stream, default is stdout.
func (c *Client) SetOutput(w io.Writer) {
	c.output = w
}

// Run drives the session until termination. It returns nil on a clean
// exit : BYE sent on /quit, cancellation or input EOF, or a server
// initiated ERR or BYE. Socket errors, protocol errors and delivery
// failures return the underlying error.
func (c *Client) Run(ctx context.Context) error {
	defer c.transport.Close()

	lines := make(chan string)
	go c.readInput(lines)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cancellation requested, sending BYE")
			c.transport.Bye(c.session.Bye())
			return nil

		case line, ok := <-lines:
			if !ok {
				c.logger.Debug("end of user input, sending BYE")
				c.transport.Bye(c.session.Bye())
				return nil
			}
			act, err := c.session.HandleUser(line)
			if err != nil {
				// Local user error, session state is unchanged
				fmt.Fprintf(c.output, "ERROR: %v\n", err)
				continue
			}
			done, err := c.apply(ctx, act)
			if done || err != nil {
				return err
			}

		case m := <-c.transport.Messages():
			act := c.session.HandleInbound(m)
			done, err := c.apply(ctx, act)
			if done || err != nil {
				return err
			}

		case err := <-c.transport.Errors():
			return c.handleTransportError(ctx, err)
		}
	}
}

func (c *Client) readInput(lines chan<- string) {
	scanner := bufio.NewScanner(c.input)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
	close(lines)
}

// apply executes one session action : print, send, terminate.
func (c *Client) apply(ctx context.Context, act session.Action) (bool, error) {
	if act.Output != "" {
		fmt.Fprintln(c.output, act.Output)
	}
	if act.Out != nil {
		var err error
		if act.ExpectReply {
			err = c.transport.Request(ctx, act.Out)
		} else {
			err = c.transport.Send(ctx, act.Out)
		}
		if err != nil {
			return c.handleSendError(ctx, err)
		}
	}
	return act.Terminate, nil
}

func (c *Client) handleSendError(ctx context.Context, err error) (bool, error) {
	switch {
	case errors.Is(err, gochat.ErrServerError):
		// The ERR packet itself is already queued for delivery and
		// terminates the session through the normal inbound path
		return false, nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		c.transport.Bye(c.session.Bye())
		return true, nil
	case errors.Is(err, gochat.ErrConfirmTimeout):
		return true, c.protocolFailure(ctx, "Confirm not received", err)
	case errors.Is(err, gochat.ErrReplyTimeout):
		return true, c.protocolFailure(ctx, "No reply received", err)
	case errors.Is(err, gochat.ErrMalformedPacket):
		return true, c.protocolFailure(ctx, malformedContent, err)
	}
	// Socket error, no channel left to say goodbye on
	fmt.Fprintf(c.output, "ERROR: %v\n", err)
	return true, err
}

func (c *Client) handleTransportError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, io.EOF):
		// Server closed the stream, nothing left to send
		c.session.Bye()
		return nil
	case errors.Is(err, gochat.ErrMalformedPacket), errors.Is(err, gochat.ErrMalformedLine):
		return c.protocolFailure(ctx, malformedContent, err)
	}
	fmt.Fprintf(c.output, "ERROR: %v\n", err)
	return err
}

// protocolFailure reports a fatal protocol condition, notifies the peer
// with ERR then BYE, best effort, and terminates.
func (c *Client) protocolFailure(ctx context.Context, content string, cause error) error {
	fmt.Fprintf(c.output, "ERROR: %s\n", content)
	c.logger.Warn("terminating session", "reason", cause)
	_ = c.transport.Send(ctx, c.session.ProtocolError(content))
	_ = c.transport.Send(ctx, c.session.Bye())
	return cause
}

package tcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	gochat "github.com/samsamfire/gochat"
	"github.com/samsamfire/gochat/pkg/wire"
)

// Transport is the stream form of the chat protocol : one CRLF
// terminated text line per message over a connected stream socket.
// The stream itself is reliable so there is no confirm exchange, a
// reply-expecting send is an ordinary send and the REPLY arrives
// through Messages.
type Transport struct {
	logger   *slog.Logger
	conn     net.Conn
	messages chan *gochat.Message
	errs     chan error

	closeOnce sync.Once
	closed    chan struct{}
}

// NewTransport starts the reader on an established connection.
func NewTransport(logger *slog.Logger, conn net.Conn) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Transport{
		logger:   logger.With("service", "[TCP]"),
		conn:     conn,
		messages: make(chan *gochat.Message, 64),
		errs:     make(chan error, 1),
		closed:   make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// Dial connects to the server and returns a running transport.
func Dial(logger *slog.Logger, address string) (*Transport, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("connect : %w", err)
	}
	return NewTransport(logger, conn), nil
}

func (t *Transport) Messages() <-chan *gochat.Message {
	return t.messages
}

func (t *Transport) Errors() <-chan error {
	return t.errs
}

func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.conn.Close()
	})
	return err
}

func (t *Transport) Send(_ context.Context, m *gochat.Message) error {
	line, err := wire.MarshalText(m)
	if err != nil {
		return err
	}
	t.logger.Debug("[TX]", "line", strings.TrimRight(line, "\r\n"))
	if _, err := t.conn.Write([]byte(line)); err != nil {
		return fmt.Errorf("send : %w", err)
	}
	return nil
}

// Request is a plain send, the stream delivers the REPLY in order
// through Messages.
func (t *Transport) Request(ctx context.Context, m *gochat.Message) error {
	return t.Send(ctx, m)
}

// Bye writes the BYE line, best effort.
func (t *Transport) Bye(m *gochat.Message) {
	line, err := wire.MarshalText(m)
	if err != nil {
		return
	}
	_, _ = t.conn.Write([]byte(line))
}

// readLoop buffers partial lines across reads and splits on CRLF, each
// complete line is decoded and delivered in wire order.
func (t *Transport) readLoop() {
	reader := bufio.NewReader(t.conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			select {
			case <-t.closed:
			default:
				if err == io.EOF {
					t.logger.Debug("server closed the connection")
					t.pushErr(io.EOF)
				} else {
					t.pushErr(fmt.Errorf("recv : %w", err))
				}
			}
			return
		}
		if !strings.HasSuffix(line, "\r\n") {
			t.logger.Warn("[RX] line without CRLF termination")
			t.pushErr(gochat.ErrMalformedLine)
			return
		}
		line = strings.TrimSuffix(line, "\r\n")
		m, err := wire.UnmarshalText(line)
		if err != nil {
			t.logger.Warn("[RX] malformed line", "line", line)
			t.pushErr(err)
			return
		}
		t.logger.Debug("[RX]", "line", line)
		t.messages <- m
	}
}

func (t *Transport) pushErr(err error) {
	select {
	case t.errs <- err:
	default:
	}
}

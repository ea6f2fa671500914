package udp

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	gochat "github.com/samsamfire/gochat"
	"github.com/samsamfire/gochat/internal/ring"
	"github.com/samsamfire/gochat/pkg/wire"
)

const (
	DefaultConfirmTimeout = 250 * time.Millisecond
	DefaultReplyTimeout   = 5 * time.Second
	DefaultMaxRetries     = 3

	readBufferSize = 65507 // maximum safe UDP payload
)

// Client is the datagram reliability layer. It turns the unreliable
// datagram transport into an at-most-once delivery channel : every
// outbound packet is retransmitted until confirmed, every fresh inbound
// packet is confirmed before delivery, retransmitted inbound packets
// are suppressed by a bounded ring of recently seen ids.
//
// A single reader goroutine owns the socket reads and routes packets to
// the waiting sender (confirms, matching replies) or to the delivery
// channel. Packets are sent to the authoritative address, which starts
// at the bootstrap address and is rebound exactly once, to the source
// of the first accepted REPLY.
type Client struct {
	logger *slog.Logger
	conn   *net.UDPConn

	mu                sync.Mutex
	bootstrap         *net.UDPAddr
	authoritative     *net.UDPAddr
	rebound           bool
	nextID            uint16
	outstanding       uint16
	outstandingActive bool
	seen              *ring.Ring

	confirmTimeout time.Duration
	replyTimeout   time.Duration
	maxRetries     int

	confirms chan uint16
	replies  chan *gochat.Message
	aborts   chan *gochat.Message
	messages chan *gochat.Message
	errs     chan error

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient opens an unconnected datagram socket and starts the reader.
// The socket must stay unconnected, packets may legally arrive from a
// different source port after AUTH.
func NewClient(logger *slog.Logger, remote *net.UDPAddr, confirmTimeout time.Duration, replyTimeout time.Duration, maxRetries int) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if confirmTimeout <= 0 {
		confirmTimeout = DefaultConfirmTimeout
	}
	if replyTimeout <= 0 {
		replyTimeout = DefaultReplyTimeout
	}
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	// Bind in the remote's address family so that LocalAddr reports an
	// address an IPv4 peer can reach
	network := "udp"
	if remote != nil && remote.IP.To4() != nil {
		network = "udp4"
	}
	conn, err := net.ListenUDP(network, nil)
	if err != nil {
		return nil, fmt.Errorf("socket : %w", err)
	}
	c := &Client{
		logger:         logger.With("service", "[UDP]"),
		conn:           conn,
		bootstrap:      remote,
		authoritative:  remote,
		seen:           ring.NewRing(ring.DefaultCapacity),
		confirmTimeout: confirmTimeout,
		replyTimeout:   replyTimeout,
		maxRetries:     maxRetries,
		confirms:       make(chan uint16, 16),
		replies:        make(chan *gochat.Message, 1),
		aborts:         make(chan *gochat.Message, 1),
		messages:       make(chan *gochat.Message, 64),
		errs:           make(chan error, 1),
		closed:         make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) LocalAddr() *net.UDPAddr {
	return c.conn.LocalAddr().(*net.UDPAddr)
}

// AuthoritativeAddr returns the address packets are currently sent to.
func (c *Client) AuthoritativeAddr() *net.UDPAddr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authoritative
}

// Messages delivers fresh inbound packets that are not consumed by the
// reliability layer itself, in wire order, confirmed before delivery.
func (c *Client) Messages() <-chan *gochat.Message {
	return c.messages
}

// Errors delivers the fatal receive error, if any : a malformed packet
// or a socket failure.
func (c *Client) Errors() <-chan error {
	return c.errs
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) allocID() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	return id
}

func (c *Client) setOutstanding(id uint16) {
	c.mu.Lock()
	c.outstanding = id
	c.outstandingActive = true
	c.mu.Unlock()
	// Leftovers from a previous request must not satisfy this one
	for {
		select {
		case <-c.confirms:
		case <-c.replies:
		case <-c.aborts:
		default:
			return
		}
	}
}

func (c *Client) clearOutstanding() {
	c.mu.Lock()
	c.outstandingActive = false
	c.mu.Unlock()
}

// Send transmits a message with at-most-once semantics : the same
// identifier is retransmitted until a CNFRM references it, up to
// maxRetries additional attempts.
func (c *Client) Send(ctx context.Context, m *gochat.Message) error {
	m.ID = c.allocID()
	c.setOutstanding(m.ID)
	defer c.clearOutstanding()
	return c.sendConfirmed(ctx, m)
}

// Request transmits a reply-expecting message (AUTH or JOIN) : first
// the full confirm exchange, then a bounded wait for the REPLY whose
// reference id matches. The accepted REPLY is fed back through
// Messages so the caller consumes REPLYs identically on any transport.
func (c *Client) Request(ctx context.Context, m *gochat.Message) error {
	m.ID = c.allocID()
	c.setOutstanding(m.ID)
	defer c.clearOutstanding()
	if err := c.sendConfirmed(ctx, m); err != nil {
		return err
	}
	timer := time.NewTimer(c.replyTimeout)
	defer timer.Stop()
	select {
	case reply := <-c.replies:
		c.logger.Debug("[RX] reply accepted", "id", reply.ID, "ref", reply.RefID, "result", reply.Result)
		c.messages <- reply
		return nil
	case <-c.aborts:
		return gochat.ErrServerError
	case err := <-c.errs:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		c.logger.Warn("reply not received", "id", m.ID, "timeout", c.replyTimeout)
		return gochat.ErrReplyTimeout
	}
}

// Bye transmits m once and waits a single confirm window, best effort.
// Used at cancellation time so that shutdown stays bounded.
func (c *Client) Bye(m *gochat.Message) {
	m.ID = c.allocID()
	data, err := wire.MarshalBinary(m)
	if err != nil {
		return
	}
	if err := c.write(data, m); err != nil {
		return
	}
	timer := time.NewTimer(c.confirmTimeout)
	defer timer.Stop()
	for {
		select {
		case ref := <-c.confirms:
			if ref == m.ID {
				return
			}
		case <-timer.C:
			return
		}
	}
}

func (c *Client) sendConfirmed(ctx context.Context, m *gochat.Message) error {
	data, err := wire.MarshalBinary(m)
	if err != nil {
		return err
	}
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("[TX] retransmit", "type", m.Type.String(), "id", m.ID, "attempt", attempt)
		}
		if err := c.write(data, m); err != nil {
			return err
		}
		confirmed, err := c.waitConfirm(ctx, m.ID)
		if err != nil {
			return err
		}
		if confirmed {
			return nil
		}
	}
	c.logger.Warn("confirm not received", "id", m.ID, "sends", c.maxRetries+1)
	return gochat.ErrConfirmTimeout
}

// waitConfirm waits one confirm window for a CNFRM referencing id.
// Returns false on expiry, an error only on fatal conditions.
func (c *Client) waitConfirm(ctx context.Context, id uint16) (bool, error) {
	timer := time.NewTimer(c.confirmTimeout)
	defer timer.Stop()
	for {
		select {
		case ref := <-c.confirms:
			if ref == id {
				return true, nil
			}
			// Confirm for an already abandoned send, ignore
		case <-c.aborts:
			return false, gochat.ErrServerError
		case err := <-c.errs:
			return false, err
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
			return false, nil
		}
	}
}

func (c *Client) write(data []byte, m *gochat.Message) error {
	c.mu.Lock()
	addr := c.authoritative
	c.mu.Unlock()
	c.logger.Debug("[TX]", "type", m.Type.String(), "id", m.ID, "to", addr.String())
	if _, err := c.conn.WriteToUDP(data, addr); err != nil {
		return fmt.Errorf("sendto : %w", err)
	}
	return nil
}

// sendConfirm emits a CNFRM for ref. It is never retransmitted and
// never expects a confirmation itself.
func (c *Client) sendConfirm(ref uint16) {
	c.mu.Lock()
	addr := c.authoritative
	c.mu.Unlock()
	data := []byte{byte(gochat.TypeConfirm), 0, 0}
	binary.BigEndian.PutUint16(data[1:3], ref)
	c.logger.Debug("[TX] CONFIRM", "ref", ref, "to", addr.String())
	_, _ = c.conn.WriteToUDP(data, addr)
}

func (c *Client) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, src, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.pushErr(fmt.Errorf("recvfrom : %w", err))
			}
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		c.handleDatagram(data, src)
	}
}

// handleDatagram decodes, confirms, deduplicates and routes one inbound
// packet. The CNFRM for a fresh packet is emitted before the packet has
// any visible effect, so the peer never retransmits a packet we have
// already acted on.
func (c *Client) handleDatagram(data []byte, src *net.UDPAddr) {
	m, err := wire.UnmarshalBinary(data)
	if err != nil {
		// The header may still be readable, confirm it so the peer
		// stops retransmitting while we shut down
		if len(data) >= 3 {
			c.sendConfirm(binary.BigEndian.Uint16(data[1:3]))
		}
		c.logger.Warn("[RX] malformed packet", "len", len(data), "from", src.String())
		c.pushErr(gochat.ErrMalformedPacket)
		return
	}
	c.logger.Debug("[RX]", "type", m.Type.String(), "id", m.ID, "from", src.String())

	if m.Type == gochat.TypeConfirm {
		select {
		case c.confirms <- m.ID:
		default:
		}
		return
	}

	c.mu.Lock()
	if c.seen.Contains(m.ID) {
		c.mu.Unlock()
		// Retransmitted by the peer because our CNFRM was lost,
		// re-confirm without re-delivery
		c.sendConfirm(m.ID)
		return
	}
	accepted := false
	if m.Type == gochat.TypeReply && c.outstandingActive && m.RefID == c.outstanding {
		accepted = true
		if !c.rebound {
			c.logger.Info("rebinding authoritative address", "from", c.authoritative.String(), "to", src.String())
			c.authoritative = src
			c.rebound = true
		}
	}
	abort := m.Type == gochat.TypeErr && c.outstandingActive && m.ID == c.outstanding
	c.seen.Add(m.ID)
	c.mu.Unlock()

	c.sendConfirm(m.ID)

	switch {
	case accepted:
		select {
		case c.replies <- m:
		default:
		}
	case m.Type == gochat.TypePing:
		// Confirmed and dropped, no user visible effect
	default:
		if abort {
			select {
			case c.aborts <- m:
			default:
			}
		}
		c.messages <- m
	}
}

func (c *Client) pushErr(err error) {
	select {
	case c.errs <- err:
	default:
	}
}

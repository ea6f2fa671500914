package tcp

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gochat "github.com/samsamfire/gochat"
)

const testTimeout = 2 * time.Second

func newTestTransport(t *testing.T) (*Transport, net.Conn) {
	clientEnd, serverEnd := net.Pipe()
	tr := NewTransport(nil, clientEnd)
	t.Cleanup(func() {
		tr.Close()
		serverEnd.Close()
	})
	return tr, serverEnd
}

func readLine(t *testing.T, conn net.Conn) string {
	require.Nil(t, conn.SetReadDeadline(time.Now().Add(testTimeout)))
	buf := make([]byte, 2048)
	line := ""
	for {
		n, err := conn.Read(buf)
		require.Nil(t, err)
		line += string(buf[:n])
		if len(line) >= 2 && line[len(line)-2:] == "\r\n" {
			return line
		}
	}
}

func TestSendEncodesLine(t *testing.T) {
	tr, server := newTestTransport(t)
	result := make(chan error, 1)
	go func() {
		result <- tr.Send(context.Background(), &gochat.Message{
			Type: gochat.TypeMsg, DisplayName: "Alice", Content: "hi",
		})
	}()
	assert.Equal(t, "MSG FROM Alice IS hi\r\n", readLine(t, server))
	assert.Nil(t, <-result)
}

func TestRequestIsPlainSend(t *testing.T) {
	tr, server := newTestTransport(t)
	result := make(chan error, 1)
	go func() {
		result <- tr.Request(context.Background(), &gochat.Message{
			Type: gochat.TypeAuth, Username: "alice", DisplayName: "Alice", Secret: "secret",
		})
	}()
	assert.Equal(t, "AUTH alice AS Alice USING secret\r\n", readLine(t, server))
	assert.Nil(t, <-result)
}

func TestInboundLineDecoded(t *testing.T) {
	tr, server := newTestTransport(t)
	go server.Write([]byte("REPLY OK IS Welcome\r\n"))

	select {
	case m := <-tr.Messages():
		assert.Equal(t, gochat.TypeReply, m.Type)
		assert.True(t, m.Result)
		assert.Equal(t, "Welcome", m.Content)
	case <-time.After(testTimeout):
		t.Fatal("reply was not delivered")
	}
}

func TestPartialLineAcrossReads(t *testing.T) {
	tr, server := newTestTransport(t)
	go func() {
		server.Write([]byte("MSG FROM Al"))
		time.Sleep(50 * time.Millisecond)
		server.Write([]byte("ice IS hi\r\nMSG FROM Bob IS yo\r\n"))
	}()

	for _, expected := range []string{"Alice", "Bob"} {
		select {
		case m := <-tr.Messages():
			assert.Equal(t, gochat.TypeMsg, m.Type)
			assert.Equal(t, expected, m.DisplayName)
		case <-time.After(testTimeout):
			t.Fatal("message was not delivered")
		}
	}
}

func TestMalformedLineIsFatal(t *testing.T) {
	tr, server := newTestTransport(t)
	go server.Write([]byte("GARBAGE LINE\r\n"))

	select {
	case err := <-tr.Errors():
		assert.Equal(t, gochat.ErrMalformedLine, err)
	case <-time.After(testTimeout):
		t.Fatal("malformed line was not reported")
	}
}

func TestServerCloseIsEOF(t *testing.T) {
	tr, server := newTestTransport(t)
	server.Close()

	select {
	case err := <-tr.Errors():
		assert.Equal(t, io.EOF, err)
	case <-time.After(testTimeout):
		t.Fatal("eof was not reported")
	}
}

func TestByeWritesLine(t *testing.T) {
	tr, server := newTestTransport(t)
	go tr.Bye(&gochat.Message{Type: gochat.TypeBye, DisplayName: "Alice"})
	assert.Equal(t, "BYE FROM Alice\r\n", readLine(t, server))
}

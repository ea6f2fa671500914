package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.EqualValues(t, 4567, cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.ConfirmTimeout)
	assert.Equal(t, 5*time.Second, cfg.ReplyTimeout)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ErrMissingTransport, cfg.Validate())

	cfg.Transport = "sctp"
	assert.ErrorIs(t, cfg.Validate(), ErrBadTransport)

	cfg.Transport = TransportUDP
	assert.Equal(t, ErrMissingServer, cfg.Validate())

	cfg.Server = "chat.example.org"
	assert.Nil(t, cfg.Validate())
}

func TestAddress(t *testing.T) {
	cfg := Default()
	cfg.Server = "chat.example.org"
	assert.Equal(t, "chat.example.org:4567", cfg.Address())
	cfg.Port = 9999
	assert.Equal(t, "chat.example.org:9999", cfg.Address())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.ini")
	content := `[server]
transport = udp
host = chat.example.org
port = 9000

[udp]
timeout_ms = 500
reply_timeout_ms = 10000
retries = 5
`
	require.Nil(t, os.WriteFile(path, []byte(content), 0644))

	cfg := Default()
	require.Nil(t, cfg.LoadFile(path))
	assert.Equal(t, TransportUDP, cfg.Transport)
	assert.Equal(t, "chat.example.org", cfg.Server)
	assert.EqualValues(t, 9000, cfg.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.ConfirmTimeout)
	assert.Equal(t, 10*time.Second, cfg.ReplyTimeout)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Nil(t, cfg.Validate())
}

func TestLoadFilePartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.ini")
	content := `[server]
host = localhost
`
	require.Nil(t, os.WriteFile(path, []byte(content), 0644))

	cfg := Default()
	require.Nil(t, cfg.LoadFile(path))
	assert.Equal(t, "localhost", cfg.Server)
	assert.EqualValues(t, 4567, cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.ConfirmTimeout)
}

func TestLoadFileErrors(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg.LoadFile("does-not-exist.ini"))

	path := filepath.Join(t.TempDir(), "chat.ini")
	require.Nil(t, os.WriteFile(path, []byte("[udp]\nretries = many\n"), 0644))
	assert.NotNil(t, cfg.LoadFile(path))
}

package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"gopkg.in/ini.v1"
)

const (
	TransportTCP = "tcp"
	TransportUDP = "udp"
)

const (
	DefaultPort           = 4567
	DefaultConfirmTimeout = 250 * time.Millisecond
	DefaultReplyTimeout   = 5 * time.Second
	DefaultMaxRetries     = 3
)

var (
	ErrMissingTransport = errors.New("transport is required (-t tcp|udp)")
	ErrMissingServer    = errors.New("server is required (-s host)")
	ErrBadTransport     = errors.New("unsupported transport")
)

// Config carries everything needed to start one client session.
type Config struct {
	Transport      string
	Server         string
	Port           uint16
	ConfirmTimeout time.Duration
	ReplyTimeout   time.Duration
	MaxRetries     int
}

// Default returns a config with the documented defaults filled in,
// transport and server left for the caller.
func Default() *Config {
	return &Config{
		Port:           DefaultPort,
		ConfirmTimeout: DefaultConfirmTimeout,
		ReplyTimeout:   DefaultReplyTimeout,
		MaxRetries:     DefaultMaxRetries,
	}
}

// Validate checks the mandatory fields.
func (cfg *Config) Validate() error {
	if cfg.Transport == "" {
		return ErrMissingTransport
	}
	if cfg.Transport != TransportTCP && cfg.Transport != TransportUDP {
		return fmt.Errorf("%w : %v", ErrBadTransport, cfg.Transport)
	}
	if cfg.Server == "" {
		return ErrMissingServer
	}
	return nil
}

// Address returns the host:port dial string.
func (cfg *Config) Address() string {
	return net.JoinHostPort(cfg.Server, strconv.Itoa(int(cfg.Port)))
}

// LoadFile applies values from an INI file on top of cfg. Recognized
// keys :
//
//	[server]
//	transport = tcp|udp
//	host      = chat.example.org
//	port      = 4567
//
//	[udp]
//	timeout_ms       = 250
//	reply_timeout_ms = 5000
//	retries          = 3
//
// Missing keys keep their current values, flags parsed afterwards
// override file values.
func (cfg *Config) LoadFile(path string) error {
	file, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("could not load config file : %w", err)
	}
	server := file.Section("server")
	if key := server.Key("transport"); key.String() != "" {
		cfg.Transport = key.String()
	}
	if key := server.Key("host"); key.String() != "" {
		cfg.Server = key.String()
	}
	if key := server.Key("port"); key.String() != "" {
		port, err := key.Uint()
		if err != nil || port > 0xFFFF {
			return fmt.Errorf("invalid port in config file : %v", key.String())
		}
		cfg.Port = uint16(port)
	}
	udp := file.Section("udp")
	if key := udp.Key("timeout_ms"); key.String() != "" {
		ms, err := key.Uint()
		if err != nil {
			return fmt.Errorf("invalid timeout_ms in config file : %v", key.String())
		}
		cfg.ConfirmTimeout = time.Duration(ms) * time.Millisecond
	}
	if key := udp.Key("reply_timeout_ms"); key.String() != "" {
		ms, err := key.Uint()
		if err != nil {
			return fmt.Errorf("invalid reply_timeout_ms in config file : %v", key.String())
		}
		cfg.ReplyTimeout = time.Duration(ms) * time.Millisecond
	}
	if key := udp.Key("retries"); key.String() != "" {
		retries, err := key.Int()
		if err != nil || retries < 0 {
			return fmt.Errorf("invalid retries in config file : %v", key.String())
		}
		cfg.MaxRetries = retries
	}
	return nil
}

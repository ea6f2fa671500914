package gochat

import "errors"

var (
	ErrMalformedPacket  = errors.New("malformed packet received")
	ErrMalformedLine    = errors.New("malformed protocol line received")
	ErrConfirmTimeout   = errors.New("confirm not received after max retries")
	ErrReplyTimeout     = errors.New("reply not received within reply timeout")
	ErrServerError      = errors.New("server closed the session with an error")
	ErrTerminated       = errors.New("session is terminated")
	ErrNotAuthenticated = errors.New("not authenticated, use /auth first")
	ErrAlreadyOpen      = errors.New("already authenticated")
	ErrAwaitingReply    = errors.New("still waiting for previous request to complete")
	ErrBadCommand       = errors.New("malformed command")
	ErrNoTextForm       = errors.New("message type has no text form")
)

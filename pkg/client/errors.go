package client

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failed ledger operation so callers can branch on it.
type Kind int

const (
	// KindValidation: a required input was missing; nothing was sent.
	KindValidation Kind = iota + 1
	// KindTransport: the request never reached the ledger or no response arrived.
	KindTransport
	// KindServer: HTTP failure or an envelope code other than success.
	KindServer
	// KindDecode: the ledger succeeded but its payload could not be decoded
	// into complete records.
	KindDecode
	// KindNotFound: the ledger confirmed the identifier is unknown.
	KindNotFound
	// KindEmptyHistory: the ledger knows the identifier but returned no versions.
	KindEmptyHistory
	// KindIntegrity: the ledger echoed digests that differ from the ones
	// computed locally over the submitted bytes.
	KindIntegrity
)

var kindNames = map[Kind]string{
	KindValidation:   "validation",
	KindTransport:    "transport",
	KindServer:       "server",
	KindDecode:       "decode",
	KindNotFound:     "not found",
	KindEmptyHistory: "empty history",
	KindIntegrity:    "integrity",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is. Every *Error matches exactly one of them.
var (
	ErrValidation   = errors.New("invalid request")
	ErrTransport    = errors.New("ledger unreachable")
	ErrServer       = errors.New("ledger rejected request")
	ErrDecode       = errors.New("undecodable ledger response")
	ErrNotFound     = errors.New("evidence not found")
	ErrEmptyHistory = errors.New("evidence history is empty")
	ErrIntegrity    = errors.New("digest mismatch")
)

var kindSentinels = map[Kind]error{
	KindValidation:   ErrValidation,
	KindTransport:    ErrTransport,
	KindServer:       ErrServer,
	KindDecode:       ErrDecode,
	KindNotFound:     ErrNotFound,
	KindEmptyHistory: ErrEmptyHistory,
	KindIntegrity:    ErrIntegrity,
}

// Error is the failure returned by every Client operation.
type Error struct {
	Kind Kind
	// Op is the operation that failed, e.g. "queryHistory".
	Op string
	// StatusCode is the HTTP status when a response arrived, else 0.
	StatusCode int
	// Message is the ledger's own explanation when it gave one.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	reason := e.Kind.String()
	if sentinel, ok := kindSentinels[e.Kind]; ok {
		reason = sentinel.Error()
	}
	msg := e.Op + ": " + reason
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the cause so errors.Is(err, context.Canceled) and friends work.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// KindOf returns the kind of err, or 0 when err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsRetryable reports whether repeating the operation may succeed: transport
// failures not caused by cancellation, and HTTP 5xx answers.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) || errors.Is(err, context.Canceled) {
		return false
	}
	switch e.Kind {
	case KindTransport:
		return true
	case KindServer:
		return e.StatusCode >= 500
	default:
		return false
	}
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

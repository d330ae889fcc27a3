package client_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jmerrifield20/EvidenceLedger/pkg/client"
)

func TestError_matchesOnlyItsKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &client.Error{Kind: client.KindNotFound, Op: "queryEvidence", Message: "E9"})

	if !errors.Is(err, client.ErrNotFound) {
		t.Error("expected ErrNotFound to match")
	}
	if errors.Is(err, client.ErrServer) || errors.Is(err, client.ErrDecode) {
		t.Error("not-found error matched another kind")
	}
	if got := client.KindOf(err); got != client.KindNotFound {
		t.Errorf("KindOf: got %v, want %v", got, client.KindNotFound)
	}
	want := "queryEvidence: evidence not found: E9"
	if got := (&client.Error{Kind: client.KindNotFound, Op: "queryEvidence", Message: "E9"}).Error(); got != want {
		t.Errorf("Error(): got %q, want %q", got, want)
	}
}

func TestError_unwrapsCause(t *testing.T) {
	err := &client.Error{Kind: client.KindTransport, Op: "queryAll", Err: context.Canceled}

	if !errors.Is(err, context.Canceled) {
		t.Error("expected cause to be reachable through errors.Is")
	}
	if client.IsRetryable(err) {
		t.Error("cancelled calls must not be retried")
	}
}

func TestKind_String(t *testing.T) {
	if got := client.KindEmptyHistory.String(); got != "empty history" {
		t.Errorf("got %q", got)
	}
	if got := client.Kind(99).String(); got != "kind(99)" {
		t.Errorf("got %q", got)
	}
	if got := client.KindOf(errors.New("plain")); got != client.Kind(0) {
		t.Errorf("plain error: got kind %v", got)
	}
}

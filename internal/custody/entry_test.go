package custody

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestVerify_detectsTampering(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	sub := Submission{
		EvidenceID:  "E1",
		Timestamp:   "2026-01-02T03:04:05Z",
		Collector:   "alice",
		Description: "disk image",
	}
	sub.Hashes.MD5 = "900150983cd24fb0d6963f7d28e17f72"
	sub.Hashes.SHA1 = "a9993e364706816aba3e25717850c26c9cd0d89d"
	sub.Hashes.SHA256 = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	sub.Hashes.SHA512 = "ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a" +
		"2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f"

	for i := 0; i < 3; i++ {
		if _, err := s.Append(ctx, sub); err != nil {
			t.Fatal(err)
		}
	}

	s.chains["E1"][1].Collector = "mallory"
	if err := s.Verify(ctx); err == nil {
		t.Error("Verify() passed on an edited version")
	}

	s.chains["E1"][1].Collector = "alice"
	if err := s.Verify(ctx); err != nil {
		t.Errorf("Verify() after restoring the version: %v", err)
	}

	s.chains["E1"] = s.chains["E1"][1:]
	if err := s.Verify(ctx); err == nil {
		t.Error("Verify() passed on a chain missing version 1")
	}
}

func TestHashEntry_deterministic(t *testing.T) {
	e := newEntry(Submission{EvidenceID: "E1", Timestamp: "t", Collector: "c", Description: "d"}, nil)
	if got := hashEntry(e); got != e.Hash {
		t.Errorf("hashEntry() = %q, want %q", got, e.Hash)
	}
	next := newEntry(Submission{EvidenceID: "E1", Timestamp: "t", Collector: "c", Description: "d"}, e)
	if next.Seq != 2 || next.PrevHash != e.Hash {
		t.Errorf("successor = v%d prev %q", next.Seq, next.PrevHash)
	}
}

func TestSubmissionValidate_namesFirstMissingField(t *testing.T) {
	sub := Submission{EvidenceID: "E1", Description: "d"}
	for i := 0; i < 20; i++ {
		err := sub.validate()
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("validate() = %v, want ErrInvalidInput", err)
		}
		if !strings.Contains(err.Error(), "timestamp is required") {
			t.Fatalf("validate() = %q, want timestamp named first", err)
		}
	}
}

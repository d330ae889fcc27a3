package custody

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmerrifield20/EvidenceLedger/pkg/evidence"
)

// GenesisHash is the PrevHash of the first version of every identifier.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

var (
	// ErrNotFound is returned when an identifier has no versions.
	ErrNotFound = errors.New("evidence does not exist")

	// ErrInvalidInput is returned when a submission lacks a mandatory field
	// or carries malformed digests.
	ErrInvalidInput = errors.New("invalid submission")
)

// Submission is the input of Append. The store assigns the version.
type Submission struct {
	EvidenceID  string
	Timestamp   string
	Collector   string
	Description string
	Hashes      evidence.HashFields
}

func (s Submission) validate() error {
	for _, f := range []struct {
		name, value string
	}{
		{"evidenceID", s.EvidenceID},
		{"timestamp", s.Timestamp},
		{"collector", s.Collector},
		{"description", s.Description},
	} {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidInput, f.name)
		}
	}
	if err := s.Hashes.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// Entry is one stored version with its chain links.
type Entry struct {
	Seq         int64               `json:"seq"`
	EvidenceID  string              `json:"evidenceID"`
	Timestamp   string              `json:"timestamp"`
	Collector   string              `json:"collector"`
	Description string              `json:"description"`
	Hashes      evidence.HashFields `json:"hashes"`
	StoredAt    time.Time           `json:"storedAt"`
	PrevHash    string              `json:"prevHash"`
	Hash        string              `json:"hash"`
}

// Record converts the entry to its wire form.
func (e *Entry) Record() evidence.Record {
	return evidence.Record{
		EvidenceID:  e.EvidenceID,
		Version:     evidence.IntVersion(e.Seq),
		Timestamp:   e.Timestamp,
		Collector:   e.Collector,
		HashFields:  e.Hashes,
		Description: e.Description,
	}
}

// Records converts entries to their wire form, keeping order.
func Records(entries []*Entry) []evidence.Record {
	out := make([]evidence.Record, len(entries))
	for i, e := range entries {
		out[i] = e.Record()
	}
	return out
}

// newEntry builds the version following prev (nil for the first one).
func newEntry(s Submission, prev *Entry) *Entry {
	// PostgreSQL keeps microseconds; truncating keeps the hash stable.
	storedAt := time.Now().UTC().Truncate(time.Microsecond)

	e := &Entry{
		Seq:         1,
		EvidenceID:  s.EvidenceID,
		Timestamp:   s.Timestamp,
		Collector:   s.Collector,
		Description: s.Description,
		Hashes:      s.Hashes,
		StoredAt:    storedAt,
		PrevHash:    GenesisHash,
	}
	if prev != nil {
		e.Seq = prev.Seq + 1
		e.PrevHash = prev.Hash
	}
	e.Hash = hashEntry(e)
	return e
}

// hashEntry computes a deterministic SHA-256 over every field except Hash.
func hashEntry(e *Entry) string {
	canonical, _ := json.Marshal(struct {
		Seq         int64    `json:"seq"`
		EvidenceID  string   `json:"evidenceID"`
		Timestamp   string   `json:"timestamp"`
		Collector   string   `json:"collector"`
		Description string   `json:"description"`
		Hashes      []string `json:"hashes"`
		StoredAt    string   `json:"storedAt"`
		PrevHash    string   `json:"prevHash"`
	}{
		e.Seq, e.EvidenceID, e.Timestamp, e.Collector, e.Description,
		[]string{e.Hashes.MD5, e.Hashes.SHA1, e.Hashes.SHA256, e.Hashes.SHA512},
		e.StoredAt.UTC().Format(time.RFC3339Nano), e.PrevHash,
	})
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// chainVerifier checks one identifier's versions fed in ascending order.
type chainVerifier struct {
	id   string
	prev *Entry
}

func (v *chainVerifier) next(e *Entry) error {
	if v.prev == nil || v.id != e.EvidenceID {
		v.id, v.prev = e.EvidenceID, nil
	}
	wantSeq, wantPrev := int64(1), GenesisHash
	if v.prev != nil {
		wantSeq, wantPrev = v.prev.Seq+1, v.prev.Hash
	}
	if e.Seq != wantSeq {
		return fmt.Errorf("evidence %q: expected version %d, found %d", e.EvidenceID, wantSeq, e.Seq)
	}
	if e.PrevHash != wantPrev {
		return fmt.Errorf("evidence %q: hash chain broken at version %d", e.EvidenceID, e.Seq)
	}
	if e.Hash != hashEntry(e) {
		return fmt.Errorf("evidence %q: version %d has invalid hash", e.EvidenceID, e.Seq)
	}
	v.prev = e
	return nil
}

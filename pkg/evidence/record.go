package evidence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Version is the ledger-assigned marker of one snapshot. It is kept exactly as
// the ledger sent it; the reference ledger issues 1, 2, 3... but callers must
// not rely on a numeric form.
type Version string

// Int returns the integer form of v when it has one.
func (v Version) Int() (int64, bool) {
	n, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// String implements fmt.Stringer.
func (v Version) String() string { return string(v) }

// IntVersion builds the token for an integer version.
func IntVersion(n int64) Version { return Version(strconv.FormatInt(n, 10)) }

// MarshalJSON emits canonical integer tokens as JSON numbers and anything else,
// "007" or "+5" included, as a string.
func (v Version) MarshalJSON() ([]byte, error) {
	if n, ok := v.Int(); ok && strconv.FormatInt(n, 10) == string(v) {
		return []byte(v), nil
	}
	return json.Marshal(string(v))
}

// UnmarshalJSON accepts a JSON number or a JSON string.
func (v *Version) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return fmt.Errorf("version: empty value")
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("version: %w", err)
		}
		*v = Version(s)
		return nil
	case 'n':
		// null leaves the token empty; the decoder reports it as missing.
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("version: %w", err)
		}
		*v = Version(n.String())
		return nil
	}
}

// Record is one immutable version of an evidence item.
type Record struct {
	EvidenceID string  `json:"evidenceID"`
	Version    Version `json:"version"`
	Timestamp  string  `json:"timestamp"`
	Collector  string  `json:"collector"`
	HashFields
	Description string `json:"description"`
}

// Hashes returns the record's content digests.
func (r *Record) Hashes() HashFields { return r.HashFields }

// History is every version of one identifier, oldest first, in the order the
// ledger delivered it.
type History []Record

// Len returns the number of versions.
func (h History) Len() int { return len(h) }

// Latest returns the last delivered version, or nil for an empty history.
func (h History) Latest() *Record {
	if len(h) == 0 {
		return nil
	}
	return &h[len(h)-1]
}

// Collection is the latest version of every identifier known to the ledger.
type Collection []Record

// Find returns the record for evidenceID, or nil.
func (c Collection) Find(evidenceID string) *Record {
	for i := range c {
		if c[i].EvidenceID == evidenceID {
			return &c[i]
		}
	}
	return nil
}

package evidence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Envelope status codes used by the ledger.
const (
	CodeOK         = "200"
	CodeBadRequest = "400"
	CodeNotFound   = "404"
	CodeInternal   = "500"
)

var (
	// ErrMalformedEnvelope is returned when the outer status wrapper cannot be
	// read or carries no code.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrMalformed is returned when the envelope succeeded but its result is
	// absent, cannot be decoded, or lacks a mandatory record field.
	ErrMalformed = errors.New("malformed result")
)

// Code is the envelope status. Ledgers send it as a string; a bare JSON number
// is accepted as well.
type Code string

// UnmarshalJSON accepts "200" and 200.
func (c *Code) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Code(s)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = Code(n.String())
	return nil
}

// Envelope is the outer wrapper of every ledger response.
type Envelope struct {
	Code    Code            `json:"code"`
	Message string          `json:"message,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// OK reports whether the ledger accepted the request.
func (e *Envelope) OK() bool { return e.Code == CodeOK }

// NotFound reports whether the ledger says the identifier is unknown.
func (e *Envelope) NotFound() bool { return e.Code == CodeNotFound }

// DecodeEnvelope parses the outer wrapper only. The result is left raw so the
// caller can inspect the status before any second decoding pass.
func DecodeEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Code == "" {
		return nil, fmt.Errorf("%w: code is missing", ErrMalformedEnvelope)
	}
	return &env, nil
}

// NewEnvelope builds a success envelope around v. Unless inline is set the
// result is encoded twice, as a JSON string holding the JSON document.
func NewEnvelope(message string, v any, inline bool) (*Envelope, error) {
	doc, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	result := json.RawMessage(doc)
	if !inline {
		quoted, err := json.Marshal(string(doc))
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		result = quoted
	}
	return &Envelope{Code: CodeOK, Message: message, Result: result}, nil
}

// ErrorEnvelope builds a failure envelope.
func ErrorEnvelope(code, message string) *Envelope {
	return &Envelope{Code: Code(code), Message: message}
}

// unwrapResult returns the JSON document carried by result, undoing the
// string encoding when present.
func unwrapResult(result json.RawMessage) ([]byte, error) {
	raw := bytes.TrimSpace(result)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: result is missing", ErrMalformed)
	}
	if raw[0] != '"' {
		return raw, nil
	}
	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil, fmt.Errorf("%w: result string: %v", ErrMalformed, err)
	}
	doc := bytes.TrimSpace([]byte(inner))
	if len(doc) == 0 {
		return nil, fmt.Errorf("%w: result is empty", ErrMalformed)
	}
	return doc, nil
}

// wireRecord mirrors Record with every field optional so absence can be told
// apart from an empty value.
type wireRecord struct {
	EvidenceID  *string  `json:"evidenceID"`
	Version     *Version `json:"version"`
	Timestamp   *string  `json:"timestamp"`
	Collector   *string  `json:"collector"`
	MD5Hash     *string  `json:"md5Hash"`
	SHA1Hash    *string  `json:"sha1Hash"`
	SHA256Hash  *string  `json:"sha256Hash"`
	SHA512Hash  *string  `json:"sha512Hash"`
	Description *string  `json:"description"`
}

func (w *wireRecord) record() (Record, error) {
	var missing []string
	str := func(name string, p *string) string {
		if p == nil {
			missing = append(missing, name)
			return ""
		}
		return *p
	}

	rec := Record{
		EvidenceID: str("evidenceID", w.EvidenceID),
		Timestamp:  str("timestamp", w.Timestamp),
		Collector:  str("collector", w.Collector),
		HashFields: HashFields{
			MD5:    str("md5Hash", w.MD5Hash),
			SHA1:   str("sha1Hash", w.SHA1Hash),
			SHA256: str("sha256Hash", w.SHA256Hash),
			SHA512: str("sha512Hash", w.SHA512Hash),
		},
		Description: str("description", w.Description),
	}
	if w.Version == nil || *w.Version == "" {
		missing = append(missing, "version")
	} else {
		rec.Version = *w.Version
	}
	if len(missing) > 0 {
		return Record{}, fmt.Errorf("%w: missing %s", ErrMalformed, strings.Join(missing, ", "))
	}
	if strings.TrimSpace(rec.EvidenceID) == "" {
		return Record{}, fmt.Errorf("%w: evidenceID is empty", ErrMalformed)
	}
	if err := rec.HashFields.Validate(); err != nil {
		return Record{}, fmt.Errorf("%w: evidence %q version %s: %v", ErrMalformed, rec.EvidenceID, rec.Version, err)
	}
	return rec, nil
}

// DecodeRecord decodes one record object and checks every mandatory field.
func DecodeRecord(doc []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(doc, &w); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return w.record()
}

// DecodeRecordResult decodes the result of a latest-version query. When
// evidenceID is non-empty the record must belong to it.
func DecodeRecordResult(result json.RawMessage, evidenceID string) (*Record, error) {
	doc, err := unwrapResult(result)
	if err != nil {
		return nil, err
	}
	if doc[0] != '{' {
		return nil, fmt.Errorf("%w: expected an object", ErrMalformed)
	}
	rec, err := DecodeRecord(doc)
	if err != nil {
		return nil, err
	}
	if evidenceID != "" && rec.EvidenceID != evidenceID {
		return nil, fmt.Errorf("%w: asked for %q, ledger returned %q", ErrMalformed, evidenceID, rec.EvidenceID)
	}
	return &rec, nil
}

// decodeList decodes a JSON array of records element by element. A single bad
// element fails the whole list.
func decodeList(result json.RawMessage) ([]Record, error) {
	doc, err := unwrapResult(result)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(doc, []byte("null")) {
		return []Record{}, nil
	}
	if doc[0] != '[' {
		return nil, fmt.Errorf("%w: expected an array", ErrMalformed)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(doc, &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	out := make([]Record, 0, len(elems))
	for i, e := range elems {
		rec, err := DecodeRecord(e)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// DecodeHistoryResult decodes the result of a history query. The delivered
// order is kept. Every element must carry evidenceID (when non-empty) and no
// version may repeat. A zero-length history is returned without error; the
// caller decides what an empty history means.
func DecodeHistoryResult(result json.RawMessage, evidenceID string) (History, error) {
	recs, err := decodeList(result)
	if err != nil {
		return nil, err
	}

	seen := make(map[Version]struct{}, len(recs))
	for i, rec := range recs {
		if evidenceID != "" && rec.EvidenceID != evidenceID {
			return nil, fmt.Errorf("%w: element %d belongs to %q, not %q", ErrMalformed, i, rec.EvidenceID, evidenceID)
		}
		if evidenceID == "" && rec.EvidenceID != recs[0].EvidenceID {
			return nil, fmt.Errorf("%w: element %d belongs to %q, not %q", ErrMalformed, i, rec.EvidenceID, recs[0].EvidenceID)
		}
		if _, dup := seen[rec.Version]; dup {
			return nil, fmt.Errorf("%w: version %s appears twice", ErrMalformed, rec.Version)
		}
		seen[rec.Version] = struct{}{}
	}
	return History(recs), nil
}

// DecodeCollectionResult decodes the result of an all-evidence query. Each
// identifier may appear once.
func DecodeCollectionResult(result json.RawMessage) (Collection, error) {
	recs, err := decodeList(result)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		if _, dup := seen[rec.EvidenceID]; dup {
			return nil, fmt.Errorf("%w: evidence %q listed twice", ErrMalformed, rec.EvidenceID)
		}
		seen[rec.EvidenceID] = struct{}{}
	}
	return Collection(recs), nil
}

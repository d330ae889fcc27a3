package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/jmerrifield20/EvidenceLedger/pkg/evidence"
)

// Multipart form field names of the save endpoint.
const (
	FormFile        = "file"
	FormEvidenceID  = "evidenceID"
	FormTimestamp   = "timestamp"
	FormCollector   = "collector"
	FormDescription = "description"
)

// validate reports every missing mandatory field at once.
func (r *SubmitRequest) validate() error {
	var missing []string
	for _, f := range []struct {
		name, value string
	}{
		{FormEvidenceID, r.EvidenceID},
		{FormTimestamp, r.Timestamp},
		{FormCollector, r.Collector},
		{FormDescription, r.Description},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(r.File) == 0 {
		missing = append(missing, FormFile)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required field(s): %s", strings.Join(missing, ", "))
	}
	return nil
}

// encodeSubmission builds the multipart body. Metadata parts come before the
// file part.
func encodeSubmission(r SubmitRequest) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range [][2]string{
		{FormEvidenceID, r.EvidenceID},
		{FormTimestamp, r.Timestamp},
		{FormCollector, r.Collector},
		{FormDescription, r.Description},
	} {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}

	name := r.FileName
	if name == "" {
		name = r.EvidenceID
	}
	part, err := w.CreateFormFile(FormFile, name)
	if err != nil {
		return nil, "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(r.File); err != nil {
		return nil, "", fmt.Errorf("write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// submitResponse is the save endpoint's reply. Only Message is guaranteed; the
// reference ledger also echoes the assigned version and the digests it computed.
type submitResponse struct {
	Code       evidence.Code     `json:"code"`
	Message    string            `json:"message"`
	Error      string            `json:"error"`
	EvidenceID string            `json:"evidenceID"`
	Version    *evidence.Version `json:"version"`
	MD5        string            `json:"md5"`
	SHA1       string            `json:"sha1"`
	SHA256     string            `json:"sha256"`
	SHA512     string            `json:"sha512"`
}

func (s *submitResponse) echoed() evidence.HashFields {
	return evidence.HashFields{MD5: s.MD5, SHA1: s.SHA1, SHA256: s.SHA256, SHA512: s.SHA512}
}

func decodeSubmitResponse(op string, status int, body []byte, evidenceID string, local evidence.HashFields) (*SubmitAck, error) {
	if status >= http.StatusMultipleChoices {
		return nil, &Error{Kind: KindServer, Op: op, StatusCode: status, Message: failureMessage(body)}
	}

	var resp submitResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &Error{Kind: KindDecode, Op: op, StatusCode: status, Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.Code != "" && resp.Code != evidence.CodeOK {
		msg := resp.Message
		if msg == "" {
			msg = resp.Error
		}
		return nil, &Error{Kind: KindServer, Op: op, StatusCode: status, Message: msg}
	}
	if resp.Message == "" {
		return nil, &Error{Kind: KindDecode, Op: op, StatusCode: status, Err: fmt.Errorf("confirmation message is missing")}
	}
	if resp.EvidenceID != "" && resp.EvidenceID != evidenceID {
		return nil, &Error{Kind: KindDecode, Op: op, StatusCode: status,
			Err: fmt.Errorf("ledger confirmed %q, submitted %q", resp.EvidenceID, evidenceID)}
	}

	echoed := resp.echoed()
	for _, alg := range evidence.Algorithms {
		got := echoed.Get(alg)
		if got != "" && got != local.Get(alg) {
			return nil, &Error{Kind: KindIntegrity, Op: op, StatusCode: status,
				Message: fmt.Sprintf("%s: ledger %s, local %s", alg, got, local.Get(alg))}
		}
	}

	ack := &SubmitAck{Message: resp.Message, EvidenceID: evidenceID, Hashes: local}
	if resp.Version != nil {
		ack.Version = *resp.Version
	}
	return ack, nil
}

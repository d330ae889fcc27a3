package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmerrifield20/EvidenceLedger/pkg/client"
	"github.com/jmerrifield20/EvidenceLedger/pkg/evidence"
)

// ── Stub ledger ─────────────────────────────────────────────────────────

func stubRecord(id string, version int64, content string) evidence.Record {
	h, _ := evidence.ComputeHashes(strings.NewReader(content))
	return evidence.Record{
		EvidenceID:  id,
		Version:     evidence.IntVersion(version),
		Timestamp:   "2024-01-01T00:00:00Z",
		Collector:   "alice",
		HashFields:  h,
		Description: "disk image",
	}
}

func writeEnvelope(w http.ResponseWriter, status int, env any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}

func writeResult(t *testing.T, w http.ResponseWriter, v any) {
	env, err := evidence.NewEnvelope("Query successful!", v, false)
	if err != nil {
		t.Fatal(err)
	}
	writeEnvelope(w, http.StatusOK, env)
}

func stubLedgerServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/queryEvidence/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/queryEvidence/")
		switch id {
		case "E1":
			writeResult(t, w, stubRecord("E1", 2, "v2"))
		case "no-sha256":
			rec := stubRecord("no-sha256", 1, "x")
			b, _ := json.Marshal(rec)
			var m map[string]any
			json.Unmarshal(b, &m)
			delete(m, "sha256Hash")
			writeResult(t, w, m)
		case "garbled":
			writeEnvelope(w, http.StatusOK, map[string]any{"code": "200", "result": "{not json"})
		case "rejected":
			writeEnvelope(w, http.StatusOK, map[string]any{"code": "500", "message": "endorsement failed", "result": "{}"})
		case "no-code":
			writeEnvelope(w, http.StatusOK, map[string]any{"message": "who knows", "result": "{}"})
		case "broken":
			http.Error(w, `{"error":"Failed to query evidence"}`, http.StatusInternalServerError)
		default:
			writeEnvelope(w, http.StatusNotFound, evidence.ErrorEnvelope(evidence.CodeNotFound, "Evidence "+id+" does not exist"))
		}
	})

	mux.HandleFunc("/queryEvidenceHistory/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/queryEvidenceHistory/")
		switch id {
		case "E1":
			writeResult(t, w, []evidence.Record{stubRecord("E1", 1, "v1"), stubRecord("E1", 2, "v2")})
		case "hollow":
			writeResult(t, w, []evidence.Record{})
		case "gap":
			bad := stubRecord("gap", 2, "v2")
			bad.SHA1 = bad.SHA1[:39]
			writeResult(t, w, []evidence.Record{stubRecord("gap", 1, "v1"), bad})
		default:
			writeEnvelope(w, http.StatusNotFound, evidence.ErrorEnvelope(evidence.CodeNotFound, "Evidence "+id+" does not exist"))
		}
	})

	mux.HandleFunc("/queryAllEvidence", func(w http.ResponseWriter, r *http.Request) {
		writeResult(t, w, []evidence.Record{stubRecord("E1", 2, "v2"), stubRecord("E2", 1, "other")})
	})

	mux.HandleFunc("/saveEvidence", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get(client.RequestIDHeader) == "" {
			http.Error(w, `{"error":"missing request id"}`, http.StatusBadRequest)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, `{"error":"File upload failed"}`, http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, `{"error":"File upload failed"}`, http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		h, _ := evidence.ComputeHashes(strings.NewReader(string(data)))
		if r.FormValue("collector") == "mallory" {
			h.SHA256 = strings.Repeat("0", 64)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"code":       "200",
			"message":    "Evidence saved successfully!",
			"evidenceID": r.FormValue("evidenceID"),
			"version":    1,
			"md5":        h.MD5,
			"sha1":       h.SHA1,
			"sha256":     h.SHA256,
			"sha512":     h.SHA512,
		})
	})

	return httptest.NewServer(mux)
}

func validSubmission() client.SubmitRequest {
	return client.SubmitRequest{
		EvidenceID:  "E1",
		File:        []byte("raw disk bytes"),
		FileName:    "disk.img",
		Timestamp:   "2024-01-01T00:00:00Z",
		Collector:   "alice",
		Description: "disk image",
	}
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestNew_rejectsBadURL(t *testing.T) {
	if _, err := client.New("localhost:9099"); err == nil {
		t.Error("expected error for URL without http scheme")
	}
	if _, err := client.New("http://localhost:9099/"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSubmit_success(t *testing.T) {
	srv := stubLedgerServer(t)
	defer srv.Close()

	c := client.MustNew(srv.URL)
	req := validSubmission()

	ack, err := c.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ack.Message != "Evidence saved successfully!" {
		t.Errorf("unexpected message: %q", ack.Message)
	}
	if ack.Version != "1" {
		t.Errorf("unexpected version: %q", ack.Version)
	}
	want, _ := evidence.ComputeHashes(strings.NewReader(string(req.File)))
	if !ack.Hashes.Equal(want) {
		t.Errorf("ack hashes %+v, want %+v", ack.Hashes, want)
	}
}

func TestSubmit_validationBeforeNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := client.MustNew(srv.URL)
	req := validSubmission()
	req.Collector = "  "
	req.File = nil

	_, err := c.Submit(context.Background(), req)
	if !errors.Is(err, client.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if !strings.Contains(err.Error(), "collector") || !strings.Contains(err.Error(), "file") {
		t.Errorf("error should name both missing fields: %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no request, got %d", calls.Load())
	}
}

func TestSubmit_digestMismatch(t *testing.T) {
	srv := stubLedgerServer(t)
	defer srv.Close()

	c := client.MustNew(srv.URL)
	req := validSubmission()
	req.Collector = "mallory"

	_, err := c.Submit(context.Background(), req)
	if !errors.Is(err, client.ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
}

func TestSubmit_serverError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Failed to save evidence on blockchain"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := client.MustNew(srv.URL).Submit(context.Background(), validSubmission())
	if !errors.Is(err, client.ErrServer) {
		t.Fatalf("expected ErrServer, got %v", err)
	}
	var ce *client.Error
	if !errors.As(err, &ce) || ce.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected status 500 in error, got %#v", err)
	}
	if ce.Message != "Failed to save evidence on blockchain" {
		t.Errorf("ledger message not preserved: %q", ce.Message)
	}
	if !client.IsRetryable(err) {
		t.Error("5xx should be retryable")
	}
}

func TestSubmit_messageOnlyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"message": "Evidence saved successfully!"})
	}))
	defer srv.Close()

	ack, err := client.MustNew(srv.URL).Submit(context.Background(), validSubmission())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if ack.Version != "" {
		t.Errorf("expected no version, got %q", ack.Version)
	}
	if !ack.Hashes.Complete() {
		t.Error("local hashes should be complete")
	}
}

func TestQueryEvidence_success(t *testing.T) {
	srv := stubLedgerServer(t)
	defer srv.Close()

	rec, err := client.MustNew(srv.URL).QueryEvidence(context.Background(), "E1")
	if err != nil {
		t.Fatalf("QueryEvidence: %v", err)
	}
	if rec.Version != "2" || rec.Collector != "alice" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if !rec.Hashes().Complete() {
		t.Error("record should be hash-complete")
	}
}

func TestQueryEvidence_errorKinds(t *testing.T) {
	srv := stubLedgerServer(t)
	defer srv.Close()
	c := client.MustNew(srv.URL)

	cases := []struct {
		id      string
		want    error
		message string
	}{
		{"unknown", client.ErrNotFound, "Evidence unknown does not exist"},
		{"no-sha256", client.ErrDecode, ""},
		{"garbled", client.ErrDecode, ""},
		{"rejected", client.ErrServer, "endorsement failed"},
		{"no-code", client.ErrServer, "who knows"},
		{"broken", client.ErrServer, "Failed to query evidence"},
	}
	for _, tc := range cases {
		t.Run(tc.id, func(t *testing.T) {
			rec, err := c.QueryEvidence(context.Background(), tc.id)
			if rec != nil {
				t.Errorf("expected nil record, got %+v", rec)
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var ce *client.Error
			errors.As(err, &ce)
			if tc.message != "" && ce.Message != tc.message {
				t.Errorf("message: got %q, want %q", ce.Message, tc.message)
			}
		})
	}
}

func TestQueryEvidence_emptyID(t *testing.T) {
	_, err := client.MustNew("http://127.0.0.1:1").QueryEvidence(context.Background(), "")
	if client.KindOf(err) != client.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestQueryEvidence_escapesIdentifier(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		writeEnvelope(w, http.StatusNotFound, evidence.ErrorEnvelope(evidence.CodeNotFound, "nope"))
	}))
	defer srv.Close()

	client.MustNew(srv.URL).QueryEvidence(context.Background(), "case 7/a")
	if gotPath != "/queryEvidence/case%207%2Fa" {
		t.Errorf("unexpected path: %s", gotPath)
	}
}

func TestQueryHistory_success(t *testing.T) {
	srv := stubLedgerServer(t)
	defer srv.Close()

	hist, err := client.MustNew(srv.URL).QueryHistory(context.Background(), "E1")
	if err != nil {
		t.Fatalf("QueryHistory: %v", err)
	}
	if hist.Len() != 2 {
		t.Fatalf("expected 2 versions, got %d", hist.Len())
	}
	if hist[0].Version != "1" || hist[1].Version != "2" {
		t.Errorf("order not preserved: %s, %s", hist[0].Version, hist[1].Version)
	}
}

func TestQueryHistory_errorKinds(t *testing.T) {
	srv := stubLedgerServer(t)
	defer srv.Close()
	c := client.MustNew(srv.URL)

	if _, err := c.QueryHistory(context.Background(), "unknown"); !errors.Is(err, client.ErrNotFound) {
		t.Errorf("unknown: expected ErrNotFound, got %v", err)
	}
	if _, err := c.QueryHistory(context.Background(), "hollow"); !errors.Is(err, client.ErrEmptyHistory) {
		t.Errorf("hollow: expected ErrEmptyHistory, got %v", err)
	}
	hist, err := c.QueryHistory(context.Background(), "gap")
	if !errors.Is(err, client.ErrDecode) {
		t.Errorf("gap: expected ErrDecode, got %v", err)
	}
	if hist != nil {
		t.Errorf("gap: expected no partial history, got %d entries", len(hist))
	}
}

func TestQueryAll_success(t *testing.T) {
	srv := stubLedgerServer(t)
	defer srv.Close()

	all, err := client.MustNew(srv.URL).QueryAll(context.Background())
	if err != nil {
		t.Fatalf("QueryAll: %v", err)
	}
	if len(all) != 2 || all.Find("E2") == nil {
		t.Errorf("unexpected collection: %+v", all)
	}
}

func TestQueryAll_emptyLedger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResult(t, w, []evidence.Record{})
	}))
	defer srv.Close()

	all, err := client.MustNew(srv.URL).QueryAll(context.Background())
	if err != nil {
		t.Fatalf("QueryAll: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected empty collection, got %d", len(all))
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := client.MustNew(url).QueryAll(context.Background())
	if !errors.Is(err, client.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if errors.Is(err, client.ErrServer) {
		t.Error("transport failure must not match ErrServer")
	}
}

func TestCancellationPropagates(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.MustNew(srv.URL).QueryEvidence(ctx, "E1")
	if !errors.Is(err, client.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected wrapped deadline error, got %v", err)
	}
}

func TestWithRateLimit_invalid(t *testing.T) {
	if _, err := client.New("http://localhost:9099", client.WithRateLimit(0, 1)); err == nil {
		t.Error("expected error for zero rate")
	}
}

func TestQueryAll_notFoundEnvelopeIsServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, evidence.ErrorEnvelope(evidence.CodeNotFound, "no such thing"))
	}))
	defer srv.Close()

	all, err := client.MustNew(srv.URL).QueryAll(context.Background())
	if all != nil {
		t.Errorf("expected nil collection, got %+v", all)
	}
	if errors.Is(err, client.ErrNotFound) {
		t.Fatalf("queryAll must never report NotFound, got %v", err)
	}
	if !errors.Is(err, client.ErrServer) {
		t.Fatalf("expected ErrServer, got %v", err)
	}
	var ce *client.Error
	if !errors.As(err, &ce) || ce.Message != "no such thing" || ce.StatusCode != http.StatusNotFound {
		t.Errorf("ledger message or status lost: %#v", err)
	}
}

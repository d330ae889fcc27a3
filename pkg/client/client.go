package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/EvidenceLedger/pkg/evidence"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Ledger endpoint paths.
const (
	PathSaveEvidence         = "/saveEvidence"
	PathQueryEvidence        = "/queryEvidence/"
	PathQueryEvidenceHistory = "/queryEvidenceHistory/"
	PathQueryAllEvidence     = "/queryAllEvidence"
)

// RequestIDHeader carries a per-request UUID so ledger logs can be correlated.
const RequestIDHeader = "X-Request-ID"

// maxResponseBytes bounds how much of a ledger response is read.
const maxResponseBytes = 32 << 20

// API is the set of ledger operations. *Client and *Retrying implement it.
type API interface {
	Submit(ctx context.Context, req SubmitRequest) (*SubmitAck, error)
	QueryEvidence(ctx context.Context, evidenceID string) (*evidence.Record, error)
	QueryHistory(ctx context.Context, evidenceID string) (evidence.History, error)
	QueryAll(ctx context.Context) (evidence.Collection, error)
}

// SubmitRequest is one new version of an evidence item. Every field except
// FileName is mandatory.
type SubmitRequest struct {
	EvidenceID  string
	File        []byte
	FileName    string // defaults to EvidenceID
	Timestamp   string
	Collector   string
	Description string
}

// SubmitAck is the ledger's confirmation of a submission.
//
// Version is set when the ledger reports the version it assigned. Hashes are
// the digests of the submitted bytes, computed locally and checked against
// the ledger's when it echoed them.
type SubmitAck struct {
	Message    string              `json:"message"`
	EvidenceID string              `json:"evidenceID"`
	Version    evidence.Version    `json:"version,omitempty"`
	Hashes     evidence.HashFields `json:"hashes"`
}

// Client talks to one ledger over HTTP.
type Client struct {
	ledgerBase string
	httpClient *http.Client
	logger     *zap.Logger
	limiter    *rate.Limiter
	userAgent  string
}

var _ API = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("nil http client")
		}
		c.httpClient = hc
		return nil
	}
}

// WithTimeout bounds each exchange, including reading the response body.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
		return nil
	}
}

// WithLogger logs every exchange at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithRateLimit paces outgoing requests to rps with the given burst. Waiting
// for a token honours the request context.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rate limit: rps and burst must be positive")
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		return nil
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		c.userAgent = ua
		return nil
	}
}

// New creates a Client for the ledger at ledgerBase, e.g. "http://localhost:9099".
func New(ledgerBase string, opts ...Option) (*Client, error) {
	u, err := url.Parse(ledgerBase)
	if err != nil {
		return nil, fmt.Errorf("parse ledger URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("ledger URL %q: scheme must be http or https", ledgerBase)
	}

	c := &Client{
		ledgerBase: strings.TrimRight(ledgerBase, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zap.NewNop(),
		userAgent:  "evidence-ledger-client/1",
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(ledgerBase string, opts ...Option) *Client {
	c, err := New(ledgerBase, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Submit appends a new version of req.EvidenceID to the ledger.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*SubmitAck, error) {
	const op = "submit"

	if err := req.validate(); err != nil {
		return nil, newError(KindValidation, op, err)
	}

	local, err := evidence.ComputeHashes(bytes.NewReader(req.File))
	if err != nil {
		return nil, newError(KindValidation, op, err)
	}

	body, contentType, err := encodeSubmission(req)
	if err != nil {
		return nil, newError(KindValidation, op, err)
	}

	status, respBody, err := c.do(ctx, op, http.MethodPost, PathSaveEvidence, body, contentType)
	if err != nil {
		return nil, err
	}
	return decodeSubmitResponse(op, status, respBody, req.EvidenceID, local)
}

// SubmitFile reads the file at path and submits it. req.File is ignored.
func (c *Client) SubmitFile(ctx context.Context, path string, req SubmitRequest) (*SubmitAck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newError(KindValidation, "submit", fmt.Errorf("read %s: %w", path, err))
	}
	req.File = data
	if req.FileName == "" {
		req.FileName = filepath.Base(path)
	}
	return c.Submit(ctx, req)
}

// QueryEvidence returns the latest version of evidenceID.
func (c *Client) QueryEvidence(ctx context.Context, evidenceID string) (*evidence.Record, error) {
	const op = "queryEvidence"

	if strings.TrimSpace(evidenceID) == "" {
		return nil, newError(KindValidation, op, errors.New("evidenceID is required"))
	}

	env, err := c.getEnvelope(ctx, op, PathQueryEvidence+url.PathEscape(evidenceID))
	if err != nil {
		return nil, err
	}
	rec, err := evidence.DecodeRecordResult(env.Result, evidenceID)
	if err != nil {
		return nil, newError(KindDecode, op, err)
	}
	return rec, nil
}

// QueryHistory returns every version of evidenceID in the order the ledger
// delivered it.
func (c *Client) QueryHistory(ctx context.Context, evidenceID string) (evidence.History, error) {
	const op = "queryHistory"

	if strings.TrimSpace(evidenceID) == "" {
		return nil, newError(KindValidation, op, errors.New("evidenceID is required"))
	}

	env, err := c.getEnvelope(ctx, op, PathQueryEvidenceHistory+url.PathEscape(evidenceID))
	if err != nil {
		return nil, err
	}
	hist, err := evidence.DecodeHistoryResult(env.Result, evidenceID)
	if err != nil {
		return nil, newError(KindDecode, op, err)
	}
	if hist.Len() == 0 {
		return nil, &Error{Kind: KindEmptyHistory, Op: op, Message: evidenceID}
	}
	return hist, nil
}

// QueryAll returns the latest version of every identifier. An empty ledger
// yields an empty collection and no error.
func (c *Client) QueryAll(ctx context.Context) (evidence.Collection, error) {
	const op = "queryAll"

	env, err := c.getEnvelope(ctx, op, PathQueryAllEvidence)
	if err != nil {
		// There is no identifier to be missing; a 404 here is a ledger fault.
		var e *Error
		if errors.As(err, &e) && e.Kind == KindNotFound {
			e.Kind = KindServer
		}
		return nil, err
	}
	all, err := evidence.DecodeCollectionResult(env.Result)
	if err != nil {
		return nil, newError(KindDecode, op, err)
	}
	return all, nil
}

// getEnvelope performs a GET and checks the outer status. The result is only
// returned, still raw, once the envelope reports success.
func (c *Client) getEnvelope(ctx context.Context, op, path string) (*evidence.Envelope, error) {
	status, body, err := c.do(ctx, op, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}

	env, decErr := evidence.DecodeEnvelope(body)
	if decErr != nil {
		return nil, &Error{Kind: KindServer, Op: op, StatusCode: status, Message: failureMessage(body), Err: decErr}
	}
	switch {
	case env.NotFound():
		return nil, &Error{Kind: KindNotFound, Op: op, StatusCode: status, Message: env.Message}
	case !env.OK():
		return nil, &Error{Kind: KindServer, Op: op, StatusCode: status, Message: env.Message}
	case status >= http.StatusMultipleChoices:
		return nil, &Error{Kind: KindServer, Op: op, StatusCode: status, Message: env.Message,
			Err: fmt.Errorf("HTTP %d with success envelope", status)}
	}
	return env, nil
}

// do executes one exchange and returns the status and body. Only transport
// failures are reported as errors here.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte, contentType string) (int, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, newError(KindTransport, op, err)
		}
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.ledgerBase+path, bodyReader)
	if err != nil {
		return 0, nil, newError(KindValidation, op, fmt.Errorf("build request: %w", err))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, newError(KindTransport, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return resp.StatusCode, nil, &Error{Kind: KindTransport, Op: op, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("read response: %w", err)}
	}
	if len(respBody) > maxResponseBytes {
		return resp.StatusCode, nil, &Error{Kind: KindDecode, Op: op, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("response exceeds %d bytes", maxResponseBytes)}
	}

	c.logger.Debug("ledger exchange",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)
	return resp.StatusCode, respBody, nil
}

// failureMessage extracts a human-readable reason from a non-envelope body.
func failureMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 256 {
		text = text[:256] + "..."
	}
	return text
}

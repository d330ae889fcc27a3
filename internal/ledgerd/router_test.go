package ledgerd_test

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmerrifield20/EvidenceLedger/internal/blobstore"
	"github.com/jmerrifield20/EvidenceLedger/internal/custody"
	"github.com/jmerrifield20/EvidenceLedger/internal/health"
	"github.com/jmerrifield20/EvidenceLedger/internal/ledgerd"
	"github.com/jmerrifield20/EvidenceLedger/internal/webhooks"
	"github.com/jmerrifield20/EvidenceLedger/pkg/evidence"
)

func newRouter(t *testing.T, opts ledgerd.Options) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return ledgerd.NewRouter(testContext(t), custody.NewMemoryStore(), blobstore.Discard{}, zap.NewNop(), opts)
}

func TestHealthz(t *testing.T) {
	r := newRouter(t, ledgerd.Options{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestMetrics(t *testing.T) {
	r := newRouter(t, ledgerd.Options{})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/queryAllEvidence", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "evidence_ledger_requests_total")
}

func TestEscapedIdentifierRoutes(t *testing.T) {
	r := newRouter(t, ledgerd.Options{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range map[string]string{
		"evidenceID":  "case 7/disk a",
		"timestamp":   "2026-01-02T03:04:05Z",
		"collector":   "alice",
		"description": "disk image",
	} {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", "disk.img")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("abc"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/saveEvidence", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/queryEvidence/case%207%2Fdisk%20a", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env, err := evidence.DecodeEnvelope(w.Body.Bytes())
	require.NoError(t, err)
	rec, err := evidence.DecodeRecordResult(env.Result, "case 7/disk a")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.Collector)
}

func TestCORSPreflight(t *testing.T) {
	r := newRouter(t, ledgerd.Options{CORSOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest(http.MethodOptions, "/queryAllEvidence", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

type brokenChain struct{}

func (brokenChain) Verify(context.Context) error { return errors.New("hash chain broken at version 2") }

func TestReadyz(t *testing.T) {
	r := newRouter(t, ledgerd.Options{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	audit := health.New(brokenChain{}, health.Config{}, zap.NewNop())
	audit.Check(testContext(t))
	r = newRouter(t, ledgerd.Options{Audit: audit})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "hash chain broken")
}

type recordingDispatcher struct {
	events []string
	ids    []string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, eventType string, payload map[string]string) {
	d.events = append(d.events, eventType)
	d.ids = append(d.ids, payload["evidence_id"])
}

func TestSaveDispatchesEvent(t *testing.T) {
	events := &recordingDispatcher{}
	r := newRouter(t, ledgerd.Options{Events: events})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range map[string]string{
		"evidenceID":  "E1",
		"timestamp":   "2026-01-02T03:04:05Z",
		"collector":   "alice",
		"description": "disk image",
	} {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", "disk.img")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("abc"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/saveEvidence", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, []string{webhooks.EventEvidenceSaved}, events.events)
	assert.Equal(t, []string{"E1"}, events.ids)
}

func TestRateLimit_fractionalRateStillServes(t *testing.T) {
	r := newRouter(t, ledgerd.Options{RateLimitRPS: 0.2})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/queryAllEvidence", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/queryAllEvidence", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

// testContext stands in for testing.T.Context (Go 1.24+): a context that is
// cancelled when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

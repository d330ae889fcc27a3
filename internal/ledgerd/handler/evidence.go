package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/EvidenceLedger/internal/blobstore"
	"github.com/jmerrifield20/EvidenceLedger/internal/custody"
	"github.com/jmerrifield20/EvidenceLedger/internal/webhooks"
	"github.com/jmerrifield20/EvidenceLedger/pkg/client"
	"github.com/jmerrifield20/EvidenceLedger/pkg/evidence"
)

// Dispatcher receives ledger events. webhooks.Service satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType string, payload map[string]string)
}

// EvidenceHandler serves the four evidence endpoints plus raw file download.
type EvidenceHandler struct {
	store          custody.Store
	blobs          blobstore.FileStore
	events         Dispatcher
	logger         *zap.Logger
	inlineResult   bool
	maxUploadBytes int64
}

// EvidenceOptions tunes an EvidenceHandler.
type EvidenceOptions struct {
	// InlineResult embeds query results as JSON values instead of
	// JSON-encoded strings.
	InlineResult bool
	// MaxUploadBytes caps the multipart body of a submission. Zero means
	// no limit.
	MaxUploadBytes int64
}

// NewEvidenceHandler creates a new EvidenceHandler.
func NewEvidenceHandler(store custody.Store, blobs blobstore.FileStore, logger *zap.Logger, opts EvidenceOptions) *EvidenceHandler {
	return &EvidenceHandler{
		store:          store,
		blobs:          blobs,
		logger:         logger,
		inlineResult:   opts.InlineResult,
		maxUploadBytes: opts.MaxUploadBytes,
	}
}

// SetDispatcher configures where evidence.saved events are sent.
func (h *EvidenceHandler) SetDispatcher(d Dispatcher) {
	h.events = d
}

// Register mounts the evidence routes.
func (h *EvidenceHandler) Register(r gin.IRoutes) {
	r.POST(client.PathSaveEvidence, h.Save)
	r.GET(client.PathQueryEvidence+":evidenceID", h.QueryOne)
	r.GET(client.PathQueryEvidenceHistory+":evidenceID", h.QueryHistory)
	r.GET(client.PathQueryAllEvidence, h.QueryAll)
	r.GET("/files/:sha256", h.DownloadFile)
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, evidence.ErrorEnvelope(fmt.Sprint(status), message))
}

// Save handles POST /saveEvidence. The file and all four metadata fields are
// mandatory; digests are computed here, never taken from the caller.
func (h *EvidenceHandler) Save(c *gin.Context) {
	ctx := c.Request.Context()
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	fh, err := c.FormFile(client.FormFile)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			recordSubmission("too_large")
			fail(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		recordSubmission("invalid")
		fail(c, http.StatusBadRequest, "File is required")
		return
	}
	if fh.Size == 0 {
		recordSubmission("invalid")
		fail(c, http.StatusBadRequest, "File is empty")
		return
	}

	sub := custody.Submission{
		EvidenceID:  c.PostForm(client.FormEvidenceID),
		Timestamp:   c.PostForm(client.FormTimestamp),
		Collector:   c.PostForm(client.FormCollector),
		Description: c.PostForm(client.FormDescription),
	}
	var missing []string
	for _, f := range []struct{ name, value string }{
		{client.FormEvidenceID, sub.EvidenceID},
		{client.FormTimestamp, sub.Timestamp},
		{client.FormCollector, sub.Collector},
		{client.FormDescription, sub.Description},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		recordSubmission("invalid")
		fail(c, http.StatusBadRequest, "Missing required fields: "+strings.Join(missing, ", "))
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.logger.Error("open uploaded file", zap.Error(err))
		recordSubmission("error")
		fail(c, http.StatusInternalServerError, "Failed to read uploaded file")
		return
	}
	defer f.Close()

	sub.Hashes, err = evidence.ComputeHashes(f)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		h.logger.Error("hash uploaded file", zap.Error(err))
		recordSubmission("error")
		fail(c, http.StatusInternalServerError, "Failed to read uploaded file")
		return
	}

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := h.blobs.Put(ctx, blobstore.Key(sub.Hashes.SHA256), f, fh.Size, contentType); err != nil {
		h.logger.Error("store evidence file", zap.String("evidence_id", sub.EvidenceID), zap.Error(err))
		recordSubmission("error")
		fail(c, http.StatusInternalServerError, "Failed to store evidence file")
		return
	}

	entry, err := h.store.Append(ctx, sub)
	if err != nil {
		if errors.Is(err, custody.ErrInvalidInput) {
			recordSubmission("invalid")
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("append evidence", zap.String("evidence_id", sub.EvidenceID), zap.Error(err))
		recordSubmission("error")
		fail(c, http.StatusInternalServerError, "Failed to save evidence")
		return
	}
	recordSubmission("saved")

	h.logger.Info("evidence saved",
		zap.String("evidence_id", entry.EvidenceID),
		zap.Int64("version", entry.Seq),
		zap.String("sha256", entry.Hashes.SHA256),
	)
	if h.events != nil {
		h.events.Dispatch(ctx, webhooks.EventEvidenceSaved, map[string]string{
			"evidence_id": entry.EvidenceID,
			"version":     strconv.FormatInt(entry.Seq, 10),
			"sha256":      entry.Hashes.SHA256,
			"collector":   entry.Collector,
			"hash":        entry.Hash,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"code":       evidence.CodeOK,
		"message":    "Evidence saved successfully",
		"evidenceID": entry.EvidenceID,
		"version":    entry.Seq,
		"md5":        entry.Hashes.MD5,
		"sha1":       entry.Hashes.SHA1,
		"sha256":     entry.Hashes.SHA256,
		"sha512":     entry.Hashes.SHA512,
	})
}

// QueryOne handles GET /queryEvidence/:evidenceID and returns the latest version.
func (h *EvidenceHandler) QueryOne(c *gin.Context) {
	id := c.Param("evidenceID")
	entry, err := h.store.Latest(c.Request.Context(), id)
	if err != nil {
		h.storeFailure(c, id, err)
		return
	}
	h.respond(c, "Evidence retrieved", entry.Record())
}

// QueryHistory handles GET /queryEvidenceHistory/:evidenceID.
func (h *EvidenceHandler) QueryHistory(c *gin.Context) {
	id := c.Param("evidenceID")
	entries, err := h.store.History(c.Request.Context(), id)
	if err != nil {
		h.storeFailure(c, id, err)
		return
	}
	h.respond(c, "Evidence history retrieved", custody.Records(entries))
}

// QueryAll handles GET /queryAllEvidence. An empty ledger yields an empty list.
func (h *EvidenceHandler) QueryAll(c *gin.Context) {
	entries, err := h.store.All(c.Request.Context())
	if err != nil {
		h.logger.Error("list evidence", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Failed to query evidence")
		return
	}
	h.respond(c, "All evidence retrieved", custody.Records(entries))
}

// DownloadFile handles GET /files/:sha256 and streams the stored bytes.
func (h *EvidenceHandler) DownloadFile(c *gin.Context) {
	digest := c.Param("sha256")
	if err := evidence.ValidateDigest(evidence.SHA256, digest); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}

	rc, err := h.blobs.Get(c.Request.Context(), blobstore.Key(digest))
	if errors.Is(err, blobstore.ErrObjectNotFound) {
		fail(c, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		h.logger.Error("get evidence file", zap.String("sha256", digest), zap.Error(err))
		fail(c, http.StatusInternalServerError, "Failed to read evidence file")
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, -1, "application/octet-stream", rc, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, digest),
	})
}

func (h *EvidenceHandler) respond(c *gin.Context, message string, v any) {
	env, err := evidence.NewEnvelope(message, v, h.inlineResult)
	if err != nil {
		h.logger.Error("encode envelope", zap.Error(err))
		fail(c, http.StatusInternalServerError, "Failed to encode result")
		return
	}
	c.JSON(http.StatusOK, env)
}

func (h *EvidenceHandler) storeFailure(c *gin.Context, id string, err error) {
	if errors.Is(err, custody.ErrNotFound) {
		fail(c, http.StatusNotFound, fmt.Sprintf("Evidence %s does not exist", id))
		return
	}
	h.logger.Error("query evidence", zap.String("evidence_id", id), zap.Error(err))
	fail(c, http.StatusInternalServerError, "Failed to query evidence")
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/EvidenceLedger/internal/custody"
)

// LedgerHandler exposes read-only endpoints describing the whole store.
type LedgerHandler struct {
	store  custody.Store
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(store custody.Store, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{store: store, logger: logger}
}

// Register mounts the ledger routes.
func (h *LedgerHandler) Register(r gin.IRouter) {
	l := r.Group("/ledger")
	{
		l.GET("", h.Overview)
		l.GET("/verify", h.Verify)
	}
}

// Overview handles GET /ledger — identifier and version counts.
func (h *LedgerHandler) Overview(c *gin.Context) {
	st, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("ledger stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// Verify handles GET /ledger/verify — walks every chain and reports integrity.
func (h *LedgerHandler) Verify(c *gin.Context) {
	if err := h.store.Verify(c.Request.Context()); err != nil {
		h.logger.Warn("ledger integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

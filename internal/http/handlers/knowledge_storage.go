package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/tcm-knowledge-backend/internal/http/response"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
	"github.com/yungbote/tcm-knowledge-backend/internal/services"
)

const (
	actionScan   = "scan"
	actionResync = "resync"
)

type storageAuditRequest struct {
	Action      string   `json:"action"`
	Bucket      string   `json:"bucket"`
	SearchTerms []string `json:"searchTerms"`
	MaxFiles    int      `json:"maxFiles"`
	Files       []string `json:"files"`
}

// StorageAuditHandler serves the admin scan and resync actions. Its route
// group renders errors as {"error": message}.
type StorageAuditHandler struct {
	log      *logger.Logger
	scanner  services.KnowledgeScanner
	importer services.KnowledgeImporter
}

func NewStorageAuditHandler(log *logger.Logger, scanner services.KnowledgeScanner, importer services.KnowledgeImporter) *StorageAuditHandler {
	return &StorageAuditHandler{
		log:      log.With("handler", "StorageAuditHandler"),
		scanner:  scanner,
		importer: importer,
	}
}

// POST /api/admin/knowledge/storage-audit
func (h *StorageAuditHandler) StorageAudit(c *gin.Context) {
	var req storageAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("invalid request body: %w", err))
		return
	}
	req.Action = strings.ToLower(strings.TrimSpace(req.Action))
	req.Bucket = strings.TrimSpace(req.Bucket)
	if req.Action != actionScan && req.Action != actionResync {
		response.RespondError(c, http.StatusBadRequest, "invalid_action", fmt.Errorf("unknown action %q (allowed: %s, %s)", req.Action, actionScan, actionResync))
		return
	}
	if req.Bucket == "" {
		response.RespondError(c, http.StatusBadRequest, "missing_bucket", errors.New("bucket is required"))
		return
	}
	if req.MaxFiles < 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_max_files", errors.New("maxFiles must not be negative"))
		return
	}

	ctx := c.Request.Context()
	switch req.Action {
	case actionScan:
		out, err := h.scanner.Scan(ctx, services.ScanRequest{
			Bucket:      req.Bucket,
			SearchTerms: req.SearchTerms,
			MaxFiles:    req.MaxFiles,
		})
		if err != nil {
			h.fail(c, err)
			return
		}
		response.RespondOK(c, out)
	case actionResync:
		out, err := h.importer.Resync(ctx, services.ResyncRequest{
			Bucket:      req.Bucket,
			SearchTerms: req.SearchTerms,
			MaxFiles:    req.MaxFiles,
			Files:       req.Files,
		})
		if err != nil {
			h.fail(c, err)
			return
		}
		response.RespondOK(c, out)
	}
}

func (h *StorageAuditHandler) fail(c *gin.Context, err error) {
	h.log.Error("Storage audit failed", "path", c.FullPath(), "error", err)
	response.RespondErr(c, err)
}

package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/tcm-knowledge-backend/internal/domain/knowledge"
	"github.com/yungbote/tcm-knowledge-backend/internal/http/response"
	"github.com/yungbote/tcm-knowledge-backend/internal/modules/knowledge/provenance"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/ctxutil"
	"github.com/yungbote/tcm-knowledge-backend/internal/services"
)

type recordQueryRequest struct {
	QueryText   string             `json:"queryText"`
	ChunksFound int                `json:"chunksFound"`
	AIModel     string             `json:"aiModel"`
	SourcesUsed []knowledge.Source `json:"sourcesUsed"`
}

type QueryLogHandler struct {
	logs services.QueryLogService
}

func NewQueryLogHandler(logs services.QueryLogService) *QueryLogHandler {
	return &QueryLogHandler{logs: logs}
}

// POST /api/knowledge/query-logs
func (h *QueryLogHandler) Record(c *gin.Context) {
	var req recordQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	entry, err := h.logs.Record(c.Request.Context(), services.RecordQueryInput{
		UserID:      callerID(c),
		QueryText:   req.QueryText,
		ChunksFound: req.ChunksFound,
		AIModel:     req.AIModel,
		SourcesUsed: req.SourcesUsed,
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"queryLog": entry})
}

// GET /api/admin/knowledge/query-logs?limit=
func (h *QueryLogHandler) List(c *gin.Context) {
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	entries, err := h.logs.ListRecent(c.Request.Context(), limit)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"queryLogs": entries})
}

// GET /api/admin/knowledge/audit-report?format=text|json&limit=
func (h *QueryLogHandler) Report(c *gin.Context) {
	format := c.DefaultQuery("format", "json")
	if format != "json" && format != "text" {
		response.RespondError(c, http.StatusBadRequest, "invalid_format", fmt.Errorf("unknown format %q (allowed: text, json)", format))
		return
	}
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	rep, err := h.logs.Report(c.Request.Context(), limit)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if format == "text" {
		c.Header("Content-Type", "text/plain; charset=utf-8")
		c.Status(http.StatusOK)
		if err := provenance.RenderText(c.Writer, rep); err != nil {
			_ = c.Error(err)
		}
		return
	}
	response.RespondOK(c, rep)
}

func limitParam(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_limit", fmt.Errorf("limit must be a non-negative integer"))
		return 0, false
	}
	return n, true
}

func callerID(c *gin.Context) *uuid.UUID {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		return nil
	}
	id := rd.UserID
	return &id
}

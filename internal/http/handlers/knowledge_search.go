package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/tcm-knowledge-backend/internal/http/response"
	"github.com/yungbote/tcm-knowledge-backend/internal/services"
)

type searchRequest struct {
	Query   string `json:"query"`
	Limit   int    `json:"limit"`
	AIModel string `json:"aiModel"`
}

type SearchHandler struct {
	search services.KnowledgeSearch
}

func NewSearchHandler(search services.KnowledgeSearch) *SearchHandler {
	return &SearchHandler{search: search}
}

// POST /api/knowledge/search
func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	out, err := h.search.Search(c.Request.Context(), services.SearchInput{
		UserID:  callerID(c),
		Query:   req.Query,
		Limit:   req.Limit,
		AIModel: req.AIModel,
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, out)
}

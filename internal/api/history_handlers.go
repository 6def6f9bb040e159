package api

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"vocalize/internal/apperr"
	"vocalize/internal/store"
	"vocalize/internal/utils"
)

// getCredits handles GET /api/v1/credits.
func (s *Server) getCredits(c *gin.Context) {
	userID, ok := s.identify(c)
	if !ok {
		return
	}

	balance, err := s.ledger.Balance(c.Request.Context(), userID)
	if err != nil {
		fail(c, err)
		return
	}
	utils.Success(c, gin.H{"balance": balance})
}

// getHistory handles GET /api/v1/history.
func (s *Server) getHistory(c *gin.Context) {
	userID, ok := s.identify(c)
	if !ok {
		return
	}

	limit, offset := pagination(c)
	records, err := s.store.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		log.Printf("[API %s] Error listing history: %v", requestID(c), err)
		utils.Error(c, http.StatusInternalServerError, "failed to retrieve history")
		return
	}

	items := make([]gin.H, 0, len(records))
	for _, rec := range records {
		item := gin.H{
			"id":              rec.ID.String(),
			"kind":            rec.Kind,
			"status":          rec.Status,
			"credits_charged": rec.CreditsCharged,
			"created_at":      rec.CreatedAt,
		}
		if rec.InputSummary != "" {
			item["input_summary"] = rec.InputSummary
		}
		if rec.OutputRef != "" {
			item["output_ref"] = rec.OutputRef
		}
		items = append(items, item)
	}

	utils.Success(c, gin.H{
		"items":  items,
		"limit":  limit,
		"offset": offset,
		"count":  len(items),
	})
}

// getHistoryDetail handles GET /api/v1/history/:id.
func (s *Server) getHistoryDetail(c *gin.Context) {
	userID, ok := s.identify(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.Classified(c, apperr.Validation("id", "invalid id format"))
		return
	}

	rec, err := s.store.GetByID(c.Request.Context(), id)
	if err == store.ErrNotFound {
		utils.Error(c, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	if rec.UserID != userID {
		utils.Error(c, http.StatusNotFound, "record not found")
		return
	}

	response := gin.H{
		"id":              rec.ID.String(),
		"user_id":         rec.UserID.String(),
		"kind":            rec.Kind,
		"status":          rec.Status,
		"credits_charged": rec.CreditsCharged,
		"progress":        rec.Progress,
		"created_at":      rec.CreatedAt,
	}
	if rec.InputSummary != "" {
		response["input_summary"] = rec.InputSummary
	}
	if rec.OutputRef != "" {
		response["output_ref"] = rec.OutputRef
	}
	if rec.ExternalJobID != "" {
		response["external_job_id"] = rec.ExternalJobID
	}
	if rec.ErrorMessage != nil {
		response["error_message"] = *rec.ErrorMessage
	}
	if rec.CompletedAt != nil {
		response["completed_at"] = *rec.CompletedAt
	}

	utils.Success(c, response)
}

func pagination(c *gin.Context) (int, int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

package api

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"vocalize/internal/apperr"
	"vocalize/internal/jobs"
	"vocalize/internal/model"
	"vocalize/internal/prediction"
	"vocalize/internal/pricing"
	"vocalize/internal/store"
	"vocalize/internal/utils"
	"vocalize/internal/validate"
)

// cloneVoice handles POST /api/v1/voices/clone. Cloning can run for many
// minutes, so a pending job is not held open here: a processing record is
// written eagerly (and the estimate charged) and the client polls the status
// endpoint until it flips to completed.
func (s *Server) cloneVoice(c *gin.Context) {
	userID, ok := s.identify(c)
	if !ok {
		return
	}

	audio, filename, contentType, err := readUpload(c)
	if err != nil {
		fail(c, err)
		return
	}

	req, err := validate.Clone(c.PostForm("name"), audio, filename, contentType, c.PostForm("model"))
	if err != nil {
		fail(c, err)
		return
	}

	ctx := c.Request.Context()
	quote := pricing.Estimate(req)

	if _, err := s.ledger.Reserve(ctx, userID, quote.RequiredCredits); err != nil {
		fail(c, admissionError(err, quote))
		return
	}

	version, input, timeout := s.dispatchSpec(req)
	res, derr := s.predict.Dispatch(ctx, version, input, timeout)
	if derr != nil {
		s.settler.Abort(ctx, userID, quote.RequiredCredits)
		fail(c, apperr.ExternalService(derr.Error(), derr))
		return
	}

	switch {
	case res.Status == prediction.StatusSucceeded:
		rec, remaining, serr := s.settler.Settle(ctx, userID, req, quote, quote.RequiredCredits, res)
		if serr != nil {
			fail(c, serr)
			return
		}
		utils.Success(c, gin.H{
			"request_id":        rec.ID.String(),
			"status":            model.StatusCompleted,
			"voice_id":          rec.OutputRef,
			"credits_charged":   rec.CreditsCharged,
			"remaining_credits": remaining,
		})

	case res.Terminal():
		s.settler.Abort(ctx, userID, quote.RequiredCredits)
		fail(c, apperr.ExternalService(res.ErrorMessage, nil))

	default:
		// Pending: persist the external handle so any later request (or a
		// recovery sweep) can resume polling, and keep the hold as the charge.
		rec := &model.ResultRecord{
			ID:             uuid.New(),
			UserID:         userID,
			Kind:           model.KindVoiceClone,
			InputSummary:   jobs.InputSummary(req),
			ExternalJobID:  res.ID,
			PollingURL:     res.PollingURL,
			CreditsCharged: quote.RequiredCredits,
			Status:         model.StatusProcessing,
			Progress:       progressFor(res),
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.store.Create(ctx, rec); err != nil {
			s.settler.Abort(ctx, userID, quote.RequiredCredits)
			fail(c, err)
			return
		}
		log.Printf("[API %s] Clone job %s pending, record %s created eagerly", requestID(c), res.ID, rec.ID)
		utils.Success(c, gin.H{
			"request_id": rec.ID.String(),
			"status":     model.StatusProcessing,
			"progress":   rec.Progress,
		})
	}
}

// cloneStatus handles GET /api/v1/voices/clone/status?requestId=. It resumes
// polling against the persisted external handle and flips the eager record to
// completed or failed once the job resolves.
func (s *Server) cloneStatus(c *gin.Context) {
	userID, ok := s.identify(c)
	if !ok {
		return
	}

	raw := c.Query("requestId")
	if raw == "" {
		utils.Classified(c, apperr.Validation("requestId", "requestId is required"))
		return
	}
	recID, err := uuid.Parse(raw)
	if err != nil {
		utils.Classified(c, apperr.Validation("requestId", "invalid requestId format"))
		return
	}

	ctx := c.Request.Context()
	rec, err := s.store.GetByID(ctx, recID)
	if err == store.ErrNotFound {
		utils.Error(c, http.StatusNotFound, "clone request not found")
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	if rec.UserID != userID {
		utils.Error(c, http.StatusNotFound, "clone request not found")
		return
	}

	if rec.Status != model.StatusProcessing {
		respondCloneStatus(c, rec)
		return
	}

	res, perr := s.predict.Poll(ctx, rec.PollingURL, s.cfg.DispatchTimeout)
	if perr != nil {
		// A flaky poll must not fail a potentially successful job; report
		// the last known state.
		log.Printf("[API %s] Status poll for record %s failed: %v", requestID(c), rec.ID, perr)
		respondCloneStatus(c, rec)
		return
	}

	switch res.Status {
	case prediction.StatusSucceeded:
		now := time.Now().UTC()
		rec.Status = model.StatusCompleted
		rec.OutputRef = res.OutputRef
		rec.Progress = 100
		rec.CompletedAt = &now
		applied, err := s.store.UpdateProcessing(ctx, rec)
		if err != nil {
			fail(c, err)
			return
		}
		if !applied {
			rec = s.reloadRecord(c, ctx, recID, rec)
		}
	case prediction.StatusFailed, prediction.StatusCanceled:
		rec.Status = model.StatusFailed
		msg := res.ErrorMessage
		rec.ErrorMessage = &msg
		applied, err := s.store.UpdateProcessing(ctx, rec)
		if err != nil {
			fail(c, err)
			return
		}
		if applied {
			// The estimate was charged at dispatch; a failed clone is
			// refunded exactly once, by the call that flipped the record.
			s.settler.Abort(ctx, userID, rec.CreditsCharged)
		} else {
			rec = s.reloadRecord(c, ctx, recID, rec)
		}
	default:
		if p := progressFor(res); p > rec.Progress {
			rec.Progress = p
			if _, err := s.store.UpdateProcessing(ctx, rec); err != nil {
				log.Printf("[API %s] Failed to persist progress for record %s: %v", requestID(c), rec.ID, err)
			}
		}
	}

	respondCloneStatus(c, rec)
}

// reloadRecord re-reads a record after a lost finalization race so the
// response reflects what the winning call persisted. Falls back to the
// in-hand copy if the re-read fails.
func (s *Server) reloadRecord(c *gin.Context, ctx context.Context, id uuid.UUID, fallback *model.ResultRecord) *model.ResultRecord {
	cur, err := s.store.GetByID(ctx, id)
	if err != nil {
		log.Printf("[API %s] Failed to reload record %s: %v", requestID(c), id, err)
		return fallback
	}
	return cur
}

func respondCloneStatus(c *gin.Context, rec *model.ResultRecord) {
	body := gin.H{
		"status":   cloneStatusToken(rec.Status),
		"progress": rec.Progress,
	}
	if rec.Status == model.StatusCompleted {
		body["voice_id"] = rec.OutputRef
	}
	if rec.ErrorMessage != nil {
		body["error"] = *rec.ErrorMessage
	}
	utils.Success(c, body)
}

// cloneStatusToken maps record statuses onto the client-facing token set
// starting|processing|completed|failed.
func cloneStatusToken(status string) string {
	if status == model.StatusProcessing {
		return "processing"
	}
	return status
}

func progressFor(res *prediction.Result) int {
	if res.Progress > 0 {
		return res.Progress
	}
	if res.Status == prediction.StatusStarting {
		return 10
	}
	return 50
}

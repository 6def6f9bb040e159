package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"vocalize/internal/apperr"
	"vocalize/internal/jobs"
	"vocalize/internal/ledger"
	"vocalize/internal/model"
	"vocalize/internal/prediction"
	"vocalize/internal/pricing"
	"vocalize/internal/utils"
	"vocalize/internal/validate"
)

// pipelineResult is the outcome of a fully settled generation.
type pipelineResult struct {
	record    *model.ResultRecord
	remaining int64
	final     *prediction.Result
}

// generateSpeech handles POST /api/v1/tts.
func (s *Server) generateSpeech(c *gin.Context) {
	userID, ok := s.identify(c)
	if !ok {
		return
	}

	var payload model.TTSPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.Classified(c, apperr.Validation("body", "invalid request body"))
		return
	}

	req, err := validate.TTS(payload, false)
	if err != nil {
		fail(c, err)
		return
	}

	out, err := s.run(c, userID, req, pricing.Estimate(req))
	if err != nil {
		fail(c, err)
		return
	}

	utils.Success(c, gin.H{
		"output":            out.record.OutputRef,
		"credits_charged":   out.record.CreditsCharged,
		"remaining_credits": out.remaining,
		"record_id":         out.record.ID.String(),
	})
}

// generateDemoSpeech handles POST /api/v1/tts/demo: the short unauthenticated
// sample generation. No credits are involved.
func (s *Server) generateDemoSpeech(c *gin.Context) {
	var payload model.TTSPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.Classified(c, apperr.Validation("body", "invalid request body"))
		return
	}

	req, err := validate.TTS(payload, true)
	if err != nil {
		fail(c, err)
		return
	}

	final, err := s.dispatchAndAwait(c.Request.Context(), c, req)
	if err != nil {
		fail(c, err)
		return
	}

	utils.Success(c, gin.H{"output": final.OutputRef})
}

// transcribeAudio handles POST /api/v1/transcriptions. The pre-flight quote
// admits the request from file size; the actual charge is recomputed from the
// minute count the service reports, and both figures are returned so the
// caller can see any difference.
func (s *Server) transcribeAudio(c *gin.Context) {
	userID, ok := s.identify(c)
	if !ok {
		return
	}

	audio, filename, contentType, err := readUpload(c)
	if err != nil {
		fail(c, err)
		return
	}

	req, err := validate.Transcription(audio, filename, contentType,
		c.PostForm("language"), c.PostForm("model"))
	if err != nil {
		fail(c, err)
		return
	}

	quote := pricing.Estimate(req)
	out, err := s.run(c, userID, req, quote)
	if err != nil {
		fail(c, err)
		return
	}

	transcript := out.final.OutputRef
	if polished, perr := s.polish.Polish(c.Request.Context(), transcript); perr == nil {
		transcript = polished
	}

	utils.Success(c, gin.H{
		"transcript":        transcript,
		"minutes_billed":    pricing.BilledMinutes(quote, out.final.DurationSeconds),
		"estimated_credits": quote.RequiredCredits,
		"credits_charged":   out.record.CreditsCharged,
		"remaining_credits": out.remaining,
		"record_id":         out.record.ID.String(),
	})
}

// run executes the shared pipeline: admit (atomic reserve), dispatch, await a
// terminal state, settle. Any failure before settlement releases the hold so
// the ledger ends untouched.
func (s *Server) run(c *gin.Context, userID uuid.UUID, req *model.GenerationRequest, quote pricing.Quote) (*pipelineResult, error) {
	ctx := c.Request.Context()

	if _, err := s.ledger.Reserve(ctx, userID, quote.RequiredCredits); err != nil {
		return nil, admissionError(err, quote)
	}

	final, err := s.dispatchAndAwait(ctx, c, req)
	if err != nil {
		s.settler.Abort(ctx, userID, quote.RequiredCredits)
		return nil, err
	}

	rec, remaining, err := s.settler.Settle(ctx, userID, req, quote, quote.RequiredCredits, final)
	if err != nil {
		return nil, err
	}
	return &pipelineResult{record: rec, remaining: remaining, final: final}, nil
}

// dispatchAndAwait issues the prediction call and, for pending responses,
// supervises the job to a terminal state. Returns only succeeded results;
// every other outcome comes back classified.
func (s *Server) dispatchAndAwait(ctx context.Context, c *gin.Context, req *model.GenerationRequest) (*prediction.Result, error) {
	version, input, timeout := s.dispatchSpec(req)

	res, err := s.predict.Dispatch(ctx, version, input, timeout)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperr.Timeout("prediction service did not respond in time")
		}
		return nil, apperr.ExternalService(err.Error(), err)
	}
	log.Printf("[API %s] Dispatched %s job %s (status %s)", requestID(c), req.Kind, res.ID, res.Status)

	if !res.Terminal() {
		res, err = s.supervisor(req.Kind).Await(ctx, res)
		if err != nil {
			if errors.Is(err, jobs.ErrPollingTimeout) {
				return nil, apperr.Timeout("generation timed out; the job may still complete, check your history later")
			}
			return nil, apperr.ExternalService(err.Error(), err)
		}
	}

	switch res.Status {
	case prediction.StatusSucceeded:
		return res, nil
	case prediction.StatusFailed, prediction.StatusCanceled:
		return nil, apperr.ExternalService(res.ErrorMessage, nil)
	default:
		return nil, apperr.ExternalService(fmt.Sprintf("unexpected terminal status %q", res.Status), nil)
	}
}

// dispatchSpec builds the outbound prediction input for a request kind.
func (s *Server) dispatchSpec(req *model.GenerationRequest) (string, map[string]any, time.Duration) {
	switch req.Kind {
	case model.KindTranscribe:
		return s.cfg.TranscribeVersion, map[string]any{
			"audio":    base64.StdEncoding.EncodeToString(req.Audio),
			"filename": req.Filename,
			"language": req.Language,
			"model":    string(req.Model),
		}, s.cfg.DispatchTimeout
	case model.KindVoiceClone:
		return s.cfg.CloneVersion, map[string]any{
			"name":     req.Text,
			"audio":    base64.StdEncoding.EncodeToString(req.Audio),
			"filename": req.Filename,
			"model":    string(req.Model),
		}, s.cfg.CloneDispatchTimeout
	default:
		return s.cfg.TTSVersion, map[string]any{
			"text":     req.Text,
			"voice":    req.VoiceID,
			"emotion":  req.Emotion,
			"language": req.Language,
			"model":    string(req.Model),
			"pitch":    req.Pitch,
			"speed":    req.Speed,
			"volume":   req.Volume,
		}, s.cfg.DispatchTimeout
	}
}

// supervisor builds the polling supervisor for a request kind. Voice cloning
// gets the long budget.
func (s *Server) supervisor(kind model.Kind) *jobs.Supervisor {
	sup := jobs.NewSupervisor(s.predict)
	sup.InitialDelay = s.pollInitialDelay
	sup.MaxAttempts = s.cfg.PollMaxAttempts
	sup.Budget = s.cfg.PollBudget
	if kind == model.KindVoiceClone {
		sup.MaxAttempts = s.cfg.ClonePollMaxAttempts
		sup.Budget = s.cfg.ClonePollBudget
	}
	return sup
}

// readUpload extracts the uploaded audio file from a multipart request.
func readUpload(c *gin.Context) ([]byte, string, string, error) {
	file, err := c.FormFile("audio_file")
	if err != nil {
		// Alternative field names some clients use.
		if file, err = c.FormFile("audio"); err != nil {
			if file, err = c.FormFile("file"); err != nil {
				return nil, "", "", apperr.Validation("audio_file", "audio_file is required")
			}
		}
	}

	src, err := file.Open()
	if err != nil {
		return nil, "", "", apperr.Server(fmt.Errorf("failed to open upload: %w", err))
	}
	defer src.Close()

	audio, err := io.ReadAll(src)
	if err != nil {
		return nil, "", "", apperr.Server(fmt.Errorf("failed to read upload: %w", err))
	}
	return audio, file.Filename, file.Header.Get("Content-Type"), nil
}

// admissionError classifies a failed admission reserve. A user with no credit
// account at all has the same problem as one with a zero balance: not enough
// credits for the quote.
func admissionError(err error, quote pricing.Quote) error {
	var insufficient *ledger.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		return apperr.PaymentRequired(insufficient.Required, insufficient.Available)
	}
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return apperr.PaymentRequired(quote.RequiredCredits, 0)
	}
	return err
}

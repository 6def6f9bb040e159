// Package api wires the HTTP surface: generation endpoints, the clone status
// poll, credits and history.
package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"vocalize/internal/ai"
	"vocalize/internal/apperr"
	"vocalize/internal/config"
	"vocalize/internal/jobs"
	"vocalize/internal/ledger"
	"vocalize/internal/prediction"
	"vocalize/internal/store"
	"vocalize/internal/utils"
)

// Server holds the pipeline collaborators behind the HTTP handlers.
type Server struct {
	cfg     *config.Config
	ledger  ledger.Ledger
	store   store.RecordStore
	predict *prediction.Client
	settler *jobs.Settler
	polish  *ai.Polisher

	// memory is set in DB-less mode, where first-seen users are seeded with
	// signup credits.
	memory *ledger.MemoryLedger

	// pollInitialDelay is the first inter-poll delay; shortened in tests.
	pollInitialDelay time.Duration
}

// NewServer assembles the handler set.
func NewServer(cfg *config.Config, l ledger.Ledger, st store.RecordStore, pc *prediction.Client) *Server {
	s := &Server{
		cfg:              cfg,
		ledger:           l,
		store:            st,
		predict:          pc,
		settler:          jobs.NewSettler(l, st),
		polish:           ai.NewPolisher(cfg.OpenAIKey),
		pollInitialDelay: time.Second,
	}
	if mem, ok := l.(*ledger.MemoryLedger); ok {
		s.memory = mem
	}
	return s
}

// RegisterRoutes attaches all routes to the engine.
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.Use(requestIDMiddleware())

	r.GET("/health", healthCheck)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/tts", s.generateSpeech)
		v1.POST("/tts/demo", s.generateDemoSpeech)
		v1.POST("/transcriptions", s.transcribeAudio)
		v1.POST("/voices/clone", s.cloneVoice)
		v1.GET("/voices/clone/status", s.cloneStatus)
		v1.GET("/credits", s.getCredits)
		v1.GET("/history", s.getHistory)
		v1.GET("/history/:id", s.getHistoryDetail)
	}
}

// healthCheck returns server health status.
func healthCheck(c *gin.Context) {
	utils.Success(c, gin.H{
		"status":  "ok",
		"service": "vocalize-backend",
	})
}

// requestIDMiddleware assigns a correlation id to every request so log lines
// from one generation can be tied together.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString("request_id")
}

// identify resolves the calling user from the X-User-ID header. Session
// issuance is an external collaborator; the header is trusted here.
func (s *Server) identify(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		utils.Classified(c, apperr.Unauthorized("X-User-ID header is required"))
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		utils.Classified(c, apperr.Unauthorized("invalid user id"))
		return uuid.Nil, false
	}
	if s.memory != nil {
		if _, err := s.memory.Balance(c.Request.Context(), userID); err == ledger.ErrAccountNotFound {
			s.memory.SetBalance(userID, s.cfg.SignupCredits)
			log.Printf("[API %s] Seeded new user %s with %d credits", requestID(c), userID, s.cfg.SignupCredits)
		}
	}
	return userID, true
}

// fail classifies an error, logs the raw detail, and writes the envelope.
func fail(c *gin.Context, err error) {
	ae := apperr.Classify(err)
	if ae.Kind == apperr.KindServer {
		log.Printf("[API %s] Internal error: %v", requestID(c), err)
	}
	utils.Classified(c, ae)
}

// CORSMiddleware adds CORS headers for browser and mobile clients.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, X-User-ID, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

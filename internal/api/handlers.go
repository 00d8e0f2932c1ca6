package api

import (
	"net/http"
	"strconv"
	"time"

	"market-structure-bot/internal/auth"
	"market-structure-bot/internal/events"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleHealth(c *gin.Context) {
	status := gin.H{
		"status":     "ok",
		"session_id": s.session.SessionID(),
		"ws_clients": s.hub.ClientCount(),
	}
	if s.repo != nil {
		if err := s.repo.HealthCheck(c.Request.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
		} else {
			status["database"] = "ok"
		}
	}
	if s.snapshots != nil {
		if s.snapshots.IsHealthy() {
			status["cache"] = "ok"
		} else {
			status["cache"] = "degraded"
		}
	}
	c.JSON(http.StatusOK, status)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password required"})
		return
	}

	if req.Email != s.operator.Email || !s.passwords.VerifyPassword(req.Password, s.operator.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	pair, err := s.jwtManager.GenerateTokenPair(auth.UserClaims{
		UserID: "operator",
		Email:  s.operator.Email,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("token generation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
		return
	}
	c.JSON(http.StatusOK, pair)
}

// handleState returns the full session snapshot. The Redis copy is preferred
// when healthy; the live session is the fallback.
func (s *Server) handleState(c *gin.Context) {
	if s.snapshots != nil && s.snapshots.IsHealthy() {
		if snap, err := s.snapshots.GetSnapshot(c.Request.Context(), s.session.SessionID()); err == nil && snap != nil {
			c.JSON(http.StatusOK, snap)
			return
		}
	}
	c.JSON(http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleSwings(c *gin.Context) {
	snap := s.session.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"dominant": snap.Dominant,
		"swings":   snap.Swings,
		"bias":     snap.Bias,
	})
}

func (s *Server) handleLevels(c *gin.Context) {
	snap := s.session.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"dominant": snap.Dominant,
		"levels":   snap.FibLevels,
	})
}

func (s *Server) handleSignals(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	// Persisted signals carry outcomes across restarts; fall back to the
	// in-memory tracker when the database is disabled.
	if s.repo != nil && s.runID != "" {
		signals, err := s.repo.GetRunSignals(c.Request.Context(), s.runID, limit)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"signals": signals})
			return
		}
		s.logger.Warn().Err(err).Msg("signal query failed, serving in-memory signals")
	}

	snap := s.session.Snapshot()
	signals := snap.Signals
	if len(signals) > limit {
		signals = signals[len(signals)-limit:]
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

func (s *Server) handlePerformance(c *gin.Context) {
	c.JSON(http.StatusOK, s.session.Stats())
}

func (s *Server) handleReset(c *gin.Context) {
	if err := s.session.Reset(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if s.snapshots != nil {
		if err := s.snapshots.Invalidate(c.Request.Context(), s.session.SessionID()); err != nil {
			s.logger.Warn().Err(err).Msg("snapshot invalidation failed")
		}
	}
	s.eventBus.Publish(events.Event{
		Type:      events.EventSessionReset,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"session_id": s.session.SessionID()},
	})
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

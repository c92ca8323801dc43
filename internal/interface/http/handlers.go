package http

import (
	"net/http"

	"github.com/alem-hub/levelup/internal/application/query"
	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth runs the registered checks; any failure answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"})
		return
	}
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// READ API HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLeaderboard handles GET /api/leaderboard?limit=N
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.Leaderboard == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_configured", "leaderboard is not configured")
		return
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}

	result, err := s.deps.Leaderboard.Handle(r.Context(), query.GetLeaderboardQuery{Limit: limit})
	if err != nil {
		s.writeQueryError(w, r, "get leaderboard", err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleGetUserRank handles GET /api/rank/{userID}
func (s *Server) handleGetUserRank(w http.ResponseWriter, r *http.Request) {
	if s.deps.Rank == nil {
		writeJSONError(w, r, http.StatusNotImplemented, "not_configured", "rank is not configured")
		return
	}

	userID, err := leveling.ParseSnowflake(r.PathValue("userID"))
	if err != nil || userID.IsZero() {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_user_id", "userID must be a Discord snowflake")
		return
	}

	dto, err := s.deps.Rank.Handle(r.Context(), query.GetUserRankQuery{UserID: userID})
	if err != nil {
		s.writeQueryError(w, r, "get user rank", err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

func (s *Server) writeQueryError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if shared.IsStorageUnavailable(err) {
		s.logger.Warn(op+" failed", "error", err, "request_id", requestIDFrom(r.Context()))
		writeJSONError(w, r, http.StatusServiceUnavailable, "storage_unavailable", "storage is unavailable")
		return
	}
	s.logger.Error(op+" failed", "error", err, "request_id", requestIDFrom(r.Context()))
	writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "failed to read leveling data")
}

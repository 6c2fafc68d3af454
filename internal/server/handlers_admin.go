package server

import (
	"net/http"

	"evidencevault/internal/api"
)

// handleAdminPurge runs one sweep over deleted items whose bytes remain.
// Without apply=true it only reports what would be removed.
func (s *Server) handleAdminPurge(w http.ResponseWriter, r *http.Request) {
	batch, err := queryIntDefault(r, "batch", 0)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	apply, err := queryBool(r, "apply")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	result, err := s.service.SweepPurges(r.Context(), batch, apply)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, api.PurgeResponse{
		CandidateCount: result.CandidateCount,
		PurgedCount:    result.PurgedCount,
		FailedCount:    result.FailedCount,
		ReclaimedBytes: result.ReclaimedBytes,
		DryRun:         result.DryRun,
	})
}

package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /health", s.handleHealth)

	// Evidence content.
	mux.HandleFunc("POST /api/v1/images", s.handleUpload)
	// Also serves /api/v1/images/case/{caseId}; the two shapes overlap in
	// the mux.
	mux.HandleFunc("GET /api/v1/images/{id}/{view}", s.handleImageView)

	// Evidence metadata.
	mux.HandleFunc("GET /api/v1/images/{id}", s.handleGetEvidence)
	mux.HandleFunc("DELETE /api/v1/images/{id}", s.handleDelete)
	mux.HandleFunc("PUT /api/v1/images/{id}/analysis-status", s.handleUpdateAnalysisStatus)

	// Custody ledger.
	mux.HandleFunc("GET /api/v1/images/{id}/custody/verify", s.handleVerifyCustody)

	// Admin.
	mux.HandleFunc("POST /api/v1/admin/purge", s.handleAdminPurge)

	return mux
}

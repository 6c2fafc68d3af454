package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"evidencevault/internal/api"
	"evidencevault/internal/evidence"
	"evidencevault/internal/models"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.withLimiter(w, r, s.uploadLimiter, "upload", func() {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
		if err := r.ParseMultipartForm(s.multipartMemory); err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, classifyMultipartError(err))
			return
		}
		if r.MultipartForm != nil {
			defer func() { _ = r.MultipartForm.RemoveAll() }()
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("file is required"), ErrCodeMissingRequired))
			return
		}
		defer file.Close()

		caseID := firstNonEmpty(r.FormValue("caseId"), r.URL.Query().Get("caseId"))
		if caseID == "" {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("caseId is required"), ErrCodeMissingRequired))
			return
		}

		id, err := s.service.Store(r.Context(), evidence.StoreInput{
			CaseID:      caseID,
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Content:     file,
		}, requestActor(r, uploadActor))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusCreated, api.UploadResponse{ID: id})
	})
}

func (s *Server) handleImageView(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("id") == "case" {
		s.handleFindByCase(w, r, r.PathValue("view"))
		return
	}
	switch r.PathValue("view") {
	case "download":
		s.handleDownload(w, r)
	case "custody":
		s.handleCustodyTrail(w, r)
	default:
		s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("unknown route"), ErrCodeInvalidArgument))
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathValueOrBadRequest(w, r, "id")
	if !ok {
		return
	}

	s.withLimiter(w, r, s.downloadLimiter, "download", func() {
		actor := requestActor(r, downloadActor)
		dl, err := s.service.Retrieve(r.Context(), id, r.URL.Query().Get("reason"), actor)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		defer dl.Reader.Close()

		w.Header().Set("Content-Type", dl.ContentType)
		if dl.Length >= 0 {
			w.Header().Set("Content-Length", strconv.FormatInt(dl.Length, 10))
		}
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Filename}))
		w.Header().Set(api.ContentHashHeader, dl.ContentHash)
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)

		if _, err := io.Copy(w, dl.Reader); err != nil {
			s.log().Error("download stream failed",
				"evidence_id", dl.EvidenceID,
				"actor_id", actor.ID,
				"integrity_violation", errors.Is(err, evidence.ErrIntegrityViolation),
				"error", err,
			)
			// The status line is already out; drop the connection instead.
			panic(http.ErrAbortHandler)
		}
	})
}

func (s *Server) handleGetEvidence(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathValueOrBadRequest(w, r, "id")
	if !ok {
		return
	}
	item, err := s.service.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.EvidenceResponse{EvidenceItem: *item})
}

func (s *Server) handleFindByCase(w http.ResponseWriter, r *http.Request, caseID string) {
	caseID = strings.TrimSpace(caseID)
	if !validateID(caseID) {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid caseId"), ErrCodeInvalidID))
		return
	}
	items, err := s.service.FindByCase(r.Context(), caseID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	resp := make([]api.EvidenceResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, api.EvidenceResponse{EvidenceItem: item})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathValueOrBadRequest(w, r, "id")
	if !ok {
		return
	}
	deleted, err := s.service.Delete(r.Context(), id, r.URL.Query().Get("reason"), requestActor(r, deleteActor))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !deleted {
		s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("evidence not found"), ErrCodeEvidenceNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateAnalysisStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathValueOrBadRequest(w, r, "id")
	if !ok {
		return
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("status is required"), ErrCodeInvalidStatus))
		return
	}

	updated, err := s.service.UpdateAnalysisStatus(r.Context(), id, status, requestActor(r, updateActor))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !updated {
		s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("evidence not found"), ErrCodeEvidenceNotFound))
		return
	}

	item, err := s.service.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.StatusUpdateResponse{ID: item.ID, LifecycleStatus: item.LifecycleStatus})
}

func (s *Server) handleCustodyTrail(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathValueOrBadRequest(w, r, "id")
	if !ok {
		return
	}
	after, err := queryIntDefault(r, "after", 0)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	limit, err := queryIntDefault(r, "limit", 0)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}

	page, err := s.service.CustodyTrail(r.Context(), id, int64(after), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	events := page.Events
	if events == nil {
		events = []models.CustodyEvent{}
	}
	s.writeJSON(w, http.StatusOK, api.CustodyPageResponse{
		EvidenceID: id,
		Events:     events,
		NextAfter:  page.NextAfter,
		HasMore:    page.HasMore,
	})
}

func (s *Server) handleVerifyCustody(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathValueOrBadRequest(w, r, "id")
	if !ok {
		return
	}
	report, err := s.service.VerifyCustody(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ChainReportResponse{
		EvidenceID: report.EvidenceID,
		Events:     report.Events,
		Valid:      report.Valid,
		HeadHash:   report.HeadHash,
		BrokenAt:   report.BrokenAt,
		Problem:    report.Problem,
		CheckedAt:  time.Now().UTC(),
	})
}

func classifyMultipartError(err error) error {
	if err == nil {
		return nil
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || strings.Contains(strings.ToLower(err.Error()), "request body too large") {
		return badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	}
	return badRequestCode(err, ErrCodeInvalidArgument)
}

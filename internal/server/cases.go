package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/disasterlens/civicguard/internal/export"
	"github.com/disasterlens/civicguard/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type analyzeRequest struct {
	Media    string `json:"media"` // base64-encoded evidence bytes
	MimeType string `json:"mimeType"`
}

// HandleAnalyze runs the evidence engine over one media attachment and
// returns the structured risk analysis.
func (s *Server) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed analyze request")
		return
	}
	if req.Media == "" || req.MimeType == "" {
		writeError(w, http.StatusBadRequest, "media and mimeType are required")
		return
	}

	media, err := base64.StdEncoding.DecodeString(req.Media)
	if err != nil {
		writeError(w, http.StatusBadRequest, "media must be base64 encoded")
		return
	}

	analysis, err := s.classifier.Classify(r.Context(), media, req.MimeType)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// HandleCreateCase persists a submitted case. The reporter identity comes
// from the session unless the submission is anonymous.
func (s *Server) HandleCreateCase(w http.ResponseWriter, r *http.Request) {
	var c model.IncidentCase
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "malformed case payload")
		return
	}

	if c.ID == "" {
		c.ID = "CASE-" + uuid.NewString()
	}
	profile := ProfileFromContext(r.Context())
	if c.IsAnonymous {
		c.ReporterID = ""
	} else if c.ReporterID == "" {
		c.ReporterID = profile.UID
	}

	if err := s.cases.Create(r.Context(), &c, r.UserAgent()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &c)
}

// HandleListCases returns cases newest-first, optionally filtered by the
// city query parameter. Non-admin callers only see their own submissions.
func (s *Server) HandleListCases(w http.ResponseWriter, r *http.Request) {
	list, err := s.cases.Query(r.Context(), r.URL.Query().Get("city"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	profile := ProfileFromContext(r.Context())
	out := make([]*model.IncidentCase, 0, len(list))
	for _, c := range list {
		if profile.Role != model.RoleAdmin && c.ReporterID != profile.UID {
			continue
		}
		out = append(out, s.redactMedia(r, c))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetCase returns one case with its integrity checksum verified.
func (s *Server) HandleGetCase(w http.ResponseWriter, r *http.Request) {
	c, err := s.cases.Get(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	profile := ProfileFromContext(r.Context())
	if profile.Role != model.RoleAdmin && c.ReporterID != profile.UID {
		writeError(w, http.StatusForbidden, "not your case")
		return
	}
	writeJSON(w, http.StatusOK, s.redactMedia(r, c))
}

// redactMedia blanks the media URLs of protected evidence. Evidence-hub
// submissions stay sealed until an admin records a secure-access grant.
func (s *Server) redactMedia(r *http.Request, c *model.IncidentCase) *model.IncidentCase {
	if c.SourceEngine != model.SourceEvidenceHub {
		return c
	}
	granted, err := s.cases.SecureAccessGranted(r.Context(), c.ID)
	if err != nil {
		s.logger.Error("secure access lookup", "case_id", c.ID, "error", err)
		granted = false
	}
	if granted {
		return c
	}
	dup := c.Clone()
	dup.ImageURL = ""
	dup.VideoURL = ""
	return dup
}

// HandleCaseReport renders the printable incident report.
func (s *Server) HandleCaseReport(w http.ResponseWriter, r *http.Request) {
	c, err := s.cases.Get(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	profile := ProfileFromContext(r.Context())
	if profile.Role != model.RoleAdmin && c.ReporterID != profile.UID {
		writeError(w, http.StatusForbidden, "not your case")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := export.RenderReport(w, c, time.Now()); err != nil {
		s.logger.Error("render report", "case_id", c.ID, "error", err)
	}
}

type mediaResponse struct {
	CaseID   string `json:"caseId"`
	ImageURL string `json:"imageUrl,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
}

// HandleCaseMedia returns the media URLs for a case. Evidence-hub media is
// gated behind a recorded secure-access grant.
func (s *Server) HandleCaseMedia(w http.ResponseWriter, r *http.Request) {
	c, err := s.cases.Get(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if c.SourceEngine == model.SourceEvidenceHub {
		granted, err := s.cases.SecureAccessGranted(r.Context(), c.ID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if !granted {
			writeError(w, http.StatusForbidden, "secure access has not been granted for this evidence")
			return
		}
	}

	writeJSON(w, http.StatusOK, mediaResponse{
		CaseID:   c.ID,
		ImageURL: c.ImageURL,
		VideoURL: c.VideoURL,
	})
}

type statusUpdateRequest struct {
	Status  model.CaseStatus `json:"status"`
	Remarks string           `json:"remarks,omitempty"`
}

// HandleUpdateStatus transitions a case to a new status.
func (s *Server) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed status update")
		return
	}

	profile := ProfileFromContext(r.Context())
	id := chi.URLParam(r, "caseID")
	if err := s.cases.UpdateStatus(r.Context(), id, req.Status, profile.DisplayName, req.Remarks); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type secureAccessRequest struct {
	Reason string `json:"reason,omitempty"`
}

// HandleSecureAccess records a secure-access grant for evidence-hub media.
func (s *Server) HandleSecureAccess(w http.ResponseWriter, r *http.Request) {
	var req secureAccessRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	profile := ProfileFromContext(r.Context())
	id := chi.URLParam(r, "caseID")
	err := s.cases.LogAction(r.Context(), id, model.ActionSecureAccessGranted, profile.DisplayName, model.SecureAccessDetails{
		AdminUID: profile.UID,
		Reason:   req.Reason,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"granted": true})
}

// HandleRecommend asks the evidence engine for a next tactical action for
// the case. Engine failures degrade to the standing fallback advice, so
// this endpoint never fails on classifier trouble.
func (s *Server) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	c, err := s.cases.Get(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	summary := fmt.Sprintf("%s incident in %s. Risk %s, severity %d/10, status %s. %s",
		c.Analysis.HazardType, c.City, c.Analysis.RiskLevel,
		c.Analysis.ImpactSeverity, c.Status, c.Analysis.HumanReadableExplanation)
	advice := s.classifier.Recommend(r.Context(), summary)
	writeJSON(w, http.StatusOK, map[string]string{"caseId": c.ID, "recommendation": advice})
}

// HandleLogs returns the audit trail, optionally scoped to one case.
func (s *Server) HandleLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := s.cases.QueryLogs(r.Context(), r.URL.Query().Get("caseId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type dashboardResponse struct {
	TotalCases  int                      `json:"totalCases"`
	ByStatus    map[model.CaseStatus]int `json:"byStatus"`
	ByRiskLevel map[model.RiskLevel]int  `json:"byRiskLevel"`
	ByCity      map[string]int           `json:"byCity"`
	RecentCases []*model.IncidentCase    `json:"recentCases"`
	RecentLogs  []*model.AdminActionLog  `json:"recentLogs"`
}

// HandleDashboard aggregates the command-center overview: case counts by
// status, risk, and city, plus the most recent cases and audit entries.
func (s *Server) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	var (
		list    []*model.IncidentCase
		entries []*model.AdminActionLog
	)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		list, err = s.cases.Query(ctx, r.URL.Query().Get("city"))
		return err
	})
	g.Go(func() error {
		var err error
		entries, err = s.cases.QueryLogs(ctx, "")
		return err
	})
	if err := g.Wait(); err != nil {
		writeDomainError(w, err)
		return
	}

	resp := dashboardResponse{
		TotalCases:  len(list),
		ByStatus:    make(map[model.CaseStatus]int),
		ByRiskLevel: make(map[model.RiskLevel]int),
		ByCity:      make(map[string]int),
	}
	for _, c := range list {
		resp.ByStatus[c.Status]++
		resp.ByRiskLevel[c.Analysis.RiskLevel]++
		resp.ByCity[c.City]++
	}
	// Query results are already newest-first.
	if len(list) > 5 {
		list = list[:5]
	}
	resp.RecentCases = list
	if len(entries) > 10 {
		entries = entries[:10]
	}
	resp.RecentLogs = entries

	writeJSON(w, http.StatusOK, resp)
}

// HandleExportCSV streams the dated CSV extract of all cases.
func (s *Server) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	list, err := s.cases.Query(r.Context(), r.URL.Query().Get("city"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	filename := export.CSVFilename(time.Now())
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := export.WriteCSV(w, list); err != nil {
		s.logger.Error("write csv export", "error", err)
	}
}

// HandleEnqueue buffers a case for later replay. The submitting device's
// user agent rides along so the fingerprint survives the replay.
func (s *Server) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	var c model.IncidentCase
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, "malformed case payload")
		return
	}
	if c.ID == "" {
		c.ID = "CASE-" + uuid.NewString()
	}
	profile := ProfileFromContext(r.Context())
	if c.IsAnonymous {
		c.ReporterID = ""
	} else if c.ReporterID == "" {
		c.ReporterID = profile.UID
	}
	c.DeviceFingerprint = strings.TrimSpace(r.UserAgent())

	if err := s.queue.Enqueue(r.Context(), &c); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"caseId": c.ID, "state": "queued"})
}

// HandleFlushQueue replays the offline buffer into the case store.
func (s *Server) HandleFlushQueue(w http.ResponseWriter, r *http.Request) {
	flushed, err := s.queue.Flush(r.Context())
	if err != nil {
		// Partial progress is still reported; already flushed cases have
		// been removed from the queue.
		s.logger.Error("queue flush aborted", "flushed", flushed, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"flushed": flushed,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"flushed": flushed})
}

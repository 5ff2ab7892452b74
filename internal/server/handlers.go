package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/spigell/job-agent/internal/agents"
	"github.com/spigell/job-agent/internal/document"
	"github.com/spigell/job-agent/internal/llm"
	"github.com/spigell/job-agent/internal/match"
	"github.com/spigell/job-agent/internal/pipeline"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type scoreRequest struct {
	Job     match.JobRequirements  `json:"job"`
	Profile match.CandidateProfile `json:"profile"`
}

type applyRequest struct {
	JobDescription string `json:"job_description"`
}

type applyResponse struct {
	Success      bool                `json:"success"`
	RunID        string              `json:"run_id"`
	Analysis     *agents.JobAnalysis `json:"analysis"`
	Match        *match.Result       `json:"match,omitempty"`
	Coverage     *match.Coverage     `json:"coverage,omitempty"`
	Warnings     []string            `json:"warnings,omitempty"`
	Files        pipeline.Files      `json:"files"`
	DownloadURLs pipeline.Files      `json:"download_urls"`
	Steps        []pipeline.Step     `json:"steps"`
}

type importRequest struct {
	ProfileText string `json:"profile_text"`
}

type importResponse struct {
	Success         bool   `json:"success"`
	Name            string `json:"name"`
	Headline        string `json:"headline"`
	ExperienceCount int    `json:"experience_count"`
	SkillsCount     int    `json:"skills_count"`
	Saved           bool   `json:"saved"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) stages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, pipeline.Describe(s.cfg.Stages))
}

func (s *Server) score(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result := match.Score(req.Job, req.Profile)
	s.cfg.Metrics.ObserveMatch(result.OverallScore)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) apply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	jobText := strings.TrimSpace(req.JobDescription)
	if jobText == "" {
		writeError(w, http.StatusBadRequest, "job_description is required", "")
		return
	}

	master := s.currentMaster()
	if master == nil {
		writeError(w, http.StatusConflict, "no master profile loaded, import one first", "")
		return
	}

	app := &pipeline.Application{
		RunID:     document.NewRunID(),
		JobText:   jobText,
		Profile:   master,
		OutputDir: s.cfg.OutputDir,
	}
	l := s.logger.With(zap.String("request_id", chiMiddleware.GetReqID(r.Context())))

	if err := pipeline.Run(r.Context(), pipeline.Deps{Logger: l, Metrics: s.cfg.Metrics}, s.cfg.Stages, app); err != nil {
		l.Error("application failed", zap.Error(err))
		if reason := llm.ReasonOf(err); reason != "" {
			writeError(w, http.StatusBadGateway, err.Error(), string(reason))
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}

	resp := applyResponse{
		Success:  true,
		RunID:    app.RunID,
		Analysis: app.Analysis,
		Match:    app.Match,
		Coverage: app.Coverage,
		Warnings: app.Warnings,
		Files:    app.Files,
		Steps:    app.Steps,
	}
	if app.Files.CV != "" {
		resp.DownloadURLs.CV = downloadURL(app.Files.CV)
	}
	if app.Files.CoverLetter != "" {
		resp.DownloadURLs.CoverLetter = downloadURL(app.Files.CoverLetter)
	}
	writeJSON(w, http.StatusOK, resp)
}

func downloadURL(name string) string {
	return "/v1/download/" + url.PathEscape(name)
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	name, err := fileNameParam(r)
	if err != nil || !validFileName(name) {
		writeError(w, http.StatusBadRequest, "invalid file name", "")
		return
	}

	path := filepath.Join(s.cfg.OutputDir, name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "file not found", "")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found", "")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", docxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// fileNameParam returns the decoded {name} segment. chi routes on RawPath when the
// request carries one, and only then is the parameter still escaped.
func fileNameParam(r *http.Request) (string, error) {
	name := chi.URLParam(r, "name")
	if r.URL.RawPath == "" {
		return name, nil
	}
	return url.PathUnescape(name)
}

func validFileName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}

func (s *Server) currentProfile(w http.ResponseWriter, _ *http.Request) {
	master := s.currentMaster()
	if master == nil {
		writeError(w, http.StatusNotFound, "no master profile loaded", "")
		return
	}
	writeJSON(w, http.StatusOK, master)
}

func (s *Server) importProfile(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Parser == nil {
		writeError(w, http.StatusNotImplemented, "profile import is not configured", "")
		return
	}

	var req importRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ProfileText) == "" {
		writeError(w, http.StatusBadRequest, "profile_text is required", "")
		return
	}

	parsed, err := s.cfg.Parser.Parse(r.Context(), req.ProfileText)
	if err != nil {
		s.logger.Error("profile import failed", zap.Error(err))
		if reason := llm.ReasonOf(err); reason != "" {
			writeError(w, http.StatusBadGateway, err.Error(), string(reason))
			return
		}
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	saved := false
	if s.cfg.ProfilePath != "" {
		if err := parsed.Save(s.cfg.ProfilePath); err != nil {
			s.logger.Error("saving imported profile", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "saving profile failed", "")
			return
		}
		saved = true
	}
	s.setMaster(parsed)

	s.logger.Info("profile imported",
		zap.String("name", parsed.PersonalInfo.Name),
		zap.Int("experience", len(parsed.Experience)),
		zap.Bool("saved", saved),
	)

	writeJSON(w, http.StatusOK, importResponse{
		Success:         true,
		Name:            parsed.PersonalInfo.Name,
		Headline:        parsed.PersonalInfo.Headline,
		ExperienceCount: len(parsed.Experience),
		SkillsCount:     parsed.Skills.Len(),
		Saved:           saved,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, reason string) {
	writeJSON(w, status, errorResponse{Error: msg, Reason: reason})
}

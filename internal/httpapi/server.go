// Package httpapi exposes the pipeline over HTTP: document analysis, run
// lookup, feedback submission and the static outputs directory.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"storyforge/internal/feedback"
	"storyforge/internal/pipeline"
	"storyforge/internal/runs"
)

// maxUploadBytes bounds one multipart document upload.
const maxUploadBytes = 16 << 20

// Deps are the collaborators the server needs.
type Deps struct {
	Analyze  func(ctx context.Context, path string, useGolden bool, targetOverride int) (*pipeline.Result, error)
	Registry *runs.Registry
	Feedback *feedback.Applier
	// OutputsDir is served statically under /outputs/.
	OutputsDir string
	// APIKey, when non-empty, is required in the x-api-key header.
	APIKey string
	// UploadDir receives uploaded documents; defaults to the OS temp dir.
	UploadDir string
}

// Server is the HTTP front end.
type Server struct {
	deps Deps
	log  *zap.Logger
}

// NewServer wires a server.
func NewServer(deps Deps, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{deps: deps, log: log.Named("http")}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "x-api-key"},
	}))
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.apiKeyGuard)
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{runId}", s.handleGetRun)
		r.Post("/runs/{runId}/feedback", s.handleFeedback)
	})

	if s.deps.OutputsDir != "" {
		fileServer := http.StripPrefix("/outputs/", http.FileServer(http.Dir(s.deps.OutputsDir)))
		r.Get("/outputs/*", func(w http.ResponseWriter, req *http.Request) {
			fileServer.ServeHTTP(w, req)
		})
	}
	return r
}

func (s *Server) apiKeyGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if s.deps.APIKey != "" && req.Header.Get("x-api-key") != s.deps.APIKey {
			writeError(w, req, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, req *http.Request) {
	render.JSON(w, req, map[string]string{"status": "ok"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, req, http.StatusBadRequest, "invalid multipart payload")
		return
	}

	file, header, err := req.FormFile("document")
	if err != nil {
		writeError(w, req, http.StatusBadRequest, "document file is required")
		return
	}
	defer file.Close()

	uploadDir := s.deps.UploadDir
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}
	path := filepath.Join(uploadDir, filepath.Base(header.Filename))
	dst, err := os.Create(path)
	if err != nil {
		writeError(w, req, http.StatusInternalServerError, "cannot store upload")
		return
	}
	if _, err := io.Copy(dst, io.LimitReader(file, maxUploadBytes)); err != nil {
		dst.Close()
		writeError(w, req, http.StatusInternalServerError, "cannot store upload")
		return
	}
	dst.Close()
	defer os.Remove(path)

	useGolden := req.FormValue("useGolden") != "false"
	targetOverride := 0
	if v := req.FormValue("targetOverride"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			targetOverride = n
		}
	}

	res, err := s.deps.Analyze(req.Context(), path, useGolden, targetOverride)
	if err != nil {
		s.log.Error("analysis failed", zap.String("file", header.Filename), zap.Error(err))
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrNoStories) || errors.Is(err, pipeline.ErrHardConstraints) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, req, status, err.Error())
		return
	}

	render.Status(req, http.StatusCreated)
	render.JSON(w, req, res)
}

func (s *Server) handleListRuns(w http.ResponseWriter, req *http.Request) {
	all, err := s.deps.Registry.List()
	if err != nil {
		writeError(w, req, http.StatusInternalServerError, err.Error())
		return
	}
	render.JSON(w, req, map[string]any{"runs": all})
}

func (s *Server) handleGetRun(w http.ResponseWriter, req *http.Request) {
	run, err := s.deps.Registry.Get(chi.URLParam(req, "runId"))
	if err != nil {
		if errors.Is(err, runs.ErrNotFound) {
			writeError(w, req, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, req, http.StatusInternalServerError, err.Error())
		return
	}
	render.JSON(w, req, run)
}

func (s *Server) handleFeedback(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Stories  []feedback.CorrectedStory `json:"stories"`
		Author   string                    `json:"author"`
		Notes    string                    `json:"notes"`
		Accepted *bool                     `json:"accepted"`
	}
	if err := render.DecodeJSON(req.Body, &body); err != nil {
		writeError(w, req, http.StatusBadRequest, "invalid JSON body")
		return
	}

	accepted := true
	if body.Accepted != nil {
		accepted = *body.Accepted
	}

	record, err := s.deps.Feedback.Apply(feedback.Submission{
		RunID:    chi.URLParam(req, "runId"),
		Stories:  body.Stories,
		Author:   body.Author,
		Notes:    body.Notes,
		Accepted: accepted,
	})
	if err != nil {
		switch {
		case errors.Is(err, feedback.ErrRunNotFound):
			writeError(w, req, http.StatusNotFound, err.Error())
		case errors.Is(err, feedback.ErrRunNotCompleted), errors.Is(err, feedback.ErrNoCorrectedStories):
			writeError(w, req, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, req, http.StatusInternalServerError, err.Error())
		}
		return
	}

	render.Status(req, http.StatusCreated)
	render.JSON(w, req, record)
}

func writeError(w http.ResponseWriter, req *http.Request, status int, msg string) {
	render.Status(req, status)
	render.JSON(w, req, map[string]string{"error": strings.TrimSpace(msg)})
}

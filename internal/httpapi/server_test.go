package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyforge/internal/feedback"
	"storyforge/internal/learning"
	"storyforge/internal/model"
	"storyforge/internal/pipeline"
	"storyforge/internal/runs"
)

func newTestServer(t *testing.T, analyze func(ctx context.Context, path string, useGolden bool, targetOverride int) (*pipeline.Result, error)) (*Server, *runs.Registry) {
	t.Helper()
	dir := t.TempDir()
	registry := runs.NewRegistry(filepath.Join(dir, "runs.json"))
	learningStore := learning.NewStore(filepath.Join(dir, "learning.json"), learning.DefaultThresholds(), nil)
	applier := feedback.NewApplier(registry, learningStore, filepath.Join(dir, "feedback.json"), nil)

	return NewServer(Deps{
		Analyze:   analyze,
		Registry:  registry,
		Feedback:  applier,
		UploadDir: dir,
	}, nil), registry
}

func multipartDoc(t *testing.T, filename, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("document", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestAnalyzeSuccess(t *testing.T) {
	var gotPath string
	var gotGolden bool
	srv, _ := newTestServer(t, func(_ context.Context, path string, useGolden bool, _ int) (*pipeline.Result, error) {
		gotPath = path
		gotGolden = useGolden
		return &pipeline.Result{RunID: "run_x", Backlog: &model.Backlog{}}, nil
	})

	body, contentType := multipartDoc(t, "requisitos.txt", "contenido", nil)
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, strings.HasSuffix(gotPath, "requisitos.txt"))
	assert.True(t, gotGolden, "golden defaults to enabled")
	assert.Contains(t, rec.Body.String(), "run_x")
}

func TestAnalyzeDisableGolden(t *testing.T) {
	var gotGolden bool
	srv, _ := newTestServer(t, func(_ context.Context, _ string, useGolden bool, _ int) (*pipeline.Result, error) {
		gotGolden = useGolden
		return &pipeline.Result{RunID: "run_y"}, nil
	})

	body, contentType := multipartDoc(t, "doc.md", "contenido", map[string]string{"useGolden": "false"})
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.False(t, gotGolden)
}

func TestAnalyzePipelineFailure(t *testing.T) {
	srv, _ := newTestServer(t, func(_ context.Context, _ string, _ bool, _ int) (*pipeline.Result, error) {
		return nil, pipeline.ErrNoStories
	})

	body, contentType := multipartDoc(t, "doc.txt", "contenido", nil)
	req := httptest.NewRequest(http.MethodPost, "/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAnalyzeMissingFile(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader("no multipart"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRun(t *testing.T) {
	srv, registry := newTestServer(t, nil)
	run, err := registry.Create("doc.txt")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/"+run.RunID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var got runs.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, run.RunID, got.RunID)

	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/run_missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeedbackRejections(t *testing.T) {
	srv, registry := newTestServer(t, nil)

	// Unknown run.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/runs/run_missing/feedback",
		strings.NewReader(`{"stories": [{"title": "t", "want": "w"}]}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Run still running.
	run, err := registry.Create("doc.txt")
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/runs/"+run.RunID+"/feedback",
		strings.NewReader(`{"stories": [{"title": "t", "want": "w"}]}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAPIKeyGuard(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	srv.deps.APIKey = "secreto"

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/runs", nil)
	req.Header.Set("x-api-key", "secreto")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open.
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jglaspey/supplement-cli/internal/model"
	"github.com/jglaspey/supplement-cli/internal/store"
)

func newTestEnv(t *testing.T) (*pipelineEnv, string) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return &pipelineEnv{Store: st}, t.TempDir()
}

func multipartBody(t *testing.T, files map[string]string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for field, content := range files {
		fw, err := w.CreateFormFile(field, field+".pdf")
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestRouter_Health(t *testing.T) {
	env, uploads := newTestEnv(t)
	r := buildRouter(context.Background(), env, uploads, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_CreateJob(t *testing.T) {
	env, uploads := newTestEnv(t)
	r := buildRouter(context.Background(), env, uploads, "")

	body, contentType := multipartBody(t,
		map[string]string{"estimate": "%PDF-1.7 estimate", "roof": "%PDF-1.7 roof"},
		map[string]string{"strategy": "fallback"},
	)

	req := httptest.NewRequest(http.MethodPost, "/jobs", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["job_id"])
	assert.Equal(t, string(model.JobStatusPending), resp["status"])

	// Nil pipeline: the accepted job stays pending with the uploads saved.
	time.Sleep(10 * time.Millisecond)
	job, err := env.Store.GetJob(context.Background(), resp["job_id"])
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Contains(t, job.Input.EstimateDoc, uploads)
	assert.NotEmpty(t, job.Input.RoofDoc)
	assert.Equal(t, "fallback", job.Input.Strategy)
}

func TestRouter_CreateJobRequiresEstimate(t *testing.T) {
	env, uploads := newTestEnv(t)
	r := buildRouter(context.Background(), env, uploads, "")

	body, contentType := multipartBody(t,
		map[string]string{"roof": "%PDF-1.7 roof"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/jobs", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "estimate file is required")
}

func TestRouter_CreateJobRejectsUnknownStrategy(t *testing.T) {
	env, uploads := newTestEnv(t)
	r := buildRouter(context.Background(), env, uploads, "")

	body, contentType := multipartBody(t,
		map[string]string{"estimate": "%PDF-1.7 estimate"},
		map[string]string{"strategy": "GUESS"},
	)

	req := httptest.NewRequest(http.MethodPost, "/jobs", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "unknown strategy")
}

func TestRouter_GetJobNotFound(t *testing.T) {
	env, uploads := newTestEnv(t)
	r := buildRouter(context.Background(), env, uploads, "")

	req := httptest.NewRequest(http.MethodGet, "/jobs/nope", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_ListJobs(t *testing.T) {
	env, uploads := newTestEnv(t)
	r := buildRouter(context.Background(), env, uploads, "")

	_, err := env.Store.CreateJob(context.Background(), model.JobInput{EstimateDoc: "a.pdf"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var jobs []model.Job
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &jobs))
	assert.Len(t, jobs, 1)
}

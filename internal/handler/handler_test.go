package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"plantcare/internal/config"
	"plantcare/internal/domain"
)

type mockService struct {
	uploaded  []string
	token     string
	analyzeFn func(token string) (*domain.DiseaseResult, error)
	remedyFn  func(label string) (*domain.Remedy, error)
	uploadErr error
}

func (m *mockService) UploadImage(ctx context.Context, fileBytes []byte, filename string) (*domain.StagedImage, error) {
	if m.uploadErr != nil {
		return nil, m.uploadErr
	}
	m.uploaded = append(m.uploaded, filename)
	return &domain.StagedImage{Filename: "1700000000000-abcd1234.png", StoragePath: "/staging/1700000000000-abcd1234.png"}, nil
}

func (m *mockService) AnalyzeDisease(ctx context.Context, token string) (*domain.DiseaseResult, error) {
	m.token = token
	return m.analyzeFn(token)
}

func (m *mockService) GetRemedy(ctx context.Context, label string) (*domain.Remedy, error) {
	return m.remedyFn(label)
}

func newTestRouter(svc *mockService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{App: config.AppConfig{MaxUploadSize: 1024}}
	h := NewHandler(svc, cfg, zap.NewNop())

	r := gin.New()
	r.POST("/upload", h.UploadImage)
	r.POST("/api/analyze-disease", h.AnalyzeDisease)
	r.POST("/remedysearch", h.SearchRemedy)
	r.GET("/health", h.HealthCheck)
	return r
}

func multipartRequest(t *testing.T, field, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestUploadImage(t *testing.T) {
	t.Run("missing field", func(t *testing.T) {
		r := newTestRouter(&mockService{})
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, multipartRequest(t, "photo", "leaf.png", []byte("x")))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No image uploaded", decode(t, rec)["error"])
	})

	t.Run("not multipart", func(t *testing.T) {
		r := newTestRouter(&mockService{})
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/upload", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No image uploaded", decode(t, rec)["error"])
	})

	t.Run("too large", func(t *testing.T) {
		r := newTestRouter(&mockService{})
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, multipartRequest(t, "image", "leaf.png", make([]byte, 2048)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "File too large", decode(t, rec)["error"])
	})

	t.Run("oversized body is cut off while parsing", func(t *testing.T) {
		svc := &mockService{}
		r := newTestRouter(svc)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, multipartRequest(t, "image", "leaf.png", make([]byte, 2*multipartOverhead)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "File too large", decode(t, rec)["error"])
		assert.Empty(t, svc.uploaded)
	})

	t.Run("success", func(t *testing.T) {
		svc := &mockService{}
		r := newTestRouter(svc)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, multipartRequest(t, "image", "leaf.png", []byte("x")))

		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "Image uploaded successfully", body["message"])
		assert.Equal(t, "1700000000000-abcd1234.png", body["filename"])
		assert.Equal(t, "1700000000000-abcd1234.png", body["token"])
		assert.Equal(t, "/staging/1700000000000-abcd1234.png", body["path"])
		assert.Equal(t, []string{"leaf.png"}, svc.uploaded)
	})

	t.Run("storage failure is generic", func(t *testing.T) {
		r := newTestRouter(&mockService{uploadErr: domain.NewStorageError("Failed to store image", errors.New("disk full /var/x"))})
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, multipartRequest(t, "image", "leaf.png", []byte("x")))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to store image", decode(t, rec)["error"])
	})
}

func TestAnalyzeDisease(t *testing.T) {
	ok := func(token string) (*domain.DiseaseResult, error) {
		return &domain.DiseaseResult{Label: "Rust", Confidence: 87}, nil
	}

	t.Run("success body shape", func(t *testing.T) {
		r := newTestRouter(&mockService{analyzeFn: ok})
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analyze-disease", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"result":"Rust","confidence":87,"heatmapUrl":""}`, rec.Body.String())
	})

	t.Run("token sources", func(t *testing.T) {
		svc := &mockService{analyzeFn: ok}
		r := newTestRouter(svc)

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/analyze-disease?token=q.jpg", nil))
		assert.Equal(t, "q.jpg", svc.token)

		req := httptest.NewRequest(http.MethodPost, "/api/analyze-disease", nil)
		req.Header.Set("X-Staging-Token", "h.jpg")
		r.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, "h.jpg", svc.token)

		req = httptest.NewRequest(http.MethodPost, "/api/analyze-disease", bytes.NewBufferString(`{"token":"b.jpg"}`))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, "b.jpg", svc.token)
	})

	t.Run("malformed body", func(t *testing.T) {
		r := newTestRouter(&mockService{analyzeFn: ok})
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analyze-disease", bytes.NewBufferString(`{`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	errorCases := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"not found", domain.NewNotFoundError("No .jpg or .jpeg files found in staging area", domain.ErrNotFound), http.StatusNotFound, "No .jpg or .jpeg files found in staging area"},
		{"upstream status", domain.NewUpstreamError("Failed to analyze disease", errors.New("502")), http.StatusInternalServerError, "Failed to analyze disease"},
		{"unexpected", errors.New("panic-ish"), http.StatusInternalServerError, "Failed to analyze disease."},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(&mockService{analyzeFn: func(string) (*domain.DiseaseResult, error) { return nil, tc.err }})
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/analyze-disease", nil))

			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, tc.msg, decode(t, rec)["error"])
		})
	}
}

func TestSearchRemedy(t *testing.T) {
	t.Run("missing body", func(t *testing.T) {
		r := newTestRouter(&mockService{})
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/remedysearch", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Context is required", decode(t, rec)["error"])
	})

	t.Run("validation from service", func(t *testing.T) {
		r := newTestRouter(&mockService{remedyFn: func(string) (*domain.Remedy, error) {
			return nil, domain.NewValidationError("Context is required")
		}})
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/remedysearch", bytes.NewBufferString(`{"context":""}`)))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Context is required", decode(t, rec)["error"])
	})

	t.Run("success", func(t *testing.T) {
		var got string
		r := newTestRouter(&mockService{remedyFn: func(label string) (*domain.Remedy, error) {
			got = label
			return &domain.Remedy{Raw: "Remedy: prune", Entries: []domain.RemedyEntry{{
				Heading: domain.HeadingRemedy, Label: "Remedy", Content: "prune", Icon: "💊",
			}}}, nil
		}})
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/remedysearch", bytes.NewBufferString(`{"context":"Rust"}`)))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Rust", got)
		assert.JSONEq(t, `{"remedy":"Remedy: prune","entries":[{"heading":"Remedy","label":"Remedy","content":"prune","icon":"💊","title":false}]}`, rec.Body.String())
	})

	t.Run("upstream failure", func(t *testing.T) {
		r := newTestRouter(&mockService{remedyFn: func(string) (*domain.Remedy, error) {
			return nil, domain.NewUpstreamError("An error occurred while processing the request", errors.New("503"))
		}})
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/remedysearch", bytes.NewBufferString(`{"context":"Rust"}`)))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "An error occurred while processing the request", decode(t, rec)["error"])
	})
}

func TestHealthCheck(t *testing.T) {
	r := newTestRouter(&mockService{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", decode(t, rec)["status"])
}

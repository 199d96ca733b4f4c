package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-pipeline-go/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&config.AIConfig{
		BaseURL:        server.URL,
		APIKey:         "test-key",
		TimeoutSeconds: 5,
	}, zerolog.Nop())
	require.NoError(t, err)
	return client, server
}

func TestExtractTextSuccess(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/extract", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"John Doe\nSoftware Engineer"}`))
	})

	text, err := client.ExtractText(context.Background(), []byte("%PDF-1.4"), FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "John Doe\nSoftware Engineer", text)
}

func TestExtractTextRateLimit(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.ExtractText(context.Background(), []byte("data"), FormatPDF)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestExtractTextServiceUnavailable(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.ExtractText(context.Background(), []byte("data"), FormatDocx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service unavailable")
}

func TestParseStructuredSuccess(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/parse", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"personalInfo": {"name": "Jane Smith", "email": "jane@example.com"},
			"skills": ["Go", "SQL"],
			"totalExperience": 4.5
		}`))
	})

	resume, err := client.ParseStructured(context.Background(), "Jane Smith resume text")
	require.NoError(t, err)
	require.NotNil(t, resume.PersonalInfo)
	assert.Equal(t, "Jane Smith", resume.PersonalInfo.Name)
	assert.Equal(t, []string{"Go", "SQL"}, resume.Skills)
	assert.InDelta(t, 4.5, resume.TotalExperience, 0.001)
	// Normalize填充空集合
	assert.NotNil(t, resume.Experience)
	assert.NotNil(t, resume.Education)
	assert.NotNil(t, resume.Certifications)
}

func TestParseStructuredMalformedJSON(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`here is the parsed resume: {"skills": ["Go"]`))
	})

	_, err := client.ParseStructured(context.Background(), "some text")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestParseStructuredWrongTypedFieldsDefault(t *testing.T) {
	// 单个字段类型不符时丢弃该字段，整体解析仍成功
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"skills": "Go",
			"experience": {"company": "x"},
			"totalExperience": "four",
			"summary": "Seasoned engineer",
			"certifications": ["AWS"]
		}`))
	})

	resume, err := client.ParseStructured(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []string{}, resume.Skills)
	assert.Empty(t, resume.Experience)
	assert.Equal(t, 0.0, resume.TotalExperience)
	assert.Equal(t, "Seasoned engineer", resume.Summary)
	assert.Equal(t, []string{"AWS"}, resume.Certifications)
}

func TestParseStructuredTolerantOfExtraFields(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"skills": ["Go"], "modelVersion": "v3", "confidence": 0.97}`))
	})

	resume, err := client.ParseStructured(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []string{"Go"}, resume.Skills)
}

func TestParseStructuredNegativeExperienceClamped(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totalExperience": -2}`))
	})

	resume, err := client.ParseStructured(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, 0.0, resume.TotalExperience)
}

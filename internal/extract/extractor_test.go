package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatForMime(t *testing.T) {
	tests := []struct {
		name     string
		mimeType string
		want     Format
		ok       bool
	}{
		{"PDF", "application/pdf", FormatPDF, true},
		{"Docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", FormatDocx, true},
		{"Doc", "application/msword", FormatDoc, true},
		{"PNG", "image/png", FormatImage, true},
		{"JPEG", "image/jpeg", FormatImage, true},
		{"带参数的MIME", "application/pdf; charset=utf-8", FormatPDF, true},
		{"大写MIME", "APPLICATION/PDF", FormatPDF, true},
		{"纯文本不支持", "text/plain", Format(""), false},
		{"空串不支持", "", Format(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FormatForMime(tt.mimeType)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSupportedMime(t *testing.T) {
	assert.True(t, SupportedMime("application/pdf"))
	assert.True(t, SupportedMime("image/jpg"))
	assert.False(t, SupportedMime("text/html"))
}

func TestExtForMime(t *testing.T) {
	assert.Equal(t, ".pdf", ExtForMime("application/pdf"))
	assert.Equal(t, ".docx", ExtForMime("application/vnd.openxmlformats-officedocument.wordprocessingml.document"))
	assert.Equal(t, ".jpg", ExtForMime("image/jpeg; boundary=x"))
	assert.Equal(t, "", ExtForMime("text/plain"))
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry(&Client{})

	e, ok := registry.Lookup("application/pdf")
	assert.True(t, ok)
	assert.NotNil(t, e)

	e, ok = registry.Lookup("text/plain")
	assert.False(t, ok)
	assert.Nil(t, e)
}

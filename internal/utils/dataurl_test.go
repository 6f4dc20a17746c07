package utils

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDataURL(t *testing.T) {
	payload := []byte("hello card")
	b64 := base64.StdEncoding.EncodeToString(payload)

	tests := []struct {
		name     string
		in       string
		wantMIME string
	}{
		{"with header", "data:image/jpeg;base64," + b64, "image/jpeg"},
		{"plain", b64, ""},
		{"raw padding", strings.TrimRight(b64, "="), ""},
		{"surrounding space", "  data:image/png;base64," + b64 + "\n", "image/png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, mime, err := DecodeDataURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, payload, data)
			assert.Equal(t, tt.wantMIME, mime)
		})
	}
}

func TestDecodeDataURL_Errors(t *testing.T) {
	for _, in := range []string{"", "data:image/png;base64", "data:text/plain,hello", "!!!not base64!!!"} {
		_, _, err := DecodeDataURL(in)
		assert.Error(t, err, in)
	}
}

func TestEncodeDataURL_RoundTrip(t *testing.T) {
	src := makeTestImage(16, 12)
	s, err := EncodeDataURL(src, FormatJPEG, InlineQuality)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s, "data:image/jpeg;base64,"))

	img, err := DecodeDataURLImage(s)
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, 12, img.Bounds().Dy())
}

package utils

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"strings"
)

// DecodeDataURL strips an optional "data:<mime>;base64," header and decodes
// the payload. Plain base64 without a header is accepted too.
func DecodeDataURL(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, "", &ImageProcessingError{Operation: "dataurl", Err: errors.New("empty payload")}
	}
	mime := ""
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, "", &ImageProcessingError{Operation: "dataurl", Err: errors.New("missing comma after header")}
		}
		header := s[len("data:"):comma]
		if !strings.HasSuffix(header, ";base64") {
			return nil, "", &ImageProcessingError{Operation: "dataurl", Err: errors.New("only base64 data URLs are supported")}
		}
		mime = strings.TrimSuffix(header, ";base64")
		s = s[comma+1:]
	}

	// Browsers emit standard padding; tolerate raw and URL-safe variants.
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(s); err == nil {
			return data, mime, nil
		}
	}
	return nil, "", &ImageProcessingError{Operation: "dataurl", Err: errors.New("invalid base64 payload")}
}

// DecodeDataURLImage decodes a data URL straight to an image.
func DecodeDataURLImage(s string) (image.Image, error) {
	data, _, err := DecodeDataURL(s)
	if err != nil {
		return nil, err
	}
	return DecodeImage(data)
}

// EncodeDataURL encodes img as a "data:<mime>;base64,..." string.
func EncodeDataURL(img image.Image, f Format, quality int) (string, error) {
	var buf bytes.Buffer
	if err := EncodeImage(&buf, img, f, quality); err != nil {
		return "", err
	}
	return "data:" + f.MIME() + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

package service

import (
	"bytes"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/stemsi/exstem-authoring/internal/model"
)

// sniffMedia detects the content type of data and checks it against the
// types accepted for kind. It returns the canonical type and extension.
func sniffMedia(data []byte, kind model.MediaKind) (string, string, error) {
	accepted := kind.MIMETypes()
	detected := mimetype.Detect(data)
	for t, ext := range accepted {
		if detected.Is(t) {
			return t, ext, nil
		}
	}
	return "", "", fmt.Errorf("%w: %s", ErrUnsupportedFileType, detected.String())
}

// downscaleImage shrinks raster images larger than maxDim on either side.
// Formats imaging cannot re-encode, and GIFs (animation would be lost), are
// returned unchanged.
func downscaleImage(data []byte, contentType string, maxDim int) ([]byte, error) {
	var format imaging.Format
	switch contentType {
	case "image/jpeg":
		format = imaging.JPEG
	case "image/png":
		format = imaging.PNG
	default:
		return data, nil
	}
	if maxDim <= 0 {
		return data, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFileType, err)
	}
	b := img.Bounds()
	if b.Dx() <= maxDim && b.Dy() <= maxDim {
		return data, nil
	}

	var buf bytes.Buffer
	resized := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	if err := imaging.Encode(&buf, resized, format, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// mediaPath maps a public media URL back to a file under uploadDir. URLs
// pointing anywhere else are rejected.
func mediaPath(uploadDir, publicBaseURL, mediaURL string) (string, bool) {
	p := mediaURL
	if publicBaseURL != "" {
		p = strings.TrimPrefix(p, publicBaseURL)
	}
	if u, err := url.Parse(p); err == nil && u.Host != "" {
		return "", false
	}
	rel, ok := strings.CutPrefix(p, "/uploads/")
	if !ok || rel == "" {
		return "", false
	}
	rel = filepath.Clean(filepath.FromSlash(rel))
	if rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return "", false
	}
	return filepath.Join(uploadDir, rel), true
}

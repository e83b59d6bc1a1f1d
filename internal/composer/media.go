package composer

import (
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-authoring/internal/model"
)

// tempRefPrefix marks references that only exist in this process.
const tempRefPrefix = "blob:"

// MediaFile is a file the user picked for a question.
type MediaFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the file length in bytes.
func (f MediaFile) Size() int64 { return int64(len(f.Data)) }

// MediaRule limits one media kind.
type MediaRule struct {
	MaxBytes int64
	Types    map[string]string
}

// MediaPolicy decides which files may be attached.
type MediaPolicy struct {
	Image MediaRule
	Audio MediaRule
}

// DefaultMediaPolicy accepts common image formats up to 5 MB and audio up to 20 MB.
func DefaultMediaPolicy() MediaPolicy {
	return MediaPolicy{
		Image: MediaRule{MaxBytes: model.DefaultMaxImageBytes, Types: model.ImageMIMETypes},
		Audio: MediaRule{MaxBytes: model.DefaultMaxAudioBytes, Types: model.AudioMIMETypes},
	}
}

func (p MediaPolicy) rule(kind model.MediaKind) (MediaRule, error) {
	switch kind {
	case model.MediaImage:
		return p.Image, nil
	case model.MediaAudio:
		return p.Audio, nil
	}
	return MediaRule{}, fmt.Errorf("%w: unknown media kind %q", ErrInvalidMedia, kind)
}

// Check validates f for kind and returns its effective content type. The
// declared type wins; an empty or generic declaration is sniffed from the
// bytes.
func (p MediaPolicy) Check(kind model.MediaKind, f MediaFile) (string, error) {
	rule, err := p.rule(kind)
	if err != nil {
		return "", err
	}
	if len(f.Data) == 0 {
		return "", fmt.Errorf("%w: %s is empty", ErrInvalidMedia, f.Name)
	}
	if f.Size() > rule.MaxBytes {
		return "", fmt.Errorf("%w: %s is %d bytes (max %d)", ErrInvalidMedia, f.Name, f.Size(), rule.MaxBytes)
	}

	contentType := normalizeType(f.ContentType)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = sniff(f.Data, rule.Types)
	}
	if _, ok := rule.Types[contentType]; !ok {
		return "", fmt.Errorf("%w: %s has unsupported type %q for %s", ErrInvalidMedia, f.Name, contentType, kind)
	}
	return contentType, nil
}

func normalizeType(raw string) string {
	if raw == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return mt
}

// sniff detects the type of data, preferring an accepted alias when the
// detected type has one.
func sniff(data []byte, accepted map[string]string) string {
	detected := mimetype.Detect(data)
	for t := range accepted {
		if detected.Is(t) {
			return t
		}
	}
	return normalizeType(detected.String())
}

// MediaRef is the value of a question's image or audio slot.
type MediaRef struct {
	URL       string
	Temporary bool
}

// Durable wraps a URL returned by the server.
func Durable(url string) MediaRef { return MediaRef{URL: url} }

// IsZero reports an empty slot.
func (r MediaRef) IsZero() bool { return r.URL == "" }

// durableURL is the value sent to the server: temporary references never
// leave the process.
func (r MediaRef) durableURL() *string {
	if r.Temporary || r.URL == "" {
		return nil
	}
	u := r.URL
	return &u
}

func mediaRefFrom(url *string) MediaRef {
	if url == nil || *url == "" {
		return MediaRef{}
	}
	return Durable(*url)
}

// mediaStore holds the bytes behind temporary references until they are
// released.
type mediaStore struct {
	blobs map[string][]byte
}

func newMediaStore() *mediaStore {
	return &mediaStore{blobs: make(map[string][]byte)}
}

func (s *mediaStore) put(data []byte) MediaRef {
	ref := tempRefPrefix + uuid.NewString()
	s.blobs[ref] = data
	return MediaRef{URL: ref, Temporary: true}
}

func (s *mediaStore) get(ref string) ([]byte, bool) {
	b, ok := s.blobs[ref]
	return b, ok
}

// release frees r if it is temporary. Releasing twice is a no-op.
func (s *mediaStore) release(r MediaRef) {
	if r.Temporary {
		delete(s.blobs, r.URL)
	}
}

func (s *mediaStore) len() int { return len(s.blobs) }

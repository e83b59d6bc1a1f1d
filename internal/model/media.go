package model

// MediaKind distinguishes the two media slots of a question.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
)

// Upload size limits shared by the API and its clients.
const (
	DefaultMaxImageBytes int64 = 5 * 1024 * 1024
	DefaultMaxAudioBytes int64 = 20 * 1024 * 1024
)

// ImageMIMETypes maps accepted image MIME types to their file extension.
var ImageMIMETypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// AudioMIMETypes maps accepted audio MIME types to their file extension.
var AudioMIMETypes = map[string]string{
	"audio/mpeg":  ".mp3",
	"audio/wav":   ".wav",
	"audio/ogg":   ".ogg",
	"audio/mp4":   ".m4a",
	"audio/x-m4a": ".m4a",
	"audio/aac":   ".aac",
	"audio/webm":  ".weba",
}

// MIMETypes returns the accepted MIME types for kind.
func (k MediaKind) MIMETypes() map[string]string {
	if k == MediaAudio {
		return AudioMIMETypes
	}
	return ImageMIMETypes
}

// Valid reports whether k is a known media kind.
func (k MediaKind) Valid() bool {
	return k == MediaImage || k == MediaAudio
}

// MediaUpload is returned by the question media upload endpoints.
type MediaUpload struct {
	URL      string   `json:"url"`
	Question Question `json:"question"`
}

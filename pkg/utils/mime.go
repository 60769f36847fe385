package utils

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// DetectMime determines the MIME type of an attachment, by extension first
// and by content sniffing otherwise.
func DetectMime(name string, data []byte) string {
	if ext := filepath.Ext(name); ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return t
		}
	}
	if len(data) > 0 {
		return http.DetectContentType(data)
	}
	return "application/octet-stream"
}

// IsMedia reports whether mimeType names image, audio or video content.
func IsMedia(mimeType string) bool {
	for _, prefix := range []string{"image/", "audio/", "video/"} {
		if strings.HasPrefix(mimeType, prefix) {
			return true
		}
	}
	return false
}

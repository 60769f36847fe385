package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectMime(t *testing.T) {
	assert.Contains(t, DetectMime("notes.txt", nil), "text/plain")
	assert.Contains(t, DetectMime("blob", []byte("plain words")), "text/plain")
	assert.Equal(t, "application/octet-stream", DetectMime("blob", nil))
}

func TestIsMedia(t *testing.T) {
	assert.True(t, IsMedia("image/png"))
	assert.True(t, IsMedia("video/mp4"))
	assert.False(t, IsMedia("text/plain; charset=utf-8"))
	assert.False(t, IsMedia(""))
}

package storage

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestObjectName(t *testing.T) {
	now := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)

	name := ObjectName("post-1", ".png", now)

	assert.Regexp(t, regexp.MustCompile(`^posts/post-1/2026/03/[0-9a-f-]{36}\.png$`), name)
}

func TestPublicURL(t *testing.T) {
	assert.Equal(t, "http://cdn.local/images/posts/a.jpg", PublicURL("http://cdn.local/", "images", "posts/a.jpg"))
}

func TestImageExt(t *testing.T) {
	tests := []struct {
		fileName    string
		contentType string
		want        string
	}{
		{fileName: "photo.PNG", want: ".png"},
		{fileName: "123", contentType: "image/webp", want: ".webp"},
		{fileName: "123", contentType: "image/jpeg", want: ".jpg"},
		{fileName: "", contentType: "", want: ".jpg"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, imageExt(tt.fileName, tt.contentType))
	}
}

package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsHeic(t *testing.T) {
	uuid36 := "0b8e3c4a-1f2d-4e5f-8a9b-0c1d2e3f4a5b"

	tests := []struct {
		name     string
		fileName string
		mimeType string
		want     bool
	}{
		{"lowercase extension", "photo.heic", "", true},
		{"uppercase extension", "PHOTO.HEIC", "", true},
		{"mixed case extension", "Photo.HeIc", "application/octet-stream", true},
		{"heic mime", "photo.jpg", "image/heic", true},
		{"heif mime", "document.pdf", "image/heif", true},
		{"heif mime without name", "", "image/heif", true},
		{"png", "photo.png", "image/png", false},
		{"heif extension is not matched by name", "photo.heif", "", false},
		{"mime match is exact", "photo", "IMAGE/HEIC", false},
		{"36 chars without dot", uuid36, "", true},
		{"35 chars without dot", strings.Repeat("a", 35), "", false},
		{"37 chars without dot", strings.Repeat("a", 37), "", false},
		{"36 chars counted as runes", strings.Repeat("a", 35) + "é", "", true},
		{"35 chars of 36 bytes", strings.Repeat("a", 34) + "é", "", false},
		{"36 chars with dot", strings.Repeat("a", 31) + ".jpeg", "", false},
		{"36 chars without dot any mime", strings.Repeat("z", 36), "image/png", true},
		{"empty", "", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsHeic(tc.fileName, tc.mimeType))
		})
	}
}

func TestIsHeicAnyCaseSuffix(t *testing.T) {
	for _, suffix := range []string{".heic", ".HEIC", ".Heic", ".hEiC"} {
		assert.True(t, IsHeic("img_0001"+suffix, ""), suffix)
	}
}

package services

import (
	"strings"
	"unicode/utf8"
)

// uuidLength is the character count of an extensionless HubSpot-style UUID file name.
const uuidLength = 36

// IsHeic reports whether a file looks like an HEIC/HEIF image. A 36 character
// name without a dot is treated as HEIC too; that guess is deliberately loose.
func IsHeic(fileName, mimeType string) bool {
	name := strings.ToLower(fileName)
	if strings.HasSuffix(name, ".heic") {
		return true
	}
	if mimeType == "image/heic" || mimeType == "image/heif" {
		return true
	}
	return !strings.Contains(name, ".") && utf8.RuneCountInString(name) == uuidLength
}

package storage

import (
	"mime"
	"path/filepath"
	"strings"
)

// imageExtensions maps the image types the application stores to the
// extension used in keys.
var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// normalizeContentType strips parameters and lowercases a MIME type.
func normalizeContentType(contentType string) string {
	base, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(strings.ToLower(base))
}

// ContentTypeForKey guesses the MIME type of an object from its key.
func ContentTypeForKey(key string) string {
	ext := strings.ToLower(filepath.Ext(key))
	for ct, e := range imageExtensions {
		if e == ext {
			return ct
		}
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// IsAllowedImageType reports whether contentType is one of the stored image formats.
func IsAllowedImageType(contentType string) bool {
	_, ok := imageExtensions[normalizeContentType(contentType)]
	return ok
}

// ExtensionForContentType returns the key extension for a MIME type,
// including the leading dot.
func ExtensionForContentType(contentType string) string {
	ct := normalizeContentType(contentType)
	if ext, ok := imageExtensions[ct]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(ct); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

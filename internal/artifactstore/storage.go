// Package artifactstore holds the shared pieces of the artifact storage backends.
package artifactstore

import (
	"fmt"
	"path"
	"strings"
)

// Driver names, as used in configuration.
const (
	DriverFilesystem = "fs"     // local directory (default)
	DriverS3         = "s3"     // S3 / MinIO compatible
	DriverMemory     = "memory" // in-memory (tests)
)

// Content types of the artifacts the pipeline writes.
const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypePNG  = "image/png"
)

// CleanKey validates a slash-separated key and returns its normalized form.
// Empty, absolute and parent-escaping keys are rejected.
func CleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid key %q contains '..'", key)
		}
	}
	return path.Clean(key), nil
}

// ContentTypeFor guesses the content type from the key extension.
func ContentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".xlsx":
		return ContentTypeXLSX
	case ".png":
		return ContentTypePNG
	default:
		return "application/octet-stream"
	}
}

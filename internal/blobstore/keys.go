package blobstore

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

const objectKeyPrefix = "objects"

// newObjectKey returns a fresh key sharded by the first two uuid bytes.
func newObjectKey() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s/%s/%s/%s", objectKeyPrefix, id[0:2], id[2:4], id)
}

func validateKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("blob key is required")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", fmt.Errorf("blob key must be relative")
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || clean != key {
		return "", fmt.Errorf("invalid blob key")
	}
	return clean, nil
}

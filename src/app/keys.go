package app

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

const defaultExtension = "jpg"

// Extension returns the lower-cased suffix of the last path segment of uri,
// or "jpg" when there is none. Only URIs with a scheme lose their query and
// fragment; plain file names are taken as they are.
func Extension(uri string) string {
	if u, err := url.Parse(uri); err == nil && len(u.Scheme) > 1 && u.Path != "" {
		uri = u.Path
	}
	base := path.Base(strings.ReplaceAll(uri, "\\", "/"))
	i := strings.LastIndexByte(base, '.')
	if i < 0 || i == len(base)-1 {
		return defaultExtension
	}
	ext := strings.ToLower(base[i+1:])
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return defaultExtension
		}
	}
	return ext
}

// StorageKey derives the object key of one upload: {userID}/{unixMillis}.{ext}.
func StorageKey(userID string, at time.Time, ext string) string {
	return fmt.Sprintf("%s/%d.%s", userID, at.UnixMilli(), ext)
}

// ContentType prefers the picked MIME type and guesses image/{ext} otherwise.
func ContentType(mimeType, ext string) string {
	if mimeType != "" {
		return mimeType
	}
	if ext == "jpg" {
		return "image/jpeg"
	}
	return "image/" + ext
}

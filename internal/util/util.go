package util

import (
	"crypto/md5"
	"encoding/hex"
	"path"
	"strings"
)

const (
	contentHashLen = 8
	fallbackName   = "audio"
	maxBaseNameLen = 80
)

// ContentHash returns the 8 hex char token embedded into downloaded file names.
// MD5 keeps the tokens compatible with folders filled by earlier versions.
func ContentHash(rawURL string) string {
	sum := md5.Sum([]byte(rawURL))

	return hex.EncodeToString(sum[:])[:contentHashLen]
}

// BaseName returns a filesystem safe name for the last path segment of a URL, without extension.
func BaseName(urlPath string) string {
	name := path.Base(urlPath)
	if name == "." || name == "/" {
		return fallbackName
	}

	name = strings.TrimSuffix(name, path.Ext(name))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		case r == '_' || r == ' ':
			b.WriteRune('-')
		}

		if b.Len() >= maxBaseNameLen {
			break
		}
	}

	if b.Len() == 0 {
		return fallbackName
	}

	return b.String()
}

// Package signature turns probe metadata into keys that tell whether two links carry the same audio.
package signature

import (
	"strconv"
	"strings"
	"time"

	"github.com/jgivc/acstdl/internal/entity"
	"github.com/jgivc/acstdl/internal/service/urlid"
)

const keySeparator = "|"

// Build derives the signature of a probed link. Only present parts take part in the keys.
func Build(identity string, probe entity.ProbeResult) entity.ContentSignature {
	var lastModified string
	if probe.LastModified != nil {
		lastModified = probe.LastModified.UTC().Format(time.RFC3339)
	}

	if probe.SizeBytes != nil {
		parts := []string{"size=" + strconv.FormatInt(*probe.SizeBytes, 10)}
		parts = appendPart(parts, "lm", lastModified)
		parts = appendPart(parts, "etag", probe.ETag)
		parts = appendPart(parts, "id", identity)

		return entity.ContentSignature{PrimaryKey: strings.Join(parts, keySeparator)}
	}

	var parts []string
	parts = appendPart(parts, "id", identity)
	parts = appendPart(parts, "etag", probe.ETag)
	parts = appendPart(parts, "lm", lastModified)

	return entity.ContentSignature{FallbackKey: strings.Join(parts, keySeparator)}
}

// Sign builds the signature with the identity taken from the resolved URL when the probe got one.
func Sign(link entity.LinkRecord, probe entity.ProbeResult) entity.SignedLink {
	target := link.URL
	if probe.FinalURL != "" {
		target = probe.FinalURL
	}

	return entity.SignedLink{
		Link:      link,
		Signature: Build(urlid.Identify(target), probe),
	}
}

// Duplicate compares signatures of the same category only. Signatures without evidence never match.
func Duplicate(a, b entity.ContentSignature) bool {
	switch {
	case a.PrimaryKey != "" && b.PrimaryKey != "":
		return a.PrimaryKey == b.PrimaryKey
	case a.PrimaryKey == "" && b.PrimaryKey == "":
		return a.FallbackKey != "" && a.FallbackKey == b.FallbackKey
	}

	return false
}

func appendPart(parts []string, name, value string) []string {
	if value == "" {
		return parts
	}

	return append(parts, name+"="+value)
}

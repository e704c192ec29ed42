// Package urlid extracts a stable identity token from an episode URL.
package urlid

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

const minHashLen = 8

var (
	uuidRegexp    = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	hexRegexp     = regexp.MustCompile(`(?i)^[0-9a-f]+$`)
	alnumRegexp   = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	letterRegexp  = regexp.MustCompile(`[A-Za-z]`)
	digitRegexp   = regexp.MustCompile(`[0-9]`)
	episodeRegexp = regexp.MustCompile(`(?i)(?:^|[^a-z])(?:episode|ep|e)[-_ ]?(\d{1,5})(?:[^0-9]|$)`)

	episodeQueryKeys = []string{"episode", "ep"}
)

// Identify returns the most specific identity token found in rawURL, or an empty string.
// The file name is searched first for a uuid, a hash-like token and an episode number, then the query.
// Parent folders only contribute a uuid, they are usually shared by a whole show or season.
// The file stem is the last resort.
func Identify(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}

	segments := pathSegments(u)
	query := u.Query()

	var file string
	parents := segments
	if len(segments) > 0 {
		file = segments[len(segments)-1]
		parents = segments[:len(segments)-1]
	}

	for _, try := range []func() string{
		func() string { return findUUID(file) },
		func() string { return findHash(file) },
		func() string { return findEpisode(file) },
		func() string { return findUUID(u.RawQuery) },
		func() string { return findQueryEpisode(query) },
		func() string { return findParentUUID(parents) },
		func() string { return stem(file) },
	} {
		if token := try(); token != "" {
			return strings.ToLower(token)
		}
	}

	return ""
}

func pathSegments(u *url.URL) []string {
	var segments []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}

	return segments
}

func findUUID(s string) string {
	return uuidRegexp.FindString(s)
}

// findParentUUID prefers the folder closest to the file.
func findParentUUID(parents []string) string {
	for i := len(parents) - 1; i >= 0; i-- {
		if m := findUUID(parents[i]); m != "" {
			return m
		}
	}

	return ""
}

func findHash(file string) string {
	s := stem(file)
	if len(s) < minHashLen {
		return ""
	}

	if hexRegexp.MatchString(s) {
		return s
	}

	if alnumRegexp.MatchString(s) && letterRegexp.MatchString(s) && digitRegexp.MatchString(s) {
		return s
	}

	return ""
}

func findEpisode(file string) string {
	if m := episodeRegexp.FindStringSubmatch(file); m != nil {
		return "ep" + strings.TrimLeft(m[1], "0")
	}

	return ""
}

func findQueryEpisode(query url.Values) string {
	for _, key := range episodeQueryKeys {
		if v := query.Get(key); v != "" && digitOnly(v) {
			return "ep" + strings.TrimLeft(v, "0")
		}
	}

	return ""
}

func digitOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return s != ""
}

func stem(file string) string {
	return strings.TrimSuffix(file, path.Ext(file))
}

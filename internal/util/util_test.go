package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContentHashIsStable(t *testing.T) {
	url := "https://cdn.example.com/shows/ep-42.mp3?x=1"

	first := ContentHash(url)
	require.Len(t, first, 8)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, ContentHash(url))
	}

	require.NotEqual(t, ContentHash("https://example.com/a.mp3"), ContentHash("https://example.com/b.mp3"))
}

func TestContentHashKnownValue(t *testing.T) {
	// md5("") = d41d8cd98f00b204e9800998ecf8427e
	require.Equal(t, "d41d8cd9", ContentHash(""))
}

func TestBaseName(t *testing.T) {
	testCases := []struct {
		path string
		want string
	}{
		{path: "/shows/episode_12.mp3", want: "episode-12"},
		{path: "/shows/Ep 3 (final).MP3", want: "Ep-3-final"},
		{path: "/", want: "audio"},
		{path: "", want: "audio"},
		{path: "/a/%%%.mp3", want: "audio"},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			require.Equal(t, tc.want, BaseName(tc.path))
		})
	}
}

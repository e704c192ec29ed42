package urlid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentify(t *testing.T) {
	testCases := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "uuid in path",
			url:  "https://cdn.example.com/audio/3F2504E0-4F89-11D3-9A0C-0305E82C3301/file.mp3",
			want: "3f2504e0-4f89-11d3-9a0c-0305e82c3301",
		},
		{
			name: "uuid in query",
			url:  "https://cdn.example.com/play.mp3?id=3f2504e0-4f89-11d3-9a0c-0305e82c3301",
			want: "3f2504e0-4f89-11d3-9a0c-0305e82c3301",
		},
		{
			name: "hex file name",
			url:  "https://cdn.example.com/a/DEADBEEF42.mp3",
			want: "deadbeef42",
		},
		{
			name: "hash folder is not an identity",
			url:  "https://cdn.example.com/podcast2024/intro.mp3",
			want: "intro",
		},
		{
			name: "season folder does not shadow episode",
			url:  "https://cdn.example.com/show/season02/episode-5.mp3",
			want: "ep5",
		},
		{
			name: "uuid folder beats stem",
			url:  "https://cdn.example.com/show/season02/3f2504e0-4f89-11d3-9a0c-0305e82c3301/audio.mp3",
			want: "3f2504e0-4f89-11d3-9a0c-0305e82c3301",
		},
		{
			name: "episode file beats uuid folder",
			url:  "https://cdn.example.com/3f2504e0-4f89-11d3-9a0c-0305e82c3301/ep-9.mp3",
			want: "ep9",
		},
		{
			name: "hash file name wins over folder",
			url:  "https://cdn.example.com/abcdef1234/x9y8z7w6v5.mp3",
			want: "x9y8z7w6v5",
		},
		{
			name: "letters only is not a hash",
			url:  "https://cdn.example.com/podcasts/episode-42.mp3",
			want: "ep42",
		},
		{
			name: "episode with underscore",
			url:  "https://cdn.example.com/show/Ep_007_final.mp3",
			want: "ep7",
		},
		{
			name: "episode in query",
			url:  "https://cdn.example.com/stream.mp3?episode=15",
			want: "ep15",
		},
		{
			name: "file stem",
			url:  "https://cdn.example.com/show/Intro.MP3",
			want: "intro",
		},
		{
			name: "nothing",
			url:  "https://cdn.example.com/",
			want: "",
		},
		{
			name: "garbage",
			url:  "://bad url",
			want: "",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Identify(tc.url))
		})
	}
}

func TestIdentifyIgnoresHost(t *testing.T) {
	require.Equal(t,
		Identify("https://mirror-a.example.com/media/episode-3.mp3"),
		Identify("https://mirror-b.example.org/other/episode-3.mp3"),
	)
}

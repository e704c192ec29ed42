package selector

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jgivc/acstdl/internal/entity"
	"github.com/jgivc/acstdl/internal/service/schedule"
)

// probeTable answers probes from a fixed table, unknown URLs fail with a timeout.
type probeTable map[string]entity.ProbeResult

func (p probeTable) Probe(ctx context.Context, url string) entity.ProbeResult {
	res, exists := p[url]
	if !exists {
		return entity.ProbeResult{URL: url, ErrorKind: entity.ErrorKindTimeout}
	}
	res.URL = url
	res.OK = true

	return res
}

func size(n int64) *int64 {
	return &n
}

func newSelector(probes probeTable, reverse bool) *DeduplicationSelector {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewDeduplicationSelector(schedule.NewDomainScheduler(probes, 2, log), reverse, log)
}

func TestSelectOrderIsReversed(t *testing.T) {
	urls := []string{
		"https://a.example.com/l1.mp3",
		"https://b.example.com/l2.mp3",
		"https://a.example.com/l3.mp3",
	}
	probes := probeTable{
		urls[0]: {SizeBytes: size(1)},
		urls[1]: {SizeBytes: size(2)},
		urls[2]: {SizeBytes: size(3)},
	}

	selected := newSelector(probes, true).Select(context.Background(), entity.NewLinkRecords(urls), 0)
	require.Equal(t, []string{urls[2], urls[1], urls[0]}, entity.LinkURLs(selected))

	selected = newSelector(probes, false).Select(context.Background(), entity.NewLinkRecords(urls), 0)
	require.Equal(t, urls, entity.LinkURLs(selected))
}

func TestSelectCap(t *testing.T) {
	var urls []string
	probes := probeTable{}
	for i, name := range []string{"e1", "e2", "e3", "e4", "e5", "e6", "e7"} {
		u := "https://a.example.com/" + name + ".mp3"
		urls = append(urls, u)
		probes[u] = entity.ProbeResult{SizeBytes: size(int64(100 + i))}
	}

	selected := newSelector(probes, true).Select(context.Background(), entity.NewLinkRecords(urls), 3)
	require.Equal(t, []string{urls[2], urls[1], urls[0]}, entity.LinkURLs(selected))
}

func TestSelectDuplicateByContent(t *testing.T) {
	urls := []string{
		"https://cdn1.example.com/shows/episode-12.mp3",
		"https://cdn2.example.net/mirror/episode-12.mp3",
		"https://cdn1.example.com/shows/episode-11.mp3",
	}
	probes := probeTable{
		urls[0]: {SizeBytes: size(5000), ETag: "v1"},
		urls[1]: {SizeBytes: size(5000), ETag: "v1"},
		urls[2]: {SizeBytes: size(4000), ETag: "v0"},
	}

	selected := newSelector(probes, true).Select(context.Background(), entity.NewLinkRecords(urls), 2)
	require.Equal(t, []string{urls[2], urls[0]}, entity.LinkURLs(selected))
}

func TestSelectDuplicateAfterRedirect(t *testing.T) {
	urls := []string{
		"https://tracker.example.com/r/1",
		"https://tracker.example.com/r/2",
	}
	final := "https://cdn.example.com/a1b2c3d4e5.mp3"
	probes := probeTable{
		urls[0]: {SizeBytes: size(10), FinalURL: final},
		urls[1]: {SizeBytes: size(10), FinalURL: final},
	}

	selected := newSelector(probes, true).Select(context.Background(), entity.NewLinkRecords(urls), 0)
	require.Equal(t, []string{urls[0]}, entity.LinkURLs(selected))
}

func TestSelectFailOpen(t *testing.T) {
	urls := []string{
		"https://down.example.com/",
		"https://down.example.com/?",
	}

	selected := newSelector(probeTable{}, true).Select(context.Background(), entity.NewLinkRecords(urls), 0)
	require.Equal(t, []string{urls[1], urls[0]}, entity.LinkURLs(selected))
}

func TestSelectKeepsEpisodesOfSharedFolder(t *testing.T) {
	urls := []string{
		"https://cdn.example.com/show/season02/episode-5.mp3",
		"https://cdn.example.com/show/season02/episode-6.mp3",
	}

	selected := newSelector(probeTable{}, false).Select(context.Background(), entity.NewLinkRecords(urls), 0)
	require.Equal(t, urls, entity.LinkURLs(selected))
}

func TestSelectNoLinks(t *testing.T) {
	require.Empty(t, newSelector(probeTable{}, true).Select(context.Background(), nil, 5))
}

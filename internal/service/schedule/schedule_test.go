package schedule

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jgivc/acstdl/internal/entity"
)

type fakeProber struct {
	mu       sync.Mutex
	calls    []string
	active   map[string]int
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	sizes    map[string]int64
}

func newFakeProber(sizes map[string]int64) *fakeProber {
	return &fakeProber{active: make(map[string]int), sizes: sizes}
}

func (p *fakeProber) Probe(ctx context.Context, url string) entity.ProbeResult {
	domain := Domain(url)

	p.mu.Lock()
	p.calls = append(p.calls, url)
	p.active[domain]++
	if p.active[domain] > 1 {
		p.mu.Unlock()
		panic("parallel probes within one domain")
	}
	p.mu.Unlock()

	cur := p.inFlight.Add(1)
	for {
		seen := p.maxSeen.Load()
		if cur <= seen || p.maxSeen.CompareAndSwap(seen, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	p.inFlight.Add(-1)

	p.mu.Lock()
	p.active[domain]--
	p.mu.Unlock()

	res := entity.ProbeResult{URL: url, OK: true}
	if size, exists := p.sizes[url]; exists {
		res.SizeBytes = &size
	}

	return res
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWindow(t *testing.T) {
	links := entity.NewLinkRecords([]string{"a", "b", "a", "c", "d", "e"})

	require.Equal(t, []string{"a", "b", "c", "d", "e"}, entity.LinkURLs(Window(links, 0)))
	require.Equal(t, []string{"a", "b", "c", "d"}, entity.LinkURLs(Window(links, 2)))
	require.Equal(t, 3, Window(links, 2)[2].DiscoveryOrder)
}

func TestGroupByDomain(t *testing.T) {
	links := entity.NewLinkRecords([]string{
		"https://A.example.com/1.mp3",
		"https://b.example.com/2.mp3",
		"https://a.example.com/3.mp3",
		"not a url\x7f",
	})

	groups := GroupByDomain(links)
	require.Len(t, groups, 3)
	require.Equal(t, "a.example.com", groups[0].Domain)
	require.Equal(t, []int{0, 2}, []int{groups[0].Members[0].DiscoveryOrder, groups[0].Members[1].DiscoveryOrder})
	require.Equal(t, "b.example.com", groups[1].Domain)
	require.Equal(t, "", groups[2].Domain)
}

func TestResolveAllKeepsOrderAndBounds(t *testing.T) {
	var urls []string
	for _, host := range []string{"a", "b", "c", "d", "e", "f"} {
		for _, n := range []string{"1", "2", "3"} {
			urls = append(urls, "https://"+host+".example.com/"+n+".mp3")
		}
	}
	// interleave domains
	links := entity.NewLinkRecords([]string{
		urls[0], urls[3], urls[6], urls[9], urls[12], urls[15],
		urls[1], urls[4], urls[7], urls[10], urls[13], urls[16],
		urls[2], urls[5], urls[8], urls[11], urls[14], urls[17],
	})

	prober := newFakeProber(map[string]int64{urls[0]: 10})
	s := NewDomainScheduler(prober, 2, discard())

	signed := s.ResolveAll(context.Background(), links, 0)
	require.Len(t, signed, len(links))
	for i, sl := range signed {
		require.Equal(t, links[i], sl.Link)
	}
	require.Equal(t, "size=10|id=1", signed[0].Signature.PrimaryKey)
	require.LessOrEqual(t, prober.maxSeen.Load(), int32(2))
	require.Len(t, prober.calls, len(links))
}

func TestResolveAllProbesWindowOnly(t *testing.T) {
	links := entity.NewLinkRecords([]string{
		"https://a.example.com/1.mp3",
		"https://a.example.com/1.mp3",
		"https://a.example.com/2.mp3",
		"https://a.example.com/3.mp3",
		"https://a.example.com/4.mp3",
	})

	prober := newFakeProber(nil)
	signed := NewDomainScheduler(prober, 4, discard()).ResolveAll(context.Background(), links, 1)

	require.Equal(t, []string{"https://a.example.com/1.mp3", "https://a.example.com/2.mp3"}, prober.calls)
	require.Len(t, signed, 2)
	require.Equal(t, 2, signed[1].Link.DiscoveryOrder)
}

func TestResolveAllEmpty(t *testing.T) {
	require.Empty(t, NewDomainScheduler(newFakeProber(nil), 2, discard()).ResolveAll(context.Background(), nil, 3))
}

// Package schedule probes links grouped by domain with a bounded number of domains in flight.
package schedule

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/jgivc/acstdl/internal/entity"
	"github.com/jgivc/acstdl/internal/service/signature"
)

type Prober interface {
	Probe(ctx context.Context, url string) entity.ProbeResult
}

type DomainScheduler struct {
	prober     Prober
	maxDomains int
	log        *slog.Logger
}

func NewDomainScheduler(prober Prober, maxDomains int, log *slog.Logger) *DomainScheduler {
	if maxDomains < 1 {
		maxDomains = 1
	}

	return &DomainScheduler{
		prober:     prober,
		maxDomains: maxDomains,
		log:        log.With(slog.String("item", "DomainScheduler")),
	}
}

// ResolveAll returns one signed link per distinct URL of the probing window, in input order.
// The window is the first maxMp3Links*2 distinct links, or all of them when maxMp3Links <= 0.
func (s *DomainScheduler) ResolveAll(ctx context.Context, links []entity.LinkRecord, maxMp3Links int) []entity.SignedLink {
	links = Window(links, maxMp3Links)
	if len(links) == 0 {
		return []entity.SignedLink{}
	}

	groups := GroupByDomain(links)
	workers := min(s.maxDomains, len(groups))

	in := make(chan entity.DomainGroup, len(groups))
	out := make(chan []entity.SignedLink, len(groups))

	for _, group := range groups {
		in <- group
	}
	close(in)

	var wg sync.WaitGroup
	wg.Add(workers)
	for n := 0; n < workers; n++ {
		go s.worker(ctx, n, in, out, &wg)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	byURL := make(map[string]entity.SignedLink, len(links))
	for signed := range out {
		for _, sl := range signed {
			byURL[sl.Link.URL] = sl
		}
	}

	result := make([]entity.SignedLink, 0, len(links))
	for _, link := range links {
		result = append(result, byURL[link.URL])
	}

	s.log.Debug("Resolved links", slog.Int("links", len(links)), slog.Int("domains", len(groups)))

	return result
}

// Members of a domain are probed one after another so they share the domain session.
func (s *DomainScheduler) worker(ctx context.Context, n int, in chan entity.DomainGroup, out chan []entity.SignedLink, wg *sync.WaitGroup) {
	defer wg.Done()

	log := s.log.With(slog.Int("worker_id", n))

	for group := range in {
		log.Debug("Probe domain", slog.String("domain", group.Domain), slog.Int("links", len(group.Members)))

		signed := make([]entity.SignedLink, 0, len(group.Members))
		for _, link := range group.Members {
			signed = append(signed, signature.Sign(link, s.prober.Probe(ctx, link.URL)))
		}

		out <- signed
	}
}

// Window drops repeated URLs and keeps the first maxMp3Links*2 links.
func Window(links []entity.LinkRecord, maxMp3Links int) []entity.LinkRecord {
	seen := make(map[string]struct{}, len(links))
	window := make([]entity.LinkRecord, 0, len(links))

	for _, link := range links {
		if maxMp3Links > 0 && len(window) >= maxMp3Links*2 {
			break
		}

		if _, exists := seen[link.URL]; exists {
			continue
		}
		seen[link.URL] = struct{}{}

		window = append(window, link)
	}

	return window
}

// GroupByDomain keeps the order of first appearance for domains and for members.
func GroupByDomain(links []entity.LinkRecord) []entity.DomainGroup {
	var groups []entity.DomainGroup
	index := make(map[string]int)

	for _, link := range links {
		domain := Domain(link.URL)

		i, exists := index[domain]
		if !exists {
			i = len(groups)
			index[domain] = i
			groups = append(groups, entity.DomainGroup{Domain: domain})
		}
		groups[i].Members = append(groups[i].Members, link)
	}

	return groups
}

func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	return strings.ToLower(u.Hostname())
}

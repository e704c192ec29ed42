package entity

// LinkRecord is one candidate episode URL in the order it was discovered on the feed page.
type LinkRecord struct {
	URL            string
	DiscoveryOrder int // Position of first appearance, strictly increasing within a sequence
}

// DomainGroup batches the links that share a host so they can reuse one session.
type DomainGroup struct {
	Domain  string
	Members []LinkRecord
}

func NewLinkRecords(urls []string) []LinkRecord {
	links := make([]LinkRecord, 0, len(urls))
	for i, u := range urls {
		links = append(links, LinkRecord{URL: u, DiscoveryOrder: i})
	}

	return links
}

func LinkURLs(links []LinkRecord) []string {
	urls := make([]string, 0, len(links))
	for _, link := range links {
		urls = append(urls, link.URL)
	}

	return urls
}

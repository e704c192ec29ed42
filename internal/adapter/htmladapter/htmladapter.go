// Package htmladapter finds mp3 links on a feed page.
package htmladapter

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const mp3Ext = ".mp3"

var bareMP3Regexp = regexp.MustCompile(`(?i)https?://[^\s<>"']+\.mp3(?:\?[^\s<>"']*)?`)

var linkAttrs = map[string]string{
	"a":      "href",
	"audio":  "src",
	"source": "src",
}

type linkExtractor struct{}

func NewLinkExtractor() *linkExtractor {
	return &linkExtractor{}
}

// Extract returns absolute mp3 URLs in document order.
// Links come from <a href>, <audio src> and <source src>, plus bare URLs in text, scripts and other attributes.
func (e *linkExtractor) Extract(content []byte, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("cannot parse base url %s: %w", baseURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("cannot parse html: %w", err)
	}

	seen := make(map[string]struct{})
	urls := []string{}

	add := func(link string) {
		if _, exists := seen[link]; exists {
			return
		}
		seen[link] = struct{}{}
		urls = append(urls, link)
	}

	sweep := func(text string) {
		for _, m := range bareMP3Regexp.FindAllString(text, -1) {
			add(m)
		}
	}

	var walk func(s *goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			switch name := goquery.NodeName(c); name {
			case "#text":
				sweep(c.Text())
			case "#comment":
			default:
				linkAttr := linkAttrs[name]
				for _, attr := range c.Get(0).Attr {
					if link, ok := resolve(base, attr.Val); ok && attr.Key == linkAttr {
						add(link)

						continue
					}
					sweep(attr.Val)
				}

				walk(c)
			}
		})
	}
	walk(doc.Selection)

	return urls, nil
}

func resolve(base *url.URL, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if !strings.HasSuffix(strings.ToLower(raw), mp3Ext) {
		return "", false
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	return base.ResolveReference(ref).String(), true
}

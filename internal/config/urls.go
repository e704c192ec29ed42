package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v2"
)

// FeedURL is one configured feed page. Name is also the output sub folder.
type FeedURL struct {
	Name string
	URL  string
}

// URLsConfig accepts either a name->url mapping (file order kept) or a plain list of urls,
// which are named url_1, url_2 and so on.
type URLsConfig struct {
	Entries []FeedURL
}

func (u *URLsConfig) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}

	switch raw.(type) {
	case nil:
		u.Entries = nil

		return nil
	case []any:
		var list []string
		if err := unmarshal(&list); err != nil {
			return fmt.Errorf("cannot parse urls list: %w", err)
		}

		entries := make([]FeedURL, 0, len(list))
		for i, url := range list {
			entries = append(entries, FeedURL{Name: fmt.Sprintf("url_%d", i+1), URL: strings.TrimSpace(url)})
		}
		u.Entries = entries

		return nil
	case map[any]any:
		var items yaml.MapSlice
		if err := unmarshal(&items); err != nil {
			return fmt.Errorf("cannot parse urls map: %w", err)
		}

		entries := make([]FeedURL, 0, len(items))
		for _, item := range items {
			name := strings.TrimSpace(fmt.Sprint(item.Key))
			url, ok := item.Value.(string)
			if name == "" || !ok {
				return fmt.Errorf("invalid urls entry %v: %v", item.Key, item.Value)
			}
			if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
				return fmt.Errorf("invalid feed name %q", name)
			}
			entries = append(entries, FeedURL{Name: name, URL: strings.TrimSpace(url)})
		}
		u.Entries = entries

		return nil
	}

	return fmt.Errorf("urls must be a mapping or a list, got %T", raw)
}

package newsapi

import (
	"encoding/json"
	"net/url"
	"strings"
)

type rawItem struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	SourceName  string   `json:"source_name"`
	PageAge     string   `json:"page_age"`
	Snippets    []string `json:"snippets"`
}

type searchResponse struct {
	Results map[string]json.RawMessage `json:"results"`
}

// strategy pulls items out of one known response shape. ok is false when
// the shape is absent or empty, so the next strategy gets a turn.
type strategy struct {
	name    string
	extract func(results map[string]json.RawMessage) (items []rawItem, ok bool)
}

// strategies are tried in order; the first populated shape wins.
var strategies = []strategy{
	{name: "news", extract: listAt("news", nil)},
	{name: "web", extract: listAt("web", webFallbacks)},
}

func listAt(key string, fix func(*rawItem)) func(map[string]json.RawMessage) ([]rawItem, bool) {
	return func(results map[string]json.RawMessage) ([]rawItem, bool) {
		raw, ok := results[key]
		if !ok {
			return nil, false
		}
		var items []rawItem
		if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
			return nil, false
		}
		if fix != nil {
			for i := range items {
				fix(&items[i])
			}
		}
		return items, true
	}
}

// webFallbacks fills fields the web shape often omits.
func webFallbacks(it *rawItem) {
	if strings.TrimSpace(it.Description) == "" && len(it.Snippets) > 0 {
		it.Description = it.Snippets[0]
	}
	if strings.TrimSpace(it.SourceName) == "" {
		if u, err := url.Parse(strings.TrimSpace(it.URL)); err == nil && u.Host != "" {
			it.SourceName = strings.TrimPrefix(u.Host, "www.")
		}
	}
}

func extract(body []byte) (items []rawItem, shape string, err error) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, "", err
	}
	for _, s := range strategies {
		if items, ok := s.extract(resp.Results); ok {
			return items, s.name, nil
		}
	}
	return nil, "", nil
}

// Package catalog holds the HogFlix content titles, browse sections and the
// search-term pool that sessions and the backfill emitter draw from.
package catalog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"hogsim/internal/core"
)

// Content is one watchable title.
type Content struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Genre    string `json:"genre"`
	Duration int    `json:"duration_seconds"`
}

// Catalog is immutable after loading and safe to share between sessions.
type Catalog struct {
	Items       []Content `json:"items"`
	Sections    []string  `json:"sections"`
	SearchTerms []string  `json:"search_terms"`
}

// Default returns the built-in catalog mirroring the demo site's seed data.
func Default() *Catalog {
	return &Catalog{
		Items: []Content{
			{ID: "hf-001", Title: "The Hedgehog Protocol", Genre: "thriller", Duration: 6120},
			{ID: "hf-002", Title: "Quills of Fortune", Genre: "adventure", Duration: 5580},
			{ID: "hf-003", Title: "Night Shift at the Data Lake", Genre: "comedy", Duration: 1440},
			{ID: "hf-004", Title: "Funnel Vision", Genre: "documentary", Duration: 3300},
			{ID: "hf-005", Title: "Session Replay", Genre: "thriller", Duration: 6900},
			{ID: "hf-006", Title: "Max and the Feature Flag", Genre: "family", Duration: 4980},
			{ID: "hf-007", Title: "Retention Curve", Genre: "drama", Duration: 7260},
			{ID: "hf-008", Title: "Cohort", Genre: "sci-fi", Duration: 6480},
			{ID: "hf-009", Title: "A/B Testing in Paris", Genre: "romance", Duration: 5820},
			{ID: "hf-010", Title: "The Last Pageview", Genre: "horror", Duration: 5400},
			{ID: "hf-011", Title: "Spiky Business", Genre: "comedy", Duration: 1560},
			{ID: "hf-012", Title: "Autocapture", Genre: "documentary", Duration: 2880},
		},
		Sections:    []string{"trending", "new-releases", "comedy", "documentaries", "continue-watching", "top-picks"},
		SearchTerms: []string{"hedgehog", "thriller", "comedy", "documentary", "data", "funnel", "space", "romance", "family movie", "retention"},
	}
}

// Validate reports a catalog that sessions could not use.
func (c *Catalog) Validate() error {
	if len(c.Items) == 0 {
		return fmt.Errorf("catalog has no content items")
	}
	for i, item := range c.Items {
		if item.ID == "" || item.Title == "" {
			return fmt.Errorf("catalog item %d: id and title are required", i)
		}
	}
	return nil
}

// Lookup returns the content with id.
func (c *Catalog) Lookup(id string) (Content, bool) {
	for _, item := range c.Items {
		if item.ID == id {
			return item, true
		}
	}
	return Content{}, false
}

// RandomContent picks a title.
func (c *Catalog) RandomContent(r *core.Rand) Content {
	return core.Pick(r, c.Items)
}

// RandomSection picks a browse section.
func (c *Catalog) RandomSection(r *core.Rand) string {
	return core.Pick(r, c.Sections)
}

// RandomTerm picks a search query.
func (c *Catalog) RandomTerm(r *core.Rand) string {
	return core.Pick(r, c.SearchTerms)
}

// Search returns titles whose title or genre contains term, case-insensitively.
func (c *Catalog) Search(term string) []Content {
	term = strings.ToLower(strings.TrimSpace(term))
	var out []Content
	for _, item := range c.Items {
		if strings.Contains(strings.ToLower(item.Title), term) || strings.Contains(item.Genre, term) {
			out = append(out, item)
		}
	}
	return out
}

// LoadFile loads content items from a CSV or JSON file. CSV files need a
// header row with id, title and genre columns (duration_seconds optional).
// JSON files hold either an array of items or a full catalog object. Missing
// sections and search terms fall back to the defaults.
func LoadFile(path string) (*Catalog, error) {
	ext := strings.ToLower(filepath.Ext(path))

	var cat *Catalog
	var err error
	switch ext {
	case ".csv":
		cat, err = loadCSV(path)
	case ".json":
		cat, err = loadJSON(path)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q (use .csv or .json)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	def := Default()
	if len(cat.Sections) == 0 {
		cat.Sections = def.Sections
	}
	if len(cat.SearchTerms) == 0 {
		cat.SearchTerms = def.SearchTerms
	}
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}

func loadCSV(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV must have header row and at least one data row")
	}

	col := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"id", "title", "genre"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("CSV header missing %q column", required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	cat := &Catalog{Items: make([]Content, 0, len(records)-1)}
	for n, record := range records[1:] {
		item := Content{
			ID:    field(record, "id"),
			Title: field(record, "title"),
			Genre: strings.ToLower(field(record, "genre")),
		}
		if d := field(record, "duration_seconds"); d != "" {
			secs, err := strconv.Atoi(d)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid duration_seconds %q", n+2, d)
			}
			item.Duration = secs
		}
		cat.Items = append(cat.Items, item)
	}
	return cat, nil
}

func loadJSON(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var items []Content
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("JSON must be an array of items or a catalog object: %w", err)
		}
		return &Catalog{Items: items}, nil
	}

	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("JSON must be an array of items or a catalog object: %w", err)
	}
	return &cat, nil
}

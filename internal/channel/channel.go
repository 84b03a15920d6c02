// Package channel defines the channel catalog and its filter/search projection.
package channel

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// DefaultCategory is the category selected when the application starts.
const DefaultCategory = "live"

// Channel represents one catalog entry describing a playable stream.
type Channel struct {
	Name     string `json:"name"`
	Image    string `json:"img"`
	URL      string `json:"url"`
	Category string `json:"type"` // e.g. "live"
}

// ID returns a stable identifier for the channel. It is derived from the
// category and name only, so it survives stream URL changes across reloads.
func (c Channel) ID() string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(c.Category+"\x00"+c.Name)).String()
}

func (c Channel) DisplayName() string {
	return c.Name
}

// Valid reports whether the record can be rendered and played.
func (c Channel) Valid() bool {
	return strings.TrimSpace(c.Name) != "" && strings.TrimSpace(c.URL) != ""
}

// Catalog is an ordered, read-only list of channels. It is replaced
// wholesale on reload and never mutated in place.
type Catalog struct {
	channels []Channel
	byID     map[string]int
}

// NewCatalog builds a catalog over a private copy of channels.
func NewCatalog(channels []Channel) *Catalog {
	c := &Catalog{
		channels: make([]Channel, len(channels)),
		byID:     make(map[string]int, len(channels)),
	}
	copy(c.channels, channels)

	for i, ch := range c.channels {
		id := ch.ID()
		// First record wins, matching name-based lookup order.
		if _, exists := c.byID[id]; !exists {
			c.byID[id] = i
		}
	}
	return c
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.channels)
}

// All returns a copy of every channel in catalog order.
func (c *Catalog) All() []Channel {
	if c == nil {
		return nil
	}
	result := make([]Channel, len(c.channels))
	copy(result, c.channels)
	return result
}

// At returns the channel at index i.
func (c *Catalog) At(i int) (Channel, bool) {
	if c == nil || i < 0 || i >= len(c.channels) {
		return Channel{}, false
	}
	return c.channels[i], true
}

// Lookup finds a channel by its stable ID.
func (c *Catalog) Lookup(id string) (Channel, bool) {
	if c == nil || id == "" {
		return Channel{}, false
	}
	i, ok := c.byID[id]
	if !ok {
		return Channel{}, false
	}
	return c.channels[i], true
}

// FindByName returns the first channel whose name equals name after trimming.
func (c *Catalog) FindByName(name string) (Channel, bool) {
	if c == nil {
		return Channel{}, false
	}
	name = strings.TrimSpace(name)
	for _, ch := range c.channels {
		if strings.TrimSpace(ch.Name) == name {
			return ch, true
		}
	}
	return Channel{}, false
}

// Categories returns the distinct categories in first-seen order.
func (c *Catalog) Categories() []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]bool)
	var result []string
	for _, ch := range c.channels {
		if ch.Category == "" || seen[ch.Category] {
			continue
		}
		seen[ch.Category] = true
		result = append(result, ch.Category)
	}
	return result
}

// Filter returns the channels whose name contains query (case-insensitive)
// and whose category equals category. An empty category matches all.
func (c *Catalog) Filter(query, category string) []Channel {
	if c == nil {
		return nil
	}
	return Filter(c.channels, query, category)
}

// Filter is the stateless projection behind Catalog.Filter.
func Filter(channels []Channel, query, category string) []Channel {
	folder := cases.Fold()
	needle := folder.String(strings.TrimSpace(query))

	result := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		if category != "" && ch.Category != category {
			continue
		}
		if needle != "" && !strings.Contains(folder.String(ch.Name), needle) {
			continue
		}
		result = append(result, ch)
	}
	return result
}

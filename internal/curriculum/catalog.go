package curriculum

import (
	"fmt"
	"sort"
)

// Catalog is the ordered, immutable list of roadmap topics.
type Catalog struct {
	topics []Topic
	byID   map[int]int
}

// NewCatalog validates topics and returns a catalog ordered by id.
// Ids must be unique and cover 1..N without gaps so every topic can be
// reached through the unlock chain.
func NewCatalog(topics []Topic) (*Catalog, error) {
	sorted := make([]Topic, len(topics))
	copy(sorted, topics)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	c := &Catalog{
		topics: sorted,
		byID:   make(map[int]int, len(sorted)),
	}
	names := make(map[string]int, len(sorted))

	for i, t := range sorted {
		if t.ID <= 0 {
			return nil, fmt.Errorf("topic %q: id must be positive, got %d", t.Name, t.ID)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate topic id %d", t.ID)
		}
		if t.ID != i+1 {
			return nil, fmt.Errorf("topic ids must be contiguous from 1: missing id %d", i+1)
		}
		if t.Name == "" {
			return nil, fmt.Errorf("topic %d: name is required", t.ID)
		}
		key := foldKey(t.Name)
		if other, dup := names[key]; dup {
			return nil, fmt.Errorf("topics %d and %d share the name %q", other, t.ID, t.Name)
		}
		names[key] = t.ID
		c.byID[t.ID] = i
	}

	return c, nil
}

// Topics returns the topics in id order.
func (c *Catalog) Topics() []Topic {
	out := make([]Topic, len(c.topics))
	copy(out, c.topics)
	return out
}

// Topic returns the topic with the given id.
func (c *Catalog) Topic(id int) (Topic, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Topic{}, false
	}
	return c.topics[i], true
}

// TopicByName finds a topic by its case-folded name.
func (c *Catalog) TopicByName(name string) (Topic, bool) {
	key := foldKey(name)
	for _, t := range c.topics {
		if foldKey(t.Name) == key {
			return t, true
		}
	}
	return Topic{}, false
}

// Has reports whether id belongs to the catalog.
func (c *Catalog) Has(id int) bool {
	_, ok := c.byID[id]
	return ok
}

// Len returns the number of topics.
func (c *Catalog) Len() int {
	return len(c.topics)
}

package curriculum

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

const (
	minOptions = 2
	maxOptions = 4
)

// Bank maps topic names to their question sets.
//
// Sets whose key matches neither a catalog topic nor an alias are kept as
// orphans: they are validated like any other set but cannot be started.
type Bank struct {
	sets    map[string][]Question // folded topic name -> questions
	orphans map[string][]Question // original key -> questions
}

// NewBank validates sets and resolves their keys against the catalog.
// aliases maps a bank key to the catalog topic name it belongs to.
func NewBank(catalog *Catalog, sets []QuestionSet, aliases map[string]string) (*Bank, error) {
	b := &Bank{
		sets:    make(map[string][]Question),
		orphans: make(map[string][]Question),
	}

	folded := make(map[string]string, len(aliases))
	for from, to := range aliases {
		if _, ok := catalog.TopicByName(to); !ok {
			return nil, fmt.Errorf("alias %q points at unknown topic %q", from, to)
		}
		folded[foldKey(from)] = to
	}

	for _, set := range sets {
		if strings.TrimSpace(set.Key) == "" {
			return nil, fmt.Errorf("question set without key")
		}
		if err := validateQuestions(set.Key, set.Questions); err != nil {
			return nil, err
		}

		name := set.Key
		if target, ok := folded[foldKey(set.Key)]; ok {
			name = target
		}
		topic, ok := catalog.TopicByName(name)
		if !ok {
			b.orphans[set.Key] = set.Questions
			continue
		}

		key := foldKey(topic.Name)
		if _, dup := b.sets[key]; dup {
			return nil, fmt.Errorf("topic %q has more than one question set", topic.Name)
		}
		b.sets[key] = set.Questions
	}

	return b, nil
}

// Questions returns the question set for a topic name. The second result
// is false when the topic has no quiz.
func (b *Bank) Questions(topicName string) ([]Question, bool) {
	qs, ok := b.sets[foldKey(topicName)]
	if !ok || len(qs) == 0 {
		return nil, false
	}
	out := make([]Question, len(qs))
	copy(out, qs)
	return out, true
}

// Has reports whether the named topic has a quiz.
func (b *Bank) Has(topicName string) bool {
	qs, ok := b.sets[foldKey(topicName)]
	return ok && len(qs) > 0
}

// Orphans returns the sorted keys of question sets that belong to no topic.
func (b *Bank) Orphans() []string {
	keys := make([]string, 0, len(b.orphans))
	for k := range b.orphans {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func validateQuestions(key string, questions []Question) error {
	for i, q := range questions {
		if strings.TrimSpace(q.Prompt) == "" {
			return fmt.Errorf("quiz %q question %d: prompt is required", key, i+1)
		}
		if n := len(q.Options); n < minOptions || n > maxOptions {
			return fmt.Errorf("quiz %q question %d: want %d-%d options, got %d", key, i+1, minOptions, maxOptions, n)
		}
		correct := 0
		for _, o := range q.Options {
			if o.Correct {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("quiz %q question %d: exactly one option must be correct, got %d", key, i+1, correct)
		}
	}
	return nil
}

func foldKey(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Package synonyms reads the VisualGenome alias lists (object_alias.txt and
// relationship_alias.txt) and expands names to their similar categories.
package synonyms

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Alias file names inside a staged dataset directory.
const (
	ObjectAliasFile    = "object_alias.txt"
	PredicateAliasFile = "relationship_alias.txt"
)

// Map maps every word of every alias to the aliases of the lines it
// appears on.
type Map map[string][]string

// Parse reads an alias list where each line is a comma separated list of
// equivalent categories.
func Parse(r io.Reader) (Map, error) {
	m := make(Map)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var aliases []string
		for _, a := range strings.Split(line, ",") {
			if a = strings.TrimSpace(a); a != "" {
				aliases = append(aliases, a)
			}
		}
		for _, alias := range aliases {
			for _, word := range strings.Fields(alias) {
				m[word] = append(m[word], aliases...)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read alias list: %w", err)
	}
	return m, nil
}

// Load parses the alias file at path.
func Load(path string) (Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Similar returns the sorted transitive closure of the seeds: every alias
// sharing a word with a seed, then every alias sharing a word with those,
// until nothing new is found. Seeds absent from the map contribute nothing.
func (m Map) Similar(seeds ...string) []string {
	prev := make(map[string]struct{})
	for _, s := range seeds {
		prev[s] = struct{}{}
	}

	curr := make(map[string]struct{})
	for {
		for cat := range prev {
			for _, word := range strings.Fields(cat) {
				for _, alias := range m[word] {
					curr[alias] = struct{}{}
				}
			}
		}
		if sameSet(prev, curr) {
			break
		}
		prev = make(map[string]struct{}, len(curr))
		for k := range curr {
			prev[k] = struct{}{}
		}
	}

	out := make([]string, 0, len(curr))
	for k := range curr {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Expand maps each name to itself plus its similar categories.
func (m Map) Expand(names []string) map[string][]string {
	out := make(map[string][]string, len(names))
	for _, name := range names {
		syns := m.Similar(name)
		if !contains(syns, name) {
			syns = append([]string{name}, syns...)
		}
		out[name] = syns
	}
	return out
}

// Group folds names into categories. Names are visited in sorted order and
// each one not already covered by an earlier category starts a new category
// holding itself plus its similar aliases.
func (m Map) Group(names []string) map[string][]string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	out := make(map[string][]string)
	covered := make(map[string]struct{})
	for _, name := range sorted {
		if _, ok := covered[name]; ok {
			continue
		}
		syns := m.Expand([]string{name})[name]
		out[name] = syns
		for _, s := range syns {
			covered[s] = struct{}{}
		}
	}
	return out
}

// Set holds the object and predicate alias maps of a dataset.
type Set struct {
	Objects    Map
	Predicates Map
}

// LoadSet reads both alias files from dir.
func LoadSet(dir string) (*Set, error) {
	objects, err := Load(filepath.Join(dir, ObjectAliasFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load object aliases: %w", err)
	}
	predicates, err := Load(filepath.Join(dir, PredicateAliasFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load predicate aliases: %w", err)
	}
	return &Set{Objects: objects, Predicates: predicates}, nil
}

// SimilarObjects expands seeds through the object aliases.
func (s *Set) SimilarObjects(seeds ...string) []string {
	return s.Objects.Similar(seeds...)
}

// SimilarPredicates expands seeds through the predicate aliases.
func (s *Set) SimilarPredicates(seeds ...string) []string {
	return s.Predicates.Similar(seeds...)
}

// Canonical returns the key of syns whose list contains name. Keys are
// searched in sorted order, so the first match wins.
func Canonical(name string, syns map[string][]string) (string, error) {
	keys := make([]string, 0, len(syns))
	for k := range syns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if contains(syns[k], name) {
			return k, nil
		}
	}
	return "", fmt.Errorf("%q not found in synonyms", name)
}

// Inverse maps every synonym to its key. When a synonym belongs to more
// than one key, the first key in sorted order wins.
func Inverse(syns map[string][]string) map[string]string {
	keys := make([]string, 0, len(syns))
	for k := range syns {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]string)
	for _, k := range keys {
		for _, s := range syns[k] {
			if _, taken := out[s]; !taken {
				out[s] = k
			}
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

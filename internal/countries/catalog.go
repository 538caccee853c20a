// Package countries resolves free-text affiliation strings to canonical country names.
//
// A Catalog is an ordered list of entries, each with a canonical name and aliases.
// Resolution is first-match: entries are scanned in load order and, within an entry,
// the canonical name is tried before the aliases. Because matching is plain substring
// containment, catalogs must list more specific names before names they contain
// (e.g. "Nigeria" before "Niger").
//
// A Catalog is immutable after construction and safe for concurrent use.
package countries

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/helixir/pubmed-harvester/internal/domain"
)

//go:embed catalog.json
var defaultCatalog []byte

// Entry is a canonical country name with its aliases.
type Entry struct {
	Name    string   `json:"name" yaml:"name"`
	Aliases []string `json:"aliases" yaml:"aliases"`
}

// Catalog is an ordered, read-only country table.
type Catalog struct {
	entries  []Entry
	patterns [][]string // lower-cased [name, aliases...] per entry
}

// New builds a catalog from entries, preserving their order.
// Entries with an empty name are rejected.
func New(entries []Entry) (*Catalog, error) {
	c := &Catalog{
		entries:  make([]Entry, 0, len(entries)),
		patterns: make([][]string, 0, len(entries)),
	}

	for i, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, fmt.Errorf("catalog entry %d: empty name: %w", i, domain.ErrInvalidInput)
		}

		aliases := make([]string, 0, len(e.Aliases))
		patterns := make([]string, 0, len(e.Aliases)+1)
		patterns = append(patterns, strings.ToLower(name))
		for _, a := range e.Aliases {
			a = strings.TrimSpace(a)
			if a == "" {
				continue
			}
			aliases = append(aliases, a)
			patterns = append(patterns, strings.ToLower(a))
		}

		c.entries = append(c.entries, Entry{Name: name, Aliases: aliases})
		c.patterns = append(c.patterns, patterns)
	}

	return c, nil
}

// Default returns the catalog embedded in the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalog, ".json")
	if err != nil {
		panic(fmt.Sprintf("countries: embedded catalog is invalid: %v", err))
	}
	return c
}

// Load reads a catalog file. The format is chosen by extension:
// .yaml and .yml are decoded as YAML, anything else as JSON.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read country catalog: %w", err)
	}

	c, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parse country catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes catalog data in the format implied by ext.
func Parse(data []byte, ext string) (*Catalog, error) {
	var entries []Entry

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	}

	return New(entries)
}

// Resolve returns the canonical name of the first entry whose name or alias
// occurs in the affiliation text, ignoring case.
func (c *Catalog) Resolve(affiliation string) (string, bool) {
	text := strings.ToLower(affiliation)
	if text == "" {
		return "", false
	}

	for i, patterns := range c.patterns {
		for _, p := range patterns {
			if strings.Contains(text, p) {
				return c.entries[i].Name, true
			}
		}
	}
	return "", false
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Entries returns a copy of the catalog entries in load order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	for i, e := range c.entries {
		out[i] = Entry{Name: e.Name, Aliases: append([]string(nil), e.Aliases...)}
	}
	return out
}

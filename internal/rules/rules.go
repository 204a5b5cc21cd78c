// Package rules loads writing-rule snippets from markdown files and selects
// the ones relevant to a scene.
//
// Each rule file carries TOML frontmatter between +++ delimiters:
//
//	+++
//	id = "combat"
//	title = "Combat scenes"
//	tags = ["combat", "action"]
//	priority = 10
//	+++
//	Keep blows short. One sensory detail per exchange.
//
// Rules with always = true apply to every scene.
package rules

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// ErrNoFrontmatter indicates a rule file without +++ TOML frontmatter.
var ErrNoFrontmatter = errors.New("rule file does not start with +++ frontmatter")

// Rule is one writing-rule snippet.
type Rule struct {
	ID       string   `toml:"id"`
	Title    string   `toml:"title"`
	Tags     []string `toml:"tags"`
	Always   bool     `toml:"always"`
	Priority int      `toml:"priority"` // lower sorts first
	Body     string   `toml:"-"`
	Source   string   `toml:"-"`
}

// Book is a loaded set of rules.
type Book struct {
	Rules []Rule
}

// Load reads every *.md file in dir. A missing dir yields an empty Book.
func Load(dir string) (*Book, error) {
	if dir == "" {
		return &Book{}, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &Book{}, nil
		}
		return nil, fmt.Errorf("reading rules directory: %w", err)
	}

	book := &Book{}
	seen := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		r, err := parseRuleFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", e.Name(), err)
		}
		if prev, ok := seen[r.ID]; ok {
			return nil, fmt.Errorf("rule id %q defined in both %s and %s", r.ID, prev, e.Name())
		}
		seen[r.ID] = e.Name()
		book.Rules = append(book.Rules, r)
	}
	return book, nil
}

// Select returns the rules that apply to a scene with the given tags: every
// always-on rule plus every rule sharing at least one tag. Tag matching is
// case-insensitive. Results are ordered by priority, then id.
func (b *Book) Select(tags []string) []Rule {
	if b == nil {
		return nil
	}
	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		want[strings.ToLower(strings.TrimSpace(t))] = true
	}

	var out []Rule
	for _, r := range b.Rules {
		if r.Always || matches(r.Tags, want) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func matches(ruleTags []string, want map[string]bool) bool {
	for _, t := range ruleTags {
		if want[strings.ToLower(strings.TrimSpace(t))] {
			return true
		}
	}
	return false
}

// parseRuleFile reads a markdown file with +++ TOML frontmatter.
func parseRuleFile(path string) (Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rule{}, err
	}
	frontmatter, body, err := splitFrontmatter(string(data))
	if err != nil {
		return Rule{}, err
	}

	var r Rule
	if err := toml.Unmarshal([]byte(frontmatter), &r); err != nil {
		return Rule{}, fmt.Errorf("parsing TOML frontmatter: %w", err)
	}
	r.Body = strings.TrimSpace(body)
	r.Source = filepath.Base(path)
	if r.ID == "" {
		r.ID = strings.TrimSuffix(r.Source, ".md")
	}
	if r.Title == "" {
		r.Title = r.ID
	}
	return r, nil
}

// splitFrontmatter splits content on +++ delimiters.
func splitFrontmatter(content string) (string, string, error) {
	const delim = "+++"

	content = strings.TrimLeft(content, " \t\r\n")
	if !strings.HasPrefix(content, delim) {
		return "", "", ErrNoFrontmatter
	}

	rest := content[len(delim):]
	idx := strings.Index(rest, delim)
	if idx < 0 {
		return "", "", fmt.Errorf("missing closing +++ frontmatter delimiter")
	}
	return rest[:idx], rest[idx+len(delim):], nil
}

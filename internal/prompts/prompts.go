// Package prompts holds the prompt templates for every generation purpose.
// Defaults are embedded; a YAML file may override any subset of them.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/KeLes-Coding/novel-agent/internal/story"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Template names. Generation purposes use their own name; System and
// SceneTask are rendered as parts of other calls.
const (
	System     = "system"
	Ideation   = "ideation"
	Outline    = "outline"
	Bible      = "bible"
	ScenePlan  = "scene_plan"
	SceneTask  = "scene_task"
	Revise     = "revise"
	Digest     = "digest"
	ArcSummary = "arc_summary"
)

// Catalog is a parsed set of prompt templates.
type Catalog struct {
	tmpl *template.Template
}

// Load returns the default catalog overlaid with the templates in path.
// An empty path yields the defaults.
func Load(path string) (*Catalog, error) {
	sources, err := parseYAML(defaultsYAML)
	if err != nil {
		return nil, fmt.Errorf("parsing default prompts: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading prompts file: %w", err)
		}
		overrides, err := parseYAML(data)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		for name, src := range overrides {
			if _, ok := sources[name]; !ok {
				return nil, fmt.Errorf("%s: unknown prompt %q", path, name)
			}
			sources[name] = src
		}
	}
	return compile(sources)
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Load("")
	if err != nil {
		panic(err) // embedded templates are covered by tests
	}
	return c
}

// Render executes the named template with data.
func (c *Catalog) Render(name string, data any) (string, error) {
	t := c.tmpl.Lookup(name)
	if t == nil {
		return "", fmt.Errorf("unknown prompt %q", name)
	}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("rendering prompt %q: %w", name, err)
	}
	return strings.TrimSpace(sb.String()), nil
}

func parseYAML(data []byte) (map[string]string, error) {
	var m map[string]string
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func compile(sources map[string]string) (*Catalog, error) {
	root := template.New("prompts").Funcs(template.FuncMap{
		"join": strings.Join,
	}).Option("missingkey=error")
	for name, src := range sources {
		if _, err := root.New(name).Parse(src); err != nil {
			return nil, fmt.Errorf("parsing prompt %q: %w", name, err)
		}
	}
	return &Catalog{tmpl: root}, nil
}

// Data is the value every template is rendered with. Templates use the
// fields relevant to their purpose.
type Data struct {
	Brief        story.Brief
	Ideation     string
	Outline      string
	BibleExcerpt string
	TargetScenes int
	Scene        *story.SceneNode
	Text         string
	Feedback     string
	From, To     int
	Summaries    []*story.SceneNode
}

// SystemFor renders the system prompt for a run's brief.
func (c *Catalog) SystemFor(b story.Brief) (string, error) {
	return c.Render(System, Data{Brief: b})
}

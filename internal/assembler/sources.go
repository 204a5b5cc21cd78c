package assembler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/KeLes-Coding/novel-agent/internal/story"
)

// worldFactLimit is how many of the newest unattributed facts survive
// condensing the world block.
const worldFactLimit = 5

// characterItems builds one card per character in the scene from the
// canonical bible section naming them and the live facts about them,
// followed by one block of live facts about anything else.
func characterItems(state *story.ProjectState, scene *story.SceneNode) []item {
	sections := parseSections(state.Bible.Canonical)
	facts := state.LiveFacts(scene.ID)

	var out []item
	claimed := make(map[int]bool)
	for i, name := range scene.Characters {
		body := sectionFor(sections, name)
		var mine []story.Fact
		for j, f := range facts {
			if strings.EqualFold(strings.TrimSpace(f.Subject), strings.TrimSpace(name)) {
				mine = append(mine, f)
				claimed[j] = true
			}
		}
		if body == "" && len(mine) == 0 {
			continue
		}
		out = append(out, item{
			tier:    TierCharacters,
			key:     "character:" + name,
			text:    renderCard(name, body, mine),
			degrade: func() string { return renderCondensedCard(name, body, mine) },
			order:   i,
		})
	}

	var world []story.Fact
	for j, f := range facts {
		if !claimed[j] {
			world = append(world, f)
		}
	}
	if len(world) > 0 {
		out = append(out, item{
			tier: TierCharacters,
			key:  "world",
			text: renderFacts("### World", world),
			degrade: func() string {
				if len(world) <= worldFactLimit {
					return ""
				}
				return renderFacts("### World", world[len(world)-worldFactLimit:])
			},
			order: len(scene.Characters),
		})
	}
	return out
}

func renderCard(name, body string, facts []story.Fact) string {
	var sb strings.Builder
	sb.WriteString("### " + name)
	if body != "" {
		sb.WriteString("\n" + body)
	}
	if len(facts) > 0 {
		sb.WriteString("\nRecent developments:")
		for _, f := range facts {
			fmt.Fprintf(&sb, "\n- %s (scene %d)", f.Description, f.SourceSceneID)
		}
	}
	return sb.String()
}

// renderCondensedCard keeps the name, the first sentence of the bible entry,
// and one line per fact.
func renderCondensedCard(name, body string, facts []story.Fact) string {
	var sb strings.Builder
	sb.WriteString("### " + name)
	if s := firstSentence(body); s != "" {
		sb.WriteString("\n- " + s)
	}
	for _, f := range facts {
		sb.WriteString("\n- " + f.Description)
	}
	return sb.String()
}

func renderFacts(heading string, facts []story.Fact) string {
	var sb strings.Builder
	sb.WriteString(heading)
	for _, f := range facts {
		fmt.Fprintf(&sb, "\n- %s (scene %d)", f.String(), f.SourceSceneID)
	}
	return sb.String()
}

// memoryItems returns the recent-summary and arc-summary candidates for
// target, newest first. Arcs cover scenes up to a boundary and recent
// summaries cover the scenes after it, so together they are gap-free and
// disjoint.
func memoryItems(state *story.ProjectState, target int) (recent, arcs []item) {
	boundary := 0
	var usable []story.ArcSummary
	for _, a := range state.ActiveArcs() {
		if a.Range.To < target {
			usable = append(usable, a)
			if a.Range.To > boundary {
				boundary = a.Range.To
			}
		}
	}

	for i := len(state.Scenes) - 1; i >= 0; i-- {
		n := state.Scenes[i]
		if n.ID <= boundary || n.ID >= target || n.Summary == "" {
			continue
		}
		label := fmt.Sprintf("- Scene %d (%s): ", n.ID, n.Title)
		summary := n.Summary
		recent = append(recent, item{
			tier:    TierRecent,
			key:     fmt.Sprintf("scene:%d", n.ID),
			text:    label + summary,
			degrade: condensed(label, summary),
			order:   n.ID,
		})
	}

	sort.Slice(usable, func(i, j int) bool { return usable[i].Range.From > usable[j].Range.From })
	for _, a := range usable {
		label := fmt.Sprintf("- Scenes %s: ", a.Range)
		arcs = append(arcs, item{
			tier:    TierArcs,
			key:     "arc:" + a.Range.String(),
			text:    label + a.Text,
			degrade: condensed(label, a.Text),
			order:   a.Range.From,
		})
	}
	return recent, arcs
}

// condensed returns a degrade func keeping label plus the first sentence.
func condensed(label, text string) func() string {
	return func() string {
		s := firstSentence(text)
		if s == "" || s == strings.TrimSpace(text) {
			return ""
		}
		return label + s
	}
}

// section is one markdown heading and the text beneath it.
type section struct {
	title string
	body  string
}

// parseSections splits markdown into sections by ## or ### headings.
func parseSections(s string) []section {
	var out []section
	var cur *section
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(line, "## ") || strings.HasPrefix(line, "### ") {
			if cur != nil {
				cur.body = strings.TrimSpace(cur.body)
				out = append(out, *cur)
			}
			cur = &section{title: strings.TrimSpace(strings.TrimLeft(line, "#"))}
			continue
		}
		if cur != nil {
			cur.body += line + "\n"
		}
	}
	if cur != nil {
		cur.body = strings.TrimSpace(cur.body)
		out = append(out, *cur)
	}
	return out
}

// sectionFor returns the body of the first section whose title names the
// character, or "".
func sectionFor(sections []section, name string) string {
	want := strings.ToLower(strings.TrimSpace(name))
	if want == "" {
		return ""
	}
	for _, s := range sections {
		if strings.EqualFold(s.title, want) {
			return s.body
		}
	}
	for _, s := range sections {
		if strings.Contains(strings.ToLower(s.title), want) {
			return s.body
		}
	}
	return ""
}

// firstParagraph returns text up to the first blank line.
func firstParagraph(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "\n\n"); i >= 0 {
		return text[:i]
	}
	return text
}

// firstSentence returns text up to and including the first sentence
// terminator, or the first line when there is none.
func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	for i, r := range text {
		switch r {
		case '。', '！', '？':
			return text[:i+len(string(r))]
		case '.', '!', '?':
			next := i + 1
			if next == len(text) || text[next] == ' ' {
				return text[:next]
			}
		}
	}
	return text
}

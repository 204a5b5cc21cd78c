// Package assembler builds the bounded, prioritized context sent with each
// scene generation call.
//
// Content is grouped into tiers (see Tier). Mandatory tiers must fit the
// budget or assembly fails with ContextOverflowError. Optional tiers are
// filled greedily in tier order; an item that does not fit is condensed once
// and retried, then skipped.
package assembler

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/KeLes-Coding/novel-agent/internal/rules"
	"github.com/KeLes-Coding/novel-agent/internal/story"
)

// DefaultBudget is the token budget used when none is configured.
const DefaultBudget = 8000

// DefaultPriorChars is how much of the previous scene's ending is carried
// into the next scene.
const DefaultPriorChars = 1500

// ErrEmptyTask indicates assembly was requested without task instructions.
var ErrEmptyTask = errors.New("task instructions are empty")

// Estimator returns the token cost of a text. It must be deterministic and
// subadditive.
type Estimator interface {
	Estimate(text string) int
}

// RuleSource selects the writing rules that apply to a set of scene tags.
type RuleSource interface {
	Select(tags []string) []rules.Rule
}

// Assembler builds context payloads.
type Assembler struct {
	Estimator  Estimator
	Rules      RuleSource // may be nil
	Budget     int        // total tokens for the payload
	PriorChars int        // characters of the previous scene to carry over
}

// item is a candidate unit of context before budgeting.
type item struct {
	tier    Tier
	key     string
	text    string
	degrade func() string // nil when the item has no condensed form
	order   int
}

// Assemble builds the payload for scene sceneID. task is the rendered P0
// instruction text. The state is only read.
func (a *Assembler) Assemble(state *story.ProjectState, sceneID int, task string) (*Payload, error) {
	if task == "" {
		return nil, ErrEmptyTask
	}
	scene, err := state.Scene(sceneID)
	if err != nil {
		return nil, err
	}
	budget := a.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}

	f := &filler{est: a.Estimator, budget: budget, opened: make(map[Tier]bool)}

	// Mandatory tiers are costed together before any optional content so an
	// overflow leaves nothing half-built.
	mandatory := []item{{tier: TierTask, key: "task", text: task}}
	if tail := a.previousTail(state, sceneID); tail != "" {
		mandatory = append(mandatory, item{tier: TierPrevious, key: "previous", text: tail})
	}
	needed := 0
	for _, it := range mandatory {
		needed += f.cost(it.tier, it.text, f.opened[it.tier])
		f.opened[it.tier] = true
	}
	if needed > budget {
		return nil, &ContextOverflowError{SceneID: sceneID, Needed: needed, Budget: budget}
	}
	f.opened = make(map[Tier]bool)
	for _, it := range mandatory {
		f.include(it, it.text, false)
	}

	optional := a.ruleItems(scene)
	optional = append(optional, characterItems(state, scene)...)
	recent, arcs := memoryItems(state, sceneID)
	optional = append(optional, recent...)
	optional = append(optional, arcs...)

	for _, it := range optional {
		f.offer(it)
	}

	p := &Payload{SceneID: sceneID, Budget: budget, Used: f.used, Blocks: f.blocks, Skipped: f.skipped}
	sortBlocks(p.Blocks)
	return p, nil
}

// filler tracks the greedy fill.
type filler struct {
	est     Estimator
	budget  int
	used    int
	opened  map[Tier]bool
	blocks  []Block
	skipped []string
}

// cost is the charge for adding text to tier. Each charged piece is a
// verbatim piece of the rendered payload, so by subadditivity the rendered
// text never costs more than Used. Opening a tier also pays for its heading
// and one separator.
func (f *filler) cost(tier Tier, text string, open bool) int {
	c := f.est.Estimate(tier.joiner() + text)
	if !open {
		c += f.est.Estimate(Separator) + f.est.Estimate(tier.heading())
	}
	return c
}

func (f *filler) include(it item, text string, degraded bool) {
	c := f.cost(it.tier, text, f.opened[it.tier])
	f.opened[it.tier] = true
	f.used += c
	f.blocks = append(f.blocks, Block{Tier: it.tier, Key: it.key, Text: text, Cost: c, Degraded: degraded, order: it.order})
}

// offer tries the item as-is, then its condensed form once, then skips it.
// A condensed form that costs no less than the original is not tried.
func (f *filler) offer(it item) {
	remaining := f.budget - f.used
	full := f.cost(it.tier, it.text, f.opened[it.tier])
	if full <= remaining {
		f.include(it, it.text, false)
		return
	}
	if it.degrade != nil {
		if short := it.degrade(); short != "" {
			if c := f.cost(it.tier, short, f.opened[it.tier]); c < full && c <= remaining {
				f.include(it, short, true)
				return
			}
		}
	}
	f.skipped = append(f.skipped, it.key)
}

// previousTail returns the end of the selected text of the scene before
// sceneID, cut to PriorChars runes at a paragraph or line start when one is
// close.
func (a *Assembler) previousTail(state *story.ProjectState, sceneID int) string {
	prev := state.PreviousScene(sceneID)
	if prev == nil {
		return ""
	}
	text := prev.SelectedText()
	if text == "" {
		return ""
	}
	limit := a.PriorChars
	if limit <= 0 {
		limit = DefaultPriorChars
	}
	return tail(text, limit)
}

func (a *Assembler) ruleItems(scene *story.SceneNode) []item {
	if a.Rules == nil {
		return nil
	}
	var out []item
	for i, r := range a.Rules.Select(scene.Tags) {
		out = append(out, item{
			tier:    TierRules,
			key:     "rule:" + r.ID,
			text:    fmt.Sprintf("### %s\n%s", r.Title, r.Body),
			degrade: func() string { return fmt.Sprintf("### %s\n%s", r.Title, firstParagraph(r.Body)) },
			order:   i,
		})
	}
	return out
}

// tail returns the last limit runes of text, advanced to the next line start
// if one falls within the first quarter of the window.
func tail(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	cut := runes[len(runes)-limit:]
	for i := 0; i < limit/4 && i < len(cut); i++ {
		if cut[i] == '\n' {
			return "…" + string(cut[i+1:])
		}
	}
	return "…" + string(cut)
}

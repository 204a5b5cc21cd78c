package assembler

import (
	"slices"
	"sort"
	"strings"
)

// Separator divides tiers in the rendered payload.
const Separator = "\n\n---\n\n"

// Block is one included unit of context.
type Block struct {
	Tier     Tier
	Key      string // stable identity, e.g. "rule:combat" or "scene:4"
	Text     string
	Cost     int  // estimated tokens charged, including tier overhead for the first block of a tier
	Degraded bool // Text is a condensed form of the source content
	order    int  // render position within its tier
}

// Payload is a budget-bounded context for one generation call.
type Payload struct {
	SceneID int
	Budget  int
	Used    int      // sum of Block costs; never exceeds Budget
	Blocks  []Block  // in render order
	Skipped []string // keys of optional items that did not fit even degraded
}

// Text renders the payload. Tiers appear from broadest background to the
// task, separated by Separator, each under its own heading.
func (p *Payload) Text() string {
	var sections []string
	for _, tier := range renderOrder() {
		var sb strings.Builder
		for _, b := range p.Blocks {
			if b.Tier == tier {
				sb.WriteString(tier.joiner() + b.Text)
			}
		}
		if sb.Len() == 0 {
			continue
		}
		sections = append(sections, tier.heading()+sb.String())
	}
	return strings.Join(sections, Separator)
}

// UsedByTier returns charged tokens per tier.
func (p *Payload) UsedByTier() map[Tier]int {
	m := make(map[Tier]int)
	for _, b := range p.Blocks {
		m[b.Tier] += b.Cost
	}
	return m
}

// Without returns a copy of the payload with the blocks of optional tier t
// removed. Used drops by exactly UsedByTier()[t], since every charge,
// including a tier's heading and separator, belongs to one tier. Mandatory
// tiers are never removed.
func (p *Payload) Without(t Tier) *Payload {
	out := &Payload{SceneID: p.SceneID, Budget: p.Budget, Used: p.Used, Skipped: slices.Clone(p.Skipped)}
	for _, b := range p.Blocks {
		if b.Tier == t && !t.Mandatory() {
			out.Used -= b.Cost
			continue
		}
		out.Blocks = append(out.Blocks, b)
	}
	return out
}

// Has reports whether a block with key was included.
func (p *Payload) Has(key string) bool {
	for _, b := range p.Blocks {
		if b.Key == key {
			return true
		}
	}
	return false
}

// sortBlocks orders blocks by render tier, then by their position within the
// tier.
func sortBlocks(blocks []Block) {
	rank := make(map[Tier]int)
	for i, t := range renderOrder() {
		rank[t] = i
	}
	sort.SliceStable(blocks, func(i, j int) bool {
		if blocks[i].Tier != blocks[j].Tier {
			return rank[blocks[i].Tier] < rank[blocks[j].Tier]
		}
		return blocks[i].order < blocks[j].order
	})
}

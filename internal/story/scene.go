package story

import "time"

// Version origins.
const (
	OriginDraft  = "draft"
	OriginReroll = "reroll"
	OriginRevise = "revise"
)

// Cost records the token usage reported for one generated text.
type Cost struct {
	TokensIn  int `toml:"tokens_in"`
	TokensOut int `toml:"tokens_out"`
}

// Add returns the element-wise sum of c and o.
func (c Cost) Add(o Cost) Cost {
	return Cost{TokensIn: c.TokensIn + o.TokensIn, TokensOut: c.TokensOut + o.TokensOut}
}

// Version is one candidate text for a scene.
type Version struct {
	Text      string    `toml:"text,multiline"`
	Origin    string    `toml:"origin,omitempty"`
	Feedback  string    `toml:"feedback,omitempty"`
	Parent    *int      `toml:"parent,omitempty"`
	Cost      Cost      `toml:"cost"`
	CreatedAt time.Time `toml:"created_at"`
}

// SceneNode is one unit of the scene plan.
type SceneNode struct {
	ID         int         `toml:"id"`
	Title      string      `toml:"title"`
	Goal       string      `toml:"goal,omitempty,multiline"`
	Characters []string    `toml:"characters,omitempty"`
	Tags       []string    `toml:"tags,omitempty"`
	Candidates int         `toml:"candidates,omitempty"` // per-scene override of the branching factor
	Status     SceneStatus `toml:"status"`
	Revision   int         `toml:"revision,omitempty"` // bumped every time the scene reaches done
	Selected   *int        `toml:"selected,omitempty"`
	Summary    string      `toml:"summary,omitempty,multiline"`
	Versions   []Version   `toml:"versions,omitempty"`
}

// HasSelection reports whether a version has been chosen for the scene.
func (n *SceneNode) HasSelection() bool { return n.Selected != nil }

// SelectedVersion returns the chosen version, if any.
func (n *SceneNode) SelectedVersion() (Version, bool) {
	if n.Selected == nil || *n.Selected < 0 || *n.Selected >= len(n.Versions) {
		return Version{}, false
	}
	return n.Versions[*n.Selected], true
}

// SelectedText returns the text of the chosen version, or "" if none.
func (n *SceneNode) SelectedText() string {
	v, _ := n.SelectedVersion()
	return v.Text
}

// TotalCost sums the cost of every version.
func (n *SceneNode) TotalCost() Cost {
	var c Cost
	for _, v := range n.Versions {
		c = c.Add(v.Cost)
	}
	return c
}

// Reset returns the scene to pending, clearing selection and summary.
// Versions are kept.
func (n *SceneNode) Reset() {
	n.Status = ScenePending
	n.Selected = nil
	n.Summary = ""
}

// Select marks version i as chosen.
func (n *SceneNode) Select(i int) error {
	if i < 0 || i >= len(n.Versions) {
		return ErrUnknownVersion
	}
	n.Selected = &i
	return nil
}

func (n *SceneNode) clone() *SceneNode {
	c := *n
	c.Characters = append([]string(nil), n.Characters...)
	c.Tags = append([]string(nil), n.Tags...)
	if n.Selected != nil {
		sel := *n.Selected
		c.Selected = &sel
	}
	if n.Versions != nil {
		c.Versions = make([]Version, len(n.Versions))
		for i, v := range n.Versions {
			if v.Parent != nil {
				p := *v.Parent
				v.Parent = &p
			}
			c.Versions[i] = v
		}
	}
	return &c
}

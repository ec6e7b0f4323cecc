package transform

// GraphNode is one step of a pipeline's data flow.
type GraphNode struct {
	Alias  string   `json:"alias"`
	Kind   StepKind `json:"kind"`
	Name   string   `json:"name,omitempty"`
	Inputs []string `json:"inputs"`
	UsedBy []string `json:"used_by"`
}

// Levels groups the steps by depth in the data flow. Source steps are
// level 0 and every other step sits one level below its deepest input.
func (p *Pipeline) Levels() [][]GraphNode {
	depth := make(map[string]int, len(p.Steps))
	usedBy := make(map[string][]string, len(p.Steps))
	for _, st := range p.Steps {
		for _, in := range st.Inputs() {
			usedBy[in] = append(usedBy[in], st.OutputAlias)
		}
	}

	var levels [][]GraphNode
	for _, st := range p.Steps {
		d := 0
		for _, in := range st.Inputs() {
			d = max(d, depth[in]+1)
		}
		depth[st.OutputAlias] = d
		for len(levels) <= d {
			levels = append(levels, nil)
		}
		inputs := st.Inputs()
		if inputs == nil {
			inputs = []string{}
		}
		consumers := usedBy[st.OutputAlias]
		if consumers == nil {
			consumers = []string{}
		}
		levels[d] = append(levels[d], GraphNode{
			Alias:  st.OutputAlias,
			Kind:   st.Kind,
			Name:   st.Name,
			Inputs: inputs,
			UsedBy: consumers,
		})
	}
	return levels
}

// EdgeCount returns the number of alias references between steps.
func (p *Pipeline) EdgeCount() int {
	n := 0
	for _, st := range p.Steps {
		n += len(st.Inputs())
	}
	return n
}

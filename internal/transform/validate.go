package transform

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationResult lists every problem found in a pipeline. Warnings do not
// make a pipeline invalid.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Validate checks raw steps without running them. All problems are
// collected before returning.
func Validate(raw []RawStep) ValidationResult {
	_, res := build(raw)
	return res
}

// build decodes and resolves raw steps. The steps are only usable when the
// result is valid.
func build(raw []RawStep) ([]Step, ValidationResult) {
	b := &builder{defined: make(map[string]int), referenced: make(map[string]bool)}

	if len(raw) == 0 {
		b.errorf("Pipeline has no steps")
		return nil, b.result()
	}
	if k, _ := ParseStepKind(raw[0].Type); k != KindSource {
		b.errorf("First step must be a source")
	}

	steps := make([]Step, 0, len(raw))
	for i, rs := range raw {
		if rs.Order != i {
			b.errorf("Step order mismatch at position %d", i)
		}
		steps = append(steps, b.step(i, rs))
	}

	last := len(raw) - 1
	for i, rs := range raw {
		alias := strings.TrimSpace(rs.OutputAlias)
		if alias != "" && i != last && !b.referenced[alias] {
			b.warnf("Step %d: output alias %q is never used", rs.Order, alias)
		}
	}
	return steps, b.result()
}

type builder struct {
	errors     []string
	warnings   []string
	defined    map[string]int // alias -> position
	referenced map[string]bool
	prevAlias  string
}

func (b *builder) errorf(format string, args ...any) {
	b.errors = append(b.errors, fmt.Sprintf(format, args...))
}

func (b *builder) warnf(format string, args ...any) {
	b.warnings = append(b.warnings, fmt.Sprintf(format, args...))
}

func (b *builder) result() ValidationResult {
	return ValidationResult{Valid: len(b.errors) == 0, Errors: b.errors, Warnings: b.warnings}
}

func (b *builder) step(pos int, rs RawStep) Step {
	st := Step{
		Order:       rs.Order,
		Name:        rs.Name,
		OutputAlias: strings.TrimSpace(rs.OutputAlias),
	}
	label := rs.Order

	kind, ok := ParseStepKind(rs.Type)
	if !ok {
		b.errorf("Unknown step type: %s", rs.Type)
		b.define(pos, &st)
		return st
	}
	st.Kind = kind

	complete := true
	for _, key := range requiredKeys[kind] {
		if _, present := rs.Configuration[key]; !present {
			b.errorf("Step %d: Missing %s", label, key)
			complete = false
		}
	}

	if complete {
		cfg, unused, err := decodeConfig(kind, rs.Configuration)
		if err != nil {
			b.errorf("Step %d: invalid configuration: %v", label, err)
		} else {
			for _, p := range cfg.check() {
				b.errorf("Step %d: %s", label, p)
			}
			for _, key := range unused {
				b.warnf("Step %d: unknown configuration key %q", label, key)
			}
			st.Config = b.resolveSources(label, cfg)
			if f, isFilter := cfg.(FilterConfig); isFilter && len(f.Conditions) == 0 {
				b.warnf("Step %d: filter has no conditions", label)
			}
		}
	}

	b.resolveInput(pos, label, rs, &st)
	b.define(pos, &st)
	return st
}

// resolveInput fills the input alias of single-input steps.
func (b *builder) resolveInput(pos, label int, rs RawStep, st *Step) {
	input := strings.TrimSpace(rs.Input)
	switch st.Kind {
	case KindSource:
		if input != "" {
			b.errorf("Step %d: source steps take no input", label)
		}
		return
	case KindJoin, KindUnion:
		if input != "" {
			b.warnf("Step %d: input is ignored by %s steps", label, st.Kind)
		}
		return
	}

	if input == "" || input == PreviousAlias {
		if pos == 0 {
			b.errorf("Step %d: no previous step to read from", label)
			return
		}
		st.Input = b.prevAlias
		b.referenced[b.prevAlias] = true
		return
	}
	if b.reference(label, "input", input) {
		st.Input = input
	}
}

// resolveSources rewrites the named sources of join and union steps.
func (b *builder) resolveSources(label int, cfg StepConfig) StepConfig {
	switch c := cfg.(type) {
	case JoinConfig:
		if c.LeftSource == PreviousAlias {
			if b.prevAlias == "" {
				b.errorf("Step %d: no previous step to join from", label)
			} else {
				c.LeftSource = b.prevAlias
				b.referenced[b.prevAlias] = true
			}
		} else {
			b.reference(label, "left_source", c.LeftSource)
		}
		if c.RightSource == PreviousAlias {
			b.errorf("Step %d: right_source cannot be %q", label, PreviousAlias)
		} else {
			b.reference(label, "right_source", c.RightSource)
		}
		return c
	case UnionConfig:
		for _, s := range c.Sources {
			b.reference(label, "sources", s)
		}
		return c
	}
	return cfg
}

// reference marks alias as used by a later step, reporting unknown aliases.
func (b *builder) reference(label int, field, alias string) bool {
	if _, ok := b.defined[alias]; !ok {
		b.errorf("Step %d: %s references unknown alias %q", label, field, alias)
		return false
	}
	b.referenced[alias] = true
	return true
}

// define registers the output alias of st, assigning step_<order> when none
// was given.
func (b *builder) define(pos int, st *Step) {
	switch {
	case st.OutputAlias == "":
		st.OutputAlias = fmt.Sprintf("step_%d", pos)
	case st.OutputAlias == PreviousAlias:
		b.errorf("Step %d: output alias %q is reserved", st.Order, PreviousAlias)
	}
	if prev, dup := b.defined[st.OutputAlias]; dup {
		b.errorf("Step %d: output alias %q already used by step %d", st.Order, st.OutputAlias, prev)
	}
	b.defined[st.OutputAlias] = pos
	b.prevAlias = st.OutputAlias
}

// Inputs returns the aliases a step reads, in order.
func (s Step) Inputs() []string {
	switch c := s.Config.(type) {
	case JoinConfig:
		return []string{c.LeftSource, c.RightSource}
	case UnionConfig:
		return slices.Clone(c.Sources)
	case SourceConfig:
		return nil
	}
	if s.Input == "" {
		return nil
	}
	return []string{s.Input}
}

package transform

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/leapstack-labs/leapquery/pkg/core"
	"gopkg.in/yaml.v3"
)

// Step is a decoded, validated pipeline step.
type Step struct {
	Order       int
	Kind        StepKind
	Name        string
	Config      StepConfig
	OutputAlias string
	// Input is the alias consumed by filter, aggregate, select and sort steps.
	Input string
}

// DisplayName returns the step name, or its kind when unnamed.
func (s Step) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return string(s.Kind)
}

// Pipeline is an ordered list of validated steps.
type Pipeline struct {
	Name        string
	Description string
	Steps       []Step
	Warnings    []string
}

// NewPipeline decodes and validates raw steps. The returned error is a
// *core.ValidationError listing every problem.
func NewPipeline(name string, raw []RawStep) (*Pipeline, error) {
	steps, res := build(raw)
	if !res.Valid {
		return nil, core.ErrValidationProblems(fmt.Sprintf("invalid pipeline %q", name), res.Errors)
	}
	return &Pipeline{Name: name, Steps: steps, Warnings: res.Warnings}, nil
}

// Definition is a pipeline as stored in a YAML file.
type Definition struct {
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Steps       []RawStep `yaml:"steps" json:"steps"`
}

// Validate checks the definition's steps.
func (d *Definition) Validate() ValidationResult {
	return Validate(d.Steps)
}

// Build turns the definition into a runnable pipeline.
func (d *Definition) Build() (*Pipeline, error) {
	p, err := NewPipeline(d.Name, d.Steps)
	if err != nil {
		return nil, err
	}
	p.Description = d.Description
	return p, nil
}

// Parse decodes a pipeline definition. Unknown top-level or step fields are
// rejected; configuration maps are free-form.
func Parse(r io.Reader) (*Definition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var d Definition
	if err := dec.Decode(&d); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse pipeline: %w", err)
	}
	if d.Name == "" {
		return nil, core.ErrValidation("pipeline name is required")
	}
	return &d, nil
}

// LoadFile reads a pipeline definition from path.
func LoadFile(path string) (*Definition, error) {
	f, err := os.Open(path) //nolint:gosec // path is supplied by the user
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	d, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

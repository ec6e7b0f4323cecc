package semantic

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapquery/pkg/core"
	"gopkg.in/yaml.v3"
)

// Catalog is an ordered set of entities addressable by id or name.
type Catalog struct {
	entities []*Entity
	byKey    map[string]*Entity
}

// NewCatalog normalizes and validates entities. Ids and names must be unique.
func NewCatalog(entities ...*Entity) (*Catalog, error) {
	c := &Catalog{byKey: make(map[string]*Entity)}
	for _, e := range entities {
		if err := c.add(e); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) add(e *Entity) error {
	e.Normalize()
	if err := e.Validate(); err != nil {
		return err
	}
	for _, key := range []string{e.ID, strings.ToLower(e.Name)} {
		if prev, ok := c.byKey[key]; ok && prev != e {
			return core.ErrValidation("entity %q defined more than once", key)
		}
		c.byKey[key] = e
	}
	c.entities = append(c.entities, e)
	return nil
}

// Get looks an entity up by id, or case-insensitively by name.
func (c *Catalog) Get(key string) (*Entity, error) {
	if e, ok := c.byKey[key]; ok {
		return e, nil
	}
	if e, ok := c.byKey[strings.ToLower(key)]; ok {
		return e, nil
	}
	return nil, core.ErrNotFound("entity %q not found", key)
}

// Entities returns all entities in load order.
func (c *Catalog) Entities() []*Entity {
	return append([]*Entity(nil), c.entities...)
}

// entityFile is the on-disk form: a single entity or a list under "entities".
type entityFile struct {
	Entities []*Entity `yaml:"entities"`
}

// Parse decodes one YAML document holding either a single entity or an
// "entities" list. Unknown fields are rejected.
func Parse(r io.Reader) ([]*Entity, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var probe map[string]any
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if _, ok := probe["entities"]; ok {
		var f entityFile
		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse entities: %w", err)
		}
		return f.Entities, nil
	}

	var e Entity
	if err := dec.Decode(&e); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse entity: %w", err)
	}
	return []*Entity{&e}, nil
}

// LoadFile reads the entities declared in one YAML file.
func LoadFile(path string) ([]*Entity, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the user's models_dir
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	entities, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entities, nil
}

// LoadDir builds a catalog from every .yaml/.yml file under dir, in
// lexical path order.
func LoadDir(dir string) (*Catalog, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan models: %w", err)
	}
	sort.Strings(paths)

	var all []*Entity
	for _, p := range paths {
		entities, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		all = append(all, entities...)
	}
	return NewCatalog(all...)
}

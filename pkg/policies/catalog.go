package policies

import (
	"github.com/Ramsey-B/clover/pkg/matching"
)

// Catalog holds one engine per named policy. It is read-only after construction.
type Catalog struct {
	engines map[string]*matching.Engine
	names   []string
}

// NewCatalog builds an engine for every policy. The first invalid policy aborts construction.
func NewCatalog(policies []matching.Policy, opts ...matching.Option) (*Catalog, error) {
	c := &Catalog{engines: make(map[string]*matching.Engine, len(policies))}
	for _, p := range policies {
		if _, ok := c.engines[p.Name]; ok {
			return nil, matching.NewConfigurationErrorf("name", "policy declared more than once").AddPolicy(p.Name)
		}
		engine, err := matching.NewEngine(p, opts...)
		if err != nil {
			return nil, err
		}
		c.engines[p.Name] = engine
		c.names = append(c.names, p.Name)
	}
	return c, nil
}

// Load builds a catalog of the built-in policies, overlaid with the policies in
// path when path is not empty
func Load(path string, opts ...matching.Option) (*Catalog, error) {
	all := Builtin()
	if path != "" {
		fromFile, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		all = Merge(all, fromFile)
	}
	return NewCatalog(all, opts...)
}

// Get returns the engine for a policy
func (c *Catalog) Get(name string) (*matching.Engine, bool) {
	e, ok := c.engines[name]
	return e, ok
}

// Names returns policy names in declaration order
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Policies returns every policy in declaration order
func (c *Catalog) Policies() []matching.Policy {
	out := make([]matching.Policy, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.engines[name].Policy())
	}
	return out
}

// Package catalog holds the set of callable desktop tools advertised by a
// tool backend, loaded once per connection and cached for the session.
package catalog

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Tool describes one callable desktop action: a unique name, a human
// description for the model, and a JSON schema for its arguments.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
}

// Catalog is an immutable-after-load set of tool descriptors.
type Catalog struct {
	mu     sync.RWMutex
	tools  []Tool
	byName map[string]Tool
}

// New creates a catalog from a list of tool descriptors. Order is preserved;
// a duplicate name overwrites the earlier descriptor.
func New(tools []Tool) *Catalog {
	c := &Catalog{
		byName: make(map[string]Tool, len(tools)),
	}
	for _, t := range tools {
		if _, exists := c.byName[t.Name]; !exists {
			c.tools = append(c.tools, t)
		}
		c.byName[t.Name] = t
	}
	return c
}

// List returns the tool descriptors in load order.
func (c *Catalog) List() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

// Get returns the descriptor for a tool name.
func (c *Catalog) Get(name string) (Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.byName[name]
	return t, ok
}

// Len returns the number of tools in the catalog.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.tools)
}

// Names returns the tool names in load order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.tools))
	for _, t := range c.tools {
		names = append(names, t.Name)
	}
	return names
}

// ValidateArguments checks a tool-call argument map against the tool's input
// schema. Unknown tools and schema violations are errors; a tool without a
// schema accepts anything.
func (c *Catalog) ValidateArguments(name string, args map[string]interface{}) error {
	tool, ok := c.Get(name)
	if !ok {
		return fmt.Errorf("unknown tool: %s", name)
	}
	if len(tool.InputSchema) == 0 {
		return nil
	}

	if args == nil {
		args = map[string]interface{}{}
	}

	schemaLoader := gojsonschema.NewGoLoader(tool.InputSchema)
	documentLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate arguments for %s: %w", name, err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return fmt.Errorf("invalid arguments for %s: %s", name, strings.Join(msgs, "; "))
	}

	return nil
}

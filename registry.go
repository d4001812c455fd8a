package chatkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ToolRegistry keeps the mapping between tool names and their callbacks
// and implements Invoker. Arguments are validated against the tool schema
// before the callback runs. It is safe for concurrent use.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*registeredTool
	order []string
}

type registeredTool struct {
	tool   Tool
	fn     *boundFunc
	schema *gojsonschema.Schema
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry(tools ...Tool) (*ToolRegistry, error) {
	r := &ToolRegistry{tools: make(map[string]*registeredTool)}
	if err := r.Register(tools...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds function tools defined with a callback. Names must be
// unique; nothing is registered if any tool is rejected.
func (r *ToolRegistry) Register(tools ...Tool) error {
	entries := make(map[string]*registeredTool, len(tools))
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		if t == nil {
			return errors.New("chatkit: tool is nil")
		}
		fn, err := functionOf(t)
		if err != nil {
			return err
		}
		if fn.Name == "" {
			return errors.New("chatkit: tool name is empty")
		}
		if fn.InvokeFunc == nil {
			return fmt.Errorf("chatkit: tool %s has no callback", fn.Name)
		}
		bound, err := bindFunc(fn.InvokeFunc)
		if err != nil {
			return fmt.Errorf("chatkit: tool %s: %w", fn.Name, err)
		}
		params, err := parametersJSON(fn)
		if err != nil {
			return fmt.Errorf("chatkit: tool %s: encoding schema: %w", fn.Name, err)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(params))
		if err != nil {
			return fmt.Errorf("chatkit: tool %s: invalid schema: %w", fn.Name, err)
		}
		if _, dup := entries[fn.Name]; dup {
			return fmt.Errorf("chatkit: tool %s already registered", fn.Name)
		}
		entries[fn.Name] = &registeredTool{tool: t, fn: bound, schema: schema}
		names = append(names, fn.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tools == nil {
		r.tools = make(map[string]*registeredTool)
	}
	for _, name := range names {
		if _, exists := r.tools[name]; exists {
			return fmt.Errorf("chatkit: tool %s already registered", name)
		}
	}
	for _, name := range names {
		r.tools[name] = entries[name]
		r.order = append(r.order, name)
	}
	return nil
}

// Tools returns the registered tools in registration order.
func (r *ToolRegistry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name].tool)
	}
	return tools
}

// Lookup returns the tool registered under name.
func (r *ToolRegistry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return entry.tool, true
}

// Invoke implements Invoker.
func (r *ToolRegistry) Invoke(ctx context.Context, name string, arguments json.RawMessage) (any, error) {
	r.mu.RLock()
	entry, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if len(arguments) == 0 {
		arguments = json.RawMessage("{}")
	}
	result, err := entry.schema.Validate(gojsonschema.NewBytesLoader(arguments))
	if err != nil {
		return nil, fmt.Errorf("validating arguments: %w", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, fmt.Errorf("invalid arguments: %s", strings.Join(problems, "; "))
	}
	return entry.fn.call(ctx, arguments)
}

package chatkit

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/thecxx/chatkit/constants"
)

// tagKey is the struct tag read for tool parameters:
//
//	City  string   `chatkit:"city,required,desc=City name, e.g. Paris"`
//	Unit  string   `chatkit:"unit,enum=celsius|fahrenheit"`
//
// desc= consumes the rest of the tag, so descriptions may contain commas.
const tagKey = "chatkit"

// FunctionOptions holds the configuration options for a function tool.
type FunctionOptions struct {
	Name        string
	Description string
	InvokeFunc  any
	Parameters  any
	Strict      bool
}

// FunctionDefinition is the provider-neutral definition of a function tool.
type FunctionDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters"`
	Strict      bool   `json:"strict,omitempty"`
	// InvokeFunc is called by ToolRegistry. Supported shapes are
	// func([ctx,] [P]) (R, error), func([ctx,] [P]) R and
	// func([ctx,] [P]) error, where P is a struct, a pointer to one,
	// or json.RawMessage.
	InvokeFunc any `json:"-"`
}

// FunctionOption defines a functional option for configuring a function tool.
type FunctionOption func(opts *FunctionOptions)

// WithFunction sets the callback of the tool. Unless parameters are set
// explicitly, the schema is derived from the callback's parameter struct.
func WithFunction(fn any) FunctionOption {
	return func(opts *FunctionOptions) { opts.InvokeFunc = fn }
}

// WithFunctionParameters sets the schema that describes the function's parameters.
func WithFunctionParameters(parameters any) FunctionOption {
	return func(opts *FunctionOptions) { opts.Parameters = parameters }
}

// WithFunctionStrict enables or disables Strict Mode for structured output.
func WithFunctionStrict(strict bool) FunctionOption {
	return func(opts *FunctionOptions) { opts.Strict = strict }
}

// DefineFunction creates a function tool definition.
func DefineFunction(name, description string, opts ...FunctionOption) Tool {
	options := &FunctionOptions{
		Name:        name,
		Description: description,
	}
	for _, opt := range opts {
		opt(options)
	}

	if options.Parameters == nil && options.InvokeFunc != nil {
		if parameters := parametersFromFunc(options.InvokeFunc); parameters != nil {
			options.Parameters = *parameters
		}
	}

	return &tool{
		type_: constants.ToolTypeFunction,
		definition: &FunctionDefinition{
			Name:        options.Name,
			Description: options.Description,
			Parameters:  normalizeParameters(options.Parameters),
			Strict:      options.Strict,
			InvokeFunc:  options.InvokeFunc,
		},
	}
}

func emptyObject() jsonschema.Definition {
	return jsonschema.Definition{
		Type:       jsonschema.Object,
		Properties: make(map[string]jsonschema.Definition),
		Required:   make([]string, 0),
	}
}

// normalizeParameters converts any schema value to a jsonschema.Definition,
// falling back to an empty object schema so the API never sees null.
func normalizeParameters(parameters any) jsonschema.Definition {
	switch p := parameters.(type) {
	case nil:
		return emptyObject()
	case jsonschema.Definition:
		return p
	case *jsonschema.Definition:
		return *p
	}
	var data []byte
	switch p := parameters.(type) {
	case json.RawMessage:
		data = p
	case []byte:
		data = p
	case string:
		data = []byte(p)
	default:
		var err error
		if data, err = json.Marshal(parameters); err != nil {
			return emptyObject()
		}
	}
	var def jsonschema.Definition
	if err := json.Unmarshal(data, &def); err != nil || def.Type == "" {
		return emptyObject()
	}
	return def
}

// parametersFromFunc derives a schema from the parameter struct of fn.
func parametersFromFunc(fn any) *jsonschema.Definition {
	bound, err := bindFunc(fn)
	if err != nil || bound.param == nil || bound.param == rawMessageType {
		return nil
	}
	paramType := bound.param
	if paramType.Kind() == reflect.Ptr {
		paramType = paramType.Elem()
	}
	if paramType.Kind() != reflect.Struct {
		return nil
	}
	return structDefinition(paramType)
}

type fieldTag struct {
	name     string
	required bool
	desc     string
	enum     []string
}

func parseTag(field reflect.StructField) (fieldTag, bool) {
	raw, ok := field.Tag.Lookup(tagKey)
	if !ok || raw == "" || raw == "-" {
		return fieldTag{}, false
	}
	var tag fieldTag
	if i := strings.Index(raw, ",desc="); i >= 0 {
		tag.desc = raw[i+len(",desc="):]
		raw = raw[:i]
	}
	parts := strings.Split(raw, ",")
	tag.name = parts[0]
	if tag.name == "" {
		tag.name = field.Name
	}
	for _, part := range parts[1:] {
		switch {
		case part == "required":
			tag.required = true
		case strings.HasPrefix(part, "enum="):
			tag.enum = strings.Split(strings.TrimPrefix(part, "enum="), "|")
		}
	}
	return tag, true
}

func structDefinition(t reflect.Type) *jsonschema.Definition {
	def := emptyObject()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tag, ok := parseTag(field)
		if !ok {
			continue
		}
		fieldDef := typeDefinition(field.Type)
		fieldDef.Description = tag.desc
		fieldDef.Enum = tag.enum
		def.Properties[tag.name] = fieldDef
		if tag.required {
			def.Required = append(def.Required, tag.name)
		}
	}
	return &def
}

// typeDefinition maps Go types to JSON Schema types.
func typeDefinition(t reflect.Type) jsonschema.Definition {
	switch t.Kind() {
	case reflect.String:
		return jsonschema.Definition{Type: jsonschema.String}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return jsonschema.Definition{Type: jsonschema.Integer}
	case reflect.Float32, reflect.Float64:
		return jsonschema.Definition{Type: jsonschema.Number}
	case reflect.Bool:
		return jsonschema.Definition{Type: jsonschema.Boolean}
	case reflect.Struct:
		return *structDefinition(t)
	case reflect.Ptr:
		return typeDefinition(t.Elem())
	case reflect.Slice, reflect.Array:
		items := typeDefinition(t.Elem())
		return jsonschema.Definition{Type: jsonschema.Array, Items: &items}
	case reflect.Map:
		return jsonschema.Definition{Type: jsonschema.Object}
	}
	return jsonschema.Definition{}
}

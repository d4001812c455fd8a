package chatkit

import (
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/thecxx/chatkit/constants"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Tool describes a callable capability the model may invoke during
// generation. For function calling, Type is "function" and Definition is a
// *FunctionDefinition.
type Tool interface {
	// Type returns the category of the tool.
	Type() string

	// Definition returns the configuration of the tool.
	Definition() any
}

type tool struct {
	type_      string
	definition any
}

// Type implements Tool.
func (t *tool) Type() string {
	return t.type_
}

// Definition implements Tool.
func (t *tool) Definition() any {
	return t.definition
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	// Index is the position the provider assigned to the call.
	Index int
	// ID links the call to its tool result message.
	ID string
	// Type is the call category, normally "function".
	Type string
	// Function holds the function name and arguments.
	Function FunctionCall
}

// FunctionCall is the function part of a tool call.
type FunctionCall struct {
	Name string
	// Arguments is a complete, syntactically valid JSON document.
	Arguments json.RawMessage
}

// DecodeArguments unmarshals the call arguments into v.
func (tc ToolCall) DecodeArguments(v any) error {
	args := tc.Function.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("chatkit: decoding arguments of %s: %w", tc.Function.Name, err)
	}
	return nil
}

// functionOf extracts a function definition from any supported tool shape.
func functionOf(t Tool) (*FunctionDefinition, error) {
	if t.Type() != constants.ToolTypeFunction {
		return nil, fmt.Errorf("chatkit: unsupported tool type %q", t.Type())
	}
	switch def := t.Definition().(type) {
	case *FunctionDefinition:
		return def, nil
	case FunctionDefinition:
		return &def, nil
	case *openai.FunctionDefinition:
		return &FunctionDefinition{Name: def.Name, Description: def.Description, Parameters: def.Parameters, Strict: def.Strict}, nil
	case openai.FunctionDefinition:
		return &FunctionDefinition{Name: def.Name, Description: def.Description, Parameters: def.Parameters, Strict: def.Strict}, nil
	default:
		data, err := json.Marshal(def)
		if err != nil {
			return nil, fmt.Errorf("chatkit: encoding tool definition: %w", err)
		}
		var fn FunctionDefinition
		if err := json.Unmarshal(data, &fn); err != nil || fn.Name == "" {
			return nil, fmt.Errorf("chatkit: unrecognized tool definition %T", def)
		}
		return &fn, nil
	}
}

// parametersJSON renders a definition's parameter schema, defaulting to an
// empty object schema. Object schemas always carry "properties": the
// jsonschema package omits an empty map, and the OpenAI API rejects an
// object schema without it.
func parametersJSON(fn *FunctionDefinition) (json.RawMessage, error) {
	return schemaJSON(fn.Parameters)
}

func schemaJSON(schema any) (json.RawMessage, error) {
	var (
		raw []byte
		err error
	)
	switch p := schema.(type) {
	case nil:
		raw, err = json.Marshal(&jsonschema.Definition{Type: jsonschema.Object})
	case json.RawMessage:
		raw = p
	case jsonschema.Definition:
		raw, err = json.Marshal(&p)
	default:
		raw, err = json.Marshal(schema)
	}
	if err != nil {
		return nil, err
	}
	if gjson.GetBytes(raw, "type").String() == string(jsonschema.Object) && !gjson.GetBytes(raw, "properties").Exists() {
		if raw, err = sjson.SetRawBytes(raw, "properties", []byte("{}")); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

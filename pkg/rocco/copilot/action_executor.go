package copilot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Errors.
var (
	ErrUnknownAction      = errors.New("unknown action")
	ErrInvalidActionInput = errors.New("invalid action input")
)

// registeredAction is an action with its compiled input schema.
type registeredAction struct {
	definition ToolDefinition
	schema     *jsonschema.Schema
}

// ActionExecutor owns the static action set: it advertises the actions to the
// model and validates and runs the one the model picked.
type ActionExecutor struct {
	actions map[string]*registeredAction
	order   []string
	logger  *slog.Logger
}

// NewActionExecutor reflects and compiles the schema of every action.
func NewActionExecutor(logger *slog.Logger) (*ActionExecutor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e := &ActionExecutor{
		actions: make(map[string]*registeredAction, len(actionSpecs)),
		logger:  logger.With("component", "actions"),
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	for _, spec := range actionSpecs {
		params, err := reflectParameters(spec.input)
		if err != nil {
			return nil, fmt.Errorf("action %s: %w", spec.name, err)
		}

		url := "mem://actions/" + spec.name + ".json"
		if err := compiler.AddResource(url, bytes.NewReader(params)); err != nil {
			return nil, fmt.Errorf("action %s: adding schema: %w", spec.name, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("action %s: compiling schema: %w", spec.name, err)
		}

		e.actions[spec.name] = &registeredAction{
			definition: ToolDefinition{
				Type: "function",
				Function: FunctionDef{
					Name:        spec.name,
					Description: spec.description,
					Parameters:  params,
				},
			},
			schema: schema,
		}
		e.order = append(e.order, spec.name)
	}
	return e, nil
}

// Definitions returns the tool definitions in a stable order.
func (e *ActionExecutor) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(e.order))
	for _, name := range e.order {
		defs = append(defs, e.actions[name].definition)
	}
	return defs
}

// Execute validates the call's arguments against the action schema and runs
// the bound handler. Any failure affects this call only.
func (e *ActionExecutor) Execute(ctx context.Context, call ToolCall, handlers map[string]ActionHandlerFunc) (*ActionResult, error) {
	name := call.Function.Name
	action, ok := e.actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	handler, ok := handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q has no handler", ErrUnknownAction, name)
	}

	args := strings.TrimSpace(call.Function.Arguments)
	if args == "" || args == "null" {
		args = "{}"
	}

	var decoded any
	if err := json.Unmarshal([]byte(args), &decoded); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidActionInput, name, err)
	}
	if err := action.schema.Validate(decoded); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidActionInput, name, err)
	}

	e.logger.Debug("executing action", "action", name, "call_id", call.ID)

	result, err := handler(ctx, json.RawMessage(args))
	if err != nil {
		return nil, fmt.Errorf("action %s: %w", name, err)
	}
	if result == nil {
		result = &ActionResult{}
	}
	return result, nil
}

package navigator

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/webpilot/pkg/llm"
)

// actionSchemas holds the JSON schema for each action's arguments. The
// same maps are advertised to the model as the tool catalogue and used
// to validate incoming arguments before dispatch.
var actionSchemas = map[Action]map[string]interface{}{
	ActionSnapshot: {
		"type": "object",
		"properties": map[string]interface{}{
			"fullPage": map[string]interface{}{
				"type":        "boolean",
				"description": "Include non-interactive page content, not just interactive elements",
			},
		},
	},
	ActionClick: {
		"type": "object",
		"properties": map[string]interface{}{
			"target": map[string]interface{}{
				"type":        "string",
				"description": "Element reference from a snapshot (e.g. @3) or a CSS selector",
			},
		},
		"required": []interface{}{"target"},
	},
	ActionFill: {
		"type": "object",
		"properties": map[string]interface{}{
			"target": map[string]interface{}{
				"type":        "string",
				"description": "Element reference from a snapshot (e.g. @3) or a CSS selector",
			},
			"value": map[string]interface{}{
				"type":        "string",
				"description": "Text to set; the field is cleared first",
			},
		},
		"required": []interface{}{"target", "value"},
	},
	ActionType: {
		"type": "object",
		"properties": map[string]interface{}{
			"target": map[string]interface{}{
				"type":        "string",
				"description": "Element reference from a snapshot (e.g. @3) or a CSS selector",
			},
			"text": map[string]interface{}{
				"type":        "string",
				"description": "Text to append without clearing the field",
			},
		},
		"required": []interface{}{"target", "text"},
	},
	ActionPress: {
		"type": "object",
		"properties": map[string]interface{}{
			"key": map[string]interface{}{
				"type":        "string",
				"description": "Key name or chord, e.g. Enter, Tab, Control+a",
			},
		},
		"required": []interface{}{"key"},
	},
	ActionScroll: {
		"type": "object",
		"properties": map[string]interface{}{
			"direction": map[string]interface{}{
				"type":        "string",
				"enum":        []interface{}{"up", "down", "left", "right"},
				"description": "Scroll direction",
			},
			"amount": map[string]interface{}{
				"type":        "number",
				"description": "Pixels to scroll (default 500)",
			},
		},
		"required": []interface{}{"direction"},
	},
	ActionWait: {
		"type": "object",
		"properties": map[string]interface{}{
			"ms": map[string]interface{}{
				"type":        "number",
				"description": "Milliseconds to pause",
			},
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "CSS selector to wait for",
			},
		},
	},
	ActionDone: {
		"type": "object",
		"properties": map[string]interface{}{
			"success": map[string]interface{}{
				"type":        "boolean",
				"description": "Whether the instruction was completed",
			},
			"summary": map[string]interface{}{
				"type":        "string",
				"description": "Short description of what was done or why it failed",
			},
		},
		"required": []interface{}{"success", "summary"},
	},
}

var actionDescriptions = map[Action]string{
	ActionSnapshot: "Capture the current page as a text tree of elements with reference tokens",
	ActionClick:    "Click an element",
	ActionFill:     "Clear a field and set its value",
	ActionType:     "Type text into an element without clearing it",
	ActionPress:    "Press a keyboard key or chord",
	ActionScroll:   "Scroll the viewport",
	ActionWait:     "Pause for a duration or until a selector appears",
	ActionDone:     "Signal that the instruction is finished",
}

var compiledSchemas = map[Action]*gojsonschema.Schema{}

func init() {
	for action, schema := range actionSchemas {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
		if err != nil {
			panic(fmt.Sprintf("invalid schema for action %s: %v", action, err))
		}
		compiledSchemas[action] = compiled
	}
}

// Catalog returns the tool catalogue advertised to the model on every
// invocation. It exactly matches the dispatcher's vocabulary.
func Catalog() []llm.ToolDefinition {
	tools := make([]llm.ToolDefinition, 0, len(Actions))
	for _, action := range Actions {
		tools = append(tools, llm.ToolDefinition{
			Name:        string(action),
			Description: actionDescriptions[action],
			InputSchema: actionSchemas[action],
		})
	}
	return tools
}

// validateArgs checks action arguments against the catalogue schema.
func validateArgs(action Action, args map[string]interface{}) error {
	schema, ok := compiledSchemas[action]
	if !ok {
		return fmt.Errorf("unknown action %s", action)
	}

	if args == nil {
		args = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, resultErr := range result.Errors() {
		problems = append(problems, resultErr.String())
	}
	return fmt.Errorf("%s", strings.Join(problems, "; "))
}

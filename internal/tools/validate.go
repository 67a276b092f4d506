package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	. "github.com/roelfdiedericks/llamar/internal/logging"
)

// ValidateArgs checks args against a tool's input schema. Required
// parameters are checked first so the error lists every missing name at
// once; type and enum violations come from compiled JSON Schema
// validation. Unknown parameters are allowed.
func ValidateArgs(toolName string, schema map[string]any, args map[string]any) error {
	if missing := missingRequired(schema, args); len(missing) > 0 {
		return fmt.Errorf("Missing required parameters: %s", strings.Join(missing, ", "))
	}

	compiled, err := compileSchema(toolName, schema)
	if err != nil {
		// A schema that does not compile is a bug in the tool, not the
		// caller. Log it and let the call through on the required check.
		L_warn("validate: schema does not compile, skipping type checks", "tool", toolName, "error", err)
		return nil
	}

	if err := compiled.Validate(args); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			leaf := leafCause(verr)
			if param := paramFromPointer(leaf.InstanceLocation); param != "" {
				return fmt.Errorf("Invalid value for parameter '%s': %s", param, leaf.Message)
			}
			return fmt.Errorf("Invalid arguments: %s", leaf.Message)
		}
		return fmt.Errorf("Invalid arguments: %s", err)
	}
	return nil
}

// missingRequired returns required param names absent from args, in
// schema order. Literal schemas use []string, decoded ones []any.
func missingRequired(schema, args map[string]any) []string {
	var missing []string
	appendMissing := func(name string) {
		if _, ok := args[name]; !ok {
			missing = append(missing, name)
		}
	}
	switch req := schema["required"].(type) {
	case []string:
		for _, name := range req {
			appendMissing(name)
		}
	case []any:
		for _, v := range req {
			if name, ok := v.(string); ok {
				appendMissing(name)
			}
		}
	}
	return missing
}

var schemaCache sync.Map

// compileSchema compiles a tool input schema, caching by its JSON text.
// Tools return the same literal map every call, so the cache hits after
// the first validation.
func compileSchema(toolName string, schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	key := string(raw)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString(toolName+".schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// leafCause descends to the most specific validation failure.
func leafCause(verr *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(verr.Causes) > 0 {
		verr = verr.Causes[0]
	}
	return verr
}

// paramFromPointer extracts the top-level parameter name from a JSON
// pointer like "/path" or "/lines/0".
func paramFromPointer(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return ""
	}
	if i := strings.IndexByte(ptr, '/'); i >= 0 {
		ptr = ptr[:i]
	}
	ptr = strings.ReplaceAll(ptr, "~1", "/")
	ptr = strings.ReplaceAll(ptr, "~0", "~")
	return ptr
}

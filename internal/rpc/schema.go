// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package rpc

import "fmt"

// ValidateArguments checks args against a JSON Schema object description
// restricted to the subset the three tools need: type, required,
// properties (string/integer/boolean), enum, minLength, minimum, maximum.
// It is intentionally narrow rather than a general-purpose validator:
// three fixed schemas do not warrant a schema-validation dependency.
func ValidateArguments(schema map[string]any, args map[string]any) error {
	props, _ := schema["properties"].(map[string]any)
	required, _ := schema["required"].([]string)

	for _, name := range required {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("missing required field %q", name)
		}
	}

	for name, value := range args {
		propSchema, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		if err := validateField(name, propSchema, value); err != nil {
			return err
		}
	}
	return nil
}

func validateField(name string, schema map[string]any, value any) error {
	wantType, _ := schema["type"].(string)
	switch wantType {
	case "string":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field %q must be a string", name)
		}
		if minLen, ok := schema["minLength"].(int); ok && len(s) < minLen {
			return fmt.Errorf("field %q must be at least %d characters", name, minLen)
		}
		if enumVals, ok := schema["enum"].([]string); ok {
			if !contains(enumVals, s) {
				return fmt.Errorf("field %q must be one of %v", name, enumVals)
			}
		}
	case "integer":
		n, ok := asNumber(value)
		if !ok || n != float64(int64(n)) {
			return fmt.Errorf("field %q must be an integer", name)
		}
		if min, ok := schema["minimum"].(int); ok && n < float64(min) {
			return fmt.Errorf("field %q must be >= %d", name, min)
		}
		if max, ok := schema["maximum"].(int); ok && n > float64(max) {
			return fmt.Errorf("field %q must be <= %d", name, max)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field %q must be a boolean", name)
		}
	}
	return nil
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

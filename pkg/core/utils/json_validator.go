package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"github.com/go-playground/validator/v10"
	hjson "github.com/hjson/hjson-go/v4"
)

// ErrNoJSONObject is returned when the input contains no {...} object.
var ErrNoJSONObject = errors.New("no JSON object found")

var validate = validator.New()

// ValidateStruct checks `validate` tags on a decoded LLM payload. Code stays
// the source of truth for what the model must return.
func ValidateStruct(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("JSON_SCHEMA_VIOLATION: %w", err)
	}
	return nil
}

// ValidateJSON decodes jsonData into schema and validates its tags.
func ValidateJSON(jsonData string, schema interface{}) error {
	if err := json.Unmarshal([]byte(jsonData), schema); err != nil {
		return fmt.Errorf("JSON_STRUCTURAL_ERROR: %w", err)
	}
	return ValidateStruct(schema)
}

// RepairJSON attempts to fix common JSON errors from LLM outputs using
// github.com/RealAlexandreAI/json-repair: missing quotes around keys, single
// quotes, unclosed arrays/objects, trailing commas and comments.
func RepairJSON(malformedJSON string) (string, error) {
	repaired, err := jsonrepair.RepairJSON(malformedJSON)
	if err != nil {
		return "", fmt.Errorf("JSON_REPAIR_FAILED: %w", err)
	}
	return repaired, nil
}

// ParseHJSON parses Human-friendly JSON (Hjson) and returns standard JSON.
// Hjson accepts comments, unquoted keys and strings, and optional commas,
// which covers most lenient LLM outputs that json-repair cannot fix.
func ParseHJSON(hjsonData string) (string, error) {
	var result interface{}
	if err := hjson.Unmarshal([]byte(hjsonData), &result); err != nil {
		return "", fmt.Errorf("HJSON_PARSE_ERROR: %w", err)
	}

	jsonBytes, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("JSON_MARSHAL_ERROR: %w", err)
	}
	return string(jsonBytes), nil
}

// ExtractJSONObject returns the span from the first '{' to the last '}'.
// Models often wrap the object in prose.
func ExtractJSONObject(input string) (string, error) {
	start := strings.Index(input, "{")
	end := strings.LastIndex(input, "}")
	if start < 0 || end <= start {
		return "", ErrNoJSONObject
	}
	return input[start : end+1], nil
}

// SmartParse tries multiple parsing strategies to extract valid JSON.
// Order of attempts:
// 1. Standard JSON parse
// 2. JSON repair
// 3. Hjson parse (most lenient)
//
// Each attempt runs on the embedded object when one is found, otherwise on
// the whole input.
func SmartParse(input string, schema interface{}) (string, error) {
	candidate := CleanMarkdown(input)
	if obj, err := ExtractJSONObject(candidate); err == nil {
		candidate = obj
	}

	// Try 1: Standard JSON
	if err := json.Unmarshal([]byte(candidate), schema); err == nil {
		return candidate, nil
	}

	// Try 2: JSON Repair
	if repaired, err := RepairJSON(candidate); err == nil {
		if err := json.Unmarshal([]byte(repaired), schema); err == nil {
			return repaired, nil
		}
	}

	// Try 3: Hjson (most lenient)
	if hjsonResult, err := ParseHJSON(candidate); err == nil {
		if err := json.Unmarshal([]byte(hjsonResult), schema); err == nil {
			return hjsonResult, nil
		}
	}

	return "", fmt.Errorf("SMART_PARSE_FAILED: all parsing strategies failed for input")
}

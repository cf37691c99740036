package rag

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// SchemaType JSON Schema 基本类型
type SchemaType string

const (
	TypeObject SchemaType = "object"
	TypeArray  SchemaType = "array"
	TypeString SchemaType = "string"
)

// JSONSchema is the subset of JSON Schema needed to pin down LLM
// structured output at the boundary.
type JSONSchema struct {
	Type                 SchemaType             `json:"type"`
	Description          string                 `json:"description,omitempty"`
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	Items                *JSONSchema            `json:"items,omitempty"`
	AdditionalProperties *bool                  `json:"additionalProperties,omitempty"`
}

// String 返回 schema 的 JSON 文本，嵌入提示词使用
func (s *JSONSchema) String() string {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// EntitySchema 实体抽取的输出契约: {"names": [string]}
var EntitySchema = &JSONSchema{
	Type: TypeObject,
	Properties: map[string]*JSONSchema{
		"names": {
			Type:        TypeArray,
			Description: "health-related entity mentions, e.g. foods, activities, sleep, biometrics",
			Items:       &JSONSchema{Type: TypeString},
		},
	},
	Required: []string{"names"},
}

// ParseError represents a validation error with field path.
type ParseError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors struct {
	Errors []ParseError `json:"errors"`
}

// Error implements the error interface.
func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed with %d errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// ValidateJSON 校验 data 是否满足 schema
func ValidateJSON(data []byte, schema *JSONSchema) error {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return &ValidationErrors{
			Errors: []ParseError{{Message: fmt.Sprintf("invalid JSON: %v", err)}},
		}
	}
	if schema == nil {
		return nil
	}

	var errs []ParseError
	validateValue(value, schema, "", &errs)
	if len(errs) > 0 {
		return &ValidationErrors{Errors: errs}
	}
	return nil
}

func validateValue(value any, schema *JSONSchema, path string, errs *[]ParseError) {
	switch schema.Type {
	case TypeString:
		if _, ok := value.(string); !ok {
			*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("expected string, got %s", typeName(value))})
		}
	case TypeArray:
		arr, ok := value.([]any)
		if !ok {
			*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("expected array, got %s", typeName(value))})
			return
		}
		if schema.Items == nil {
			return
		}
		for i, item := range arr {
			validateValue(item, schema.Items, fmt.Sprintf("%s[%d]", path, i), errs)
		}
	case TypeObject:
		obj, ok := value.(map[string]any)
		if !ok {
			*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("expected object, got %s", typeName(value))})
			return
		}
		for _, req := range schema.Required {
			val, exists := obj[req]
			if !exists {
				*errs = append(*errs, ParseError{Path: joinPath(path, req), Message: "required field is missing"})
			} else if val == nil {
				*errs = append(*errs, ParseError{Path: joinPath(path, req), Message: "required field must not be null"})
			}
		}
		for name, val := range obj {
			prop, known := schema.Properties[name]
			if !known {
				if schema.AdditionalProperties != nil && !*schema.AdditionalProperties {
					*errs = append(*errs, ParseError{Path: joinPath(path, name), Message: "additional property is not allowed"})
				}
				continue
			}
			if val != nil {
				validateValue(val, prop, joinPath(path, name), errs)
			}
		}
	}
}

func joinPath(base, field string) string {
	if base == "" {
		return field
	}
	return base + "." + field
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

var codeFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// extractJSON 从可能带 markdown 代码块或前后说明文字的回复中取出 JSON 对象
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if strings.Contains(response, "```") {
		if m := codeFencePattern.FindStringSubmatch(response); len(m) > 1 {
			return strings.TrimSpace(m[1])
		}
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		return response[start : end+1]
	}
	return response
}

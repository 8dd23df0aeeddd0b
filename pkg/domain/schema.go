package domain

import (
	"fmt"
	"time"
)

// FieldType enumerates the value types a schema can constrain a field to.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldArray   FieldType = "array"
	FieldObject  FieldType = "object"
	FieldDate    FieldType = "date"
)

// FieldDef constrains a single named field. Fields not listed in the schema
// are permitted and carry no constraints.
type FieldDef struct {
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
}

// RelationDef declares that a local field references a document in another
// collection. TargetField defaults to "id" when empty.
type RelationDef struct {
	Collection  string `json:"collection"`
	TargetField string `json:"targetField,omitempty"`
}

// Schema describes the declared shape of a collection: field constraints,
// relations to other collections, and named indices. Each index is an ordered
// list of field names; a single-field index is simply a list of length 1.
type Schema struct {
	Fields            map[string]FieldDef    `json:"fields,omitempty"`
	Relations         map[string]RelationDef `json:"relations,omitempty"`
	ValidateRelations bool                   `json:"validateRelations,omitempty"`
	Indices           map[string][]string    `json:"indices,omitempty"`
}

// Validate checks that the schema declaration itself is well formed.
func (s *Schema) Validate() error {
	for name, fields := range s.Indices {
		if len(fields) == 0 {
			return fmt.Errorf("index %q must list at least one field", name)
		}
		seen := make(map[string]bool, len(fields))
		for _, f := range fields {
			if f == "" {
				return fmt.Errorf("index %q lists an empty field name", name)
			}
			if seen[f] {
				return fmt.Errorf("index %q lists field %q twice", name, f)
			}
			seen[f] = true
		}
	}
	for field, rel := range s.Relations {
		if rel.Collection == "" {
			return fmt.Errorf("relation on field %q must name a target collection", field)
		}
	}
	return nil
}

// RelationTarget returns the relation declared on the given local field with
// its target field defaulted.
func (s *Schema) RelationTarget(field string) (RelationDef, bool) {
	rel, ok := s.Relations[field]
	if !ok {
		return RelationDef{}, false
	}
	if rel.TargetField == "" {
		rel.TargetField = IDField
	}
	return rel, true
}

// ValidateDocument checks a document against the schema's field constraints.
// Missing required fields and wrongly typed fields fail with a ValidationError.
func (s *Schema) ValidateDocument(doc Document) error {
	for name, def := range s.Fields {
		value, exists := doc[name]
		if !exists || value == nil {
			if def.Required {
				return &ValidationError{Field: name, Reason: "required field is missing"}
			}
			continue
		}
		if !matchesType(value, def.Type) {
			return &ValidationError{
				Field:  name,
				Reason: fmt.Sprintf("expected %s, got %T", def.Type, value),
			}
		}
	}
	return nil
}

func matchesType(value interface{}, ft FieldType) bool {
	switch ft {
	case FieldString:
		_, ok := value.(string)
		return ok
	case FieldNumber:
		return isNumeric(value)
	case FieldBoolean:
		_, ok := value.(bool)
		return ok
	case FieldArray:
		_, ok := value.([]interface{})
		return ok
	case FieldObject:
		if _, ok := value.(map[string]interface{}); ok {
			return true
		}
		_, ok := value.(Document)
		return ok
	case FieldDate:
		if _, ok := value.(time.Time); ok {
			return true
		}
		if str, ok := value.(string); ok {
			_, err := time.Parse(time.RFC3339, str)
			return err == nil
		}
		return false
	default:
		return false
	}
}

func isNumeric(value interface{}) bool {
	switch value.(type) {
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}

package domain

import (
	"fmt"
	"sort"
	"strings"
)

// FindQuery carries every parameter of a find call. Where is either a map of
// field equalities or a boolean tree using the $and / $or operators. Filter
// leaves are applied in memory after the primary result set is materialized,
// Like patterns after that.
type FindQuery struct {
	Where    map[string]interface{} `json:"where,omitempty"`
	Like     map[string]string      `json:"like,omitempty"`
	Filter   map[string]interface{} `json:"filter,omitempty"`
	OrderBy  interface{}            `json:"orderBy,omitempty"`
	Limit    int                    `json:"limit,omitempty"`
	Offset   int                    `json:"offset,omitempty"`
	Populate []string               `json:"populate,omitempty"`
}

// FindResult is the response envelope of a find call. Size is the total match
// count before pagination. When population was requested, Populated holds
// resolved copies of Results in the same order; Results keeps the raw
// relation values.
type FindResult struct {
	Size      int        `json:"size"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
	Results   []Document `json:"results"`
	Populated []Document `json:"populated,omitempty"`
}

// ConditionNode is a normalized AND/OR tree over equality leaves. Exactly one
// of And, Or, or the Field/Value pair is set.
type ConditionNode struct {
	And   []*ConditionNode
	Or    []*ConditionNode
	Field string
	Value interface{}
}

// IsLeaf reports whether the node is a single field equality.
func (n *ConditionNode) IsLeaf() bool {
	return len(n.And) == 0 && len(n.Or) == 0 && n.Field != ""
}

// ParseCondition normalizes the wire form of a where clause into a condition
// tree. A map with multiple plain keys is an implicit conjunction. The $and
// and $or keys take a list of sub-conditions and may not be mixed with plain
// keys at the same level.
func ParseCondition(where map[string]interface{}) (*ConditionNode, error) {
	if len(where) == 0 {
		return nil, nil
	}

	andRaw, hasAnd := where["$and"]
	orRaw, hasOr := where["$or"]
	if hasAnd && hasOr {
		return nil, fmt.Errorf("$and and $or cannot appear at the same level")
	}

	if hasAnd || hasOr {
		if len(where) > 1 {
			return nil, fmt.Errorf("operator clause cannot be mixed with field equalities")
		}
		raw := andRaw
		if hasOr {
			raw = orRaw
		}
		children, err := parseConditionList(raw)
		if err != nil {
			return nil, err
		}
		if hasAnd {
			return &ConditionNode{And: children}, nil
		}
		return &ConditionNode{Or: children}, nil
	}

	// Plain equality map: implicit conjunction over its entries.
	fields := make([]string, 0, len(where))
	for field := range where {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	if len(fields) == 1 {
		return &ConditionNode{Field: fields[0], Value: where[fields[0]]}, nil
	}
	node := &ConditionNode{}
	for _, field := range fields {
		node.And = append(node.And, &ConditionNode{Field: field, Value: where[field]})
	}
	return node, nil
}

func parseConditionList(raw interface{}) ([]*ConditionNode, error) {
	var items []interface{}
	switch v := raw.(type) {
	case []interface{}:
		items = v
	case []map[string]interface{}:
		for _, m := range v {
			items = append(items, m)
		}
	default:
		return nil, fmt.Errorf("operator clause must be a list, got %T", raw)
	}

	var children []*ConditionNode
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("condition list entries must be maps, got %T", item)
		}
		child, err := ParseCondition(m)
		if err != nil {
			return nil, err
		}
		if child != nil {
			children = append(children, child)
		}
	}
	if len(children) == 0 {
		return nil, fmt.Errorf("operator clause lists no conditions")
	}
	return children, nil
}

// SortKey is one field of an ORDER BY specification.
type SortKey struct {
	Field      string
	Descending bool
}

// ParseOrderBy accepts the three wire forms of orderBy: a single "field dir"
// string, a list of such strings, or a map of field to direction. Map form
// sorts its keys for determinism.
func ParseOrderBy(raw interface{}) ([]SortKey, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		key, err := parseSortString(v)
		if err != nil {
			return nil, err
		}
		return []SortKey{key}, nil
	case []string:
		keys := make([]SortKey, 0, len(v))
		for _, s := range v {
			key, err := parseSortString(s)
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
		}
		return keys, nil
	case []interface{}:
		keys := make([]SortKey, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("orderBy list entries must be strings, got %T", item)
			}
			key, err := parseSortString(s)
			if err != nil {
				return nil, err
			}
			keys = append(keys, key)
		}
		return keys, nil
	case map[string]string:
		fields := make([]string, 0, len(v))
		for field := range v {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		keys := make([]SortKey, 0, len(fields))
		for _, field := range fields {
			desc, err := parseDirection(v[field])
			if err != nil {
				return nil, err
			}
			keys = append(keys, SortKey{Field: field, Descending: desc})
		}
		return keys, nil
	case map[string]interface{}:
		fields := make([]string, 0, len(v))
		for field := range v {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		keys := make([]SortKey, 0, len(fields))
		for _, field := range fields {
			dir, ok := v[field].(string)
			if !ok {
				return nil, fmt.Errorf("orderBy direction for %q must be a string", field)
			}
			desc, err := parseDirection(dir)
			if err != nil {
				return nil, err
			}
			keys = append(keys, SortKey{Field: field, Descending: desc})
		}
		return keys, nil
	default:
		return nil, fmt.Errorf("unsupported orderBy type %T", raw)
	}
}

func parseSortString(s string) (SortKey, error) {
	parts := strings.Fields(s)
	switch len(parts) {
	case 1:
		return SortKey{Field: parts[0]}, nil
	case 2:
		desc, err := parseDirection(parts[1])
		if err != nil {
			return SortKey{}, err
		}
		return SortKey{Field: parts[0], Descending: desc}, nil
	default:
		return SortKey{}, fmt.Errorf("invalid orderBy entry %q", s)
	}
}

func parseDirection(dir string) (bool, error) {
	switch strings.ToLower(dir) {
	case "asc":
		return false, nil
	case "desc":
		return true, nil
	default:
		return false, fmt.Errorf("invalid sort direction %q", dir)
	}
}

package automation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Operator is a comparison operator on a condition leaf.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpContains Operator = "contains"
	OpIn       Operator = "in"
)

var operators = map[Operator]bool{
	OpEq: true, OpNeq: true,
	OpGt: true, OpGte: true, OpLt: true, OpLte: true,
	OpContains: true, OpIn: true,
}

type nodeKind int

const (
	kindLeaf nodeKind = iota
	kindAnd
	kindOr
	kindNot
)

// Condition is one node of a rule's condition tree: either a leaf
// comparison {field, op, value} or a combinator {and: [...]},
// {or: [...]}, {not: {...}}.
type Condition struct {
	kind     nodeKind
	children []Condition // and / or
	child    *Condition  // not
	field    string
	op       Operator
	value    interface{}
}

// raw JSON shape of a condition node.
type conditionJSON struct {
	And   []json.RawMessage `json:"and"`
	Or    []json.RawMessage `json:"or"`
	Not   json.RawMessage   `json:"not"`
	Field string            `json:"field"`
	Op    string            `json:"op"`
	Value interface{}       `json:"value"`
}

// ParseConditions decodes and validates a condition tree. A nil, empty,
// or JSON-null payload returns (nil, nil): the rule has no conditions.
func ParseConditions(data []byte) (*Condition, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" || trimmed == "{}" {
		return nil, nil
	}
	node, err := parseNode(data)
	if err != nil {
		return nil, err
	}
	return node, nil
}

func parseNode(data []byte) (*Condition, error) {
	var raw conditionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid condition node: %w", err)
	}

	// Scan the keys separately so an absent combinator can be told
	// apart from an empty one, and so a node mixing combinator and
	// leaf keys is rejected.
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("invalid condition node: %w", err)
	}
	_, hasAnd := keys["and"]
	_, hasOr := keys["or"]
	_, hasNot := keys["not"]
	_, hasField := keys["field"]

	forms := 0
	for _, present := range []bool{hasAnd, hasOr, hasNot, hasField} {
		if present {
			forms++
		}
	}
	if forms != 1 {
		return nil, fmt.Errorf("condition node must be exactly one of a leaf, \"and\", \"or\", or \"not\"")
	}

	switch {
	case hasAnd:
		children, err := parseChildren(raw.And)
		if err != nil {
			return nil, err
		}
		return &Condition{kind: kindAnd, children: children}, nil
	case hasOr:
		children, err := parseChildren(raw.Or)
		if err != nil {
			return nil, err
		}
		return &Condition{kind: kindOr, children: children}, nil
	case hasNot:
		child, err := parseNode(raw.Not)
		if err != nil {
			return nil, err
		}
		return &Condition{kind: kindNot, child: child}, nil
	default:
		if raw.Field == "" {
			return nil, fmt.Errorf("condition leaf requires a non-empty \"field\"")
		}
		op := Operator(raw.Op)
		if !operators[op] {
			return nil, fmt.Errorf("unknown condition operator %q on field %q", raw.Op, raw.Field)
		}
		return &Condition{kind: kindLeaf, field: raw.Field, op: op, value: raw.Value}, nil
	}
}

func parseChildren(raws []json.RawMessage) ([]Condition, error) {
	children := make([]Condition, 0, len(raws))
	for _, r := range raws {
		c, err := parseNode(r)
		if err != nil {
			return nil, err
		}
		children = append(children, *c)
	}
	return children, nil
}

// Evaluate walks the tree against trigger data and returns the result.
// It never mutates data: same tree and same data always produce the
// same answer, which is what makes execution logs replayable. The error
// return only fires on a structurally corrupt tree, which create-time
// validation should have made unreachable.
func Evaluate(node *Condition, data map[string]interface{}) (bool, error) {
	if node == nil {
		return true, nil
	}
	switch node.kind {
	case kindAnd:
		// Empty conjunction is vacuously true.
		for i := range node.children {
			ok, err := Evaluate(&node.children[i], data)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case kindOr:
		// Empty disjunction is false.
		for i := range node.children {
			ok, err := Evaluate(&node.children[i], data)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case kindNot:
		ok, err := Evaluate(node.child, data)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case kindLeaf:
		return evalLeaf(node, data), nil
	default:
		return false, fmt.Errorf("unknown condition node kind %d", node.kind)
	}
}

func evalLeaf(node *Condition, data map[string]interface{}) bool {
	fieldValue, found := resolvePath(data, node.field)
	if !found {
		// An absent field is "not equal to anything"; every other
		// operator treats it as a non-match.
		return node.op == OpNeq
	}

	switch node.op {
	case OpEq:
		return looseEqual(fieldValue, node.value)
	case OpNeq:
		return !looseEqual(fieldValue, node.value)
	case OpGt, OpGte, OpLt, OpLte:
		return orderedCompare(node.op, fieldValue, node.value)
	case OpContains:
		return containsValue(fieldValue, node.value)
	case OpIn:
		return inSet(fieldValue, node.value)
	default:
		return false
	}
}

// resolvePath walks a dot-path like "member.age" through nested maps.
func resolvePath(data map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = data
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// looseEqual compares across the types trigger data shows up with after
// a JSON round trip: numbers compare by value, bools by identity,
// everything else by string form.
func looseEqual(left, right interface{}) bool {
	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if lok && rok {
		return lf == rf
	}
	if lb, ok := left.(bool); ok {
		rb, ok := right.(bool)
		return ok && lb == rb
	}
	return fmt.Sprintf("%v", left) == fmt.Sprintf("%v", right)
}

// orderedCompare handles gt/gte/lt/lte over numbers or date-like
// strings. A type mismatch is a non-match, not an error: trigger data
// comes from loosely typed external events.
func orderedCompare(op Operator, left, right interface{}) bool {
	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if !lok || !rok {
		lt, ltOK := toTime(left)
		rt, rtOK := toTime(right)
		if !ltOK || !rtOK {
			return false
		}
		lf = float64(lt.UnixNano())
		rf = float64(rt.UnixNano())
	}
	switch op {
	case OpGt:
		return lf > rf
	case OpGte:
		return lf >= rf
	case OpLt:
		return lf < rf
	case OpLte:
		return lf <= rf
	}
	return false
}

// containsValue is substring match when the field is a string and
// membership when it is an array.
func containsValue(fieldValue, want interface{}) bool {
	switch fv := fieldValue.(type) {
	case string:
		return strings.Contains(fv, fmt.Sprintf("%v", want))
	case []interface{}:
		for _, item := range fv {
			if looseEqual(item, want) {
				return true
			}
		}
	}
	return false
}

// inSet checks field value membership in the condition's array value.
func inSet(fieldValue, set interface{}) bool {
	items, ok := set.([]interface{})
	if !ok {
		return false
	}
	for _, item := range items {
		if looseEqual(fieldValue, item) {
			return true
		}
	}
	return false
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func toTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

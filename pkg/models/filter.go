package models

// Combinator joins the child nodes of a filter group.
type Combinator string

const (
	CombinatorAnd Combinator = "AND"
	CombinatorOr  Combinator = "OR"
)

// Filter operators understood by the filter engine.
const (
	OpEquals             = "equals"
	OpNotEquals          = "not_equals"
	OpContains           = "contains"
	OpNotContains        = "not_contains"
	OpStartsWith         = "starts_with"
	OpEndsWith           = "ends_with"
	OpGreaterThan        = "greater_than"
	OpGreaterThanOrEqual = "greater_than_or_equal"
	OpLessThan           = "less_than"
	OpLessThanOrEqual    = "less_than_or_equal"
	OpIn                 = "in"
	OpNotIn              = "not_in"
	OpIsEmpty            = "is_empty"
	OpIsNotEmpty         = "is_not_empty"
	OpBetween            = "between"
	OpRegex              = "regex"
	OpMatches            = "matches"
)

// FilterNode is either a leaf condition ({variable, operator, value, type})
// or a group ({combinator, conditions}). The wire shape is shared with
// subscription filter_conditions and trigger filter_schema columns.
type FilterNode struct {
	// group form
	Combinator Combinator    `json:"combinator,omitempty"`
	Conditions []*FilterNode `json:"conditions,omitempty"`

	// condition form; Field is accepted as an alias for Variable
	Variable string `json:"variable,omitempty"`
	Field    string `json:"field,omitempty"`
	Operator string `json:"operator,omitempty"`
	Value    any    `json:"value,omitempty"`
	Type     string `json:"type,omitempty"`
}

// IsGroup reports whether the node is a combinator group rather than a leaf
// condition.
func (n *FilterNode) IsGroup() bool {
	return n.Combinator != "" || n.Conditions != nil
}

// FieldPath returns the dot-notation path a leaf condition reads from the
// event data.
func (n *FilterNode) FieldPath() string {
	if n.Variable != "" {
		return n.Variable
	}
	return n.Field
}

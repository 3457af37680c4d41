package models

// ConditionType selects where a condition resolves its field from.
type ConditionType string

const (
	ConditionTypeUserProperty  ConditionType = "user_property"
	ConditionTypeDateRange     ConditionType = "date_range"
	ConditionTypeDataCondition ConditionType = "data_condition"
	ConditionTypeCustom        ConditionType = "custom"
)

// Operator compares a resolved field with the expected value.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorContains    Operator = "contains"
	OperatorIn          Operator = "in"
	OperatorNotIn       Operator = "not_in"
)

// Logic places a condition in the AND group or in the OR group.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

type WorkflowCondition struct {
	Type     ConditionType `json:"type"            validate:"required,oneof=user_property date_range data_condition custom"`
	Operator Operator      `json:"operator"        validate:"required,oneof=equals not_equals greater_than less_than contains in not_in"`
	Field    string        `json:"field"           validate:"required"`
	Value    any           `json:"value"`
	Logic    Logic         `json:"logic,omitempty" validate:"omitempty,oneof=and or"`
}

// IsOr reports whether the condition belongs to the OR group. Unset logic means AND.
func (c WorkflowCondition) IsOr() bool {
	return c.Logic == LogicOr
}

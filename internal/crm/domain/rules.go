package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cityguide_crm_backend/platform/apperr"
)

const (
	SegmentTypeStatic  = "static"
	SegmentTypeDynamic = "dynamic"
)

func IsKnownSegmentType(segmentType string) bool {
	return segmentType == SegmentTypeStatic || segmentType == SegmentTypeDynamic
}

const (
	BoolOperatorAnd = "AND"
	BoolOperatorOr  = "OR"
)

// Condition operators. The rule payload stores them as literals.
const (
	OpEqual          = "="
	OpNotEqual       = "!="
	OpGreater        = ">"
	OpGreaterOrEqual = ">="
	OpLess           = "<"
	OpLessOrEqual    = "<="
	OpContains       = "contains"
	OpNotContains    = "not_contains"
	OpIn             = "in"
	OpNotIn          = "not_in"
)

// SegmentRules is the flat condition list attached to a dynamic segment.
// A single AND/OR combines all conditions; there is no nesting.
type SegmentRules struct {
	Operator   string      `json:"operator,omitempty"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// Condition compares one contact field against a literal value.
// Value arrives from a JSON payload, so numbers decode as float64
// and lists as []any.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// ContactAttributes is the evaluator's view of a contact. Services
// project their storage entities onto this before evaluation.
type ContactAttributes struct {
	Status            string
	Source            string
	Email             string
	Company           string
	City              string
	Country           string
	LeadScore         int
	LifetimeValue     float64
	TotalInteractions int
	Tags              []string
	CreatedAt         time.Time
	LastInteractionAt *time.Time
}

type fieldKind int

const (
	fieldNumeric fieldKind = iota
	fieldString
	fieldStringSet
	fieldTime
)

// segmentFields declares every field a condition may reference and the
// comparison semantics it carries.
var segmentFields = map[string]fieldKind{
	"lead_score":          fieldNumeric,
	"lifetime_value":      fieldNumeric,
	"total_interactions":  fieldNumeric,
	"status":              fieldString,
	"source":              fieldString,
	"email":               fieldString,
	"company":             fieldString,
	"city":                fieldString,
	"country":             fieldString,
	"tags":                fieldStringSet,
	"created_at":          fieldTime,
	"last_interaction_at": fieldTime,
}

// IsKnownSegmentField reports whether a condition may reference the field.
func IsKnownSegmentField(field string) bool {
	_, ok := segmentFields[field]
	return ok
}

// ValidateSegmentRules rejects malformed rules before they reach the
// store. Dynamic segments must carry a valid rule payload on creation.
func ValidateSegmentRules(rules SegmentRules) error {
	if rules.Operator != "" && rules.Operator != BoolOperatorAnd && rules.Operator != BoolOperatorOr {
		return apperr.Validation(fmt.Sprintf("unknown boolean operator %q", rules.Operator))
	}
	for _, cond := range rules.Conditions {
		kind, ok := segmentFields[cond.Field]
		if !ok {
			return apperr.Validation(fmt.Sprintf("unknown segment field %q", cond.Field))
		}
		if !isKnownConditionOperator(cond.Operator) {
			return apperr.Validation(fmt.Sprintf("unknown condition operator %q", cond.Operator))
		}
		if err := checkOperatorForKind(cond, kind); err != nil {
			return err
		}
	}
	return nil
}

func isKnownConditionOperator(op string) bool {
	switch op {
	case OpEqual, OpNotEqual, OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual,
		OpContains, OpNotContains, OpIn, OpNotIn:
		return true
	}
	return false
}

func checkOperatorForKind(cond Condition, kind fieldKind) error {
	switch kind {
	case fieldStringSet:
		switch cond.Operator {
		case OpContains, OpNotContains, OpIn, OpNotIn:
			return nil
		}
		return apperr.Validation(fmt.Sprintf("operator %q not valid for set field %q", cond.Operator, cond.Field))
	case fieldNumeric, fieldTime:
		switch cond.Operator {
		case OpContains, OpNotContains:
			return apperr.Validation(fmt.Sprintf("operator %q not valid for field %q", cond.Operator, cond.Field))
		}
	}
	return nil
}

// EvaluateRules decides whether a contact matches a dynamic segment's
// rules. It is pure: no I/O, no mutation. An empty condition list never
// matches, so a segment without rules matches nobody rather than
// everybody. Unknown fields or operators fail with a validation error.
func EvaluateRules(rules SegmentRules, contact ContactAttributes) (bool, error) {
	if err := ValidateSegmentRules(rules); err != nil {
		return false, err
	}
	if len(rules.Conditions) == 0 {
		return false, nil
	}

	operator := rules.Operator
	if operator == "" {
		operator = BoolOperatorAnd
	}

	for _, cond := range rules.Conditions {
		matched, err := evaluateCondition(cond, contact)
		if err != nil {
			return false, err
		}
		if operator == BoolOperatorAnd && !matched {
			return false, nil
		}
		if operator == BoolOperatorOr && matched {
			return true, nil
		}
	}
	return operator == BoolOperatorAnd, nil
}

func evaluateCondition(cond Condition, contact ContactAttributes) (bool, error) {
	switch segmentFields[cond.Field] {
	case fieldNumeric:
		return evaluateNumeric(cond, numericFieldValue(cond.Field, contact))
	case fieldString:
		return evaluateString(cond, stringFieldValue(cond.Field, contact))
	case fieldStringSet:
		return evaluateStringSet(cond, contact.Tags)
	case fieldTime:
		return evaluateTime(cond, timeFieldValue(cond.Field, contact))
	}
	return false, apperr.Validation(fmt.Sprintf("unknown segment field %q", cond.Field))
}

func numericFieldValue(field string, contact ContactAttributes) float64 {
	switch field {
	case "lead_score":
		return float64(contact.LeadScore)
	case "lifetime_value":
		return contact.LifetimeValue
	case "total_interactions":
		return float64(contact.TotalInteractions)
	}
	return 0
}

func stringFieldValue(field string, contact ContactAttributes) string {
	switch field {
	case "status":
		return contact.Status
	case "source":
		return contact.Source
	case "email":
		return contact.Email
	case "company":
		return contact.Company
	case "city":
		return contact.City
	case "country":
		return contact.Country
	}
	return ""
}

func timeFieldValue(field string, contact ContactAttributes) *time.Time {
	switch field {
	case "created_at":
		t := contact.CreatedAt
		return &t
	case "last_interaction_at":
		return contact.LastInteractionAt
	}
	return nil
}

func evaluateNumeric(cond Condition, actual float64) (bool, error) {
	switch cond.Operator {
	case OpIn, OpNotIn:
		values, err := coerceFloatList(cond.Value)
		if err != nil {
			return false, apperr.Validation(fmt.Sprintf("field %q: %v", cond.Field, err))
		}
		found := false
		for _, v := range values {
			if actual == v {
				found = true
				break
			}
		}
		return found == (cond.Operator == OpIn), nil
	}

	expected, err := coerceFloat(cond.Value)
	if err != nil {
		return false, apperr.Validation(fmt.Sprintf("field %q: %v", cond.Field, err))
	}
	switch cond.Operator {
	case OpEqual:
		return actual == expected, nil
	case OpNotEqual:
		return actual != expected, nil
	case OpGreater:
		return actual > expected, nil
	case OpGreaterOrEqual:
		return actual >= expected, nil
	case OpLess:
		return actual < expected, nil
	case OpLessOrEqual:
		return actual <= expected, nil
	}
	return false, apperr.Validation(fmt.Sprintf("unknown condition operator %q", cond.Operator))
}

func evaluateString(cond Condition, actual string) (bool, error) {
	switch cond.Operator {
	case OpIn, OpNotIn:
		values, err := coerceStringList(cond.Value)
		if err != nil {
			return false, apperr.Validation(fmt.Sprintf("field %q: %v", cond.Field, err))
		}
		found := false
		for _, v := range values {
			if strings.EqualFold(actual, v) {
				found = true
				break
			}
		}
		return found == (cond.Operator == OpIn), nil
	}

	expected, err := coerceString(cond.Value)
	if err != nil {
		return false, apperr.Validation(fmt.Sprintf("field %q: %v", cond.Field, err))
	}
	switch cond.Operator {
	case OpEqual:
		return strings.EqualFold(actual, expected), nil
	case OpNotEqual:
		return !strings.EqualFold(actual, expected), nil
	case OpContains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(expected)), nil
	case OpNotContains:
		return !strings.Contains(strings.ToLower(actual), strings.ToLower(expected)), nil
	case OpGreater:
		return actual > expected, nil
	case OpGreaterOrEqual:
		return actual >= expected, nil
	case OpLess:
		return actual < expected, nil
	case OpLessOrEqual:
		return actual <= expected, nil
	}
	return false, apperr.Validation(fmt.Sprintf("unknown condition operator %q", cond.Operator))
}

func evaluateStringSet(cond Condition, tags []string) (bool, error) {
	have := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		have[strings.ToLower(t)] = struct{}{}
	}

	switch cond.Operator {
	case OpContains, OpNotContains:
		expected, err := coerceString(cond.Value)
		if err != nil {
			return false, apperr.Validation(fmt.Sprintf("field %q: %v", cond.Field, err))
		}
		_, found := have[strings.ToLower(expected)]
		return found == (cond.Operator == OpContains), nil
	case OpIn, OpNotIn:
		// Matches when the contact carries at least one of the listed tags.
		values, err := coerceStringList(cond.Value)
		if err != nil {
			return false, apperr.Validation(fmt.Sprintf("field %q: %v", cond.Field, err))
		}
		found := false
		for _, v := range values {
			if _, ok := have[strings.ToLower(v)]; ok {
				found = true
				break
			}
		}
		return found == (cond.Operator == OpIn), nil
	}
	return false, apperr.Validation(fmt.Sprintf("operator %q not valid for set field %q", cond.Operator, cond.Field))
}

func evaluateTime(cond Condition, actual *time.Time) (bool, error) {
	expected, err := coerceTime(cond.Value)
	if err != nil {
		return false, apperr.Validation(fmt.Sprintf("field %q: %v", cond.Field, err))
	}
	if actual == nil {
		// A contact without the timestamp only matches inequality.
		return cond.Operator == OpNotEqual, nil
	}
	switch cond.Operator {
	case OpEqual:
		return actual.Equal(expected), nil
	case OpNotEqual:
		return !actual.Equal(expected), nil
	case OpGreater:
		return actual.After(expected), nil
	case OpGreaterOrEqual:
		return actual.After(expected) || actual.Equal(expected), nil
	case OpLess:
		return actual.Before(expected), nil
	case OpLessOrEqual:
		return actual.Before(expected) || actual.Equal(expected), nil
	}
	return false, apperr.Validation(fmt.Sprintf("operator %q not valid for time field %q", cond.Operator, cond.Field))
}

func coerceFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not numeric", v)
		}
		return f, nil
	}
	return 0, fmt.Errorf("value %v is not numeric", value)
}

func coerceFloatList(value any) ([]float64, error) {
	items, ok := value.([]any)
	if !ok {
		// A lone value is treated as a one-element list.
		f, err := coerceFloat(value)
		if err != nil {
			return nil, err
		}
		return []float64{f}, nil
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		f, err := coerceFloat(item)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func coerceString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	}
	return "", fmt.Errorf("value %v is not a string", value)
}

func coerceStringList(value any) ([]string, error) {
	items, ok := value.([]any)
	if !ok {
		s, err := coerceString(value)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, err := coerceString(item)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func coerceTime(value any) (time.Time, error) {
	s, err := coerceString(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("value %v is not a timestamp", value)
	}
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("value %q is not a timestamp", s)
}

package domain

import (
	"testing"
	"time"

	"cityguide_crm_backend/platform/apperr"
)

func sampleContact() ContactAttributes {
	last := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	return ContactAttributes{
		Status:            ContactStatusLead,
		Source:            ContactSourceWebsite,
		Email:             "anna@example.com",
		Company:           "Acme Travel",
		City:              "Amsterdam",
		Country:           "NL",
		LeadScore:         72,
		LifetimeValue:     1250.50,
		TotalInteractions: 14,
		Tags:              []string{"newsletter", "vip"},
		CreatedAt:         time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC),
		LastInteractionAt: &last,
	}
}

func TestEvaluateRules_EmptyConditionsNeverMatch(t *testing.T) {
	matched, err := EvaluateRules(SegmentRules{Operator: BoolOperatorAnd}, sampleContact())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matched {
		t.Fatal("segment without conditions must not match any contact")
	}
}

func TestEvaluateRules_NumericComparisons(t *testing.T) {
	contact := sampleContact()

	cases := []struct {
		name     string
		operator string
		value    any
		want     bool
	}{
		{"gte matches", OpGreaterOrEqual, float64(70), true},
		{"gte boundary", OpGreaterOrEqual, float64(72), true},
		{"gt boundary excluded", OpGreater, float64(72), false},
		{"lt excluded", OpLess, float64(72), false},
		{"lte boundary", OpLessOrEqual, float64(72), true},
		{"eq", OpEqual, float64(72), true},
		{"neq", OpNotEqual, float64(72), false},
		{"string value coerced", OpGreaterOrEqual, "70", true},
		{"in list", OpIn, []any{float64(10), float64(72)}, true},
		{"not_in list", OpNotIn, []any{float64(10), float64(72)}, false},
	}

	for _, tc := range cases {
		rules := SegmentRules{Conditions: []Condition{{Field: "lead_score", Operator: tc.operator, Value: tc.value}}}
		matched, err := EvaluateRules(rules, contact)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if matched != tc.want {
			t.Fatalf("%s: expected matched=%v, got %v", tc.name, tc.want, matched)
		}
	}
}

func TestEvaluateRules_StringAndSetOperators(t *testing.T) {
	contact := sampleContact()

	cases := []struct {
		name string
		cond Condition
		want bool
	}{
		{"status equal case-insensitive", Condition{Field: "status", Operator: OpEqual, Value: "Lead"}, true},
		{"company contains", Condition{Field: "company", Operator: OpContains, Value: "travel"}, true},
		{"company not_contains", Condition{Field: "company", Operator: OpNotContains, Value: "hotel"}, true},
		{"city in", Condition{Field: "city", Operator: OpIn, Value: []any{"Rotterdam", "Amsterdam"}}, true},
		{"city not_in", Condition{Field: "city", Operator: OpNotIn, Value: []any{"Rotterdam"}}, true},
		{"tags contains", Condition{Field: "tags", Operator: OpContains, Value: "vip"}, true},
		{"tags not_contains absent tag", Condition{Field: "tags", Operator: OpNotContains, Value: "trial"}, true},
		{"tags in any of", Condition{Field: "tags", Operator: OpIn, Value: []any{"trial", "newsletter"}}, true},
		{"tags not_in all absent", Condition{Field: "tags", Operator: OpNotIn, Value: []any{"trial", "demo"}}, true},
	}

	for _, tc := range cases {
		matched, err := EvaluateRules(SegmentRules{Conditions: []Condition{tc.cond}}, contact)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if matched != tc.want {
			t.Fatalf("%s: expected matched=%v, got %v", tc.name, tc.want, matched)
		}
	}
}

func TestEvaluateRules_TimeComparisons(t *testing.T) {
	contact := sampleContact()

	rules := SegmentRules{Conditions: []Condition{
		{Field: "created_at", Operator: OpGreaterOrEqual, Value: "2026-01-01"},
	}}
	matched, err := EvaluateRules(rules, contact)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !matched {
		t.Fatal("expected created_at >= 2026-01-01 to match")
	}

	contact.LastInteractionAt = nil
	rules = SegmentRules{Conditions: []Condition{
		{Field: "last_interaction_at", Operator: OpLess, Value: "2026-08-01"},
	}}
	matched, err = EvaluateRules(rules, contact)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matched {
		t.Fatal("contact without last interaction must not match an ordering comparison")
	}
}

func TestEvaluateRules_AndRequiresAll(t *testing.T) {
	rules := SegmentRules{
		Operator: BoolOperatorAnd,
		Conditions: []Condition{
			{Field: "lead_score", Operator: OpGreaterOrEqual, Value: float64(70)},
			{Field: "status", Operator: OpEqual, Value: "customer"},
		},
	}
	matched, err := EvaluateRules(rules, sampleContact())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matched {
		t.Fatal("AND must fail when one condition is false")
	}
}

func TestEvaluateRules_OrRequiresAny(t *testing.T) {
	rules := SegmentRules{
		Operator: BoolOperatorOr,
		Conditions: []Condition{
			{Field: "lead_score", Operator: OpGreaterOrEqual, Value: float64(90)},
			{Field: "status", Operator: OpEqual, Value: "lead"},
		},
	}
	matched, err := EvaluateRules(rules, sampleContact())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !matched {
		t.Fatal("OR must succeed when at least one condition is true")
	}
}

func TestEvaluateRules_MissingOperatorDefaultsToAnd(t *testing.T) {
	rules := SegmentRules{
		Conditions: []Condition{
			{Field: "lead_score", Operator: OpGreaterOrEqual, Value: float64(70)},
			{Field: "status", Operator: OpEqual, Value: "lead"},
		},
	}
	matched, err := EvaluateRules(rules, sampleContact())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !matched {
		t.Fatal("expected both conditions to match under the default AND")
	}
}

func TestEvaluateRules_UnknownFieldIsValidationError(t *testing.T) {
	rules := SegmentRules{Conditions: []Condition{
		{Field: "shoe_size", Operator: OpEqual, Value: float64(42)},
	}}
	_, err := EvaluateRules(rules, sampleContact())
	if err == nil {
		t.Fatal("expected validation error for unknown field")
	}
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("expected validation kind, got %v", apperr.GetKind(err))
	}
}

func TestEvaluateRules_UnknownOperatorIsValidationError(t *testing.T) {
	rules := SegmentRules{Conditions: []Condition{
		{Field: "lead_score", Operator: "between", Value: float64(42)},
	}}
	_, err := EvaluateRules(rules, sampleContact())
	if err == nil {
		t.Fatal("expected validation error for unknown operator")
	}
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("expected validation kind, got %v", apperr.GetKind(err))
	}
}

func TestEvaluateRules_OrderingOperatorRejectedForSetField(t *testing.T) {
	rules := SegmentRules{Conditions: []Condition{
		{Field: "tags", Operator: OpGreater, Value: "vip"},
	}}
	_, err := EvaluateRules(rules, sampleContact())
	if apperr.GetKind(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEvaluateRules_Deterministic(t *testing.T) {
	rules := SegmentRules{
		Operator: BoolOperatorOr,
		Conditions: []Condition{
			{Field: "lead_score", Operator: OpGreaterOrEqual, Value: float64(70)},
			{Field: "tags", Operator: OpContains, Value: "vip"},
		},
	}
	contact := sampleContact()
	first, err := EvaluateRules(rules, contact)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := EvaluateRules(rules, contact)
		if err != nil {
			t.Fatalf("unexpected error on repeat: %v", err)
		}
		if again != first {
			t.Fatal("evaluation must be deterministic for identical input")
		}
	}
}

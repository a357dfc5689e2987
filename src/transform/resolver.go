// src/transform/resolver.go
package transform

import (
	"errors"
	"sort"
	"time"
)

// ValueKind tags the payload of a raw data point as reported by a provider.
type ValueKind string

const (
	KindNumber ValueKind = "number"
	KindString ValueKind = "string"
	KindList   ValueKind = "list"
	KindObject ValueKind = "object"
)

// RawValue is one provider-reported value for a raw field.
type RawValue struct {
	Kind  ValueKind
	Value any
}

// Float returns the numeric form of the value when its kind is number.
func (v RawValue) Float() (float64, bool) {
	if v.Kind != KindNumber {
		return 0, false
	}
	switch n := v.Value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Rule is a mapping rule scoped to one provider. The caller supplies only
// the rules of the provider being resolved; company and date scoping is
// applied here. A nil Expr means direct passthrough of the raw value.
type Rule struct {
	ID          string
	CanonicalID int64
	RawField    string
	CompanyID   string // empty = applies to every company of the provider
	StartDate   *time.Time
	EndDate     *time.Time
	Expr        Expr
}

// Field is a canonical field definition as the resolver needs it.
type Field struct {
	ID         int64
	Name       string
	IsComputed bool
}

// Request carries one resolution call: the raw snapshot for a single
// (provider, company, fiscal period) triple plus the rule and field sets.
type Request struct {
	CompanyID    string
	FiscalPeriod time.Time
	Raw          map[string]RawValue
	Rules        []Rule
	Fields       []Field
}

// OmissionReason classifies why a single field was left out of the result.
type OmissionReason string

const (
	OmitUnknownCanonical OmissionReason = "unknown_canonical_field"
	OmitMissingRawValue  OmissionReason = "missing_raw_value"
	OmitTransformFailed  OmissionReason = "transform_failed"
	OmitNoFormula        OmissionReason = "no_computed_formula"
	OmitMissingInput     OmissionReason = "missing_computed_input"
	OmitZeroDenominator  OmissionReason = "zero_denominator"
)

// Omission records one field that could not be resolved, and why. A partial
// result with omissions is the expected shape of degraded output, not an
// error state.
type Omission struct {
	CanonicalField string
	RawField       string
	RuleID         string
	Reason         OmissionReason
	Err            error
}

// Result is the outcome of one resolution: canonical name → value, plus the
// per-field omissions. Identical requests produce identical results.
type Result struct {
	Values    map[string]any
	Omissions []Omission
}

// Resolve turns the raw data points of one company/provider/fiscal-period
// into canonical values, then extends the result with computed fields.
// It reads only its request and returns a fresh result; callers may run
// resolutions for different triples concurrently.
func Resolve(req Request) Result {
	res := Result{Values: make(map[string]any)}

	fieldsByID := make(map[int64]Field, len(req.Fields))
	for _, f := range req.Fields {
		fieldsByID[f.ID] = f
	}

	numeric := numericProjection(req.Raw)

	for _, rule := range applicableRules(req) {
		field, ok := fieldsByID[rule.CanonicalID]
		if !ok {
			res.Omissions = append(res.Omissions, Omission{
				RawField: rule.RawField,
				RuleID:   rule.ID,
				Reason:   OmitUnknownCanonical,
			})
			continue
		}

		if rule.Expr != nil {
			value, err := Evaluate(rule.Expr, numeric)
			if err != nil {
				res.Omissions = append(res.Omissions, Omission{
					CanonicalField: field.Name,
					RawField:       rule.RawField,
					RuleID:         rule.ID,
					Reason:         OmitTransformFailed,
					Err:            err,
				})
				continue
			}
			res.Values[field.Name] = value
			continue
		}

		raw, ok := req.Raw[rule.RawField]
		if !ok {
			res.Omissions = append(res.Omissions, Omission{
				CanonicalField: field.Name,
				RawField:       rule.RawField,
				RuleID:         rule.ID,
				Reason:         OmitMissingRawValue,
			})
			continue
		}
		if n, isNum := raw.Float(); isNum {
			res.Values[field.Name] = n
		} else {
			// Non-numeric kinds pass through unchanged on direct mappings.
			res.Values[field.Name] = raw.Value
		}
	}

	resolveComputedFields(req.Fields, &res)
	return res
}

// applicableRules filters by company and date scope and fixes the
// application order: global rules first, then company-scoped, each group
// sorted by rule ID. Later writes win, so a company-scoped rule always
// overrides a global one for the same canonical field, even a global rule
// whose date range also matches. Equally-scoped overlaps fall to the
// highest rule ID deterministically.
func applicableRules(req Request) []Rule {
	var global, scoped []Rule
	for _, rule := range req.Rules {
		if rule.CompanyID != "" && rule.CompanyID != req.CompanyID {
			continue
		}
		if rule.StartDate != nil && req.FiscalPeriod.Before(*rule.StartDate) {
			continue
		}
		if rule.EndDate != nil && req.FiscalPeriod.After(*rule.EndDate) {
			continue
		}
		if rule.CompanyID == "" {
			global = append(global, rule)
		} else {
			scoped = append(scoped, rule)
		}
	}
	byID := func(rules []Rule) {
		sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	}
	byID(global)
	byID(scoped)
	return append(global, scoped...)
}

func numericProjection(raw map[string]RawValue) map[string]float64 {
	numeric := make(map[string]float64, len(raw))
	for name, v := range raw {
		if n, ok := v.Float(); ok {
			numeric[name] = n
		}
	}
	return numeric
}

// computedFormulas are the fixed derivations for canonical fields flagged
// computed. They reference already-resolved canonical values, never raw
// data, and reuse the expression evaluator so divide-by-zero is guarded the
// same way as in mapping transforms.
var computedFormulas = map[string]Expr{
	"debt_to_equity": Operation{Op: "divide", Args: []Expr{
		FieldRef{Name: "total_debt"}, FieldRef{Name: "total_equity"},
	}},
	"current_ratio": Operation{Op: "divide", Args: []Expr{
		FieldRef{Name: "current_assets"}, FieldRef{Name: "current_liabilities"},
	}},
	"return_on_equity": Operation{Op: "divide", Args: []Expr{
		FieldRef{Name: "net_income"}, FieldRef{Name: "total_equity"},
	}},
	"gross_margin": Operation{Op: "divide", Args: []Expr{
		FieldRef{Name: "gross_profit"}, FieldRef{Name: "total_revenue"},
	}},
	"operating_margin": Operation{Op: "divide", Args: []Expr{
		FieldRef{Name: "operating_income"}, FieldRef{Name: "total_revenue"},
	}},
	"net_margin": Operation{Op: "divide", Args: []Expr{
		FieldRef{Name: "net_income"}, FieldRef{Name: "total_revenue"},
	}},
}

func resolveComputedFields(fields []Field, res *Result) {
	// Computed fields run in ascending field ID order so omission lists come
	// out identical across calls regardless of how the caller built the set.
	computed := make([]Field, 0, len(fields))
	for _, f := range fields {
		if f.IsComputed {
			computed = append(computed, f)
		}
	}
	sort.Slice(computed, func(i, j int) bool { return computed[i].ID < computed[j].ID })

	scope := make(map[string]float64, len(res.Values))
	for name, v := range res.Values {
		if n, ok := v.(float64); ok {
			scope[name] = n
		}
	}

	for _, field := range computed {
		formula, ok := computedFormulas[field.Name]
		if !ok {
			res.Omissions = append(res.Omissions, Omission{
				CanonicalField: field.Name,
				Reason:         OmitNoFormula,
			})
			continue
		}

		missing := false
		for _, input := range CollectFields(formula) {
			if _, present := scope[input]; !present {
				res.Omissions = append(res.Omissions, Omission{
					CanonicalField: field.Name,
					RawField:       input,
					Reason:         OmitMissingInput,
				})
				missing = true
				break
			}
		}
		if missing {
			continue
		}

		value, err := Evaluate(formula, scope)
		if err != nil {
			reason := OmitTransformFailed
			if errors.Is(err, ErrDivisionByZero) {
				reason = OmitZeroDenominator
			}
			res.Omissions = append(res.Omissions, Omission{
				CanonicalField: field.Name,
				Reason:         reason,
				Err:            err,
			})
			continue
		}
		res.Values[field.Name] = value
	}
}

package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFields = []Field{
	{ID: 1, Name: "total_revenue"},
	{ID: 2, Name: "gross_profit"},
	{ID: 3, Name: "net_income"},
	{ID: 4, Name: "total_debt"},
	{ID: 5, Name: "total_equity"},
	{ID: 6, Name: "current_assets"},
	{ID: 7, Name: "current_liabilities"},
	{ID: 8, Name: "fiscal_year_label"},
	{ID: 20, Name: "debt_to_equity", IsComputed: true},
	{ID: 21, Name: "current_ratio", IsComputed: true},
	{ID: 22, Name: "return_on_equity", IsComputed: true},
}

func num(v float64) RawValue   { return RawValue{Kind: KindNumber, Value: v} }
func str(s string) RawValue    { return RawValue{Kind: KindString, Value: s} }
func date(s string) *time.Time { t, _ := time.Parse("2006-01-02", s); return &t }

func period(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestResolveDirectMapping(t *testing.T) {
	res := Resolve(Request{
		CompanyID:    "acme",
		FiscalPeriod: period("2023-12-31"),
		Raw:          map[string]RawValue{"revenues": num(100)},
		Rules:        []Rule{{ID: "r1", CanonicalID: 1, RawField: "revenues"}},
		Fields:       testFields,
	})
	assert.Equal(t, 100.0, res.Values["total_revenue"])
}

func TestResolveTransformedMapping(t *testing.T) {
	expr := mustParse(t, `{"op":"multiply","args":[{"op":"divide","args":[{"field":"gross_profit"},{"field":"total_revenue"}]},{"value":100}]}`)
	res := Resolve(Request{
		CompanyID:    "acme",
		FiscalPeriod: period("2023-12-31"),
		Raw: map[string]RawValue{
			"gross_profit":  num(40),
			"total_revenue": num(100),
		},
		Rules: []Rule{
			{ID: "r1", CanonicalID: 1, RawField: "total_revenue"},
			{ID: "r2", CanonicalID: 2, RawField: "gross_profit", Expr: expr},
		},
		Fields: testFields,
	})
	assert.InDelta(t, 40.0, res.Values["gross_profit"].(float64), 1e-9)
	assert.Equal(t, 100.0, res.Values["total_revenue"])
}

func TestResolveNonNumericPassthrough(t *testing.T) {
	res := Resolve(Request{
		CompanyID:    "acme",
		FiscalPeriod: period("2023-12-31"),
		Raw:          map[string]RawValue{"fy_label": str("FY2023")},
		Rules:        []Rule{{ID: "r1", CanonicalID: 8, RawField: "fy_label"}},
		Fields:       testFields,
	})
	assert.Equal(t, "FY2023", res.Values["fiscal_year_label"])
}

func TestResolveCompanyScopeFilter(t *testing.T) {
	rules := []Rule{
		{ID: "r1", CanonicalID: 1, RawField: "rev_global"},
		{ID: "r2", CanonicalID: 3, RawField: "ni_other", CompanyID: "other"},
	}
	res := Resolve(Request{
		CompanyID:    "acme",
		FiscalPeriod: period("2023-12-31"),
		Raw: map[string]RawValue{
			"rev_global": num(1),
			"ni_other":   num(2),
		},
		Rules:  rules,
		Fields: testFields,
	})
	assert.Contains(t, res.Values, "total_revenue")
	assert.NotContains(t, res.Values, "net_income")
}

func TestResolveDateScopeFilter(t *testing.T) {
	rules := []Rule{
		{ID: "r1", CanonicalID: 1, RawField: "rev",
			StartDate: date("2020-01-01"), EndDate: date("2021-12-31")},
	}
	req := Request{
		CompanyID: "acme",
		Raw:       map[string]RawValue{"rev": num(9)},
		Rules:     rules,
		Fields:    testFields,
	}

	req.FiscalPeriod = period("2021-06-30")
	assert.Contains(t, Resolve(req).Values, "total_revenue")

	req.FiscalPeriod = period("2022-06-30")
	assert.NotContains(t, Resolve(req).Values, "total_revenue")

	req.FiscalPeriod = period("2019-06-30")
	assert.NotContains(t, Resolve(req).Values, "total_revenue")

	// Bounds are inclusive.
	req.FiscalPeriod = period("2021-12-31")
	assert.Contains(t, Resolve(req).Values, "total_revenue")
}

func TestResolveTieBreakCompanyScopeWins(t *testing.T) {
	// Both rules target total_revenue. The company-scoped one must win no
	// matter which order the rules arrive in.
	scoped := Rule{ID: "a-scoped", CanonicalID: 1, RawField: "rev_scoped", CompanyID: "acme"}
	global := Rule{ID: "z-global", CanonicalID: 1, RawField: "rev_global"}
	raw := map[string]RawValue{"rev_scoped": num(111), "rev_global": num(222)}

	for _, rules := range [][]Rule{{scoped, global}, {global, scoped}} {
		res := Resolve(Request{
			CompanyID:    "acme",
			FiscalPeriod: period("2023-12-31"),
			Raw:          raw,
			Rules:        rules,
			Fields:       testFields,
		})
		assert.Equal(t, 111.0, res.Values["total_revenue"])
	}
}

func TestResolveTieBreakCompanyScopeBeatsDateScope(t *testing.T) {
	// Deliberate policy: a company-scoped rule without date bounds takes
	// precedence over a global rule whose date range also matches.
	rules := []Rule{
		{ID: "r1", CanonicalID: 1, RawField: "rev_dated",
			StartDate: date("2023-01-01"), EndDate: date("2023-12-31")},
		{ID: "r2", CanonicalID: 1, RawField: "rev_company", CompanyID: "acme"},
	}
	res := Resolve(Request{
		CompanyID:    "acme",
		FiscalPeriod: period("2023-06-30"),
		Raw:          map[string]RawValue{"rev_dated": num(1), "rev_company": num(2)},
		Rules:        rules,
		Fields:       testFields,
	})
	assert.Equal(t, 2.0, res.Values["total_revenue"])
}

func TestResolveTieBreakEqualScopeHighestIDWins(t *testing.T) {
	rules := []Rule{
		{ID: "r2", CanonicalID: 1, RawField: "rev_b"},
		{ID: "r1", CanonicalID: 1, RawField: "rev_a"},
	}
	res := Resolve(Request{
		CompanyID:    "acme",
		FiscalPeriod: period("2023-12-31"),
		Raw:          map[string]RawValue{"rev_a": num(1), "rev_b": num(2)},
		Rules:        rules,
		Fields:       testFields,
	})
	assert.Equal(t, 2.0, res.Values["total_revenue"])
}

func TestResolveSkipsRuleWithUnknownCanonicalField(t *testing.T) {
	rules := []Rule{
		{ID: "r1", CanonicalID: 999, RawField: "mystery"},
		{ID: "r2", CanonicalID: 1, RawField: "rev"},
	}
	res := Resolve(Request{
		CompanyID:    "acme",
		FiscalPeriod: period("2023-12-31"),
		Raw:          map[string]RawValue{"mystery": num(1), "rev": num(50)},
		Rules:        rules,
		Fields:       testFields,
	})
	assert.Equal(t, 50.0, res.Values["total_revenue"])
	require.Len(t, omissionsWithReason(res, OmitUnknownCanonical), 1)
}

func TestResolveDirectMappingMissingRawValue(t *testing.T) {
	res := Resolve(Request{
		CompanyID:    "acme",
		FiscalPeriod: period("2023-12-31"),
		Raw:          map[string]RawValue{},
		Rules:        []Rule{{ID: "r1", CanonicalID: 1, RawField: "revenues"}},
		Fields:       testFields,
	})
	assert.Empty(t, res.Values)
	oms := omissionsWithReason(res, OmitMissingRawValue)
	require.Len(t, oms, 1)
	assert.Equal(t, "total_revenue", oms[0].CanonicalField)
}

func TestResolveTransformFailureDoesNotAbortBatch(t *testing.T) {
	bad := mustParse(t, `{"op":"divide","args":[{"field":"x"},{"value":0}]}`)
	rules := []Rule{
		{ID: "r1", CanonicalID: 2, RawField: "x", Expr: bad},
		{ID: "r2", CanonicalID: 1, RawField: "rev"},
	}
	res := Resolve(Request{
		CompanyID:    "acme",
		FiscalPeriod: period("2023-12-31"),
		Raw:          map[string]RawValue{"x": num(3), "rev": num(7)},
		Rules:        rules,
		Fields:       testFields,
	})
	assert.Equal(t, 7.0, res.Values["total_revenue"])
	assert.NotContains(t, res.Values, "gross_profit")
	oms := omissionsWithReason(res, OmitTransformFailed)
	require.Len(t, oms, 1)
	assert.ErrorIs(t, oms[0].Err, ErrDivisionByZero)
}

func TestResolveComputedFields(t *testing.T) {
	rules := []Rule{
		{ID: "r1", CanonicalID: 4, RawField: "debt"},
		{ID: "r2", CanonicalID: 5, RawField: "equity"},
		{ID: "r3", CanonicalID: 6, RawField: "ca"},
		{ID: "r4", CanonicalID: 7, RawField: "cl"},
		{ID: "r5", CanonicalID: 3, RawField: "ni"},
	}
	res := Resolve(Request{
		CompanyID:    "acme",
		FiscalPeriod: period("2023-12-31"),
		Raw: map[string]RawValue{
			"debt": num(200), "equity": num(100),
			"ca": num(300), "cl": num(150),
			"ni": num(25),
		},
		Rules:  rules,
		Fields: testFields,
	})
	assert.InDelta(t, 2.0, res.Values["debt_to_equity"].(float64), 1e-9)
	assert.InDelta(t, 2.0, res.Values["current_ratio"].(float64), 1e-9)
	assert.InDelta(t, 0.25, res.Values["return_on_equity"].(float64), 1e-9)
}

func TestResolveComputedFieldOmittedWhenInputMissing(t *testing.T) {
	// net_income present, total_equity absent: return_on_equity must be
	// silently omitted, not errored.
	res := Resolve(Request{
		CompanyID:    "acme",
		FiscalPeriod: period("2023-12-31"),
		Raw:          map[string]RawValue{"ni": num(50)},
		Rules:        []Rule{{ID: "r1", CanonicalID: 3, RawField: "ni"}},
		Fields:       testFields,
	})
	assert.NotContains(t, res.Values, "return_on_equity")
	reasons := map[string]OmissionReason{}
	for _, om := range res.Omissions {
		reasons[om.CanonicalField] = om.Reason
	}
	assert.Equal(t, OmitMissingInput, reasons["return_on_equity"])
}

func TestResolveComputedFieldZeroDenominator(t *testing.T) {
	rules := []Rule{
		{ID: "r1", CanonicalID: 4, RawField: "debt"},
		{ID: "r2", CanonicalID: 5, RawField: "equity"},
	}
	res := Resolve(Request{
		CompanyID:    "acme",
		FiscalPeriod: period("2023-12-31"),
		Raw:          map[string]RawValue{"debt": num(200), "equity": num(0)},
		Rules:        rules,
		Fields:       testFields,
	})
	assert.NotContains(t, res.Values, "debt_to_equity")
	oms := omissionsWithReason(res, OmitZeroDenominator)
	require.Len(t, oms, 1)
	assert.Equal(t, "debt_to_equity", oms[0].CanonicalField)
}

func TestResolveComputedFieldWithoutFormula(t *testing.T) {
	fields := append([]Field{}, testFields...)
	fields = append(fields, Field{ID: 30, Name: "bespoke_metric", IsComputed: true})
	res := Resolve(Request{
		CompanyID:    "acme",
		FiscalPeriod: period("2023-12-31"),
		Raw:          map[string]RawValue{},
		Fields:       fields,
	})
	assert.NotContains(t, res.Values, "bespoke_metric")
	found := false
	for _, om := range omissionsWithReason(res, OmitNoFormula) {
		if om.CanonicalField == "bespoke_metric" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestResolveIdempotent(t *testing.T) {
	expr := mustParse(t, `{"op":"divide","args":[{"field":"gp"},{"field":"rev"}]}`)
	req := Request{
		CompanyID:    "acme",
		FiscalPeriod: period("2023-12-31"),
		Raw: map[string]RawValue{
			"rev": num(100), "gp": num(40),
			"debt": num(10), "equity": num(5),
		},
		Rules: []Rule{
			{ID: "r1", CanonicalID: 1, RawField: "rev"},
			{ID: "r2", CanonicalID: 2, RawField: "gp", Expr: expr},
			{ID: "r3", CanonicalID: 4, RawField: "debt"},
			{ID: "r4", CanonicalID: 5, RawField: "equity"},
		},
		Fields: testFields,
	}
	first := Resolve(req)
	second := Resolve(req)
	assert.Equal(t, first.Values, second.Values)
	assert.Equal(t, first.Omissions, second.Omissions)
}

func omissionsWithReason(res Result, reason OmissionReason) []Omission {
	var out []Omission
	for _, om := range res.Omissions {
		if om.Reason == reason {
			out = append(out, om)
		}
	}
	return out
}

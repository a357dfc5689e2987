package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/SagastaDev/equity-valuator/src/logger"
	"github.com/SagastaDev/equity-valuator/src/models"
	"github.com/SagastaDev/equity-valuator/src/security/validation"
	"github.com/SagastaDev/equity-valuator/src/transform"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
)

const (
	// ckResolution keys one cached report: provider ID, company ID, fiscal period.
	ckResolution = "resolution_%d_%s_%s"

	// historyConcurrency bounds the parallel resolutions of ResolveHistory.
	historyConcurrency = 4
)

type transformServiceImpl struct {
	db              *sql.DB
	resolutionCache *cache.Cache
}

// NewTransformService creates the resolution service backed by the shared
// database handle and report cache.
func NewTransformService(db *sql.DB, resolutionCache *cache.Cache) TransformService {
	return &transformServiceImpl{
		db:              db,
		resolutionCache: resolutionCache,
	}
}

// ResolveCanonical produces the canonical view of one company/provider/
// fiscal-period triple. Reports are cached; any write through the ingest
// or mapping paths invalidates the company's entries.
func (s *transformServiceImpl) ResolveCanonical(providerID int64, companyID string, fiscalPeriod time.Time) (*ResolutionReport, error) {
	cacheKey := fmt.Sprintf(ckResolution, providerID, companyID, fiscalPeriod.Format("2006-01-02"))
	if cached, found := s.resolutionCache.Get(cacheKey); found {
		if report, ok := cached.(*ResolutionReport); ok {
			logger.L.Debug("serving resolution report from cache", "key", cacheKey)
			return report, nil
		}
	}

	if _, err := models.GetProviderByID(s.db, providerID); err != nil {
		return nil, err
	}
	if _, err := models.GetCompanyByID(s.db, companyID); err != nil {
		return nil, err
	}

	entries, err := models.ListRawDataEntries(s.db, providerID, companyID, fiscalPeriod)
	if err != nil {
		return nil, fmt.Errorf("loading raw data: %w", err)
	}
	mappings, err := models.ListMappedFieldsByProvider(s.db, providerID)
	if err != nil {
		return nil, fmt.Errorf("loading mapping rules: %w", err)
	}
	fields, err := models.ListCanonicalFields(s.db)
	if err != nil {
		return nil, fmt.Errorf("loading canonical fields: %w", err)
	}

	req := transform.Request{
		CompanyID:    companyID,
		FiscalPeriod: fiscalPeriod,
		Raw:          make(map[string]transform.RawValue, len(entries)),
		Rules:        make([]transform.Rule, 0, len(mappings)),
		Fields:       make([]transform.Field, 0, len(fields)),
	}
	for _, e := range entries {
		req.Raw[e.RawFieldName] = decodeRawValue(e)
	}

	// Rules whose stored expression no longer parses degrade to per-field
	// omissions instead of failing the whole resolution.
	var parseOmissions []transform.Omission
	for _, m := range mappings {
		rule := transform.Rule{
			ID:          m.ID,
			CanonicalID: m.CanonicalID,
			RawField:    m.RawFieldName,
			StartDate:   m.StartDate,
			EndDate:     m.EndDate,
		}
		if m.CompanyID != nil {
			rule.CompanyID = *m.CompanyID
		}
		if len(m.TransformExpression) > 0 {
			expr, err := transform.ParseExpression(m.TransformExpression)
			if err != nil {
				logger.L.Warn("stored transform expression failed to parse",
					"mappedFieldID", m.ID, "rawField", m.RawFieldName, "error", err)
				parseOmissions = append(parseOmissions, transform.Omission{
					RawField: m.RawFieldName,
					RuleID:   m.ID,
					Reason:   transform.OmitTransformFailed,
					Err:      err,
				})
				continue
			}
			rule.Expr = expr
		}
		req.Rules = append(req.Rules, rule)
	}

	for _, f := range fields {
		req.Fields = append(req.Fields, transform.Field{
			ID:         f.ID,
			Name:       f.Name,
			IsComputed: f.IsComputed,
		})
	}

	res := transform.Resolve(req)
	res.Omissions = append(parseOmissions, res.Omissions...)

	report := buildReport(providerID, companyID, fiscalPeriod, res)
	s.resolutionCache.Set(cacheKey, report, cache.DefaultExpiration)
	logger.L.Info("resolved canonical report",
		"providerID", providerID, "companyID", companyID,
		"fiscalPeriod", report.FiscalPeriod,
		"values", len(report.Values), "omissions", len(report.Omissions))
	return report, nil
}

// ResolveHistory resolves every fiscal period the provider has reported for
// the company, oldest first. Periods resolve concurrently; the resolver is
// stateless so the only shared work is the database reads.
func (s *transformServiceImpl) ResolveHistory(ctx context.Context, providerID int64, companyID string) ([]*ResolutionReport, error) {
	periods, err := models.ListFiscalPeriods(s.db, providerID, companyID)
	if err != nil {
		return nil, fmt.Errorf("listing fiscal periods: %w", err)
	}
	if len(periods) == 0 {
		return []*ResolutionReport{}, nil
	}

	reports := make([]*ResolutionReport, len(periods))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(historyConcurrency)
	for i, period := range periods {
		g.Go(func() error {
			report, err := s.ResolveCanonical(providerID, companyID, period)
			if err != nil {
				return fmt.Errorf("resolving %s: %w", period.Format("2006-01-02"), err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// TestTransform parses an expression and evaluates it against a caller
// supplied sample, for the admin mapping editor's dry-run endpoint.
func (s *transformServiceImpl) TestTransform(expression json.RawMessage, sample map[string]float64) (float64, error) {
	if err := validation.ValidateExpressionSize(expression); err != nil {
		return 0, err
	}
	expr, err := transform.ParseExpression(expression)
	if err != nil {
		return 0, err
	}
	return transform.Evaluate(expr, sample)
}

// InvalidateCompany drops every cached report for the company, across all
// providers and fiscal periods.
func (s *transformServiceImpl) InvalidateCompany(companyID string) {
	fragment := fmt.Sprintf("_%s_", companyID)
	for key := range s.resolutionCache.Items() {
		if strings.Contains(key, fragment) {
			s.resolutionCache.Delete(key)
		}
	}
	logger.L.Debug("invalidated resolution cache for company", "companyID", companyID)
}

// InvalidateAll flushes every cached report. Mapping rule edits use this:
// a provider rule can affect any of its companies.
func (s *transformServiceImpl) InvalidateAll() {
	s.resolutionCache.Flush()
	logger.L.Debug("flushed resolution cache")
}

func decodeRawValue(e models.RawDataEntry) transform.RawValue {
	switch e.ValueKind {
	case string(transform.KindNumber):
		var n float64
		if err := json.Unmarshal(e.Value, &n); err == nil {
			return transform.RawValue{Kind: transform.KindNumber, Value: n}
		}
	case string(transform.KindString):
		var str string
		if err := json.Unmarshal(e.Value, &str); err == nil {
			return transform.RawValue{Kind: transform.KindString, Value: str}
		}
	}
	var v any
	if err := json.Unmarshal(e.Value, &v); err != nil {
		logger.L.Warn("undecodable raw value", "entryID", e.ID, "rawField", e.RawFieldName, "error", err)
	}
	return transform.RawValue{Kind: transform.ValueKind(e.ValueKind), Value: v}
}

func buildReport(providerID int64, companyID string, fiscalPeriod time.Time, res transform.Result) *ResolutionReport {
	report := &ResolutionReport{
		ProviderID:   providerID,
		CompanyID:    companyID,
		FiscalPeriod: fiscalPeriod.Format("2006-01-02"),
		Values:       res.Values,
		Omissions:    make([]OmissionDetail, 0, len(res.Omissions)),
	}
	for _, o := range res.Omissions {
		detail := OmissionDetail{
			CanonicalField: o.CanonicalField,
			RawField:       o.RawField,
			RuleID:         o.RuleID,
			Reason:         string(o.Reason),
		}
		if o.Err != nil {
			detail.Error = o.Err.Error()
		}
		report.Omissions = append(report.Omissions, detail)
	}
	return report
}

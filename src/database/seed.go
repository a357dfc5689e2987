package database

import (
	"github.com/SagastaDev/equity-valuator/src/logger"
	"github.com/SagastaDev/equity-valuator/src/models"
)

// defaultCanonicalFields is the baseline field catalogue loaded into an
// empty database. Mapped fields cover the three financial statements plus
// market data; the ratio category holds the computed fields derived from
// them.
var defaultCanonicalFields = []models.CanonicalField{
	// Income statement
	{Code: 1001, Name: "total_revenue", DisplayName: "Total Revenue", Type: "number", Category: models.CategoryFundamental},
	{Code: 1002, Name: "cost_of_revenue", DisplayName: "Cost of Revenue", Type: "number", Category: models.CategoryFundamental},
	{Code: 1003, Name: "gross_profit", DisplayName: "Gross Profit", Type: "number", Category: models.CategoryFundamental},
	{Code: 1004, Name: "operating_income", DisplayName: "Operating Income", Type: "number", Category: models.CategoryFundamental},
	{Code: 1005, Name: "ebitda", DisplayName: "EBITDA", Type: "number", Category: models.CategoryFundamental},
	{Code: 1006, Name: "interest_expense", DisplayName: "Interest Expense", Type: "number", Category: models.CategoryFundamental},
	{Code: 1007, Name: "income_before_tax", DisplayName: "Income Before Tax", Type: "number", Category: models.CategoryFundamental},
	{Code: 1008, Name: "income_tax_expense", DisplayName: "Income Tax Expense", Type: "number", Category: models.CategoryFundamental},
	{Code: 1009, Name: "net_income", DisplayName: "Net Income", Type: "number", Category: models.CategoryFundamental},
	{Code: 1010, Name: "basic_earnings_per_share", DisplayName: "Basic EPS", Type: "number", Category: models.CategoryFundamental},
	{Code: 1011, Name: "diluted_earnings_per_share", DisplayName: "Diluted EPS", Type: "number", Category: models.CategoryFundamental},

	// Balance sheet
	{Code: 1101, Name: "cash_and_cash_equivalents", DisplayName: "Cash and Cash Equivalents", Type: "number", Category: models.CategoryFundamental},
	{Code: 1102, Name: "accounts_receivable", DisplayName: "Accounts Receivable", Type: "number", Category: models.CategoryFundamental},
	{Code: 1103, Name: "inventory", DisplayName: "Inventory", Type: "number", Category: models.CategoryFundamental},
	{Code: 1104, Name: "current_assets", DisplayName: "Total Current Assets", Type: "number", Category: models.CategoryFundamental},
	{Code: 1105, Name: "total_assets", DisplayName: "Total Assets", Type: "number", Category: models.CategoryFundamental},
	{Code: 1106, Name: "accounts_payable", DisplayName: "Accounts Payable", Type: "number", Category: models.CategoryFundamental},
	{Code: 1107, Name: "current_liabilities", DisplayName: "Total Current Liabilities", Type: "number", Category: models.CategoryFundamental},
	{Code: 1108, Name: "long_term_debt", DisplayName: "Long-Term Debt", Type: "number", Category: models.CategoryFundamental},
	{Code: 1109, Name: "total_debt", DisplayName: "Total Debt", Type: "number", Category: models.CategoryFundamental},
	{Code: 1110, Name: "total_liabilities", DisplayName: "Total Liabilities", Type: "number", Category: models.CategoryFundamental},
	{Code: 1111, Name: "total_equity", DisplayName: "Total Stockholders Equity", Type: "number", Category: models.CategoryFundamental},
	{Code: 1112, Name: "retained_earnings", DisplayName: "Retained Earnings", Type: "number", Category: models.CategoryFundamental},

	// Cash flow
	{Code: 1201, Name: "operating_cash_flow", DisplayName: "Operating Cash Flow", Type: "number", Category: models.CategoryFundamental},
	{Code: 1202, Name: "investing_cash_flow", DisplayName: "Investing Cash Flow", Type: "number", Category: models.CategoryFundamental},
	{Code: 1203, Name: "financing_cash_flow", DisplayName: "Financing Cash Flow", Type: "number", Category: models.CategoryFundamental},
	{Code: 1204, Name: "capital_expenditures", DisplayName: "Capital Expenditures", Type: "number", Category: models.CategoryFundamental},
	{Code: 1205, Name: "free_cash_flow", DisplayName: "Free Cash Flow", Type: "number", Category: models.CategoryFundamental},

	// Market data
	{Code: 2001, Name: "close_price", DisplayName: "Closing Price", Type: "number", Category: models.CategoryMarket},
	{Code: 2002, Name: "shares_outstanding", DisplayName: "Shares Outstanding", Type: "number", Category: models.CategoryMarket},

	// Computed ratios
	{Code: 3001, Name: "debt_to_equity", DisplayName: "Debt to Equity", Type: "number", Category: models.CategoryRatio, IsComputed: true},
	{Code: 3002, Name: "current_ratio", DisplayName: "Current Ratio", Type: "number", Category: models.CategoryRatio, IsComputed: true},
	{Code: 3003, Name: "return_on_equity", DisplayName: "Return on Equity", Type: "number", Category: models.CategoryRatio, IsComputed: true},
	{Code: 3004, Name: "gross_margin", DisplayName: "Gross Margin", Type: "number", Category: models.CategoryRatio, IsComputed: true},
	{Code: 3005, Name: "operating_margin", DisplayName: "Operating Margin", Type: "number", Category: models.CategoryRatio, IsComputed: true},
	{Code: 3006, Name: "net_margin", DisplayName: "Net Margin", Type: "number", Category: models.CategoryRatio, IsComputed: true},
}

// SeedCanonicalFields populates the canonical field catalogue when the
// table is empty. Existing catalogues are left untouched so admin edits
// survive restarts.
func SeedCanonicalFields() {
	count, err := models.CountCanonicalFields(DB)
	if err != nil {
		logger.L.Error("Failed to count canonical fields", "error", err)
		return
	}
	if count > 0 {
		logger.L.Debug("Canonical fields already present, skipping seed", "count", count)
		return
	}

	inserted := 0
	for i := range defaultCanonicalFields {
		field := defaultCanonicalFields[i]
		if err := models.CreateCanonicalField(DB, &field); err != nil {
			logger.L.Error("Failed to seed canonical field", "name", field.Name, "error", err)
			continue
		}
		inserted++
	}
	logger.L.Info("Seeded canonical fields", "inserted", inserted)
}

package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"regexp"
	"time"

	"github.com/SagastaDev/equity-valuator/src/config"
	"github.com/SagastaDev/equity-valuator/src/logger"
	"github.com/SagastaDev/equity-valuator/src/models"
	"golang.org/x/net/publicsuffix"
)

const yahooUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"

type yahooQuoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol             string  `json:"symbol"`
			RegularMarketPrice float64 `json:"regularMarketPrice"`
			Currency           string  `json:"currency"`
		} `json:"result"`
		Error interface{} `json:"error"`
	} `json:"quoteResponse"`
}

// priceServiceImpl pulls quotes from Yahoo Finance. Yahoo's quote API wants
// session cookies plus a crumb token, so the client carries a cookie jar and
// the crumb is scraped once up front.
type priceServiceImpl struct {
	db               *sql.DB
	transformService TransformService
	httpClient       http.Client
	crumb            string
}

// NewPriceService creates the quote service and establishes the Yahoo
// session. A failed session setup is logged, not fatal; the first refresh
// retries it.
func NewPriceService(db *sql.DB, transformService TransformService) PriceService {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		logger.L.Error("Failed to create cookie jar", "error", err)
	}

	s := &priceServiceImpl{
		db:               db,
		transformService: transformService,
		httpClient: http.Client{
			Jar:     jar,
			Timeout: 20 * time.Second,
		},
	}

	if err := s.initializeYahooSession(); err != nil {
		logger.L.Error("Failed to initialize Yahoo Finance session. Price fetching may fail.", "error", err)
	}
	return s
}

// initializeYahooSession visits a quote page to collect cookies and scrape
// the crumb token the quote API requires.
func (s *priceServiceImpl) initializeYahooSession() error {
	logger.L.Info("Initializing Yahoo Finance session to get crumb and cookies...")
	req, err := http.NewRequest("GET", "https://finance.yahoo.com/quote/VHYL.L", nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", yahooUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make initial request to Yahoo: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read Yahoo response body: %w", err)
	}

	re := regexp.MustCompile(`"CrumbStore":{"crumb":"(.*?)"}`)
	matches := re.FindStringSubmatch(string(body))
	if len(matches) < 2 {
		return fmt.Errorf("could not find crumb in Yahoo Finance response. The page structure may have changed")
	}

	s.crumb = matches[1]
	logger.L.Info("Successfully obtained Yahoo Finance crumb.")
	return nil
}

// RefreshPrice fetches the current quote for a company's ticker, stores it
// as price data and mirrors the close into the Yahoo provider's raw entries
// so mapping rules can pick it up like any other provider field.
func (s *priceServiceImpl) RefreshPrice(companyID string) (*models.PriceData, error) {
	company, err := models.GetCompanyByID(s.db, companyID)
	if err != nil {
		return nil, err
	}
	if company.Ticker == "" {
		return nil, fmt.Errorf("company %s has no ticker configured", companyID)
	}

	if s.crumb == "" {
		logger.L.Warn("Yahoo crumb is missing, attempting to re-initialize session.")
		if err := s.initializeYahooSession(); err != nil {
			return nil, fmt.Errorf("failed to re-initialize Yahoo session: %w", err)
		}
	}

	price, currency, err := s.getPriceForTicker(company.Ticker)
	if err != nil {
		return nil, err
	}

	yahoo, err := models.GetOrCreateProvider(s.db, config.Cfg.YahooProviderName)
	if err != nil {
		return nil, fmt.Errorf("resolving Yahoo provider: %w", err)
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	quote := &models.PriceData{
		CompanyID:  companyID,
		ProviderID: yahoo.ID,
		Date:       today,
		Close:      price,
		Currency:   currency,
	}
	if err := models.UpsertPriceData(s.db, quote); err != nil {
		return nil, fmt.Errorf("storing price data: %w", err)
	}

	encoded, _ := json.Marshal(price)
	entry := &models.RawDataEntry{
		ProviderID:   yahoo.ID,
		CompanyID:    companyID,
		FiscalPeriod: today,
		PeriodType:   models.PeriodDaily,
		RawFieldName: "close_price",
		ValueKind:    "number",
		Value:        encoded,
	}
	if err := models.UpsertRawDataEntry(s.db, entry); err != nil {
		return nil, fmt.Errorf("storing close price raw entry: %w", err)
	}
	s.transformService.InvalidateCompany(companyID)

	logger.L.Info("Refreshed price", "companyID", companyID, "ticker", company.Ticker,
		"price", price, "currency", currency)
	return quote, nil
}

// GetPriceHistory returns the stored quotes for a company, oldest first.
func (s *priceServiceImpl) GetPriceHistory(companyID string) ([]models.PriceData, error) {
	if _, err := models.GetCompanyByID(s.db, companyID); err != nil {
		return nil, err
	}
	return models.ListPricesForCompany(s.db, companyID)
}

// getPriceForTicker calls the v7 quote endpoint, which requires the crumb.
func (s *priceServiceImpl) getPriceForTicker(ticker string) (float64, string, error) {
	quoteURL := fmt.Sprintf("https://query2.finance.yahoo.com/v7/finance/quote?symbols=%s&crumb=%s", ticker, s.crumb)
	req, err := http.NewRequest("GET", quoteURL, nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("User-Agent", yahooUserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("failed to call Yahoo quote API for ticker %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return 0, "", fmt.Errorf("yahoo quote API returned non-OK status %d for ticker %s. Body: %s", resp.StatusCode, ticker, string(bodyBytes))
	}

	var quoteData yahooQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quoteData); err != nil {
		return 0, "", fmt.Errorf("failed to decode Yahoo quote response for ticker %s: %w", ticker, err)
	}
	if quoteData.QuoteResponse.Error != nil || len(quoteData.QuoteResponse.Result) == 0 {
		return 0, "", fmt.Errorf("yahoo quote API returned an error or no result for ticker %s", ticker)
	}

	result := quoteData.QuoteResponse.Result[0]
	return result.RegularMarketPrice, result.Currency, nil
}

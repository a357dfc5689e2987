package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/SagastaDev/equity-valuator/src/database"
	"github.com/SagastaDev/equity-valuator/src/logger"
	"github.com/SagastaDev/equity-valuator/src/models"
	"github.com/SagastaDev/equity-valuator/src/utils"
)

// CompanyHandler serves the reference catalogue: companies, providers and
// the canonical field list.
type CompanyHandler struct{}

func NewCompanyHandler() *CompanyHandler {
	return &CompanyHandler{}
}

func (h *CompanyHandler) HandleCreateCompany(w http.ResponseWriter, r *http.Request) {
	var company models.Company
	if err := json.NewDecoder(r.Body).Decode(&company); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if company.Ticker == "" || company.Name == "" {
		utils.SendJSONError(w, "Ticker and name are required", http.StatusBadRequest)
		return
	}

	if existing, err := models.GetCompanyByTicker(database.DB, company.Ticker); err == nil {
		utils.SendJSONError(w, "Company with ticker "+existing.Ticker+" already exists", http.StatusConflict)
		return
	}

	if err := models.CreateCompany(database.DB, &company); err != nil {
		logger.L.Error("Failed to create company", "ticker", company.Ticker, "error", err)
		utils.SendJSONError(w, "Failed to create company", http.StatusInternalServerError)
		return
	}

	logger.L.Info("Company created", "id", company.ID, "ticker", company.Ticker)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(company)
}

func (h *CompanyHandler) HandleGetCompany(w http.ResponseWriter, r *http.Request) {
	company, err := models.GetCompanyByID(database.DB, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, models.ErrCompanyNotFound) {
			utils.SendJSONError(w, "Company not found", http.StatusNotFound)
			return
		}
		utils.SendJSONError(w, "Failed to load company", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(company)
}

func (h *CompanyHandler) HandleListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := models.ListCompanies(database.DB)
	if err != nil {
		logger.L.Error("Failed to list companies", "error", err)
		utils.SendJSONError(w, "Failed to list companies", http.StatusInternalServerError)
		return
	}
	if companies == nil {
		companies = []models.Company{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(companies)
}

func (h *CompanyHandler) HandleCreateProvider(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if payload.Name == "" {
		utils.SendJSONError(w, "Provider name is required", http.StatusBadRequest)
		return
	}

	provider, err := models.CreateProvider(database.DB, payload.Name)
	if err != nil {
		logger.L.Error("Failed to create provider", "name", payload.Name, "error", err)
		utils.SendJSONError(w, "Failed to create provider", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(provider)
}

func (h *CompanyHandler) HandleListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := models.ListProviders(database.DB)
	if err != nil {
		logger.L.Error("Failed to list providers", "error", err)
		utils.SendJSONError(w, "Failed to list providers", http.StatusInternalServerError)
		return
	}
	if providers == nil {
		providers = []models.Provider{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(providers)
}

func (h *CompanyHandler) HandleListCanonicalFields(w http.ResponseWriter, r *http.Request) {
	fields, err := models.ListCanonicalFields(database.DB)
	if err != nil {
		logger.L.Error("Failed to list canonical fields", "error", err)
		utils.SendJSONError(w, "Failed to list canonical fields", http.StatusInternalServerError)
		return
	}
	if fields == nil {
		fields = []models.CanonicalField{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(fields)
}

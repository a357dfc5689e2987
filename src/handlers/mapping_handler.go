package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/SagastaDev/equity-valuator/src/database"
	"github.com/SagastaDev/equity-valuator/src/logger"
	"github.com/SagastaDev/equity-valuator/src/models"
	"github.com/SagastaDev/equity-valuator/src/security/validation"
	"github.com/SagastaDev/equity-valuator/src/services"
	"github.com/SagastaDev/equity-valuator/src/transform"
	"github.com/SagastaDev/equity-valuator/src/utils"
)

type MappingHandler struct {
	transformService services.TransformService
}

func NewMappingHandler(transformService services.TransformService) *MappingHandler {
	return &MappingHandler{
		transformService: transformService,
	}
}

// mappingPayload is the request body for mapping create and update. Dates
// use YYYY-MM-DD; the expression is the raw JSON tree, validated before it
// is stored.
type mappingPayload struct {
	ProviderID          int64           `json:"provider_id"`
	CanonicalID         int64           `json:"canonical_id"`
	RawFieldName        string          `json:"raw_field_name"`
	CompanyID           *string         `json:"company_id,omitempty"`
	StartDate           string          `json:"start_date,omitempty"`
	EndDate             string          `json:"end_date,omitempty"`
	TransformExpression json.RawMessage `json:"transform_expression,omitempty"`
}

func (p *mappingPayload) toModel() (*models.MappedField, error) {
	if err := validation.ValidateFieldName(p.RawFieldName); err != nil {
		return nil, err
	}
	if p.ProviderID == 0 || p.CanonicalID == 0 {
		return nil, fmt.Errorf("provider_id and canonical_id are required")
	}

	m := &models.MappedField{
		ProviderID:   p.ProviderID,
		CanonicalID:  p.CanonicalID,
		RawFieldName: p.RawFieldName,
		CompanyID:    p.CompanyID,
	}

	if p.StartDate != "" {
		t, err := utils.ParseFiscalPeriod(p.StartDate)
		if err != nil {
			return nil, fmt.Errorf("invalid start_date: %w", err)
		}
		m.StartDate = &t
	}
	if p.EndDate != "" {
		t, err := utils.ParseFiscalPeriod(p.EndDate)
		if err != nil {
			return nil, fmt.Errorf("invalid end_date: %w", err)
		}
		m.EndDate = &t
	}
	if m.StartDate != nil && m.EndDate != nil && m.EndDate.Before(*m.StartDate) {
		return nil, fmt.Errorf("end_date precedes start_date")
	}

	if len(p.TransformExpression) > 0 {
		if err := validation.ValidateExpressionSize(p.TransformExpression); err != nil {
			return nil, err
		}
		if _, err := transform.ParseExpression(p.TransformExpression); err != nil {
			return nil, fmt.Errorf("invalid transform expression: %w", err)
		}
		m.TransformExpression = p.TransformExpression
	}
	return m, nil
}

func (h *MappingHandler) HandleCreateMapping(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var payload mappingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	mapping, err := payload.toModel()
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := models.GetCanonicalFieldByID(database.DB, mapping.CanonicalID); err != nil {
		utils.SendJSONError(w, "Unknown canonical field", http.StatusBadRequest)
		return
	}
	if _, err := models.GetProviderByID(database.DB, mapping.ProviderID); err != nil {
		utils.SendJSONError(w, "Unknown provider", http.StatusBadRequest)
		return
	}

	if err := models.CreateMappedField(database.DB, mapping); err != nil {
		logger.L.Error("Failed to create mapping", "error", err)
		utils.SendJSONError(w, "Failed to create mapping", http.StatusInternalServerError)
		return
	}

	h.recordChange(mapping.ID, userID, fmt.Sprintf("created mapping %s -> canonical %d", mapping.RawFieldName, mapping.CanonicalID))
	h.transformService.InvalidateAll()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(mapping)
}

func (h *MappingHandler) HandleUpdateMapping(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	id := r.PathValue("id")

	var payload mappingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	mapping, err := payload.toModel()
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	mapping.ID = id

	if err := models.UpdateMappedField(database.DB, mapping); err != nil {
		if errors.Is(err, models.ErrMappedFieldNotFound) {
			utils.SendJSONError(w, "Mapping not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to update mapping", "id", id, "error", err)
		utils.SendJSONError(w, "Failed to update mapping", http.StatusInternalServerError)
		return
	}

	h.recordChange(id, userID, fmt.Sprintf("updated mapping %s -> canonical %d", mapping.RawFieldName, mapping.CanonicalID))
	h.transformService.InvalidateAll()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(mapping)
}

func (h *MappingHandler) HandleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	id := r.PathValue("id")

	if err := models.DeleteMappedField(database.DB, id); err != nil {
		if errors.Is(err, models.ErrMappedFieldNotFound) {
			utils.SendJSONError(w, "Mapping not found", http.StatusNotFound)
			return
		}
		logger.L.Error("Failed to delete mapping", "id", id, "error", err)
		utils.SendJSONError(w, "Failed to delete mapping", http.StatusInternalServerError)
		return
	}

	h.recordChange(id, userID, "deleted mapping")
	h.transformService.InvalidateAll()
	w.WriteHeader(http.StatusNoContent)
}

func (h *MappingHandler) HandleGetMapping(w http.ResponseWriter, r *http.Request) {
	mapping, err := models.GetMappedFieldByID(database.DB, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, models.ErrMappedFieldNotFound) {
			utils.SendJSONError(w, "Mapping not found", http.StatusNotFound)
			return
		}
		utils.SendJSONError(w, "Failed to load mapping", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(mapping)
}

func (h *MappingHandler) HandleListMappings(w http.ResponseWriter, r *http.Request) {
	var (
		mappings []models.MappedField
		err      error
	)
	if providerID, ok := utils.QueryInt64(r, "provider_id"); ok {
		mappings, err = models.ListMappedFieldsByProvider(database.DB, providerID)
	} else {
		mappings, err = models.ListAllMappedFields(database.DB)
	}
	if err != nil {
		logger.L.Error("Failed to list mappings", "error", err)
		utils.SendJSONError(w, "Failed to list mappings", http.StatusInternalServerError)
		return
	}
	if mappings == nil {
		mappings = []models.MappedField{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(mappings)
}

func (h *MappingHandler) HandleGetMappingChangeLog(w http.ResponseWriter, r *http.Request) {
	entries, err := models.ListChangeLogsForMapping(database.DB, r.PathValue("id"))
	if err != nil {
		utils.SendJSONError(w, "Failed to load change log", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []models.ChangeLog{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// HandleTestTransform dry-runs an expression against caller supplied sample
// values, so mapping edits can be checked before they are saved.
func (h *MappingHandler) HandleTestTransform(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Expression json.RawMessage    `json:"expression"`
		SampleData map[string]float64 `json:"sample_data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(payload.Expression) == 0 {
		utils.SendJSONError(w, "Expression is required", http.StatusBadRequest)
		return
	}

	result, err := h.transformService.TestTransform(payload.Expression, payload.SampleData)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("Expression evaluation failed: %v", err), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]float64{
		"result": result,
	})
}

func (h *MappingHandler) recordChange(mappedFieldID string, userID int64, description string) {
	entry := &models.ChangeLog{
		MappedFieldID: mappedFieldID,
		UserID:        userID,
		Timestamp:     time.Now().UTC(),
		Description:   description,
	}
	if err := models.CreateChangeLog(database.DB, entry); err != nil {
		logger.L.Error("Failed to record mapping change", "mappedFieldID", mappedFieldID, "error", err)
	}
}

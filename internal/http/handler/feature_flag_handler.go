package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/AstroMined/debtonator/internal/domain"
	"github.com/AstroMined/debtonator/internal/http/response"
	"github.com/AstroMined/debtonator/internal/repository"
	"github.com/AstroMined/debtonator/internal/service"
)

var flagNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]{0,127}$`)

// FeatureFlagHandler is the admin surface over the flag service: list,
// inspect and mutate flags and their requirements.
type FeatureFlagHandler struct {
	svc service.FeatureFlagService
}

func NewFeatureFlagHandler(svc service.FeatureFlagService) *FeatureFlagHandler {
	return &FeatureFlagHandler{svc: svc}
}

func (h *FeatureFlagHandler) ListFlags(w http.ResponseWriter, r *http.Request) {
	flags, err := h.svc.GetAllFlags(r.Context())
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to list feature flags", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"items": flags})
}

func (h *FeatureFlagHandler) GetFlag(w http.ResponseWriter, r *http.Request) {
	name, ok := flagNameParam(w, r)
	if !ok {
		return
	}
	flag, err := h.svc.GetFlag(r.Context(), name)
	if err != nil {
		if errors.Is(err, repository.ErrFeatureFlagNotFound) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "feature flag not found", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to load feature flag", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, flag)
}

type updateFlagBody struct {
	Value       any            `json:"value"`
	Description *string        `json:"description"`
	Metadata    map[string]any `json:"metadata"`
}

func (b updateFlagBody) toInput(name string, raw map[string]json.RawMessage) service.UpdateFlagInput {
	_, hasValue := raw["value"]
	return service.UpdateFlagInput{
		Name:        name,
		Value:       b.Value,
		HasValue:    hasValue,
		Description: b.Description,
		Metadata:    b.Metadata,
	}
}

func (h *FeatureFlagHandler) UpdateFlag(w http.ResponseWriter, r *http.Request) {
	name, ok := flagNameParam(w, r)
	if !ok {
		return
	}
	raw := map[string]json.RawMessage{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	var body updateFlagBody
	if err := decodeRawBody(raw, &body); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	flag, err := h.svc.UpdateFlag(r.Context(), name, body.toInput(name, raw))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, flag)
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *domain.InvalidValueError
	switch {
	case errors.Is(err, service.ErrUnknownFlag), errors.Is(err, repository.ErrFeatureFlagNotFound):
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "feature flag not found", nil)
	case errors.As(err, &invalid):
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to update feature flag", nil)
	}
}

func (h *FeatureFlagHandler) BulkUpdateFlags(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Items []map[string]json.RawMessage `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	updates := make([]service.UpdateFlagInput, 0, len(body.Items))
	for _, raw := range body.Items {
		var nameField struct {
			Name string `json:"name"`
		}
		if err := decodeRawBody(raw, &nameField); err != nil || !flagNameRe.MatchString(nameField.Name) {
			response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid feature flag name", nil)
			return
		}
		var item updateFlagBody
		if err := decodeRawBody(raw, &item); err != nil {
			response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
			return
		}
		updates = append(updates, item.toInput(nameField.Name, raw))
	}
	flags, err := h.svc.BulkUpdateFlags(r.Context(), updates)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"items": flags})
}

func (h *FeatureFlagHandler) GetRequirements(w http.ResponseWriter, r *http.Request) {
	name, ok := flagNameParam(w, r)
	if !ok {
		return
	}
	flag, err := h.svc.GetFlag(r.Context(), name)
	if err != nil {
		if errors.Is(err, repository.ErrFeatureFlagNotFound) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "feature flag not found", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to load requirements", nil)
		return
	}
	var requirements any
	if len(flag.Requirements) > 0 {
		if err := json.Unmarshal(flag.Requirements, &requirements); err != nil {
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "stored requirements are unreadable", nil)
			return
		}
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"flag": name, "requirements": requirements})
}

func (h *FeatureFlagHandler) UpdateRequirements(w http.ResponseWriter, r *http.Request) {
	name, ok := flagNameParam(w, r)
	if !ok {
		return
	}
	var body struct {
		Requirements map[string]any `json:"requirements"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.svc.UpdateRequirements(r.Context(), name, body.Requirements); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"updated": true})
}

func (h *FeatureFlagHandler) DefaultRequirements(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, map[string]any{"items": h.svc.DefaultRequirements()})
}

func flagNameParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	if !flagNameRe.MatchString(name) {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid feature flag name", nil)
		return "", false
	}
	return name, true
}

func decodeRawBody(raw map[string]json.RawMessage, dst any) error {
	merged, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(merged, dst)
}

package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"formkeeper/db"
	"formkeeper/middleware"
	"formkeeper/models"

	"github.com/google/uuid"
)

// CatalogHandler serves the four option-set catalogs (rating scales,
// radio/select/multiselect sets) through one endpoint family; the kind is
// selected by query parameter.
type CatalogHandler struct {
	store db.Store
}

func NewCatalogHandler(store db.Store) *CatalogHandler {
	return &CatalogHandler{store: store}
}

type CreateOptionSetRequest struct {
	Kind    models.OptionSetKind `json:"kind"`
	Name    string               `json:"name"`
	Options []models.Option      `json:"options"`
}

type UpdateOptionSetRequest struct {
	Kind     models.OptionSetKind `json:"kind"`
	SetID    string               `json:"set_id"`
	Name     string               `json:"name,omitempty"`
	Options  []models.Option      `json:"options,omitempty"`
	IsActive *bool                `json:"is_active,omitempty"`
}

type DeleteOptionSetRequest struct {
	Kind  models.OptionSetKind `json:"kind"`
	SetID string               `json:"set_id"`
}

// GetOptionSets lists one catalog: GET /api/admin/optionsets?kind=rating_scales
func (h *CatalogHandler) GetOptionSets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	kind := models.OptionSetKind(r.URL.Query().Get("kind"))
	if !kind.Valid() {
		writeError(w, "Unknown option-set kind", http.StatusBadRequest)
		return
	}

	sets, err := h.store.GetAllOptionSets(kind)
	if err != nil {
		log.Printf("❌ Failed to get %s: %v", kind, err)
		writeError(w, "Failed to retrieve option sets", http.StatusInternalServerError)
		return
	}

	writeJSON(w, sets)
}

// CreateOptionSet adds a catalog entry
func (h *CatalogHandler) CreateOptionSet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	var req CreateOptionSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !req.Kind.Valid() {
		writeError(w, "Unknown option-set kind", http.StatusBadRequest)
		return
	}
	if req.Name == "" || len(req.Options) == 0 {
		writeError(w, "Name and options are required", http.StatusBadRequest)
		return
	}

	set := &models.OptionSet{
		SetID:    uuid.NewString(),
		Name:     req.Name,
		Options:  req.Options,
		IsActive: true,
		Metadata: models.NewMetadata(user.UserID),
	}

	if err := h.store.CreateOptionSet(req.Kind, set); err != nil {
		log.Printf("❌ Failed to create %s entry: %v", req.Kind, err)
		writeError(w, "Failed to create option set", http.StatusInternalServerError)
		return
	}

	log.Printf("✅ Option set created by %s: %s (%s)", user.Username, set.Name, req.Kind)
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, set)
}

// UpdateOptionSet edits a catalog entry. Configs referencing the entry pick
// the change up on the next verification pass.
func (h *CatalogHandler) UpdateOptionSet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req UpdateOptionSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !req.Kind.Valid() || req.SetID == "" {
		writeError(w, "Kind and set ID are required", http.StatusBadRequest)
		return
	}

	set, err := h.store.GetOptionSet(req.Kind, req.SetID)
	if err != nil {
		writeError(w, "Option set not found", http.StatusNotFound)
		return
	}

	if req.Name != "" {
		set.Name = req.Name
	}
	if req.Options != nil {
		set.Options = req.Options
	}
	if req.IsActive != nil {
		set.IsActive = *req.IsActive
	}
	set.Metadata.Touch()

	if err := h.store.UpdateOptionSet(req.Kind, set); err != nil {
		log.Printf("❌ Failed to update %s entry: %v", req.Kind, err)
		writeError(w, "Failed to update option set", http.StatusInternalServerError)
		return
	}

	writeJSON(w, set)
}

// DeleteOptionSet removes a catalog entry. Dependent configs become invalid
// on the next verification pass; their instances deactivate until fixed.
func (h *CatalogHandler) DeleteOptionSet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req DeleteOptionSetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !req.Kind.Valid() || req.SetID == "" {
		writeError(w, "Kind and set ID are required", http.StatusBadRequest)
		return
	}

	if err := h.store.DeleteOptionSet(req.Kind, req.SetID); err != nil {
		log.Printf("❌ Failed to delete %s entry: %v", req.Kind, err)
		writeError(w, "Failed to delete option set", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"deleted": req.SetID})
}

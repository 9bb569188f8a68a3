package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"formkeeper/cleanup"
	"formkeeper/db"
	"formkeeper/middleware"
	"formkeeper/models"
	"formkeeper/verify"

	"github.com/google/uuid"
)

// AdminHandler serves the survey config/instance administration API plus
// the verification and cleanup operator endpoints.
type AdminHandler struct {
	store    db.Store
	verifier *verify.Verifier
	cleanup  *cleanup.Service
}

func NewAdminHandler(store db.Store, verifier *verify.Verifier, cleanupSvc *cleanup.Service) *AdminHandler {
	return &AdminHandler{
		store:    store,
		verifier: verifier,
		cleanup:  cleanupSvc,
	}
}

// --- Survey Config Management ---

type CreateConfigRequest struct {
	Title    string           `json:"title"`
	Sections []models.Section `json:"sections"`
}

type UpdateConfigRequest struct {
	ConfigID string           `json:"config_id"`
	Title    string           `json:"title,omitempty"`
	Sections []models.Section `json:"sections,omitempty"`
	IsActive *bool            `json:"is_active,omitempty"`
}

type DeleteConfigRequest struct {
	ConfigID string `json:"config_id"`
}

// GetConfigs returns all survey configurations
func (h *AdminHandler) GetConfigs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	configs, err := h.store.GetAllConfigs()
	if err != nil {
		log.Printf("❌ Failed to get configs: %v", err)
		writeError(w, "Failed to retrieve configs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, configs)
}

// CreateConfig creates a new survey configuration
func (h *AdminHandler) CreateConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	var req CreateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Title == "" {
		writeError(w, "Title is required", http.StatusBadRequest)
		return
	}

	cfg := &models.SurveyConfig{
		ConfigID: uuid.NewString(),
		Title:    req.Title,
		Sections: req.Sections,
		Version:  1,
		IsActive: true,
		Metadata: models.NewMetadata(user.UserID),
	}

	if err := h.store.CreateConfig(cfg); err != nil {
		log.Printf("❌ Failed to create config: %v", err)
		writeError(w, "Failed to create config", http.StatusInternalServerError)
		return
	}

	log.Printf("✅ Config created by %s: %s", user.Username, cfg.Title)
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, cfg)
}

// UpdateConfig updates an existing configuration and bumps its version.
// A verification pass should follow so dependent instances reconcile.
func (h *AdminHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req UpdateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.ConfigID == "" {
		writeError(w, "Config ID is required", http.StatusBadRequest)
		return
	}

	cfg, err := h.store.GetConfig(req.ConfigID)
	if err != nil {
		writeError(w, "Config not found", http.StatusNotFound)
		return
	}

	if req.Title != "" {
		cfg.Title = req.Title
	}
	if req.Sections != nil {
		cfg.Sections = req.Sections
	}
	if req.IsActive != nil {
		cfg.IsActive = *req.IsActive
	}
	cfg.Version++
	cfg.Metadata.Touch()

	if err := h.store.UpdateConfig(cfg); err != nil {
		log.Printf("❌ Failed to update config: %v", err)
		writeError(w, "Failed to update config", http.StatusInternalServerError)
		return
	}

	writeJSON(w, cfg)
}

// DeleteConfig deletes a configuration
func (h *AdminHandler) DeleteConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req DeleteConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.ConfigID == "" {
		writeError(w, "Config ID is required", http.StatusBadRequest)
		return
	}

	// Fail closed: if the lookup errors we cannot prove the config is
	// unused, and deleting it would orphan any published instances.
	instances, err := h.store.GetInstancesByConfig(req.ConfigID)
	if err != nil {
		log.Printf("❌ Failed to check instances for config %s: %v", req.ConfigID, err)
		writeError(w, "Failed to verify config is unused", http.StatusInternalServerError)
		return
	}
	if len(instances) > 0 {
		writeError(w, "Config still has published instances", http.StatusConflict)
		return
	}

	if err := h.store.DeleteConfig(req.ConfigID); err != nil {
		log.Printf("❌ Failed to delete config: %v", err)
		writeError(w, "Failed to delete config", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"deleted": req.ConfigID})
}

// --- Survey Instance Management ---

type CreateInstanceRequest struct {
	ConfigID        string            `json:"config_id"`
	Title           string            `json:"title"`
	Slug            string            `json:"slug"`
	ActiveDateRange *models.DateRange `json:"active_date_range,omitempty"`
}

type InstanceRequest struct {
	InstanceID string `json:"instance_id"`
}

type UpdateInstanceRequest struct {
	InstanceID      string            `json:"instance_id"`
	Title           string            `json:"title,omitempty"`
	ActiveDateRange *models.DateRange `json:"active_date_range,omitempty"`
	ClearDateRange  bool              `json:"clear_date_range,omitempty"`
}

// GetInstances returns all survey instances
func (h *AdminHandler) GetInstances(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	instances, err := h.store.GetAllInstances()
	if err != nil {
		log.Printf("❌ Failed to get instances: %v", err)
		writeError(w, "Failed to retrieve instances", http.StatusInternalServerError)
		return
	}

	writeJSON(w, instances)
}

// CreateInstance publishes a config as a new addressable instance
func (h *AdminHandler) CreateInstance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	var req CreateInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.ConfigID == "" || req.Title == "" || req.Slug == "" {
		writeError(w, "Config ID, title and slug are required", http.StatusBadRequest)
		return
	}

	if _, err := h.store.GetConfig(req.ConfigID); err != nil {
		writeError(w, "Config not found", http.StatusNotFound)
		return
	}

	if existing, _ := h.store.GetInstanceBySlug(req.Slug); existing != nil {
		writeError(w, "Slug already in use", http.StatusConflict)
		return
	}

	// New instances start inactive until a verification pass confirms the
	// config is valid.
	inst := &models.SurveyInstance{
		InstanceID:      uuid.NewString(),
		ConfigID:        req.ConfigID,
		Title:           req.Title,
		Slug:            req.Slug,
		IsActive:        false,
		ConfigValid:     false,
		ActiveDateRange: req.ActiveDateRange,
		Metadata:        models.NewMetadata(user.UserID),
	}

	if err := h.store.CreateInstance(inst); err != nil {
		log.Printf("❌ Failed to create instance: %v", err)
		writeError(w, "Failed to create instance", http.StatusInternalServerError)
		return
	}

	log.Printf("✅ Instance created by %s: %s (slug: %s)", user.Username, inst.Title, inst.Slug)
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, inst)
}

// UpdateInstance edits an instance's title or date window
func (h *AdminHandler) UpdateInstance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req UpdateInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.InstanceID == "" {
		writeError(w, "Instance ID is required", http.StatusBadRequest)
		return
	}

	inst, err := h.store.GetInstance(req.InstanceID)
	if err != nil {
		writeError(w, "Instance not found", http.StatusNotFound)
		return
	}

	if req.Title != "" {
		inst.Title = req.Title
	}
	if req.ClearDateRange {
		inst.ActiveDateRange = nil
	} else if req.ActiveDateRange != nil {
		inst.ActiveDateRange = req.ActiveDateRange
	}
	inst.Metadata.Touch()

	if err := h.store.UpdateInstance(inst); err != nil {
		log.Printf("❌ Failed to update instance: %v", err)
		writeError(w, "Failed to update instance", http.StatusInternalServerError)
		return
	}

	writeJSON(w, inst)
}

// ActivateInstance is the manual admin override. Activation still requires
// a valid config: the "active implies valid" invariant holds everywhere.
func (h *AdminHandler) ActivateInstance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req InstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	inst, err := h.store.GetInstance(req.InstanceID)
	if err != nil {
		writeError(w, "Instance not found", http.StatusNotFound)
		return
	}

	if !inst.ConfigValid {
		writeError(w, "Cannot activate: configuration is not valid", http.StatusConflict)
		return
	}

	inst.IsActive = true
	inst.DeactivationReason = ""
	inst.Metadata.Touch()

	if err := h.store.UpdateInstance(inst); err != nil {
		log.Printf("❌ Failed to activate instance: %v", err)
		writeError(w, "Failed to activate instance", http.StatusInternalServerError)
		return
	}

	writeJSON(w, inst)
}

// DeactivateInstance parks an instance. The recorded reason keeps the
// verifier from silently re-activating it on the next pass.
func (h *AdminHandler) DeactivateInstance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req InstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	inst, err := h.store.GetInstance(req.InstanceID)
	if err != nil {
		writeError(w, "Instance not found", http.StatusNotFound)
		return
	}

	inst.IsActive = false
	inst.DeactivationReason = models.ReasonManual
	inst.Metadata.Touch()

	if err := h.store.UpdateInstance(inst); err != nil {
		log.Printf("❌ Failed to deactivate instance: %v", err)
		writeError(w, "Failed to deactivate instance", http.StatusInternalServerError)
		return
	}

	writeJSON(w, inst)
}

// DeleteInstance deletes an instance
func (h *AdminHandler) DeleteInstance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req InstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.store.DeleteInstance(req.InstanceID); err != nil {
		log.Printf("❌ Failed to delete instance: %v", err)
		writeError(w, "Failed to delete instance", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"deleted": req.InstanceID})
}

// --- Verification & Cleanup ---

// VerifyConfigs runs a full verification and reconciliation pass and
// returns the structured summary.
func (h *AdminHandler) VerifyConfigs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, "User not found in context", http.StatusUnauthorized)
		return
	}

	silent := r.URL.Query().Get("silent") == "true"

	summary, err := h.verifier.VerifyConfigs(silent)
	if err != nil {
		log.Printf("❌ Verification pass failed: %v", err)
		writeError(w, "Verification failed", http.StatusInternalServerError)
		return
	}

	log.Printf("✅ Verification run by %s: %d/%d configs valid, %d reactivated, %d deactivated",
		user.Username, summary.ValidConfigs, summary.TotalConfigs, summary.Reactivated, summary.Deactivated)

	writeJSON(w, summary)
}

// RunCleanup triggers one session expiry sweep synchronously
func (h *AdminHandler) RunCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	expired, err := h.cleanup.ManualCleanup()
	if err != nil {
		log.Printf("❌ Manual cleanup failed: %v", err)
		writeError(w, "Cleanup failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]int{"expired": expired})
}

// CleanupStats returns the sweep history
func (h *AdminHandler) CleanupStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, h.cleanup.GetStats())
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formkeeper/cleanup"
	"formkeeper/db/dbtest"
	"formkeeper/middleware"
	"formkeeper/models"
	"formkeeper/verify"
)

func adminRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	user := &models.User{UserID: "user-admin", Username: "admin", Role: models.RoleAdmin}
	return req.WithContext(context.WithValue(req.Context(), middleware.UserContextKey, user))
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func newAdminHandler(store *dbtest.Fake) *AdminHandler {
	verifier := verify.NewVerifier(store)
	sweeper := cleanup.NewService(store, 24*time.Hour, time.Hour, 100)
	return NewAdminHandler(store, verifier, sweeper)
}

// --- Config management ---

func TestCreateConfig(t *testing.T) {
	store := dbtest.NewFake()
	h := newAdminHandler(store)

	rec := httptest.NewRecorder()
	h.CreateConfig(rec, adminRequest(t, http.MethodPost, "/api/admin/configs", CreateConfigRequest{
		Title: "Onboarding Survey",
		Sections: []models.Section{{
			SectionID: "sec-1", Title: "Basics",
			Fields: []models.Field{{FieldID: "name", Label: "Name", Type: models.FieldTypeText}},
		}},
	}))

	require.Equal(t, http.StatusCreated, rec.Code)
	cfg := decodeBody[models.SurveyConfig](t, rec)
	assert.NotEmpty(t, cfg.ConfigID)
	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, "user-admin", cfg.Metadata.CreatedBy)
	assert.Contains(t, store.Configs, cfg.ConfigID)
}

func TestCreateConfigRequiresTitle(t *testing.T) {
	h := newAdminHandler(dbtest.NewFake())

	rec := httptest.NewRecorder()
	h.CreateConfig(rec, adminRequest(t, http.MethodPost, "/api/admin/configs", CreateConfigRequest{}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateConfigBumpsVersion(t *testing.T) {
	store := dbtest.NewFake()
	store.Configs["cfg-1"] = models.SurveyConfig{ConfigID: "cfg-1", Title: "Old", Version: 3}
	h := newAdminHandler(store)

	rec := httptest.NewRecorder()
	h.UpdateConfig(rec, adminRequest(t, http.MethodPut, "/api/admin/configs", UpdateConfigRequest{
		ConfigID: "cfg-1", Title: "New",
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	got := store.Configs["cfg-1"]
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, 4, got.Version)
}

func TestDeleteConfigBlockedByInstances(t *testing.T) {
	store := dbtest.NewFake()
	store.Configs["cfg-1"] = models.SurveyConfig{ConfigID: "cfg-1", Title: "In use"}
	store.Instances["inst-1"] = models.SurveyInstance{InstanceID: "inst-1", ConfigID: "cfg-1"}
	h := newAdminHandler(store)

	rec := httptest.NewRecorder()
	h.DeleteConfig(rec, adminRequest(t, http.MethodDelete, "/api/admin/configs", DeleteConfigRequest{ConfigID: "cfg-1"}))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, store.Configs, "cfg-1")
}

func TestDeleteConfigFailsClosedOnLookupError(t *testing.T) {
	store := dbtest.NewFake()
	store.Configs["cfg-1"] = models.SurveyConfig{ConfigID: "cfg-1", Title: "In use"}
	store.Instances["inst-1"] = models.SurveyInstance{InstanceID: "inst-1", ConfigID: "cfg-1"}
	store.ListInstancesErr = errors.New("rpc error: code = Unavailable")
	h := newAdminHandler(store)

	rec := httptest.NewRecorder()
	h.DeleteConfig(rec, adminRequest(t, http.MethodDelete, "/api/admin/configs", DeleteConfigRequest{ConfigID: "cfg-1"}))

	// An unverifiable instance lookup must not let the delete proceed.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, store.Configs, "cfg-1")
}

// --- Instance management ---

func TestCreateInstanceStartsInactive(t *testing.T) {
	store := dbtest.NewFake()
	store.Configs["cfg-1"] = models.SurveyConfig{ConfigID: "cfg-1", Title: "Base"}
	h := newAdminHandler(store)

	rec := httptest.NewRecorder()
	h.CreateInstance(rec, adminRequest(t, http.MethodPost, "/api/admin/instances", CreateInstanceRequest{
		ConfigID: "cfg-1", Title: "Spring Wave", Slug: "spring-2026",
	}))

	require.Equal(t, http.StatusCreated, rec.Code)
	inst := decodeBody[models.SurveyInstance](t, rec)
	assert.False(t, inst.IsActive, "new instances wait for a verification pass")
	assert.False(t, inst.ConfigValid)
}

func TestCreateInstanceRejectsDuplicateSlug(t *testing.T) {
	store := dbtest.NewFake()
	store.Configs["cfg-1"] = models.SurveyConfig{ConfigID: "cfg-1"}
	store.Instances["inst-1"] = models.SurveyInstance{InstanceID: "inst-1", ConfigID: "cfg-1", Slug: "spring-2026"}
	h := newAdminHandler(store)

	rec := httptest.NewRecorder()
	h.CreateInstance(rec, adminRequest(t, http.MethodPost, "/api/admin/instances", CreateInstanceRequest{
		ConfigID: "cfg-1", Title: "Duplicate", Slug: "spring-2026",
	}))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestActivateInstanceRequiresValidConfig(t *testing.T) {
	store := dbtest.NewFake()
	store.Instances["inst-1"] = models.SurveyInstance{InstanceID: "inst-1", ConfigValid: false}
	h := newAdminHandler(store)

	rec := httptest.NewRecorder()
	h.ActivateInstance(rec, adminRequest(t, http.MethodPost, "/api/admin/instances/activate", InstanceRequest{InstanceID: "inst-1"}))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, store.Instances["inst-1"].IsActive)

	// After verification marks the config valid, activation goes through.
	store.Instances["inst-1"] = models.SurveyInstance{InstanceID: "inst-1", ConfigValid: true, DeactivationReason: models.ReasonManual}
	rec = httptest.NewRecorder()
	h.ActivateInstance(rec, adminRequest(t, http.MethodPost, "/api/admin/instances/activate", InstanceRequest{InstanceID: "inst-1"}))
	require.Equal(t, http.StatusOK, rec.Code)
	got := store.Instances["inst-1"]
	assert.True(t, got.IsActive)
	assert.Empty(t, got.DeactivationReason)
}

func TestDeactivateInstanceRecordsManualReason(t *testing.T) {
	store := dbtest.NewFake()
	store.Instances["inst-1"] = models.SurveyInstance{InstanceID: "inst-1", IsActive: true, ConfigValid: true}
	h := newAdminHandler(store)

	rec := httptest.NewRecorder()
	h.DeactivateInstance(rec, adminRequest(t, http.MethodPost, "/api/admin/instances/deactivate", InstanceRequest{InstanceID: "inst-1"}))

	require.Equal(t, http.StatusOK, rec.Code)
	got := store.Instances["inst-1"]
	assert.False(t, got.IsActive)
	assert.Equal(t, models.ReasonManual, got.DeactivationReason)
}

// --- Verification endpoint ---

func TestVerifyConfigsEndpoint(t *testing.T) {
	store := dbtest.NewFake()
	store.Configs["cfg-1"] = models.SurveyConfig{
		ConfigID: "cfg-1", Title: "Broken",
		Sections: []models.Section{{SectionID: "sec-1", Title: "Empty"}},
	}
	store.Instances["inst-1"] = models.SurveyInstance{
		InstanceID: "inst-1", ConfigID: "cfg-1", Title: "Wave", IsActive: true, ConfigValid: true,
	}
	h := newAdminHandler(store)

	rec := httptest.NewRecorder()
	h.VerifyConfigs(rec, adminRequest(t, http.MethodPost, "/api/admin/verify?silent=true", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeBody[verify.Summary](t, rec)
	assert.Equal(t, 1, summary.TotalConfigs)
	assert.Equal(t, 1, summary.InvalidConfigs)
	assert.Equal(t, 1, summary.Deactivated)
	require.Len(t, summary.Errors, 1)
	assert.False(t, store.Instances["inst-1"].IsActive)
}

// --- Session lifecycle ---

func sessionRequest(t *testing.T, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	return httptest.NewRequest(http.MethodPost, "/api/sessions", &buf)
}

func TestStartSessionOnActiveInstance(t *testing.T) {
	store := dbtest.NewFake()
	store.Instances["inst-1"] = models.SurveyInstance{
		InstanceID: "inst-1", Slug: "spring-2026", IsActive: true, ConfigValid: true,
	}
	h := NewSessionHandler(store)

	rec := httptest.NewRecorder()
	h.StartSession(rec, sessionRequest(t, StartSessionRequest{Slug: "spring-2026"}))

	require.Equal(t, http.StatusCreated, rec.Code)
	sess := decodeBody[models.Session](t, rec)
	assert.NotEmpty(t, sess.SessionID)
	assert.Equal(t, "inst-1", sess.InstanceID)
	assert.Equal(t, models.SessionInProgress, sess.Status)
	assert.Contains(t, store.Sessions, sess.SessionID)
}

func TestStartSessionRejectsInactiveInstance(t *testing.T) {
	store := dbtest.NewFake()
	store.Instances["inst-1"] = models.SurveyInstance{InstanceID: "inst-1", Slug: "spring-2026", IsActive: false}
	h := NewSessionHandler(store)

	rec := httptest.NewRecorder()
	h.StartSession(rec, sessionRequest(t, StartSessionRequest{Slug: "spring-2026"}))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, store.Sessions)
}

func TestStartSessionUnknownSlug(t *testing.T) {
	h := NewSessionHandler(dbtest.NewFake())

	rec := httptest.NewRecorder()
	h.StartSession(rec, sessionRequest(t, StartSessionRequest{Slug: "missing"}))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionCompleteThenReuseRejected(t *testing.T) {
	store := dbtest.NewFake()
	store.Sessions["sess-1"] = models.Session{
		SessionID: "sess-1", InstanceID: "inst-1", Status: models.SessionInProgress,
	}
	h := NewSessionHandler(store)

	rec := httptest.NewRecorder()
	h.CompleteSession(rec, sessionRequest(t, SessionRequest{SessionID: "sess-1"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.SessionCompleted, store.Sessions["sess-1"].Status)

	// Terminal sessions reject further transitions.
	rec = httptest.NewRecorder()
	h.Heartbeat(rec, sessionRequest(t, SessionRequest{SessionID: "sess-1"}))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	h.AbandonSession(rec, sessionRequest(t, SessionRequest{SessionID: "sess-1"}))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHeartbeatRefreshesActivity(t *testing.T) {
	store := dbtest.NewFake()
	stale := time.Now().UTC().Add(-2 * time.Hour)
	store.Sessions["sess-1"] = models.Session{
		SessionID: "sess-1", Status: models.SessionInProgress, LastActivityAt: stale,
	}
	h := NewSessionHandler(store)

	rec := httptest.NewRecorder()
	h.Heartbeat(rec, sessionRequest(t, SessionRequest{SessionID: "sess-1"}))

	require.Equal(t, http.StatusOK, rec.Code)
	got := store.Sessions["sess-1"]
	assert.Equal(t, models.SessionInProgress, got.Status)
	assert.True(t, got.LastActivityAt.After(stale))
}

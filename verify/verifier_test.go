package verify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formkeeper/db/dbtest"
	"formkeeper/models"
)

var verifyNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestVerifier(store *dbtest.Fake) (*Verifier, *[]time.Duration) {
	v := NewVerifier(store)
	v.now = func() time.Time { return verifyNow }
	settled := &[]time.Duration{}
	v.settle = func(d time.Duration) { *settled = append(*settled, d) }
	return v, settled
}

func textField(id string) models.Field {
	return models.Field{FieldID: id, Label: id, Type: models.FieldTypeText}
}

func validConfig(id string) models.SurveyConfig {
	return models.SurveyConfig{
		ConfigID: id,
		Title:    "Customer Feedback",
		Sections: []models.Section{{
			SectionID: "sec-1",
			Title:     "General",
			Fields:    []models.Field{textField("name")},
		}},
		Version: 1,
	}
}

func instance(id, configID string, active bool) models.SurveyInstance {
	return models.SurveyInstance{
		InstanceID:  id,
		ConfigID:    configID,
		Title:       "Spring Wave",
		Slug:        "spring-" + id,
		IsActive:    active,
		ConfigValid: true,
	}
}

func TestVerifyChoiceFieldWithoutOptions(t *testing.T) {
	store := dbtest.NewFake()
	cfg := validConfig("cfg-1")
	cfg.Sections[0].Fields = append(cfg.Sections[0].Fields, models.Field{
		FieldID: "channel", Label: "Preferred channel", Type: models.FieldTypeSelect,
	})
	store.Configs[cfg.ConfigID] = cfg

	v, _ := newTestVerifier(store)
	summary, err := v.VerifyConfigs(true)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.InvalidConfigs)
	assert.Equal(t, 0, summary.ValidConfigs)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t,
		`Config "Customer Feedback" > Section "General" > Field "Preferred channel": has neither inline options nor a select option set reference`,
		summary.Errors[0])
}

func TestVerifyChoiceFieldInlineOptionsSuffice(t *testing.T) {
	store := dbtest.NewFake()
	cfg := validConfig("cfg-1")
	cfg.Sections[0].Fields = append(cfg.Sections[0].Fields, models.Field{
		FieldID: "channel", Label: "Preferred channel", Type: models.FieldTypeRadio,
		Options: []models.Option{{Label: "Email", Value: "email"}},
	})
	store.Configs[cfg.ConfigID] = cfg

	v, _ := newTestVerifier(store)
	summary, err := v.VerifyConfigs(true)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ValidConfigs)
	assert.Empty(t, summary.Errors)
}

func TestVerifyRatingScaleReference(t *testing.T) {
	store := dbtest.NewFake()
	cfg := validConfig("cfg-1")
	cfg.Sections[0].Subsections = []models.Subsection{{
		SubsectionID: "sub-1",
		Title:        "Satisfaction",
		Fields: []models.Field{{
			FieldID: "nps", Label: "Overall score", Type: models.FieldTypeRating,
			RatingScaleID: "scale-1-5",
		}},
	}}
	store.Configs[cfg.ConfigID] = cfg

	v, _ := newTestVerifier(store)

	// Dangling reference: one violation with the full subsection path.
	summary, err := v.VerifyConfigs(true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.InvalidConfigs)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t,
		`Config "Customer Feedback" > Section "General" > Subsection "Satisfaction" > Field "Overall score": references unknown rating scale "scale-1-5"`,
		summary.Errors[0])

	// The same config becomes valid once the catalog entry exists.
	store.OptionSets[models.KindRatingScale]["scale-1-5"] = models.OptionSet{SetID: "scale-1-5", Name: "1 to 5"}

	summary, err = v.VerifyConfigs(true)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ValidConfigs)
	assert.Empty(t, summary.Errors)
}

func TestVerifyEmptySection(t *testing.T) {
	store := dbtest.NewFake()
	cfg := validConfig("cfg-1")
	cfg.Sections = append(cfg.Sections, models.Section{SectionID: "sec-2", Title: "Placeholder"})
	store.Configs[cfg.ConfigID] = cfg

	v, _ := newTestVerifier(store)
	summary, err := v.VerifyConfigs(true)
	require.NoError(t, err)

	require.Len(t, summary.Errors, 1)
	assert.Equal(t, `Config "Customer Feedback" > Section "Placeholder": section contains no fields`, summary.Errors[0])
}

func TestReconcileInvalidDeactivatesInstances(t *testing.T) {
	store := dbtest.NewFake()
	cfg := validConfig("cfg-1")
	cfg.Sections[0].Fields[0].Type = "" // breaks the config
	store.Configs[cfg.ConfigID] = cfg
	store.Instances["inst-1"] = instance("inst-1", "cfg-1", true)
	store.Instances["inst-2"] = instance("inst-2", "cfg-1", true)

	v, _ := newTestVerifier(store)
	summary, err := v.VerifyConfigs(true)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Deactivated)
	assert.Equal(t, 0, summary.Reactivated)
	for _, id := range []string{"inst-1", "inst-2"} {
		inst := store.Instances[id]
		assert.False(t, inst.IsActive, id)
		assert.False(t, inst.ConfigValid, id)
		assert.True(t, inst.ValidationInProgress, id)
		assert.Equal(t, models.ReasonValidation, inst.DeactivationReason, id)
	}
}

func TestReconcileRecoversAfterFix(t *testing.T) {
	store := dbtest.NewFake()
	cfg := validConfig("cfg-1")
	cfg.Sections[0].Fields[0].Type = ""
	store.Configs[cfg.ConfigID] = cfg
	store.Instances["inst-1"] = instance("inst-1", "cfg-1", true)
	store.Instances["inst-2"] = instance("inst-2", "cfg-1", true)

	v, _ := newTestVerifier(store)
	_, err := v.VerifyConfigs(true)
	require.NoError(t, err)

	// Fix the config and run the pass again: both instances converge back to
	// active without manual intervention.
	cfg.Sections[0].Fields[0].Type = models.FieldTypeText
	store.Configs[cfg.ConfigID] = cfg

	summary, err := v.VerifyConfigs(true)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Reactivated)
	for _, id := range []string{"inst-1", "inst-2"} {
		inst := store.Instances[id]
		assert.True(t, inst.IsActive, id)
		assert.True(t, inst.ConfigValid, id)
		assert.False(t, inst.ValidationInProgress, id)
		assert.Empty(t, inst.DeactivationReason, id)
	}
}

func TestDateWindowActivation(t *testing.T) {
	store := dbtest.NewFake()
	cfg := validConfig("cfg-1")
	store.Configs[cfg.ConfigID] = cfg

	current := instance("inst-current", "cfg-1", false)
	current.ActiveDateRange = &models.DateRange{
		StartDate: verifyNow.Add(-24 * time.Hour),
		EndDate:   verifyNow.Add(24 * time.Hour),
	}
	future := instance("inst-future", "cfg-1", false)
	future.ActiveDateRange = &models.DateRange{
		StartDate: verifyNow.Add(48 * time.Hour),
		EndDate:   verifyNow.Add(96 * time.Hour),
	}
	store.Instances[current.InstanceID] = current
	store.Instances[future.InstanceID] = future

	v, _ := newTestVerifier(store)
	summary, err := v.VerifyConfigs(true)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Reactivated)
	assert.True(t, store.Instances["inst-current"].IsActive)
	assert.False(t, store.Instances["inst-future"].IsActive)
}

func TestDateWindowLapseDeactivates(t *testing.T) {
	store := dbtest.NewFake()
	cfg := validConfig("cfg-1")
	store.Configs[cfg.ConfigID] = cfg

	lapsed := instance("inst-lapsed", "cfg-1", true)
	lapsed.ActiveDateRange = &models.DateRange{
		StartDate: verifyNow.Add(-96 * time.Hour),
		EndDate:   verifyNow.Add(-48 * time.Hour),
	}
	store.Instances[lapsed.InstanceID] = lapsed

	v, _ := newTestVerifier(store)
	summary, err := v.VerifyConfigs(true)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Deactivated)
	got := store.Instances["inst-lapsed"]
	assert.False(t, got.IsActive)
	assert.True(t, got.ConfigValid)
	assert.Equal(t, models.ReasonSchedule, got.DeactivationReason)
}

func TestManualDeactivationRespected(t *testing.T) {
	store := dbtest.NewFake()
	cfg := validConfig("cfg-1")
	store.Configs[cfg.ConfigID] = cfg

	parked := instance("inst-parked", "cfg-1", false)
	parked.ConfigValid = false
	parked.DeactivationReason = models.ReasonManual
	store.Instances[parked.InstanceID] = parked

	v, _ := newTestVerifier(store)
	summary, err := v.VerifyConfigs(true)
	require.NoError(t, err)

	// The pass records validity but does not override the administrator.
	assert.Equal(t, 0, summary.Reactivated)
	got := store.Instances["inst-parked"]
	assert.False(t, got.IsActive)
	assert.True(t, got.ConfigValid)
	assert.Equal(t, models.ReasonManual, got.DeactivationReason)
}

func TestOrphanedInstancesDeactivated(t *testing.T) {
	store := dbtest.NewFake()
	// No config exists for this instance; its config was deleted.
	orphan := instance("inst-orphan", "cfg-deleted", true)
	store.Instances[orphan.InstanceID] = orphan

	v, _ := newTestVerifier(store)
	summary, err := v.VerifyConfigs(true)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Deactivated)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t,
		`Instance "Spring Wave" (slug "spring-inst-orphan"): references missing config "cfg-deleted"`,
		summary.Errors[0])

	got := store.Instances["inst-orphan"]
	assert.False(t, got.IsActive)
	assert.False(t, got.ConfigValid)
	assert.True(t, got.ValidationInProgress)
	assert.Equal(t, models.ReasonValidation, got.DeactivationReason)
}

func TestSettleOnlyAfterNonSilentDeactivation(t *testing.T) {
	store := dbtest.NewFake()
	cfg := validConfig("cfg-1")
	cfg.Sections[0].Fields[0].Type = ""
	store.Configs[cfg.ConfigID] = cfg
	store.Instances["inst-1"] = instance("inst-1", "cfg-1", true)

	v, settled := newTestVerifier(store)
	_, err := v.VerifyConfigs(true)
	require.NoError(t, err)
	assert.Empty(t, *settled, "silent run must not settle")

	store.Instances["inst-1"] = instance("inst-1", "cfg-1", true)
	_, err = v.VerifyConfigs(false)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{settleDelay}, *settled)
}

func TestInstanceUpdateFailureBecomesWarning(t *testing.T) {
	store := dbtest.NewFake()
	cfg := validConfig("cfg-1")
	cfg.Sections[0].Fields[0].Type = ""
	store.Configs[cfg.ConfigID] = cfg
	store.Instances["inst-1"] = instance("inst-1", "cfg-1", true)
	store.Instances["inst-2"] = instance("inst-2", "cfg-1", true)
	store.FailInstanceWrites["inst-1"] = errors.New("rpc error: code = Aborted")

	v, _ := newTestVerifier(store)
	summary, err := v.VerifyConfigs(true)
	require.NoError(t, err)

	// The failed write is a warning; the other instance still converges.
	require.Len(t, summary.Warnings, 1)
	assert.Contains(t, summary.Warnings[0], `failed to update instance "Spring Wave" (inst-1)`)
	assert.Equal(t, 1, summary.Deactivated)
	assert.True(t, store.Instances["inst-1"].IsActive, "failed write leaves the stored instance untouched")
	assert.False(t, store.Instances["inst-2"].IsActive)
}

// Package verify computes the validity of every survey configuration
// against the live option-set catalogs and reconciles the activation state
// of every dependent survey instance. Validity and activation are checked
// in one pass so that catalog entries deleted out from under a
// previously-valid config are caught, and so that configs converge back to
// an active, valid state once the catalog is fixed.
package verify

import (
	"fmt"
	"log"
	"time"

	"formkeeper/db"
	"formkeeper/models"

	"golang.org/x/sync/errgroup"
)

// settleDelay is applied after bulk deactivation on non-silent runs so an
// interactive caller does not refresh its view before the writes land.
const settleDelay = 500 * time.Millisecond

// Summary is the structured result of one verification pass.
type Summary struct {
	TotalConfigs   int `json:"total_configs"`
	ValidConfigs   int `json:"valid_configs"`
	InvalidConfigs int `json:"invalid_configs"`
	TotalInstances int `json:"total_instances"`
	Reactivated    int `json:"reactivated_instances"`
	Deactivated    int `json:"deactivated_instances"`

	// Errors holds one entry per violation: field/section violations in
	// config order, then one entry per instance left behind by a deleted
	// config.
	Errors []string `json:"errors"`
	// Warnings holds partial failures (individual instance updates that
	// could not be applied); they never abort the sweep.
	Warnings []string `json:"warnings"`
}

// catalogs holds the id lookup maps for the four option-set kinds.
type catalogs struct {
	ratings     map[string]models.OptionSet
	radios      map[string]models.OptionSet
	selects     map[string]models.OptionSet
	multiSelect map[string]models.OptionSet
}

// Verifier runs verification passes against a Store.
type Verifier struct {
	store db.Store

	now    func() time.Time // test seam for date-window decisions
	settle func(time.Duration)
}

// NewVerifier creates a verifier bound to the given store.
func NewVerifier(store db.Store) *Verifier {
	return &Verifier{
		store:  store,
		now:    time.Now,
		settle: time.Sleep,
	}
}

// VerifyConfigs fetches every config, instance, and catalog directly from
// the backend, validates each config, and brings every dependent instance's
// activation flags into agreement with the result.
//
// A failed bulk fetch aborts the pass; per-field violations and per-instance
// update failures are collected in the Summary instead.
func (v *Verifier) VerifyConfigs(silent bool) (*Summary, error) {
	var (
		configs   []models.SurveyConfig
		instances []models.SurveyInstance
		sets      [4][]models.OptionSet
	)

	// All reads go straight to the store so the pass never acts on a stale
	// client-side view. The fetches run in parallel; validation starts only
	// after every fetch has completed.
	g := new(errgroup.Group)
	g.Go(func() error {
		var err error
		configs, err = v.store.GetAllConfigs()
		return err
	})
	g.Go(func() error {
		var err error
		instances, err = v.store.GetAllInstances()
		return err
	})
	for i, kind := range models.OptionSetKinds {
		i, kind := i, kind
		g.Go(func() error {
			var err error
			sets[i], err = v.store.GetAllOptionSets(kind)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch verification data: %w", err)
	}

	cat := &catalogs{
		ratings:     indexSets(sets[0]),
		radios:      indexSets(sets[1]),
		selects:     indexSets(sets[2]),
		multiSelect: indexSets(sets[3]),
	}

	instancesByConfig := make(map[string][]models.SurveyInstance)
	for _, inst := range instances {
		instancesByConfig[inst.ConfigID] = append(instancesByConfig[inst.ConfigID], inst)
	}

	summary := &Summary{
		TotalConfigs:   len(configs),
		TotalInstances: len(instances),
	}
	now := v.now()

	known := make(map[string]struct{}, len(configs))
	for _, cfg := range configs {
		known[cfg.ConfigID] = struct{}{}
	}

	for _, cfg := range configs {
		violations := validateConfig(&cfg, cat)
		if len(violations) == 0 {
			summary.ValidConfigs++
			v.reconcileValid(&cfg, instancesByConfig[cfg.ConfigID], now, summary)
		} else {
			summary.InvalidConfigs++
			summary.Errors = append(summary.Errors, violations...)
			v.reconcileInvalid(&cfg, instancesByConfig[cfg.ConfigID], summary)
		}
	}

	// An instance whose config was deleted must not keep collecting
	// responses against a schema that no longer exists; it reconciles the
	// same way as an instance of an invalid config.
	for configID, orphans := range instancesByConfig {
		if _, ok := known[configID]; ok {
			continue
		}
		for _, inst := range orphans {
			summary.Errors = append(summary.Errors,
				fmt.Sprintf("Instance %q (slug %q): references missing config %q", inst.Title, inst.Slug, configID))
		}
		v.reconcileInvalid(nil, orphans, summary)
	}

	if !silent && summary.Deactivated > 0 {
		v.settle(settleDelay)
	}

	return summary, nil
}

func indexSets(sets []models.OptionSet) map[string]models.OptionSet {
	m := make(map[string]models.OptionSet, len(sets))
	for _, set := range sets {
		m[set.SetID] = set
	}
	return m
}

// validateConfig returns every structural violation of one config. An empty
// result means the config is valid. Violations are collected rather than
// raised so a single broken field never hides the others.
func validateConfig(cfg *models.SurveyConfig, cat *catalogs) []string {
	var violations []string

	for si := range cfg.Sections {
		section := &cfg.Sections[si]
		if section.FieldCount() == 0 {
			violations = append(violations,
				fmt.Sprintf("Config %q > Section %q: section contains no fields", cfg.Title, section.Title))
			continue
		}

		for fi := range section.Fields {
			violations = append(violations,
				validateField(cfg, section, nil, &section.Fields[fi], cat)...)
		}
		for bi := range section.Subsections {
			sub := &section.Subsections[bi]
			for fi := range sub.Fields {
				violations = append(violations,
					validateField(cfg, section, sub, &sub.Fields[fi], cat)...)
			}
		}
	}

	return violations
}

// validateField checks one field and returns its violations, each prefixed
// with the full config > section [> subsection] > field path so reports stay
// traceable and duplicate-free.
func validateField(cfg *models.SurveyConfig, section *models.Section, sub *models.Subsection, field *models.Field, cat *catalogs) []string {
	path := fmt.Sprintf("Config %q > Section %q", cfg.Title, section.Title)
	if sub != nil {
		path += fmt.Sprintf(" > Subsection %q", sub.Title)
	}
	path += fmt.Sprintf(" > Field %q", field.DisplayName())

	var violations []string
	if field.Type == "" {
		violations = append(violations, path+": field is missing a type")
	}
	if field.Label == "" && field.FieldID == "" {
		violations = append(violations, path+": field is missing a label")
	}

	switch field.Type {
	case models.FieldTypeRating:
		// A rating scale reference is optional, but a dangling one is a
		// violation: the published field would render without its scale.
		if field.RatingScaleID != "" {
			if _, ok := cat.ratings[field.RatingScaleID]; !ok {
				violations = append(violations,
					fmt.Sprintf("%s: references unknown rating scale %q", path, field.RatingScaleID))
			}
		}
	case models.FieldTypeRadio:
		violations = appendChoiceViolation(violations, path, "radio option set",
			field.RadioOptionSetID, cat.radios, field.Options)
	case models.FieldTypeSelect:
		violations = appendChoiceViolation(violations, path, "select option set",
			field.SelectOptionSetID, cat.selects, field.Options)
	case models.FieldTypeMultiSelect:
		violations = appendChoiceViolation(violations, path, "multi-select option set",
			field.MultiSelectOptionSetID, cat.multiSelect, field.Options)
	}

	return violations
}

// appendChoiceViolation enforces the choice-field rule: the catalog
// reference resolves, or non-empty inline options are present. A field with
// neither is invalid.
func appendChoiceViolation(violations []string, path, setName, setID string, catalog map[string]models.OptionSet, inline []models.Option) []string {
	if setID != "" {
		if _, ok := catalog[setID]; ok {
			return violations
		}
	}
	if len(inline) > 0 {
		return violations
	}
	if setID != "" {
		return append(violations, fmt.Sprintf("%s: references unknown %s %q", path, setName, setID))
	}
	return append(violations, fmt.Sprintf("%s: has neither inline options nor a %s reference", path, setName))
}

// reconcileValid brings the instances of a valid config back into agreement:
// date-windowed instances activate while the window applies, instances that
// were auto-deactivated by a previous validation pass reactivate, and every
// instance regains config_valid so future date-driven activation can see it.
func (v *Verifier) reconcileValid(cfg *models.SurveyConfig, instances []models.SurveyInstance, now time.Time, summary *Summary) {
	for idx := range instances {
		inst := instances[idx]

		switch {
		case inst.ActiveDateRange != nil && inst.ActiveDateRange.Contains(now) && !inst.IsActive:
			if inst.DeactivationReason == models.ReasonManual {
				// An administrator parked this instance; the window alone
				// does not override that.
				v.markValid(&inst, summary)
				continue
			}
			inst.IsActive = true
			inst.ConfigValid = true
			inst.ValidationInProgress = false
			inst.DeactivationReason = ""
			v.writeInstance(&inst, summary, &summary.Reactivated)

		case inst.ActiveDateRange != nil && !inst.ActiveDateRange.Contains(now) && inst.IsActive:
			// The window lapsed; the reconciler owns date-driven flips.
			inst.IsActive = false
			inst.ConfigValid = true
			inst.ValidationInProgress = false
			inst.DeactivationReason = models.ReasonSchedule
			v.writeInstance(&inst, summary, &summary.Deactivated)

		case inst.ActiveDateRange == nil && !inst.IsActive && !inst.ConfigValid:
			if inst.DeactivationReason == models.ReasonManual {
				v.markValid(&inst, summary)
				continue
			}
			// Previously inactive specifically due to invalidity: the
			// config regained validity, so the instance comes back without
			// manual intervention.
			inst.IsActive = true
			inst.ConfigValid = true
			inst.ValidationInProgress = false
			inst.DeactivationReason = ""
			v.writeInstance(&inst, summary, &summary.Reactivated)

		default:
			v.markValid(&inst, summary)
		}
	}
}

// markValid records config validity on an instance without touching its
// activation, writing only when something actually changed.
func (v *Verifier) markValid(inst *models.SurveyInstance, summary *Summary) {
	if inst.ConfigValid && !inst.ValidationInProgress {
		return
	}
	inst.ConfigValid = true
	inst.ValidationInProgress = false
	v.writeInstance(inst, summary, nil)
}

// reconcileInvalid deactivates every active instance of an invalid config
// and marks the inactive ones so date-based automation cannot re-activate
// them mid-reconciliation.
func (v *Verifier) reconcileInvalid(cfg *models.SurveyConfig, instances []models.SurveyInstance, summary *Summary) {
	for idx := range instances {
		inst := instances[idx]

		if inst.IsActive {
			inst.IsActive = false
			inst.ConfigValid = false
			inst.ValidationInProgress = true
			inst.DeactivationReason = models.ReasonValidation
			v.writeInstance(&inst, summary, &summary.Deactivated)
			continue
		}

		if inst.ConfigValid || !inst.ValidationInProgress {
			inst.ConfigValid = false
			inst.ValidationInProgress = true
			v.writeInstance(&inst, summary, nil)
		}
	}
}

// writeInstance applies one reconciliation write. Failures become warnings,
// not aborts: the rest of the sweep continues.
func (v *Verifier) writeInstance(inst *models.SurveyInstance, summary *Summary, counter *int) {
	inst.Metadata.Touch()
	if err := v.store.UpdateInstance(inst); err != nil {
		warning := fmt.Sprintf("failed to update instance %q (%s): %v", inst.Title, inst.InstanceID, err)
		log.Printf("⚠️  %s", warning)
		summary.Warnings = append(summary.Warnings, warning)
		return
	}
	if counter != nil {
		*counter++
	}
}

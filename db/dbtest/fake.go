// Package dbtest provides an in-memory Store used by the engine and handler
// tests in place of a live Firestore project.
package dbtest

import (
	"fmt"
	"sync"

	"formkeeper/db"
	"formkeeper/models"
)

// Fake is an in-memory db.Store. Zero-value maps are initialized by NewFake;
// the error fields inject failures per operation.
type Fake struct {
	mu sync.Mutex

	Configs    map[string]models.SurveyConfig
	Instances  map[string]models.SurveyInstance
	OptionSets map[models.OptionSetKind]map[string]models.OptionSet
	Sessions   map[string]models.Session
	Users      map[string]models.User
	Passwords  map[string]string

	// Failure injection
	PingErr            error
	ListSessionsErr    error
	ListInstancesErr   error
	FailInstanceWrites map[string]error
	FailSessionWrites  map[string]error

	// Calls counts every store method invocation, for asserting that the
	// readiness gate performed zero backend calls.
	Calls int
}

var _ db.Store = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		Configs:   make(map[string]models.SurveyConfig),
		Instances: make(map[string]models.SurveyInstance),
		OptionSets: map[models.OptionSetKind]map[string]models.OptionSet{
			models.KindRatingScale: {},
			models.KindRadio:       {},
			models.KindSelect:      {},
			models.KindMultiSelect: {},
		},
		Sessions:           make(map[string]models.Session),
		Users:              make(map[string]models.User),
		Passwords:          make(map[string]string),
		FailInstanceWrites: make(map[string]error),
		FailSessionWrites:  make(map[string]error),
	}
}

func (f *Fake) called() {
	f.Calls++
}

// --- Survey Config Operations ---

func (f *Fake) GetAllConfigs() ([]models.SurveyConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	out := make([]models.SurveyConfig, 0, len(f.Configs))
	for _, cfg := range f.Configs {
		out = append(out, cfg)
	}
	return out, nil
}

func (f *Fake) GetConfig(configID string) (*models.SurveyConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	cfg, ok := f.Configs[configID]
	if !ok {
		return nil, fmt.Errorf("config not found: %s", configID)
	}
	return &cfg, nil
}

func (f *Fake) CreateConfig(cfg *models.SurveyConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	f.Configs[cfg.ConfigID] = *cfg
	return nil
}

func (f *Fake) UpdateConfig(cfg *models.SurveyConfig) error {
	return f.CreateConfig(cfg)
}

func (f *Fake) DeleteConfig(configID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	delete(f.Configs, configID)
	return nil
}

// --- Survey Instance Operations ---

func (f *Fake) GetAllInstances() ([]models.SurveyInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	if f.ListInstancesErr != nil {
		return nil, f.ListInstancesErr
	}
	out := make([]models.SurveyInstance, 0, len(f.Instances))
	for _, inst := range f.Instances {
		out = append(out, inst)
	}
	return out, nil
}

func (f *Fake) GetInstance(instanceID string) (*models.SurveyInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	inst, ok := f.Instances[instanceID]
	if !ok {
		return nil, fmt.Errorf("instance not found: %s", instanceID)
	}
	return &inst, nil
}

func (f *Fake) GetInstanceBySlug(slug string) (*models.SurveyInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	for _, inst := range f.Instances {
		if inst.Slug == slug {
			inst := inst
			return &inst, nil
		}
	}
	return nil, fmt.Errorf("instance not found: %s", slug)
}

func (f *Fake) GetInstancesByConfig(configID string) ([]models.SurveyInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	if f.ListInstancesErr != nil {
		return nil, f.ListInstancesErr
	}
	var out []models.SurveyInstance
	for _, inst := range f.Instances {
		if inst.ConfigID == configID {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (f *Fake) CreateInstance(inst *models.SurveyInstance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	if err := f.FailInstanceWrites[inst.InstanceID]; err != nil {
		return err
	}
	f.Instances[inst.InstanceID] = *inst
	return nil
}

func (f *Fake) UpdateInstance(inst *models.SurveyInstance) error {
	return f.CreateInstance(inst)
}

func (f *Fake) DeleteInstance(instanceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	delete(f.Instances, instanceID)
	return nil
}

// --- Option-Set Catalog Operations ---

func (f *Fake) GetAllOptionSets(kind models.OptionSetKind) ([]models.OptionSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown option-set kind: %s", kind)
	}
	out := make([]models.OptionSet, 0, len(f.OptionSets[kind]))
	for _, set := range f.OptionSets[kind] {
		out = append(out, set)
	}
	return out, nil
}

func (f *Fake) GetOptionSet(kind models.OptionSetKind, setID string) (*models.OptionSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	set, ok := f.OptionSets[kind][setID]
	if !ok {
		return nil, fmt.Errorf("%s entry not found: %s", kind, setID)
	}
	return &set, nil
}

func (f *Fake) CreateOptionSet(kind models.OptionSetKind, set *models.OptionSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	if !kind.Valid() {
		return fmt.Errorf("unknown option-set kind: %s", kind)
	}
	f.OptionSets[kind][set.SetID] = *set
	return nil
}

func (f *Fake) UpdateOptionSet(kind models.OptionSetKind, set *models.OptionSet) error {
	return f.CreateOptionSet(kind, set)
}

func (f *Fake) DeleteOptionSet(kind models.OptionSetKind, setID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	delete(f.OptionSets[kind], setID)
	return nil
}

// --- Session Operations ---

func (f *Fake) GetAllSessions() ([]models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	if f.ListSessionsErr != nil {
		return nil, f.ListSessionsErr
	}
	out := make([]models.Session, 0, len(f.Sessions))
	for _, sess := range f.Sessions {
		out = append(out, sess)
	}
	return out, nil
}

func (f *Fake) GetSession(sessionID string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	sess, ok := f.Sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	return &sess, nil
}

func (f *Fake) CreateSession(sess *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	if err := f.FailSessionWrites[sess.SessionID]; err != nil {
		return err
	}
	f.Sessions[sess.SessionID] = *sess
	return nil
}

func (f *Fake) UpdateSession(sess *models.Session) error {
	return f.CreateSession(sess)
}

// --- User Operations ---

func (f *Fake) GetUser(userID string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	user, ok := f.Users[userID]
	if !ok {
		return nil, fmt.Errorf("user not found: %s", userID)
	}
	return &user, nil
}

func (f *Fake) GetUserByUsername(username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	for _, user := range f.Users {
		if user.Username == username {
			user := user
			return &user, nil
		}
	}
	return nil, fmt.Errorf("user not found: %s", username)
}

func (f *Fake) CreateUser(user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	f.Users[user.UserID] = *user
	return nil
}

func (f *Fake) UpdateUser(user *models.User) error {
	return f.CreateUser(user)
}

func (f *Fake) StorePasswordHash(userID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	f.Passwords[userID] = passwordHash
	return nil
}

func (f *Fake) GetPasswordHash(userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	hash, ok := f.Passwords[userID]
	if !ok {
		return "", fmt.Errorf("password hash not found for user: %s", userID)
	}
	return hash, nil
}

// --- Probe ---

func (f *Fake) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called()
	return f.PingErr
}

func (f *Fake) Close() error {
	return nil
}

package db

import (
	"formkeeper/models"
)

// Proxy is the readiness-gated view of the backend store. It implements the
// same Store interface as the live helper: every call first asserts that the
// Initializer succeeded, then delegates. Call sites can hold and pass a
// Proxy around freely; the gate runs when a method is actually invoked,
// not when the reference is taken.
type Proxy struct {
	init *Initializer
}

// NewProxy wraps the initializer's store behind the readiness gate.
func NewProxy(init *Initializer) *Proxy {
	return &Proxy{init: init}
}

// helper performs the per-call readiness check and resolves the current
// underlying store. The resolution is never cached: after a Close and a
// re-Initialize the proxy must delegate to the new connection, not the old
// one.
func (p *Proxy) helper() (Store, error) {
	if !p.init.Ready() {
		return nil, ErrNotInitialized
	}
	return p.init.Store()
}

// --- Survey Config Operations ---

func (p *Proxy) GetAllConfigs() ([]models.SurveyConfig, error) {
	s, err := p.helper()
	if err != nil {
		return nil, err
	}
	return s.GetAllConfigs()
}

func (p *Proxy) GetConfig(configID string) (*models.SurveyConfig, error) {
	s, err := p.helper()
	if err != nil {
		return nil, err
	}
	return s.GetConfig(configID)
}

func (p *Proxy) CreateConfig(cfg *models.SurveyConfig) error {
	s, err := p.helper()
	if err != nil {
		return err
	}
	return s.CreateConfig(cfg)
}

func (p *Proxy) UpdateConfig(cfg *models.SurveyConfig) error {
	s, err := p.helper()
	if err != nil {
		return err
	}
	return s.UpdateConfig(cfg)
}

func (p *Proxy) DeleteConfig(configID string) error {
	s, err := p.helper()
	if err != nil {
		return err
	}
	return s.DeleteConfig(configID)
}

// --- Survey Instance Operations ---

func (p *Proxy) GetAllInstances() ([]models.SurveyInstance, error) {
	s, err := p.helper()
	if err != nil {
		return nil, err
	}
	return s.GetAllInstances()
}

func (p *Proxy) GetInstance(instanceID string) (*models.SurveyInstance, error) {
	s, err := p.helper()
	if err != nil {
		return nil, err
	}
	return s.GetInstance(instanceID)
}

func (p *Proxy) GetInstanceBySlug(slug string) (*models.SurveyInstance, error) {
	s, err := p.helper()
	if err != nil {
		return nil, err
	}
	return s.GetInstanceBySlug(slug)
}

func (p *Proxy) GetInstancesByConfig(configID string) ([]models.SurveyInstance, error) {
	s, err := p.helper()
	if err != nil {
		return nil, err
	}
	return s.GetInstancesByConfig(configID)
}

func (p *Proxy) CreateInstance(inst *models.SurveyInstance) error {
	s, err := p.helper()
	if err != nil {
		return err
	}
	return s.CreateInstance(inst)
}

func (p *Proxy) UpdateInstance(inst *models.SurveyInstance) error {
	s, err := p.helper()
	if err != nil {
		return err
	}
	return s.UpdateInstance(inst)
}

func (p *Proxy) DeleteInstance(instanceID string) error {
	s, err := p.helper()
	if err != nil {
		return err
	}
	return s.DeleteInstance(instanceID)
}

// --- Option-Set Catalog Operations ---

func (p *Proxy) GetAllOptionSets(kind models.OptionSetKind) ([]models.OptionSet, error) {
	s, err := p.helper()
	if err != nil {
		return nil, err
	}
	return s.GetAllOptionSets(kind)
}

func (p *Proxy) GetOptionSet(kind models.OptionSetKind, setID string) (*models.OptionSet, error) {
	s, err := p.helper()
	if err != nil {
		return nil, err
	}
	return s.GetOptionSet(kind, setID)
}

func (p *Proxy) CreateOptionSet(kind models.OptionSetKind, set *models.OptionSet) error {
	s, err := p.helper()
	if err != nil {
		return err
	}
	return s.CreateOptionSet(kind, set)
}

func (p *Proxy) UpdateOptionSet(kind models.OptionSetKind, set *models.OptionSet) error {
	s, err := p.helper()
	if err != nil {
		return err
	}
	return s.UpdateOptionSet(kind, set)
}

func (p *Proxy) DeleteOptionSet(kind models.OptionSetKind, setID string) error {
	s, err := p.helper()
	if err != nil {
		return err
	}
	return s.DeleteOptionSet(kind, setID)
}

// --- Session Operations ---

func (p *Proxy) GetAllSessions() ([]models.Session, error) {
	s, err := p.helper()
	if err != nil {
		return nil, err
	}
	return s.GetAllSessions()
}

func (p *Proxy) GetSession(sessionID string) (*models.Session, error) {
	s, err := p.helper()
	if err != nil {
		return nil, err
	}
	return s.GetSession(sessionID)
}

func (p *Proxy) CreateSession(sess *models.Session) error {
	s, err := p.helper()
	if err != nil {
		return err
	}
	return s.CreateSession(sess)
}

func (p *Proxy) UpdateSession(sess *models.Session) error {
	s, err := p.helper()
	if err != nil {
		return err
	}
	return s.UpdateSession(sess)
}

// --- User Operations ---

func (p *Proxy) GetUser(userID string) (*models.User, error) {
	s, err := p.helper()
	if err != nil {
		return nil, err
	}
	return s.GetUser(userID)
}

func (p *Proxy) GetUserByUsername(username string) (*models.User, error) {
	s, err := p.helper()
	if err != nil {
		return nil, err
	}
	return s.GetUserByUsername(username)
}

func (p *Proxy) CreateUser(user *models.User) error {
	s, err := p.helper()
	if err != nil {
		return err
	}
	return s.CreateUser(user)
}

func (p *Proxy) UpdateUser(user *models.User) error {
	s, err := p.helper()
	if err != nil {
		return err
	}
	return s.UpdateUser(user)
}

func (p *Proxy) StorePasswordHash(userID, passwordHash string) error {
	s, err := p.helper()
	if err != nil {
		return err
	}
	return s.StorePasswordHash(userID, passwordHash)
}

func (p *Proxy) GetPasswordHash(userID string) (string, error) {
	s, err := p.helper()
	if err != nil {
		return "", err
	}
	return s.GetPasswordHash(userID)
}

// --- Probe ---

func (p *Proxy) Ping() error {
	s, err := p.helper()
	if err != nil {
		return err
	}
	return s.Ping()
}

func (p *Proxy) Close() error {
	s, err := p.helper()
	if err != nil {
		return err
	}
	return s.Close()
}

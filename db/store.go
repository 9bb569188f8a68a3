package db

import (
	"formkeeper/models"
)

// Store is the data-access contract every consumer of the backend works
// against: survey config, instance, catalog, and session CRUD plus a
// connectivity probe. FirestoreDB is the live implementation; Proxy wraps
// any Store behind the initialization readiness gate.
type Store interface {
	// Survey configurations
	GetAllConfigs() ([]models.SurveyConfig, error)
	GetConfig(configID string) (*models.SurveyConfig, error)
	CreateConfig(cfg *models.SurveyConfig) error
	UpdateConfig(cfg *models.SurveyConfig) error
	DeleteConfig(configID string) error

	// Survey instances
	GetAllInstances() ([]models.SurveyInstance, error)
	GetInstance(instanceID string) (*models.SurveyInstance, error)
	GetInstanceBySlug(slug string) (*models.SurveyInstance, error)
	GetInstancesByConfig(configID string) ([]models.SurveyInstance, error)
	CreateInstance(inst *models.SurveyInstance) error
	UpdateInstance(inst *models.SurveyInstance) error
	DeleteInstance(instanceID string) error

	// Option-set catalogs (rating scales, radio/select/multiselect sets)
	GetAllOptionSets(kind models.OptionSetKind) ([]models.OptionSet, error)
	GetOptionSet(kind models.OptionSetKind, setID string) (*models.OptionSet, error)
	CreateOptionSet(kind models.OptionSetKind, set *models.OptionSet) error
	UpdateOptionSet(kind models.OptionSetKind, set *models.OptionSet) error
	DeleteOptionSet(kind models.OptionSetKind, setID string) error

	// Response sessions
	GetAllSessions() ([]models.Session, error)
	GetSession(sessionID string) (*models.Session, error)
	CreateSession(sess *models.Session) error
	UpdateSession(sess *models.Session) error

	// Administrative users
	GetUser(userID string) (*models.User, error)
	GetUserByUsername(username string) (*models.User, error)
	CreateUser(user *models.User) error
	UpdateUser(user *models.User) error
	StorePasswordHash(userID, passwordHash string) error
	GetPasswordHash(userID string) (string, error)

	// Ping confirms the store is reachable and the schema marker is present.
	Ping() error
	Close() error
}

var (
	_ Store = (*FirestoreDB)(nil)
	_ Store = (*Proxy)(nil)
)

package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"formkeeper/models"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Firestore collection names.
const (
	collectionConfigs   = "survey_configs"
	collectionInstances = "survey_instances"
	collectionSessions  = "survey_sessions"
	collectionUsers     = "users"
	collectionPasswords = "passwords"
	collectionMeta      = "meta"

	// schemaDocID is the marker document the seed script writes. Its absence
	// means the project was never set up for this application.
	schemaDocID = "schema"
)

// SchemaVersion is the schema revision this build expects to find in the
// meta/schema marker document.
const SchemaVersion = 1

// FirestoreDB wraps the Firestore client and implements Store
type FirestoreDB struct {
	client       *firestore.Client
	ctx          context.Context
	probeTimeout time.Duration
}

// NewFirestoreDB initializes a new Firestore client
func NewFirestoreDB(ctx context.Context, projectID, credentialsPath string, probeTimeout time.Duration) (*FirestoreDB, error) {
	opt := option.WithCredentialsFile(credentialsPath)

	config := &firebase.Config{ProjectID: projectID}
	app, err := firebase.NewApp(ctx, config, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firestore client: %w", err)
	}

	log.Printf("✅ Connected to Firestore project: %s", projectID)

	return &FirestoreDB{
		client:       client,
		ctx:          ctx,
		probeTimeout: probeTimeout,
	}, nil
}

// Close closes the Firestore client
func (db *FirestoreDB) Close() error {
	return db.client.Close()
}

// Ping reads the schema marker document to confirm the store is reachable
// and set up. Fails fast on the probe timeout instead of hanging.
func (db *FirestoreDB) Ping() error {
	ctx, cancel := context.WithTimeout(db.ctx, db.probeTimeout)
	defer cancel()

	doc, err := db.client.Collection(collectionMeta).Doc(schemaDocID).Get(ctx)
	if err != nil {
		return fmt.Errorf("connectivity probe failed: %w", err)
	}

	data := doc.Data()
	version, ok := data["version"].(int64)
	if !ok {
		return SchemaError(fmt.Errorf("schema marker document is malformed"))
	}
	if int(version) > SchemaVersion {
		return SchemaError(fmt.Errorf("schema version %d is newer than supported version %d", version, SchemaVersion))
	}

	return nil
}

// WriteSchemaMarker writes the meta/schema document. Used by the seed script.
func (db *FirestoreDB) WriteSchemaMarker() error {
	_, err := db.client.Collection(collectionMeta).Doc(schemaDocID).Set(db.ctx, map[string]interface{}{
		"version":    SchemaVersion,
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to write schema marker: %w", err)
	}
	return nil
}

// --- Survey Config Operations ---

// GetAllConfigs retrieves all survey configurations
func (db *FirestoreDB) GetAllConfigs() ([]models.SurveyConfig, error) {
	iter := db.client.Collection(collectionConfigs).Documents(db.ctx)
	defer iter.Stop()

	var configs []models.SurveyConfig
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate configs: %w", err)
		}

		var cfg models.SurveyConfig
		if err := doc.DataTo(&cfg); err != nil {
			log.Printf("Warning: failed to parse config %s: %v", doc.Ref.ID, err)
			continue
		}
		configs = append(configs, cfg)
	}

	return configs, nil
}

// GetConfig retrieves a survey configuration by ID
func (db *FirestoreDB) GetConfig(configID string) (*models.SurveyConfig, error) {
	doc, err := db.client.Collection(collectionConfigs).Doc(configID).Get(db.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	var cfg models.SurveyConfig
	if err := doc.DataTo(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// CreateConfig creates a new survey configuration
func (db *FirestoreDB) CreateConfig(cfg *models.SurveyConfig) error {
	_, err := db.client.Collection(collectionConfigs).Doc(cfg.ConfigID).Set(db.ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	return nil
}

// UpdateConfig updates an existing survey configuration
func (db *FirestoreDB) UpdateConfig(cfg *models.SurveyConfig) error {
	_, err := db.client.Collection(collectionConfigs).Doc(cfg.ConfigID).Set(db.ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to update config: %w", err)
	}
	return nil
}

// DeleteConfig deletes a survey configuration
func (db *FirestoreDB) DeleteConfig(configID string) error {
	_, err := db.client.Collection(collectionConfigs).Doc(configID).Delete(db.ctx)
	if err != nil {
		return fmt.Errorf("failed to delete config: %w", err)
	}
	return nil
}

// --- Survey Instance Operations ---

// GetAllInstances retrieves all survey instances
func (db *FirestoreDB) GetAllInstances() ([]models.SurveyInstance, error) {
	return db.queryInstances(db.client.Collection(collectionInstances).Query)
}

// GetInstance retrieves a survey instance by ID
func (db *FirestoreDB) GetInstance(instanceID string) (*models.SurveyInstance, error) {
	doc, err := db.client.Collection(collectionInstances).Doc(instanceID).Get(db.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	var inst models.SurveyInstance
	if err := doc.DataTo(&inst); err != nil {
		return nil, fmt.Errorf("failed to parse instance: %w", err)
	}

	return &inst, nil
}

// GetInstanceBySlug retrieves a survey instance by its public slug
func (db *FirestoreDB) GetInstanceBySlug(slug string) (*models.SurveyInstance, error) {
	iter := db.client.Collection(collectionInstances).
		Where("slug", "==", slug).
		Limit(1).
		Documents(db.ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, fmt.Errorf("instance not found: %s", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	var inst models.SurveyInstance
	if err := doc.DataTo(&inst); err != nil {
		return nil, fmt.Errorf("failed to parse instance: %w", err)
	}

	return &inst, nil
}

// GetInstancesByConfig retrieves all instances published from a config
func (db *FirestoreDB) GetInstancesByConfig(configID string) ([]models.SurveyInstance, error) {
	return db.queryInstances(db.client.Collection(collectionInstances).
		Where("config_id", "==", configID))
}

func (db *FirestoreDB) queryInstances(q firestore.Query) ([]models.SurveyInstance, error) {
	iter := q.Documents(db.ctx)
	defer iter.Stop()

	var instances []models.SurveyInstance
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate instances: %w", err)
		}

		var inst models.SurveyInstance
		if err := doc.DataTo(&inst); err != nil {
			log.Printf("Warning: failed to parse instance %s: %v", doc.Ref.ID, err)
			continue
		}
		instances = append(instances, inst)
	}

	return instances, nil
}

// CreateInstance creates a new survey instance
func (db *FirestoreDB) CreateInstance(inst *models.SurveyInstance) error {
	_, err := db.client.Collection(collectionInstances).Doc(inst.InstanceID).Set(db.ctx, inst)
	if err != nil {
		return fmt.Errorf("failed to create instance: %w", err)
	}
	return nil
}

// UpdateInstance updates an existing survey instance
func (db *FirestoreDB) UpdateInstance(inst *models.SurveyInstance) error {
	_, err := db.client.Collection(collectionInstances).Doc(inst.InstanceID).Set(db.ctx, inst)
	if err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}
	return nil
}

// DeleteInstance deletes a survey instance
func (db *FirestoreDB) DeleteInstance(instanceID string) error {
	_, err := db.client.Collection(collectionInstances).Doc(instanceID).Delete(db.ctx)
	if err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}
	return nil
}

// --- Option-Set Catalog Operations ---
// The kind selects the collection; all four catalogs share one document shape.

// GetAllOptionSets retrieves every entry of one catalog
func (db *FirestoreDB) GetAllOptionSets(kind models.OptionSetKind) ([]models.OptionSet, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown option-set kind: %s", kind)
	}

	iter := db.client.Collection(string(kind)).Documents(db.ctx)
	defer iter.Stop()

	var sets []models.OptionSet
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate %s: %w", kind, err)
		}

		var set models.OptionSet
		if err := doc.DataTo(&set); err != nil {
			log.Printf("Warning: failed to parse %s entry %s: %v", kind, doc.Ref.ID, err)
			continue
		}
		sets = append(sets, set)
	}

	return sets, nil
}

// GetOptionSet retrieves one catalog entry by ID
func (db *FirestoreDB) GetOptionSet(kind models.OptionSetKind, setID string) (*models.OptionSet, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown option-set kind: %s", kind)
	}

	doc, err := db.client.Collection(string(kind)).Doc(setID).Get(db.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s entry: %w", kind, err)
	}

	var set models.OptionSet
	if err := doc.DataTo(&set); err != nil {
		return nil, fmt.Errorf("failed to parse %s entry: %w", kind, err)
	}

	return &set, nil
}

// CreateOptionSet creates a new catalog entry
func (db *FirestoreDB) CreateOptionSet(kind models.OptionSetKind, set *models.OptionSet) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown option-set kind: %s", kind)
	}

	_, err := db.client.Collection(string(kind)).Doc(set.SetID).Set(db.ctx, set)
	if err != nil {
		return fmt.Errorf("failed to create %s entry: %w", kind, err)
	}
	return nil
}

// UpdateOptionSet updates an existing catalog entry
func (db *FirestoreDB) UpdateOptionSet(kind models.OptionSetKind, set *models.OptionSet) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown option-set kind: %s", kind)
	}

	_, err := db.client.Collection(string(kind)).Doc(set.SetID).Set(db.ctx, set)
	if err != nil {
		return fmt.Errorf("failed to update %s entry: %w", kind, err)
	}
	return nil
}

// DeleteOptionSet deletes a catalog entry
func (db *FirestoreDB) DeleteOptionSet(kind models.OptionSetKind, setID string) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown option-set kind: %s", kind)
	}

	_, err := db.client.Collection(string(kind)).Doc(setID).Delete(db.ctx)
	if err != nil {
		return fmt.Errorf("failed to delete %s entry: %w", kind, err)
	}
	return nil
}

// --- Session Operations ---

// GetAllSessions retrieves all response sessions
func (db *FirestoreDB) GetAllSessions() ([]models.Session, error) {
	iter := db.client.Collection(collectionSessions).Documents(db.ctx)
	defer iter.Stop()

	var sessions []models.Session
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate sessions: %w", err)
		}

		var sess models.Session
		if err := doc.DataTo(&sess); err != nil {
			log.Printf("Warning: failed to parse session %s: %v", doc.Ref.ID, err)
			continue
		}
		sessions = append(sessions, sess)
	}

	return sessions, nil
}

// GetSession retrieves a session by ID
func (db *FirestoreDB) GetSession(sessionID string) (*models.Session, error) {
	doc, err := db.client.Collection(collectionSessions).Doc(sessionID).Get(db.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess models.Session
	if err := doc.DataTo(&sess); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}

	return &sess, nil
}

// CreateSession creates a new response session
func (db *FirestoreDB) CreateSession(sess *models.Session) error {
	_, err := db.client.Collection(collectionSessions).Doc(sess.SessionID).Set(db.ctx, sess)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// UpdateSession updates an existing session
func (db *FirestoreDB) UpdateSession(sess *models.Session) error {
	_, err := db.client.Collection(collectionSessions).Doc(sess.SessionID).Set(db.ctx, sess)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// --- User Operations ---

// GetUser retrieves a user by ID
func (db *FirestoreDB) GetUser(userID string) (*models.User, error) {
	doc, err := db.client.Collection(collectionUsers).Doc(userID).Get(db.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var user models.User
	if err := doc.DataTo(&user); err != nil {
		return nil, fmt.Errorf("failed to parse user: %w", err)
	}

	return &user, nil
}

// GetUserByUsername retrieves a user by username
func (db *FirestoreDB) GetUserByUsername(username string) (*models.User, error) {
	iter := db.client.Collection(collectionUsers).
		Where("username", "==", username).
		Limit(1).
		Documents(db.ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, fmt.Errorf("user not found: %s", username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var user models.User
	if err := doc.DataTo(&user); err != nil {
		return nil, fmt.Errorf("failed to parse user: %w", err)
	}

	return &user, nil
}

// CreateUser creates a new user
func (db *FirestoreDB) CreateUser(user *models.User) error {
	_, err := db.client.Collection(collectionUsers).Doc(user.UserID).Set(db.ctx, user)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UpdateUser updates an existing user
func (db *FirestoreDB) UpdateUser(user *models.User) error {
	_, err := db.client.Collection(collectionUsers).Doc(user.UserID).Set(db.ctx, user)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// StorePasswordHash stores a password hash for a user
func (db *FirestoreDB) StorePasswordHash(userID, passwordHash string) error {
	_, err := db.client.Collection(collectionPasswords).Doc(userID).Set(db.ctx, map[string]interface{}{
		"user_id":       userID,
		"password_hash": passwordHash,
		"updated_at":    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to store password hash: %w", err)
	}
	return nil
}

// GetPasswordHash retrieves a password hash for a user
func (db *FirestoreDB) GetPasswordHash(userID string) (string, error) {
	doc, err := db.client.Collection(collectionPasswords).Doc(userID).Get(db.ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get password hash: %w", err)
	}

	data := doc.Data()
	if hash, ok := data["password_hash"].(string); ok {
		return hash, nil
	}

	return "", fmt.Errorf("password hash not found for user: %s", userID)
}

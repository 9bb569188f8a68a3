// Seed script: writes the schema marker document, the default admin user,
// and a starter set of option-set catalogs. Run once per project before
// the server is started for the first time.
package main

import (
	"context"
	"fmt"
	"log"

	"formkeeper/auth"
	"formkeeper/config"
	"formkeeper/db"
	"formkeeper/models"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg := config.Load()
	if err := cfg.Backend.Validate(); err != nil {
		log.Fatalf("Invalid backend configuration: %v", err)
	}

	// Connect directly; the marker the probe looks for does not exist yet
	ctx := context.Background()
	firestoreDB, err := db.NewFirestoreDB(ctx, cfg.Backend.ProjectID, cfg.Backend.CredentialsPath, cfg.Backend.ProbeTimeout)
	if err != nil {
		log.Fatalf("Failed to initialize Firestore: %v", err)
	}
	defer firestoreDB.Close()

	log.Println("🌱 Starting database seeding...")

	if err := firestoreDB.WriteSchemaMarker(); err != nil {
		log.Fatalf("Failed to write schema marker: %v", err)
	}
	log.Printf("✅ Schema marker written (version %d)", db.SchemaVersion)

	if err := seedAdminUser(firestoreDB); err != nil {
		log.Fatalf("Failed to seed admin user: %v", err)
	}

	if err := seedCatalogs(firestoreDB); err != nil {
		log.Fatalf("Failed to seed catalogs: %v", err)
	}

	log.Println("✅ Database seeding completed successfully!")
}

func seedAdminUser(store db.Store) error {
	if existing, _ := store.GetUserByUsername("admin"); existing != nil {
		log.Println("Admin user already exists, skipping")
		return nil
	}

	user := &models.User{
		UserID:   "user-admin",
		Username: "admin",
		Role:     models.RoleAdmin,
	}
	if err := store.CreateUser(user); err != nil {
		return err
	}

	// Change this password immediately after the first login.
	hash, err := auth.HashPassword("formkeeper1")
	if err != nil {
		return err
	}
	if err := store.StorePasswordHash(user.UserID, hash); err != nil {
		return err
	}

	log.Printf("✅ Seeded admin user: %s", user.Username)
	return nil
}

func seedCatalogs(store db.Store) error {
	starters := map[models.OptionSetKind]models.OptionSet{
		models.KindRatingScale: {
			SetID: "scale-1-5",
			Name:  "1 to 5",
			Options: []models.Option{
				{Label: "1", Value: "1"},
				{Label: "2", Value: "2"},
				{Label: "3", Value: "3"},
				{Label: "4", Value: "4"},
				{Label: "5", Value: "5"},
			},
		},
		models.KindRadio: {
			SetID: "yes-no",
			Name:  "Yes / No",
			Options: []models.Option{
				{Label: "Yes", Value: "yes"},
				{Label: "No", Value: "no"},
			},
		},
		models.KindSelect: {
			SetID: "agreement",
			Name:  "Agreement",
			Options: []models.Option{
				{Label: "Strongly disagree", Value: "1"},
				{Label: "Disagree", Value: "2"},
				{Label: "Neutral", Value: "3"},
				{Label: "Agree", Value: "4"},
				{Label: "Strongly agree", Value: "5"},
			},
		},
		models.KindMultiSelect: {
			SetID: "weekdays",
			Name:  "Weekdays",
			Options: []models.Option{
				{Label: "Monday", Value: "mon"},
				{Label: "Tuesday", Value: "tue"},
				{Label: "Wednesday", Value: "wed"},
				{Label: "Thursday", Value: "thu"},
				{Label: "Friday", Value: "fri"},
			},
		},
	}

	for kind, set := range starters {
		set.IsActive = true
		set.Metadata = models.NewMetadata("seed")
		if err := store.CreateOptionSet(kind, &set); err != nil {
			return fmt.Errorf("failed to seed %s: %w", kind, err)
		}
		log.Printf("✅ Seeded %s entry: %s", kind, set.Name)
	}

	return nil
}

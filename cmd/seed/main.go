// seed creates the initial admin user for a fresh deployment.
// Idempotent: exits cleanly if the username already exists.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"event-analytics-api/internal/config"
	"event-analytics-api/internal/db"
	"event-analytics-api/internal/security"
	userdomain "event-analytics-api/internal/user/domain"
	userrepo "event-analytics-api/internal/user/repository"
)

func main() {
	username := flag.String("username", "admin", "Admin username")
	email := flag.String("email", "admin@example.com", "Admin email")
	flag.Parse()

	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		log.Fatal("SEED_ADMIN_PASSWORD is not set")
	}
	if len(password) < 8 {
		log.Fatal("SEED_ADMIN_PASSWORD must be at least 8 characters")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	users := userrepo.NewPostgresRepository(conn)

	existing, err := users.GetByUsername(ctx, *username)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Printf("user %q already exists, skipping", *username)
		return
	}

	hash, err := security.NewHasher(cfg.BcryptCost).Hash([]byte(password))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	now := time.Now().UTC()
	u := &userdomain.User{
		ID:             uuid.NewString(),
		Username:       *username,
		Email:          *email,
		HashedPassword: hash,
		IsActive:       true,
		IsAdmin:        true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := users.Create(ctx, u); err != nil {
		log.Fatalf("create admin: %v", err)
	}
	log.Printf("created admin user %q (%s)", u.Username, u.ID)
}

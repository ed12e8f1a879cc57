// Command seed creates an initial administrator account. Intended for
// fresh environments; it refuses to overwrite an existing user.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/qms-manual-api/pkg/config"
	"github.com/noah-isme/qms-manual-api/pkg/database"
)

func main() {
	var (
		email    string
		password string
		fullName string
		role     string
	)
	flag.StringVar(&email, "email", "admin@example.com", "Administrator email")
	flag.StringVar(&password, "password", "", "Administrator password (required)")
	flag.StringVar(&fullName, "name", "Administrator", "Full name")
	flag.StringVar(&role, "role", "SUPERADMIN", "Role")
	flag.Parse()

	if password == "" {
		log.Fatal("password is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var exists bool
	if err := db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`, email); err != nil {
		log.Fatalf("failed to check existing user: %v", err)
	}
	if exists {
		log.Fatalf("user %s already exists", email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	now := time.Now().UTC()
	const query = `INSERT INTO users (id, email, password_hash, full_name, role, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6)`
	if _, err := db.ExecContext(ctx, query, uuid.NewString(), email, string(hash), fullName, role, now); err != nil {
		log.Fatalf("failed to create user: %v", err)
	}

	log.Printf("created %s user %s", role, email)
}

// Command createadmin seeds an administrator account: it creates the user if
// needed and writes the roles_admin capability marker. Run it once per
// operator before first deploy.
package main

import (
	"context"
	"errors"
	"flag"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aquaflow/shop/internal/authz"
	"github.com/aquaflow/shop/internal/config"
	"github.com/aquaflow/shop/internal/hash"
	"github.com/aquaflow/shop/internal/logging"
	"github.com/aquaflow/shop/internal/models"
)

func main() {
	email := flag.String("email", "admin@aquaflow.shop", "admin account email")
	password := flag.String("password", "", "admin account password (required for a new account)")
	firstName := flag.String("first-name", "Admin", "first name")
	lastName := flag.String("last-name", "User", "last name")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.New(cfg.LOG_LEVEL)

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatalf("database init failed: %v", err)
	}

	var user models.User
	err = db.Where("email = ?", *email).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if *password == "" {
			log.Fatal("-password is required when the account does not exist yet")
		}
		pwHash, err := hash.HashPassword(*password)
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}
		user = models.User{
			ID:           uuid.NewString(),
			Email:        *email,
			PasswordHash: pwHash,
			FirstName:    *firstName,
			LastName:     *lastName,
		}
		if err := db.Create(&user).Error; err != nil {
			log.Fatalf("create user: %v", err)
		}
		logger.Info("created user", "email", *email, "userID", user.ID)
	case err != nil:
		log.Fatalf("lookup user: %v", err)
	default:
		logger.Info("user already exists", "email", *email, "userID", user.ID)
	}

	if err := authz.New(db, logger).Grant(context.Background(), user.ID); err != nil {
		log.Fatalf("grant admin: %v", err)
	}
	logger.Info("admin capability granted", "email", *email, "userID", user.ID)
}

package database

import (
	"strings"

	"gorm.io/gorm"

	"github.com/rajkayal/hubauth/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Account{},
		&models.OTPRecord{},
		&models.AuditLog{},
	)
}

// SeedData creates the initial privileged account when one is configured
// and no account with that email exists yet.
func SeedData(db *gorm.DB, seed SeedConfig) error {
	email := strings.ToLower(strings.TrimSpace(seed.AdminEmail))
	if email == "" || seed.AdminPasswordHash == "" {
		return nil
	}

	name := seed.AdminName
	if name == "" {
		name = "Administrator"
	}

	admin := models.Account{
		Email:         email,
		Name:          name,
		PasswordHash:  seed.AdminPasswordHash,
		Role:          models.RolePrivileged,
		Provider:      models.ProviderLocal,
		EmailVerified: true,
		Active:        true,
	}

	return db.Where(models.Account{Email: email}).Attrs(admin).FirstOrCreate(&models.Account{}).Error
}

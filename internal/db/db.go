package db

import (
	"fmt"
	"time"

	"cinelog/internal/logger"
	"cinelog/internal/models"
	"cinelog/internal/utils"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// Open connects to postgres. TranslateError lets callers match gorm.ErrDuplicatedKey.
func Open(dsn string) (*gorm.DB, error) {
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(logger.Base(), gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return conn, nil
}

// Migrate creates or updates every table the application owns.
func Migrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&models.User{},
		&models.Movie{},
		&models.Comment{},
		&models.Vote{},
	)
}

// Init opens the shared connection, migrates and seeds the first admin.
func Init(dsn, adminEmail, adminPassword string) *gorm.DB {
	log := logger.For(nil)

	var err error
	DB, err = Open(dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Info("Database connection established")

	if err := Migrate(DB); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Info("Database migration completed")

	if err := SeedAdmin(DB, adminEmail, adminPassword); err != nil {
		log.WithError(err).Warn("Failed to seed admin user")
	}
	return DB
}

// SeedAdmin creates an admin account once, when credentials are configured.
func SeedAdmin(conn *gorm.DB, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	var count int64
	conn.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count)
	if count > 0 {
		logger.For(nil).Debug("Admin already seeded, skipping")
		return nil
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	admin := models.User{
		Email:    utils.NormalizeEmail(email),
		Name:     "Administrator",
		Password: hash,
		Role:     models.RoleAdmin,
		IsActive: true,
	}
	if err := conn.Create(&admin).Error; err != nil {
		return err
	}
	logger.For(nil).WithField("email", admin.Email).Info("Initial admin created")
	return nil
}

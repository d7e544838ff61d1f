package main

import (
	"log"
	"log/slog"

	"heartchat-service/internal/config"
	"heartchat-service/internal/database"
	"heartchat-service/internal/models"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	slog.Info("Starting database migration...")

	db, err := database.NewPostgresConnection(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	slog.Info("Database connection established")

	if err := db.AutoMigrate(
		&models.User{},
		&models.Message{},
		&models.Notification{},
	); err != nil {
		log.Fatal("Migration failed:", err)
	}

	slog.Info("Database migration completed successfully!")
}

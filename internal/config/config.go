package config

import (
	"fmt"
	"log"
	"os"

	"github.com/aquaflow/shop/internal/models"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Config struct {
	PORT           string
	LOG_LEVEL      string
	DB_HOST        string
	DB_PORT        string
	DB_USER        string
	DB_PASSWORD    string
	DB_NAME        string
	ES_URL         string
	ES_USER        string
	ES_PASSWORD    string
	ES_INDEX       string
	REDIS_ADDRESS  string
	REDIS_PASSWORD string
	KAFKA_ADDRESS  string
	JWT_SECRET     string
	REFRESH_SECRET string
	LLM_API_URL    string
	LLM_API_KEY    string
	LLM_MODEL      string
	DEPOT_ADDRESS  string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	config := &Config{
		PORT:           getenvDefault("PORT", "8080"),
		LOG_LEVEL:      getenvDefault("LOG_LEVEL", "info"),
		DB_HOST:        os.Getenv("DB_HOST"),
		DB_PORT:        os.Getenv("DB_PORT"),
		DB_USER:        os.Getenv("DB_USER"),
		DB_PASSWORD:    os.Getenv("DB_PASSWORD"),
		DB_NAME:        os.Getenv("DB_NAME"),
		ES_URL:         os.Getenv("ES_URL"),
		ES_USER:        os.Getenv("ES_USER"),
		ES_PASSWORD:    os.Getenv("ES_PASSWORD"),
		ES_INDEX:       getenvDefault("ES_INDEX", "products"),
		REDIS_ADDRESS:  os.Getenv("REDIS_ADDRESS"),
		REDIS_PASSWORD: os.Getenv("REDIS_PASSWORD"),
		KAFKA_ADDRESS:  os.Getenv("KAFKA_ADDRESS"),
		JWT_SECRET:     os.Getenv("JWT_SECRET"),
		REFRESH_SECRET: os.Getenv("REFRESH_SECRET"),
		LLM_API_URL:    getenvDefault("LLM_API_URL", "https://api.openai.com/v1"),
		LLM_API_KEY:    os.Getenv("LLM_API_KEY"),
		LLM_MODEL:      getenvDefault("LLM_MODEL", "gpt-4o-mini"),
		DEPOT_ADDRESS:  os.Getenv("DEPOT_ADDRESS"),
	}

	return config, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DB_USER, cfg.DB_PASSWORD, cfg.DB_HOST, cfg.DB_PORT, cfg.DB_NAME,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(
		&models.Product{},
		&models.User{},
		&models.AdminRole{},
		&models.RefreshToken{},
		&models.Order{},
		&models.OrderItem{},
	); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/hachizeus/ttip-backend/db"
	"github.com/hachizeus/ttip-backend/gateway"
	"github.com/hachizeus/ttip-backend/server"
)

func main() {
	// Initialize Logger
	logger := log.New(os.Stdout, "[SERVER] ", log.LstdFlags)

	// Load .env files (ignore error if file not found)
	if err := godotenv.Load(); err != nil {
		logger.Println("No .env file found, using system env vars")
	}

	// DB Params
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
	)

	// Server Params
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Init DB
	database := db.New(logger)
	if err := database.Init(dsn); err != nil {
		logger.Fatalf("Database initialization failed: %v", err)
	}

	// Mobile-money gateway client
	gatewayTimeout := 30 * time.Second
	if raw := os.Getenv("GATEWAY_TIMEOUT"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			gatewayTimeout = parsed
		}
	}
	gw := gateway.NewClient(gateway.Config{
		BaseURL:     os.Getenv("GATEWAY_BASE_URL"),
		APIKey:      os.Getenv("GATEWAY_API_KEY"),
		ShortCode:   os.Getenv("GATEWAY_SHORT_CODE"),
		CallbackURL: os.Getenv("GATEWAY_CALLBACK_URL"),
		Timeout:     gatewayTimeout,
	}, logger)

	config := server.Config{
		JWTSecret:   os.Getenv("JWT_SECRET"),
		AdminSecret: os.Getenv("ADMIN_SECRET"),
		CertFile:    os.Getenv("CERT_FILE"),
		KeyFile:     os.Getenv("KEY_FILE"),
		CORSEnabled: os.Getenv("CORS_ENABLED") == "true",
	}

	// Init and Start Server
	svc := server.NewService(database, gw, config, logger)
	svc.Start(port)
}

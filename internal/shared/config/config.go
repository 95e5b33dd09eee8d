package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	DatabaseURL          string
	Port                 string
	Env                  string
	JWTSecret            string
	ActionTimeoutSeconds int
	MessageGatewayURL    string
	MessageGatewayKey    string
	BrevoAPIKey          string
	EmailFrom            string
	EmailFromName        string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, using system environment variables")
	}

	cfg := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		Port:              os.Getenv("PORT"),
		Env:               os.Getenv("ENV"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		MessageGatewayURL: os.Getenv("MESSAGE_GATEWAY_URL"),
		MessageGatewayKey: os.Getenv("MESSAGE_GATEWAY_KEY"),
		BrevoAPIKey:       os.Getenv("BREVO_API_KEY"),
		EmailFrom:         os.Getenv("EMAIL_FROM"),
		EmailFromName:     os.Getenv("EMAIL_FROM_NAME"),
	}

	if seconds, err := strconv.Atoi(os.Getenv("ACTION_TIMEOUT_SECONDS")); err == nil && seconds > 0 {
		cfg.ActionTimeoutSeconds = seconds
	}

	// Default values
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}
	if cfg.ActionTimeoutSeconds == 0 {
		cfg.ActionTimeoutSeconds = 10
	}
	if cfg.EmailFromName == "" {
		cfg.EmailFromName = "ShepherdCMS"
	}

	return cfg
}

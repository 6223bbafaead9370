package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// WhatsApp gateway (outbound transport)
	WhatsAppBaseURL   string
	WhatsAppToken     string
	WhatsAppSendRate  float64
	WhatsAppSendBurst int

	// OpenAI completion service
	OpenAIAPIKey string
	OpenAIModel  string

	// Business identity
	OwnerPhone  string
	OwnerEmail  string
	CountryCode string

	// Routing / reply policy
	AutoReplyEnabled    bool
	AutoMessagesEnabled bool
	DNDStartHour        int
	DNDEndHour          int
	Cooldown            time.Duration
	MaxMessagesPerTopic int
	HistoryWindow       int

	// Escalation SLA
	SLAWindow       time.Duration
	SLAMaxReminders int

	// Follow-up worker
	FollowupInterval time.Duration

	AdminJWTSecret string

	// SendGrid email alerts (optional)
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// Free-text instructions prepended to every AI prompt.
	BusinessInstructions string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		WhatsAppBaseURL:   getEnv("WHATSAPP_API_BASE_URL", ""),
		WhatsAppToken:     getEnv("WHATSAPP_API_TOKEN", ""),
		WhatsAppSendRate:  getEnvAsFloat("WHATSAPP_SEND_RATE", 1.0),
		WhatsAppSendBurst: getEnvAsInt("WHATSAPP_SEND_BURST", 5),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		OwnerPhone:  getEnv("OWNER_PHONE", ""),
		OwnerEmail:  getEnv("OWNER_EMAIL", ""),
		CountryCode: getEnv("COUNTRY_CODE", "91"),

		AutoReplyEnabled:    getEnvAsBool("AUTO_REPLY_ENABLED", true),
		AutoMessagesEnabled: getEnvAsBool("AUTO_MESSAGES_ENABLED", true),
		DNDStartHour:        getEnvAsInt("DND_START_HOUR", 21),
		DNDEndHour:          getEnvAsInt("DND_END_HOUR", 9),
		Cooldown:            getEnvAsDuration("AUTO_MESSAGE_COOLDOWN", 24*time.Hour),
		MaxMessagesPerTopic: getEnvAsInt("MAX_MESSAGES_PER_TOPIC", 3),
		HistoryWindow:       getEnvAsInt("AI_HISTORY_WINDOW", 15),

		SLAWindow:       getEnvAsDuration("ESCALATION_SLA_WINDOW", 30*time.Minute),
		SLAMaxReminders: getEnvAsInt("ESCALATION_SLA_MAX_REMINDERS", 2),

		FollowupInterval: getEnvAsDuration("FOLLOWUP_INTERVAL", time.Minute),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Charu"),

		BusinessInstructions: getEnv("BUSINESS_INSTRUCTIONS", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port          string
	AllowedOrigin string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StoreID       string

	GstRate float64

	AuthSecret            string
	AccessTokenTTLMinutes int

	SessionTimeout time.Duration
	SweepInterval  time.Duration

	WhatsAppAPIBaseURL    string
	WhatsAppToken         string
	WhatsAppPhoneNumberID string
	WhatsAppVerifyToken   string
}

func Load() Config {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	gstRate, err := strconv.ParseFloat(getEnv("GST_RATE", "0.10"), 64)
	if err != nil || gstRate < 0 || gstRate > 1 {
		gstRate = 0.10
	}

	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	sessionTimeoutHours, err := strconv.Atoi(getEnv("SESSION_TIMEOUT_HOURS", "6"))
	if err != nil || sessionTimeoutHours < 1 {
		sessionTimeoutHours = 6
	}

	sweepMinutes, err := strconv.Atoi(getEnv("SESSION_SWEEP_INTERVAL_MINUTES", "15"))
	if err != nil || sweepMinutes < 1 {
		sweepMinutes = 15
	}

	return Config{
		Port:          getEnv("PORT", "8080"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,
		StoreID:       getEnv("DEFAULT_STORE_ID", "main-store"),

		GstRate: gstRate,

		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,

		SessionTimeout: time.Duration(sessionTimeoutHours) * time.Hour,
		SweepInterval:  time.Duration(sweepMinutes) * time.Minute,

		WhatsAppAPIBaseURL:    getEnv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com/v19.0"),
		WhatsAppToken:         strings.TrimSpace(os.Getenv("WHATSAPP_TOKEN")),
		WhatsAppPhoneNumberID: strings.TrimSpace(os.Getenv("WHATSAPP_PHONE_NUMBER_ID")),
		WhatsAppVerifyToken:   strings.TrimSpace(os.Getenv("WHATSAPP_VERIFY_TOKEN")),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

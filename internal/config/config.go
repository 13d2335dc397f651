package config

import (
	"os"
	"strconv"
)

type Config struct {
	// HTTP
	Port string

	// MongoDB
	MongoURI    string
	MongoDBName string

	// Redis (optional, empty addr disables caching)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Driver identity service
	DriverAPIBaseURL      string
	DriverAPITimeoutMS    int
	DriverCacheTTLSeconds int

	// MQTT (optional, empty broker URL disables the bridge and sink)
	MQTTBrokerURL   string
	MQTTClientID    string
	UplinkTopic     string
	WorkEventTopic  string
	EventBufferSize int

	// Auth
	JWTSecret           string
	AuthCacheTTLSeconds int
}

func Load() *Config {
	return &Config{
		Port:                  getEnv("PORT", "8080"),
		MongoURI:              getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDBName:           getEnv("MONGODB_DATABASE", "fleet_backoffice"),
		RedisAddr:             getEnv("REDIS_ADDR", ""),
		RedisPassword:         getEnv("REDIS_PASSWORD", ""),
		RedisDB:               getEnvInt("REDIS_DB", 0),
		DriverAPIBaseURL:      getEnv("DRIVER_API_BASE_URL", "http://localhost:8090"),
		DriverAPITimeoutMS:    getEnvInt("DRIVER_API_TIMEOUT_MS", 3000),
		DriverCacheTTLSeconds: getEnvInt("DRIVER_CACHE_TTL_SECONDS", 600),
		MQTTBrokerURL:         getEnv("MQTT_BROKER_URL", ""),
		MQTTClientID:          getEnv("MQTT_CLIENT_ID", "fleet-backoffice"),
		UplinkTopic:           getEnv("MQTT_UPLINK_TOPIC", "fleet/uplink"),
		WorkEventTopic:        getEnv("WORK_EVENT_TOPIC", "fleet/work-events"),
		EventBufferSize:       getEnvInt("EVENT_BUFFER_SIZE", 1024),
		JWTSecret:             getEnv("JWT_SECRET", "dev-secret-change-me"),
		AuthCacheTTLSeconds:   getEnvInt("AUTH_CACHE_TTL_SECONDS", 300),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// Package config centralizes every configuration value the process reads at
// startup. Environment variables win over an optional .env file, which in
// turn wins over built-in defaults.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Host          string
	Port          int
	RTCMinPort    int
	RTCMaxPort    int
	AnnouncedIP   string
	DBPath        string
	DataDir       string
	AdminToken    string
	JWTSecret     string
	Password      string
	MediaWorkers  int
	OpenAdmin     bool
	TrustProxy    bool
	TLS           TLSConfig
	LiveKit       LiveKitConfig
}

// TLSConfig is parsed and carried through, but TLS acquisition/termination
// itself is handled by an external collaborator (reverse proxy or ACME
// sidecar) — this process never opens a TLS listener of its own.
type TLSConfig struct {
	Mode   string
	Cert   string
	Key    string
	Domain string
	Email  string
}

type LiveKitConfig struct {
	URL       string
	APIKey    string
	APISecret string
}

// Load builds a Config from the environment, loading a .env file first if
// one is present. Missing .env is not an error — production deployments set
// real environment variables instead.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	rtcMinPort, err := strconv.Atoi(getEnv("RTC_MIN_PORT", "40000"))
	if err != nil {
		return nil, fmt.Errorf("invalid RTC_MIN_PORT: %w", err)
	}
	rtcMaxPort, err := strconv.Atoi(getEnv("RTC_MAX_PORT", "40100"))
	if err != nil {
		return nil, fmt.Errorf("invalid RTC_MAX_PORT: %w", err)
	}
	if rtcMaxPort < rtcMinPort {
		return nil, fmt.Errorf("RTC_MAX_PORT (%d) must be >= RTC_MIN_PORT (%d)", rtcMaxPort, rtcMinPort)
	}

	mediaWorkers, err := strconv.Atoi(getEnv("MEDIA_WORKERS", strconv.Itoa(runtime.NumCPU())))
	if err != nil {
		return nil, fmt.Errorf("invalid MEDIA_WORKERS: %w", err)
	}

	openAdmin, err := strconv.ParseBool(getEnv("OPEN_ADMIN", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid OPEN_ADMIN: %w", err)
	}
	trustProxy, err := strconv.ParseBool(getEnv("TRUST_PROXY", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid TRUST_PROXY: %w", err)
	}

	// Admin REST/WS stays closed by default; OpenAdmin is an explicit
	// opt-in, not inferred from an empty token.
	adminToken := getEnv("ADMIN_TOKEN", "")

	cfg := &Config{
		Host:         getEnv("HOST", "0.0.0.0"),
		Port:         port,
		RTCMinPort:   rtcMinPort,
		RTCMaxPort:   rtcMaxPort,
		AnnouncedIP:  getEnv("ANNOUNCED_IP", ""),
		DBPath:       getEnv("DB_PATH", "./data/signalcore.db"),
		DataDir:      getEnv("DATA_DIR", "./data/uploads"),
		AdminToken:   adminToken,
		JWTSecret:    getEnv("JWT_SECRET", ""),
		Password:     getEnv("PASSWORD", ""),
		MediaWorkers: mediaWorkers,
		OpenAdmin:    openAdmin,
		TrustProxy:   trustProxy,
		TLS: TLSConfig{
			Mode:   strings.ToLower(getEnv("TLS_MODE", "off")),
			Cert:   getEnv("TLS_CERT", ""),
			Key:    getEnv("TLS_KEY", ""),
			Domain: getEnv("TLS_DOMAIN", ""),
			Email:  getEnv("TLS_EMAIL", ""),
		},
		LiveKit: LiveKitConfig{
			URL:       getEnv("LIVEKIT_URL", "ws://localhost:7880"),
			APIKey:    getEnv("LIVEKIT_API_KEY", ""),
			APISecret: getEnv("LIVEKIT_API_SECRET", ""),
		},
	}

	return cfg, nil
}

// Addr is the address the HTTP+WS listener binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AdminEnabled reports whether admin REST/WS capability is reachable at all,
// either via a configured token or an explicit open-admin opt-in.
func (c *Config) AdminEnabled() bool {
	return c.AdminToken != "" || c.OpenAdmin
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

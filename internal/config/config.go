// Package config loads the crawler's environment-variable configuration
// into a typed struct read once at startup.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds every environment-tunable knob the crawler core reads.
// WEBAPP_HOST and WEBAPP_PORT are carried through even though the webapp
// itself is out of scope; nothing in the crawler core reads them.
type Config struct {
	MaxWorkers    int
	CacheTTLSec   int
	InsecureSSL   bool
	InsecureHosts []string
	WebappHost    string
	WebappPort    string
	ChromePath    string
	DBPath        string
	CertDir       string
}

// Load reads Config from the process environment, applying spec-mandated
// defaults for anything unset.
func Load() Config {
	return Config{
		MaxWorkers:    envInt("CRAWLER_MAX_WORKERS", 24),
		CacheTTLSec:   envInt("CRAWLER_CACHE_TTL", 30),
		InsecureSSL:   envBool("INSECURE_SSL", false),
		InsecureHosts: envHostList("INSECURE_HOSTS"),
		WebappHost:    os.Getenv("WEBAPP_HOST"),
		WebappPort:    os.Getenv("WEBAPP_PORT"),
		ChromePath:    os.Getenv("CHROME_PATH"),
		DBPath:        envOr("DB_PATH", "crawler.db"),
		CertDir:       envOr("CERT_DIR", "static/certs"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envHostList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// InsecureHost reports whether verification should be skipped for host,
// matching against the configured suffix/substring set.
func (c Config) InsecureHost(host string) bool {
	host = strings.ToLower(host)
	for _, h := range c.InsecureHosts {
		if strings.Contains(host, h) {
			return true
		}
	}
	return false
}

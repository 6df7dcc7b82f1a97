package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type ProviderConfig struct {
	Endpoint string
	Token    string
}

// RegionRef points at a GeoJSON reference-region file. The first configured
// region is the primary one for route aggregation.
type RegionRef struct {
	Name string
	Path string
}

type GeoConfig struct {
	Regions []RegionRef
}

type DeriveConfig struct {
	MinRoutePoints int
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Provider    ProviderConfig
	Geo         GeoConfig
	Derive      DeriveConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")

	v.AutomaticEnv()

	_ = v.ReadInConfig()

	regions, err := parseRegions(v.GetString("GEO_REGIONS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host: v.GetString("HTTP_HOST"),
			Port: v.GetInt("HTTP_PORT"),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Provider: ProviderConfig{
			Endpoint: v.GetString("PROVIDER_ENDPOINT"),
			Token:    v.GetString("PROVIDER_TOKEN"),
		},
		Geo: GeoConfig{
			Regions: regions,
		},
		Derive: DeriveConfig{
			MinRoutePoints: v.GetInt("DERIVE_MIN_ROUTE_POINTS"),
		},
	}

	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 7090
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.Derive.MinRoutePoints <= 0 {
		cfg.Derive.MinRoutePoints = 2
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	// derivation runs hold one connection while draining writers on a second
	if cfg.DB.MaxOpenConns == 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be at least 2")
	}
	return nil
}

// parseRegions reads "name=path[,name=path...]" from GEO_REGIONS.
func parseRegions(raw string) ([]RegionRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var refs []RegionRef
	for _, entry := range strings.Split(raw, ",") {
		name, path, found := strings.Cut(strings.TrimSpace(entry), "=")
		if !found || name == "" || path == "" {
			return nil, fmt.Errorf("GEO_REGIONS entry %q: expected name=path", entry)
		}
		refs = append(refs, RegionRef{Name: name, Path: path})
	}
	return refs, nil
}

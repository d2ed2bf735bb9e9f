package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultBaseURL   = "https://www.mubawab.ma"
	defaultMaxPages  = 20
	defaultMinDelay  = 1000
	defaultMaxDelay  = 3000
	defaultTimeoutMS = 15000
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

type Config struct {
	Database   DatabaseConfig
	Scheduler  SchedulerConfig
	S3         S3Config
	Proxy      ProxyConfig
	DBPath     string
	LogFile    string
	APIAddr    string
	ExportPath string
	SitesDir   string
	Sites      map[string]*SiteConfig

	// BackfillBatch caps how many listings one backfill pass patches.
	BackfillBatch int
}

// DatabaseConfig holds the Postgres connection parameters. An empty Host means
// listings are kept in the local SQLite database instead.
type DatabaseConfig struct {
	Host     string
	Name     string
	User     string
	Password string
	Port     string
	SSLMode  string
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type ProxyConfig struct {
	URL string
}

type SiteConfig struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	BaseURL          string   `yaml:"base_url"`
	Intent           string   `yaml:"intent"`
	Cities           []string `yaml:"cities"`
	MaxPages         int      `yaml:"max_pages"`
	MinDelayMS       int      `yaml:"min_delay_ms"`
	MaxDelayMS       int      `yaml:"max_delay_ms"`
	TimeoutMS        int      `yaml:"timeout_ms"`
	UserAgent        string   `yaml:"user_agent"`
	DropWithoutPrice *bool    `yaml:"drop_without_price"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     os.Getenv("DB_HOST"),
			Name:     getEnv("DB_NAME", "properties"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASS"),
			Port:     getEnv("DB_PORT", "5432"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Scheduler: SchedulerConfig{
			Cron:     os.Getenv("SCRAPE_CRON"),
			Interval: getEnvDuration("SCRAPE_INTERVAL", 0),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		Proxy:      ProxyConfig{URL: os.Getenv("PROXY_URL")},
		DBPath:     getEnv("DB_PATH", "scraper.db"),
		LogFile:    getEnv("LOG_FILE", "daemon.log"),
		APIAddr:    os.Getenv("API_ADDR"),
		ExportPath: getEnv("EXPORT_PATH", "output/properties.csv"),
		SitesDir:   getEnv("SITES_DIR", filepath.Join("config", "sites")),
		Sites:      make(map[string]*SiteConfig),

		BackfillBatch: getEnvInt("BACKFILL_BATCH", 50),
	}

	if err := cfg.loadSiteConfigs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DSN builds a Postgres connection string from the individual parameters.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

func (c *Config) loadSiteConfigs() error {
	entries, err := os.ReadDir(c.SitesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(c.SitesDir, entry.Name())
		site, err := LoadSite(path)
		if err != nil {
			return err
		}

		c.Sites[site.ID] = site
	}

	return nil
}

// LoadSite reads one site file and fills in defaults for omitted settings.
func LoadSite(path string) (*SiteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var site SiteConfig
	if err := yaml.Unmarshal(data, &site); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if site.ID == "" {
		return nil, fmt.Errorf("parse %s: missing id", path)
	}
	site.applyDefaults()

	if site.MinDelayMS > site.MaxDelayMS {
		return nil, fmt.Errorf("site %s: min_delay_ms %d exceeds max_delay_ms %d", site.ID, site.MinDelayMS, site.MaxDelayMS)
	}

	return &site, nil
}

func (s *SiteConfig) applyDefaults() {
	if s.Name == "" {
		s.Name = s.ID
	}
	if s.BaseURL == "" {
		s.BaseURL = defaultBaseURL
	}
	if s.Intent == "" {
		s.Intent = "rent"
	}
	if s.MaxPages <= 0 {
		s.MaxPages = defaultMaxPages
	}
	if s.MinDelayMS == 0 && s.MaxDelayMS == 0 {
		s.MinDelayMS = defaultMinDelay
		s.MaxDelayMS = defaultMaxDelay
	}
	if s.TimeoutMS <= 0 {
		s.TimeoutMS = defaultTimeoutMS
	}
	if s.UserAgent == "" {
		s.UserAgent = defaultUserAgent
	}
	if s.DropWithoutPrice == nil {
		drop := true
		s.DropWithoutPrice = &drop
	}
}

// DropsWithoutPrice reports whether listings lacking a price are discarded.
// Unset means yes.
func (s *SiteConfig) DropsWithoutPrice() bool {
	return s.DropWithoutPrice == nil || *s.DropWithoutPrice
}

func (s *SiteConfig) MinDelay() time.Duration {
	return time.Duration(s.MinDelayMS) * time.Millisecond
}

func (s *SiteConfig) MaxDelay() time.Duration {
	return time.Duration(s.MaxDelayMS) * time.Millisecond
}

func (s *SiteConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

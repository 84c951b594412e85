package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

type Config struct {
	Env        string     `yaml:"env"`
	Shortener  Shortener  `yaml:"shortener"`
	Tracking   Tracking   `yaml:"tracking"`
	UTM        UTM        `yaml:"utm"`
	QRCode     QRCode     `yaml:"qr_code"`
	Cache      Cache      `yaml:"cache"`
	Analytics  Analytics  `yaml:"analytics"`
	HTTPServer HTTPServer `yaml:"http_server"`
	Postgres   Postgres   `yaml:"postgres"`
	Redis      Redis      `yaml:"redis"`
}

// Shortener controls key generation and short URL composition.
type Shortener struct {
	Domain         string `yaml:"domain"`
	Prefix         string `yaml:"prefix"`
	KeyLength      int    `yaml:"key_length"`
	ModelKeyLength int    `yaml:"model_key_length"`
	KeyChars       string `yaml:"key_chars"`
}

// Tracking holds the per-tenant defaults applied to links created without
// explicit tracking flags.
type Tracking struct {
	Visits             bool `yaml:"visits"`
	IPAddress          bool `yaml:"ip_address"`
	UserAgent          bool `yaml:"user_agent"`
	Referer            bool `yaml:"referer"`
	Geo                bool `yaml:"geo"`
	RedirectStatusCode int  `yaml:"redirect_status_code"`
}

type UTM struct {
	Enabled bool   `yaml:"enabled"`
	Hidden  bool   `yaml:"hidden"`
	Source  string `yaml:"source"`
	Medium  string `yaml:"medium"`
}

type QRCode struct {
	Enabled bool   `yaml:"enabled"`
	Size    int    `yaml:"size"`
	Level   string `yaml:"level"` // L, M, Q, H
	Dir     string `yaml:"dir"`
}

type Cache struct {
	Enabled bool          `yaml:"enabled"`
	Prefix  string        `yaml:"prefix"`
	TTL     time.Duration `yaml:"ttl"`
}

type Analytics struct {
	// Schedule is a cron expression for the daily rollup job.
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
}

type HTTPServer struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	CertFile       string        `yaml:"cert_file"`
	KeyFile        string        `yaml:"key_file"`
}

func (s *HTTPServer) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type Postgres struct {
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	DB              string        `yaml:"db"`
	SSLMode         string        `yaml:"sslmode"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
}

func (p *Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DB, p.SSLMode)
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

var defaultShortener = Shortener{
	Domain:         "http://localhost:8080",
	Prefix:         "s",
	KeyLength:      6,
	ModelKeyLength: 4,
	KeyChars:       "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789",
}

var defaultTracking = Tracking{
	Visits:             true,
	IPAddress:          true,
	UserAgent:          true,
	Referer:            true,
	Geo:                false,
	RedirectStatusCode: 302,
}

var defaultUTM = UTM{
	Enabled: true,
	Hidden:  true,
	Source:  "url-shortener",
	Medium:  "short-link",
}

var defaultQRCode = QRCode{
	Enabled: true,
	Size:    200,
	Level:   "M",
	Dir:     "qr-codes",
}

var defaultCache = Cache{
	Enabled: true,
	Prefix:  "url_shortener",
	TTL:     time.Hour,
}

var defaultAnalytics = Analytics{
	Schedule:      "10 0 * * *",
	RetentionDays: 365,
}

var defaultHTTPServer = HTTPServer{
	Port:           8080,
	ReadTimeout:    5 * time.Second,
	WriteTimeout:   10 * time.Second,
	IdleTimeout:    time.Minute,
	MaxHeaderBytes: 1 << 20,
}

var defaultPostgres = Postgres{
	Host:            "localhost",
	Port:            5432,
	SSLMode:         "disable",
	ConnMaxIdleTime: 5 * time.Minute,
	ConnMaxLifetime: 30 * time.Minute,
	MaxIdleConns:    5,
	MaxOpenConns:    25,
}

var defaultRedis = Redis{
	Addr:     "localhost:6379",
	PoolSize: 10,
}

func Load(path string) (*Config, error) {
	const op = "config.Load"

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open config file: %w", op, err)
	}
	defer f.Close()

	var cfg Config
	setDefaults(&cfg)

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to decode config file: %w", op, err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.Env = EnvDev
	cfg.Shortener = defaultShortener
	cfg.Tracking = defaultTracking
	cfg.UTM = defaultUTM
	cfg.QRCode = defaultQRCode
	cfg.Cache = defaultCache
	cfg.Analytics = defaultAnalytics
	cfg.HTTPServer = defaultHTTPServer
	cfg.Postgres = defaultPostgres
	cfg.Redis = defaultRedis
}

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTP struct {
		Addr         string        `mapstructure:"addr"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
		MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	} `mapstructure:"http"`
	Database struct {
		DSN          string `mapstructure:"dsn"`
		MaxOpenConns int    `mapstructure:"max_open_conns"`
	} `mapstructure:"database"`
	Auth struct {
		JWTSecret string        `mapstructure:"jwt_secret"`
		TokenTTL  time.Duration `mapstructure:"token_ttl"`
		Issuer    string        `mapstructure:"issuer"`
	} `mapstructure:"auth"`
	Maintenance struct {
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
	} `mapstructure:"maintenance"`
	CORS struct {
		Origins []string `mapstructure:"origins"`
	} `mapstructure:"cors"`
	RateLimit struct {
		Burst     int `mapstructure:"burst"`
		PerMinute int `mapstructure:"per_minute"`
	} `mapstructure:"ratelimit"`
	Reconcile struct {
		BatchSize int `mapstructure:"batch_size"`
	} `mapstructure:"reconcile"`
	Notify struct {
		MaxPerWindow int           `mapstructure:"max_per_window"`
		Window       time.Duration `mapstructure:"window"`
	} `mapstructure:"notify"`
	SMTP struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		From     string `mapstructure:"from"`
	} `mapstructure:"smtp"`
	Admin struct {
		Email string `mapstructure:"email"`
	} `mapstructure:"admin"`
	Archive struct {
		Bucket   string `mapstructure:"bucket"`
		Region   string `mapstructure:"region"`
		Endpoint string `mapstructure:"endpoint"`
		Prefix   string `mapstructure:"prefix"`
	} `mapstructure:"archive"`
	SSM struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"ssm"`
	Log struct {
		Level  string `mapstructure:"level"`
		Pretty bool   `mapstructure:"pretty"`
	} `mapstructure:"log"`
}

const (
	MinBatchSize = 1
	MaxBatchSize = 1000
)

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"http.addr":               "PORT_ADDR",
	"http.read_timeout":       "HTTP_READ_TIMEOUT",
	"http.write_timeout":      "HTTP_WRITE_TIMEOUT",
	"http.max_body_bytes":     "HTTP_MAX_BODY_BYTES",
	"database.dsn":            "DATABASE_URL",
	"database.max_open_conns": "DATABASE_MAX_OPEN_CONNS",
	"auth.jwt_secret":         "JWT_SECRET",
	"auth.token_ttl":          "JWT_EXPIRES_IN",
	"auth.issuer":             "JWT_ISSUER",
	"maintenance.user":        "CLEANUP_USER",
	"maintenance.password":    "CLEANUP_PASSWORD",
	"cors.origins":            "CORS_ORIGIN",
	"ratelimit.burst":         "RATE_LIMIT_BURST",
	"ratelimit.per_minute":    "RATE_LIMIT_PER_MINUTE",
	"reconcile.batch_size":    "RECONCILE_BATCH_SIZE",
	"notify.max_per_window":   "NOTIFY_MAX_PER_WINDOW",
	"notify.window":           "NOTIFY_WINDOW",
	"smtp.host":               "SMTP_HOST",
	"smtp.port":               "SMTP_PORT",
	"smtp.user":               "SMTP_USER",
	"smtp.password":           "SMTP_PASSWORD",
	"smtp.from":               "SMTP_FROM",
	"admin.email":             "ADMIN_EMAIL",
	"archive.bucket":          "ARCHIVE_BUCKET",
	"archive.region":          "ARCHIVE_REGION",
	"archive.endpoint":        "ARCHIVE_ENDPOINT",
	"archive.prefix":          "ARCHIVE_PREFIX",
	"ssm.path":                "SSM_PATH",
	"log.level":               "LOG_LEVEL",
	"log.pretty":              "LOG_PRETTY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":3000")
	v.SetDefault("http.read_timeout", 30*time.Second)
	v.SetDefault("http.write_timeout", 120*time.Second)
	v.SetDefault("http.max_body_bytes", int64(50<<20))
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("auth.token_ttl", 12*time.Hour)
	v.SetDefault("auth.issuer", "lightingmap")
	v.SetDefault("ratelimit.burst", 50)
	v.SetDefault("ratelimit.per_minute", 50)
	v.SetDefault("reconcile.batch_size", 200)
	v.SetDefault("notify.max_per_window", 5)
	v.SetDefault("notify.window", time.Hour)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("archive.prefix", "reconciliations/")
	v.SetDefault("log.level", "info")
}

// Options tunes Load. The zero value reads ./config.yaml and the process env.
type Options struct {
	ConfigFile string
	Params     ParameterSource
}

// Load reads .env files, config.yaml, the environment and, when ssm.path is
// set, the parameter store, in increasing order of precedence for the store.
func Load(ctx context.Context, opts Options) (Config, error) {
	loadDotenv()

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("..")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	if path := v.GetString("ssm.path"); path != "" {
		src := opts.Params
		if src == nil {
			client, err := NewSSMClient(ctx, v.GetString("archive.region"))
			if err != nil {
				return Config{}, err
			}
			src = client
		}
		if err := overlayParameters(ctx, v, src, path); err != nil {
			return Config{}, err
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	c.CORS.Origins = splitList(c.CORS.Origins)
	c.Reconcile.BatchSize = ClampBatchSize(c.Reconcile.BatchSize)
	return c, nil
}

// Validate checks what the API server cannot run without.
func (c Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("config: auth.jwt_secret/JWT_SECRET required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("config: auth.token_ttl must be positive")
	}
	return nil
}

// ClampBatchSize keeps n within [MinBatchSize, MaxBatchSize].
func ClampBatchSize(n int) int {
	switch {
	case n < MinBatchSize:
		return MinBatchSize
	case n > MaxBatchSize:
		return MaxBatchSize
	}
	return n
}

// loadDotenv loads .env.<APP_ENV> then .env. Variables already set win.
func loadDotenv() {
	if env := os.Getenv("APP_ENV"); env != "" {
		_ = godotenv.Load(".env." + env)
	}
	_ = godotenv.Load()
}

// splitList accepts both yaml lists and a comma-separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

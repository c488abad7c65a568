// server/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// --- Sub-structs mirroring the YAML layout ---

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// BackendConfig points at the pharmacy REST backend this gateway fronts.
type BackendConfig struct {
	BaseURL string        `mapstructure:"baseURL"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CartConfig struct {
	TaxRate      float64       `mapstructure:"taxRate"`
	MaxQuantity  int           `mapstructure:"maxQuantity"`
	SyncInterval time.Duration `mapstructure:"syncInterval"`
}

type SessionConfig struct {
	IdleTTL       time.Duration `mapstructure:"idleTTL"`
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
}

type JWTConfig struct {
	// Secret is optional. When empty, tokens are only decoded for identity and
	// verification is left to the backend.
	Secret string `mapstructure:"secret"`
}

type MongoConfig struct {
	URI    string `mapstructure:"uri"`
	DBName string `mapstructure:"dbName"`
}

type S3Config struct {
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	AccessKeyID      string `mapstructure:"accessKeyID"`
	SecretAccessKey  string `mapstructure:"secretAccessKey"`
	CloudFrontDomain string `mapstructure:"cloudFrontDomain"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// --- Root config ---

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Backend BackendConfig `mapstructure:"backend"`
	Cart    CartConfig    `mapstructure:"cart"`
	Session SessionConfig `mapstructure:"session"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	S3      S3Config      `mapstructure:"s3"`
	CORS    CORSConfig    `mapstructure:"cors"`
	Log     LogConfig     `mapstructure:"log"`
}

// LoadConfig reads config.yaml from path and overrides it with environment variables.
// A missing file is not an error: defaults plus environment are enough to start.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	setDefaults(v)

	v.AutomaticEnv()
	bindings := map[string]string{
		"server.port":           "SERVER_PORT",
		"server.mode":           "GIN_MODE",
		"backend.baseURL":       "BACKEND_BASE_URL",
		"backend.timeout":       "BACKEND_TIMEOUT",
		"cart.taxRate":          "CART_TAX_RATE",
		"cart.maxQuantity":      "CART_MAX_QUANTITY",
		"cart.syncInterval":     "CART_SYNC_INTERVAL",
		"session.idleTTL":       "SESSION_IDLE_TTL",
		"session.sweepInterval": "SESSION_SWEEP_INTERVAL",
		"jwt.secret":            "JWT_SECRET",
		"mongo.uri":             "MONGO_URI",
		"mongo.dbName":          "MONGO_DBNAME",
		"s3.bucket":             "S3_BUCKET",
		"s3.region":             "S3_REGION",
		"s3.accessKeyID":        "S3_ACCESS_KEY_ID",
		"s3.secretAccessKey":    "S3_SECRET_ACCESS_KEY",
		"s3.cloudFrontDomain":   "S3_CLOUDFRONT_DOMAIN",
		"cors.allowedOrigins":   "CORS_ALLOWED_ORIGINS",
		"log.level":             "LOG_LEVEL",
		"log.development":       "LOG_DEVELOPMENT",
	}
	for key, env := range bindings {
		if err = v.BindEnv(key, env); err != nil {
			return
		}
	}

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}

	err = config.Validate()
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("backend.baseURL", "http://localhost:5000")
	v.SetDefault("backend.timeout", 15*time.Second)
	v.SetDefault("cart.taxRate", 0.05)
	v.SetDefault("cart.maxQuantity", 100)
	v.SetDefault("cart.syncInterval", 5*time.Minute)
	v.SetDefault("session.idleTTL", 30*time.Minute)
	v.SetDefault("session.sweepInterval", time.Minute)
	v.SetDefault("mongo.dbName", "pharmacy_gateway")
	v.SetDefault("cors.allowedOrigins", []string{"http://localhost:3000"})
	v.SetDefault("log.level", "info")
}

// Validate rejects values the rest of the server cannot work with.
func (c Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.baseURL is required")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive, got %s", c.Backend.Timeout)
	}
	if c.Cart.TaxRate < 0 || c.Cart.TaxRate > 1 {
		return fmt.Errorf("cart.taxRate must be within [0,1], got %v", c.Cart.TaxRate)
	}
	if c.Cart.MaxQuantity < 1 {
		return fmt.Errorf("cart.maxQuantity must be at least 1, got %d", c.Cart.MaxQuantity)
	}
	if c.Session.IdleTTL <= 0 || c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session.idleTTL and session.sweepInterval must be positive")
	}
	return nil
}

package config

import (
	"fmt"

	"github.com/spf13/viper"
)

const (
	defaultJWTSecret   = "your-secret-key-change-in-production"
	defaultAPISecret   = "change-me"
	defaultAdminPasswd = "admin123"
)

// Config holds all configuration for the planner service and CLI
type Config struct {
	Environment string `mapstructure:"ENVIRONMENT"`
	Port        string `mapstructure:"PORT"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	// Database configuration
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DataPath    string `mapstructure:"DATA_PATH"`

	// Auth configuration
	JWTSecret       string `mapstructure:"JWT_SECRET"`
	APIMasterSecret string `mapstructure:"API_MASTER_SECRET"`
	AdminUsername   string `mapstructure:"ADMIN_USERNAME"`
	AdminPassword   string `mapstructure:"ADMIN_PASSWORD"`

	// Heuristic planner
	Trials      int   `mapstructure:"PLAN_TRIALS"`
	Workers     int   `mapstructure:"PLAN_WORKERS"`
	Seed        int64 `mapstructure:"PLAN_SEED"`
	MaxRestarts int   `mapstructure:"PLAN_MAX_RESTARTS"`

	// Fitness weights
	LoadWeight float64 `mapstructure:"FITNESS_LOAD_WEIGHT"`
	GapWeight  float64 `mapstructure:"FITNESS_GAP_WEIGHT"`
	SlotWeight float64 `mapstructure:"FITNESS_SLOT_WEIGHT"`

	// Constraint solver
	SolverInitialCooldown int `mapstructure:"SOLVER_INITIAL_COOLDOWN"`
	SolverTimeoutSec      int `mapstructure:"SOLVER_TIMEOUT_SEC"`
	SolverMaxPerPlan      int `mapstructure:"SOLVER_MAX_PER_PLAN"`
	SolverMinIdentityCap  int `mapstructure:"SOLVER_MIN_IDENTITY_CAP"`
}

// Load reads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("PORT", "8000")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DATA_PATH", "mass_scheduler.db")

	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("API_MASTER_SECRET", defaultAPISecret)
	v.SetDefault("ADMIN_USERNAME", "admin")
	v.SetDefault("ADMIN_PASSWORD", defaultAdminPasswd)

	v.SetDefault("PLAN_TRIALS", 100)
	v.SetDefault("PLAN_WORKERS", 1)
	v.SetDefault("PLAN_SEED", 0)
	v.SetDefault("PLAN_MAX_RESTARTS", 5000)

	v.SetDefault("FITNESS_LOAD_WEIGHT", 1.0)
	v.SetDefault("FITNESS_GAP_WEIGHT", 0.1)
	v.SetDefault("FITNESS_SLOT_WEIGHT", 0.0)

	v.SetDefault("SOLVER_INITIAL_COOLDOWN", 0)
	v.SetDefault("SOLVER_TIMEOUT_SEC", 120)
	v.SetDefault("SOLVER_MAX_PER_PLAN", 0)
	v.SetDefault("SOLVER_MIN_IDENTITY_CAP", 3)
}

func validate(config *Config) error {
	if config.IsProduction() {
		if config.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if config.APIMasterSecret == defaultAPISecret {
			return fmt.Errorf("API_MASTER_SECRET must be set in production")
		}
		if config.AdminPassword == defaultAdminPasswd {
			return fmt.Errorf("ADMIN_PASSWORD must be set in production")
		}
	}

	if config.Trials <= 0 {
		return fmt.Errorf("PLAN_TRIALS must be positive")
	}
	if config.Workers <= 0 {
		return fmt.Errorf("PLAN_WORKERS must be positive")
	}
	if config.MaxRestarts <= 0 {
		return fmt.Errorf("PLAN_MAX_RESTARTS must be positive")
	}
	if config.SolverTimeoutSec <= 0 {
		return fmt.Errorf("SOLVER_TIMEOUT_SEC must be positive")
	}
	if config.LoadWeight < 0 || config.GapWeight < 0 || config.SlotWeight < 0 {
		return fmt.Errorf("fitness weights must not be negative")
	}

	return nil
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

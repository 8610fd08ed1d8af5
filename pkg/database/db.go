package database

import (
	"fmt"
	"time"

	"github.com/arnavshah/mass-scheduler-go/pkg/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// APIKey represents the api_keys table
type APIKey struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Key        string     `gorm:"unique;not null" json:"-"`
	Name       string     `gorm:"not null" json:"name"`
	KeyPreview string     `json:"key_preview"`
	RateLimit  int        `gorm:"default:10000" json:"rate_limit"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsed   *time.Time `json:"last_used"`
}

// APIUsage represents the api_usage table
type APIUsage struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	KeyID        uint   `gorm:"uniqueIndex:idx_key_date;not null" json:"key_id"`
	Date         string `gorm:"uniqueIndex:idx_key_date;not null" json:"date"`
	RequestCount int    `gorm:"default:0" json:"request_count"`
	TotalMasses  int    `gorm:"default:0" json:"total_masses"`
	TotalPersons int    `gorm:"default:0" json:"total_persons"`
}

// MasterUser represents the master_users table
type MasterUser struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"unique;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// PlanRun represents the plan_runs table, one row per successful planning request
type PlanRun struct {
	ID           string           `gorm:"primaryKey;size:36" json:"id"`
	KeyID        *uint            `gorm:"index" json:"key_id,omitempty"`
	Strategy     string           `gorm:"not null" json:"strategy"`
	StartDate    string           `gorm:"not null" json:"start"`
	EndDate      string           `gorm:"not null" json:"end"`
	Trials       int              `json:"trials"`
	Score        float64          `json:"score"`
	LoadVariance float64          `json:"load_variance"`
	GapVariance  float64          `json:"gap_variance"`
	SlotVariance float64          `json:"slot_variance"`
	Distribution string           `gorm:"type:text" json:"-"`
	CreatedAt    time.Time        `json:"created_at"`
	Assignments  []PlanAssignment `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE" json:"assignments"`
}

// PlanAssignment represents the plan_assignments table, one row per served seat.
// A mass without servers is stored as a single row with an empty person.
type PlanAssignment struct {
	ID       uint   `gorm:"primaryKey" json:"-"`
	RunID    string `gorm:"index;size:36;not null" json:"-"`
	Position int    `gorm:"not null" json:"position"`
	Seat     int    `gorm:"not null" json:"seat"`
	Date     string `gorm:"not null" json:"date"`
	Time     string `gorm:"not null" json:"time"`
	SlotID   string `gorm:"not null" json:"slot_id"`
	Comment  string `json:"comment,omitempty"`
	Location string `json:"location,omitempty"`
	Person   string `json:"person"`
}

// InitDB opens Postgres when a DATABASE_URL is configured and SQLite otherwise,
// then migrates the schema
func InitDB(cfg *config.Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	if cfg.DatabaseURL != "" {
		gormCfg.PrepareStmt = false
		db, err = gorm.Open(postgres.New(postgres.Config{
			DSN:                  cfg.DatabaseURL,
			PreferSimpleProtocol: true,
		}), gormCfg)
	} else {
		dbPath := cfg.DataPath
		if dbPath == "" {
			dbPath = "mass_scheduler.db"
		}
		db, err = gorm.Open(sqlite.Open(dbPath), gormCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&APIKey{}, &APIUsage{}, &MasterUser{}, &PlanRun{}, &PlanAssignment{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

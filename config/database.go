package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/heistctf/models"
)

var db *gorm.DB

// Models lists every table owned by this service, in migration order.
func Models() []interface{} {
	return []interface{}{
		&models.Team{},
		&models.User{},
		&models.UserBadge{},
		&models.Challenge{},
		&models.Hint{},
		&models.HintRequest{},
		&models.Submission{},
		&models.ScoreHistory{},
		&models.AuditLog{},
	}
}

// DSN builds the MySQL connection string from configuration.
func (c AppConfig) DSN() string {
	if c.DatabaseURI != "" {
		return c.DatabaseURI
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.DBUser,
		c.DBPassword,
		c.DBHost,
		c.DBPort,
		c.DBName,
	)
}

// InitDatabase establishes a connection to MySQL using configuration values and performs automatic migrations.
func InitDatabase(modelDefs ...interface{}) *gorm.DB {
	if db != nil {
		return db
	}

	cfg := Get()

	// Derive GORM level from app LogLevel; slow-sql threshold is kept high to reduce noise
	gLogger := logger.New(
		log.New(os.Stdout, "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             2 * time.Second,
			LogLevel:                  toGormLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	gormCfg := &gorm.Config{
		Logger:                                   gLogger,
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	}

	var err error
	db, err = gorm.Open(mysql.Open(cfg.DSN()), gormCfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get sql.DB: %v", err)
	}

	// Resolution transactions are short; keep the pool moderate and recycle idle conns
	// before the server's wait_timeout does.
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("database ping failed: %v", err)
	}

	// Only create missing tables; existing schema is left untouched except for additive columns.
	for _, model := range modelDefs {
		if !db.Migrator().HasTable(model) {
			if err := db.AutoMigrate(model); err != nil {
				log.Printf("auto migration failed for %T: %v", model, err)
			}
			continue
		}
		addMissingColumns(db, model)
	}

	return db
}

// addMissingColumns applies safe, additive migrations for tables that predate
// the payment audit columns.
func addMissingColumns(db *gorm.DB, model interface{}) {
	switch model.(type) {
	case *models.HintRequest:
		for _, field := range []string{"PaidWith", "AmountPaid"} {
			if !db.Migrator().HasColumn(&models.HintRequest{}, field) {
				if err := db.Migrator().AddColumn(&models.HintRequest{}, field); err != nil {
					log.Printf("failed to add hint_requests.%s column: %v", field, err)
				}
			}
		}
	case *models.Submission:
		for _, field := range []string{"XPAwarded", "HintsUsed"} {
			if !db.Migrator().HasColumn(&models.Submission{}, field) {
				if err := db.Migrator().AddColumn(&models.Submission{}, field); err != nil {
					log.Printf("failed to add submissions.%s column: %v", field, err)
				}
			}
		}
	}
}

// toGormLogLevel maps application LogLevel to GORM's logger level.
func toGormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		// GORM 'Info' shows SQL; use with caution
		return logger.Info
	case "info", "", "warn":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}

// DB provides access to initialized gorm DB instance.
func DB() *gorm.DB {
	if db == nil {
		log.Fatal("database not initialized, call InitDatabase first")
	}
	return db
}

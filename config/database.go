package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cafe-pos/models"

	"github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// OpenDB connects with the configured driver. SQLite gets a single
// connection so its writers never contend for the file lock.
func OpenDB(cfg Database) (*gorm.DB, error) {
	gcfg := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(sqliteDSN(cfg.DSN))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, gcfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}

	if db.Dialector.Name() == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

func sqliteDSN(dsn string) string {
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if strings.Contains(dsn, "?") {
		return dsn + "&" + pragmas
	}
	return dsn + "?" + pragmas
}

// Migrate creates the schema, including the partial unique indexes that
// enforce one open session per cashier and per floor.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Floor{},
		&models.Table{},
		&models.Product{},
		&models.ProductVariant{},
		&models.POSSession{},
		&models.Order{},
		&models.OrderLine{},
		&models.OrderStatusHistory{},
		&models.PaymentMethod{},
		&models.Payment{},
		&models.Receipt{},
	)
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	for _, stmt := range []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_one_open_session_per_floor ON pos_sessions (floor_id) WHERE status = 'open' AND floor_id IS NOT NULL`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_one_open_session_per_cashier ON pos_sessions (cashier_id) WHERE status = 'open'`,
	} {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }

// Seed inserts the payment methods the ledger relies on and, when a
// password is configured, a bootstrap admin. It is safe to run on every
// start.
func Seed(ctx context.Context, db *gorm.DB, cfg *Config) error {
	methods := []models.PaymentMethod{
		{Name: "Cash", Code: strPtr("cash"), Type: models.MethodCash, IsActive: true},
		{Name: "Card", Code: strPtr("card"), Type: models.MethodCard, IsActive: true},
		{Name: "UPI", Code: strPtr("upi"), Type: models.MethodDigital, IsActive: true},
		{Name: "Online (Gateway)", Code: strPtr(cfg.Gateway.MethodCode), Type: models.MethodDigital, IsActive: true},
	}
	for _, m := range methods {
		var existing models.PaymentMethod
		err := db.WithContext(ctx).Where("code = ?", *m.Code).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := db.WithContext(ctx).Create(&m).Error; err != nil {
			return fmt.Errorf("seed payment method %s: %w", *m.Code, err)
		}
	}

	if cfg.Auth.AdminPassword == "" {
		return nil
	}
	var count int64
	if err := db.WithContext(ctx).Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Auth.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Create(&models.User{
		Name:         "Administrator",
		Email:        strings.ToLower(cfg.Auth.AdminEmail),
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
		IsActive:     true,
	}).Error
}

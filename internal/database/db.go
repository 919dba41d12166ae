package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-ops-dashboard/internal/apperr"
	"go-ops-dashboard/internal/config"
	"go-ops-dashboard/internal/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

func dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// Connect opens the database, retrying while it comes up, and stores the
// handle in DB.
func Connect(cfg config.DatabaseConfig, gl gormlogger.Interface, log *zap.Logger) error {
	d, err := dialector(cfg)
	if err != nil {
		return err
	}

	retries := cfg.ConnectRetries
	if retries < 1 {
		retries = 1
	}

	var db *gorm.DB
	for i := 0; i < retries; i++ {
		db, err = gorm.Open(d, &gorm.Config{Logger: gl, TranslateError: true})
		if err == nil {
			break
		}
		log.Warn("Failed to connect to database, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", retries),
			zap.Error(err),
		)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return fmt.Errorf("connect after %d attempts: %w", retries, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	DB = db
	log.Info("Database connected", zap.String("driver", cfg.Driver))
	return nil
}

// Migrate syncs the schema with the models
func Migrate() error {
	return DB.AutoMigrate(models.All()...)
}

// Ping checks the database is reachable
func Ping(ctx context.Context) error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SeedAdmin creates the first admin account when no user exists yet. It
// reports whether an account was created.
func SeedAdmin(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}
	var count int64
	if err := DB.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if _, err := CreateUser(ctx, username, password, models.RoleAdmin); err != nil {
		return false, err
	}
	return true, nil
}

// Page selects a slice of a list. Zero values mean the defaults.
type Page struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=200"`
}

func (p Page) normalized() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 20
	}
	return p
}

// Meta describes a page of results
type Meta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// paginate counts q and loads the requested page into dest. Associations
// are preloaded on the page query only.
func paginate(q *gorm.DB, p Page, dest any, preloads ...string) (Meta, error) {
	p = p.normalized()
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return Meta{}, err
	}
	page := q.Session(&gorm.Session{})
	for _, assoc := range preloads {
		page = page.Preload(assoc)
	}
	if err := page.Offset((p.Page - 1) * p.PageSize).Limit(p.PageSize).Find(dest).Error; err != nil {
		return Meta{}, err
	}
	pages := int(total) / p.PageSize
	if int(total)%p.PageSize > 0 {
		pages++
	}
	return Meta{Total: total, Page: p.Page, PageSize: p.PageSize, TotalPages: pages}, nil
}

// notFound maps gorm's missing-row error onto the app error for entity
func notFound(err error, entity string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Wrap(apperr.ErrNotFound, "%s %d not found", entity, id)
	}
	return err
}

// duplicate maps unique-key violations onto ALREADY_EXISTS
func duplicate(err error, what string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Wrap(apperr.ErrAlreadyExists, "%s already exists", what)
	}
	return err
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func like(s string) string {
	return "%" + s + "%"
}

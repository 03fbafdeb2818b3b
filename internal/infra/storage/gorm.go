package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ecocleans/booking-agent/internal/booking"
)

// BookingRow is the bookings table.
type BookingRow struct {
	ID                string `gorm:"primaryKey;type:varchar(36)"`
	CustomerName      *string
	PhoneNumber       *string
	Email             *string
	Address           *string
	CleaningSize      *string
	Bedrooms          *int
	Bathrooms         *int
	ScheduleDate      *string
	CleaningFrequency *string
	Notes             *string
	Status            string `gorm:"not null;default:pending;index"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (BookingRow) TableName() string { return bookingsTable }

// BeforeCreate assigns a UUID when none is set.
func (r *BookingRow) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = string(booking.StatusPending)
	}
	return nil
}

// Record converts the row to the domain record.
func (r BookingRow) Record() booking.Record {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	return booking.Record{
		ID:                r.ID,
		CustomerName:      deref(r.CustomerName),
		PhoneNumber:       deref(r.PhoneNumber),
		Email:             deref(r.Email),
		Address:           deref(r.Address),
		CleaningSize:      deref(r.CleaningSize),
		Bedrooms:          r.Bedrooms,
		Bathrooms:         r.Bathrooms,
		ScheduleDate:      deref(r.ScheduleDate),
		CleaningFrequency: deref(r.CleaningFrequency),
		Notes:             deref(r.Notes),
		Status:            booking.Status(r.Status),
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// OpenPostgres connects to dsn.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_URL required for the postgres store")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// AutoMigrate creates or updates the bookings table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&BookingRow{})
}

// GormStore implements booking.Store on any GORM dialect.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

// Insert implements booking.Store.
func (s *GormStore) Insert(ctx context.Context, f booking.Fields) (string, error) {
	row := BookingRow{
		CustomerName:      f.CustomerName,
		PhoneNumber:       f.PhoneNumber,
		Email:             f.Email,
		Address:           f.Address,
		CleaningSize:      f.CleaningSize,
		Bedrooms:          f.Bedrooms,
		Bathrooms:         f.Bathrooms,
		ScheduleDate:      f.ScheduleDate,
		CleaningFrequency: f.CleaningFrequency,
		Notes:             f.Notes,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("insert booking: %w", err)
	}
	return row.ID, nil
}

// Update implements booking.Store. Only present fields are written.
func (s *GormStore) Update(ctx context.Context, id string, f booking.Fields) error {
	cols := f.Columns()
	if len(cols) == 0 {
		return nil
	}
	cols["updated_at"] = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&BookingRow{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("update booking: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Get loads one booking.
func (s *GormStore) Get(ctx context.Context, id string) (booking.Record, error) {
	var row BookingRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return booking.Record{}, ErrNotFound
	}
	if err != nil {
		return booking.Record{}, fmt.Errorf("get booking: %w", err)
	}
	return row.Record(), nil
}

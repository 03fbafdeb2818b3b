// Package storage implements booking.Store on Supabase (PostgREST) and on
// GORM-managed SQL databases.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/supabase-community/supabase-go"

	"github.com/ecocleans/booking-agent/internal/booking"
)

const bookingsTable = "bookings"

// ErrNotFound is returned when an update matches no record.
var ErrNotFound = errors.New("storage: booking not found")

// SupabaseStore writes bookings through the Supabase REST API using the
// service-role key.
type SupabaseStore struct {
	client *supabase.Client
	table  string
}

// NewSupabaseStore connects to the project at url.
func NewSupabaseStore(url, serviceRoleKey string) (*SupabaseStore, error) {
	if url == "" || serviceRoleKey == "" {
		return nil, fmt.Errorf("missing Supabase configuration: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY required")
	}
	client, err := supabase.NewClient(strings.TrimRight(url, "/"), serviceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseStore{client: client, table: bookingsTable}, nil
}

type insertedRow struct {
	ID string `json:"id"`
}

type supabaseRow struct {
	ID                string    `json:"id"`
	CustomerName      *string   `json:"customer_name"`
	PhoneNumber       *string   `json:"phone_number"`
	Email             *string   `json:"email"`
	Address           *string   `json:"address"`
	CleaningSize      *string   `json:"cleaning_size"`
	Bedrooms          *int      `json:"bedrooms"`
	Bathrooms         *int      `json:"bathrooms"`
	ScheduleDate      *string   `json:"schedule_date"`
	CleaningFrequency *string   `json:"cleaning_frequency"`
	Notes             *string   `json:"notes"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Insert implements booking.Store. The database assigns the id and status.
func (s *SupabaseStore) Insert(ctx context.Context, f booking.Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	row := f.Columns()
	row["status"] = string(booking.StatusPending)
	body, _, err := s.client.From(s.table).Insert(row, false, "", "representation", "").Execute()
	if err != nil {
		return "", fmt.Errorf("supabase insert: %w", err)
	}
	var rows []insertedRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return "", fmt.Errorf("decode inserted booking: %w", err)
	}
	if len(rows) == 0 || rows[0].ID == "" {
		return "", fmt.Errorf("supabase insert returned no id")
	}
	return rows[0].ID, nil
}

// Update implements booking.Store.
func (s *SupabaseStore) Update(ctx context.Context, id string, f booking.Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, _, err := s.client.From(s.table).Update(f.Columns(), "representation", "").Eq("id", id).Execute()
	if err != nil {
		return fmt.Errorf("supabase update: %w", err)
	}
	var rows []insertedRow
	if err := json.Unmarshal(body, &rows); err == nil && len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

// Get loads one booking.
func (s *SupabaseStore) Get(ctx context.Context, id string) (booking.Record, error) {
	if err := ctx.Err(); err != nil {
		return booking.Record{}, err
	}
	body, _, err := s.client.From(s.table).Select("*", "", false).Eq("id", id).Execute()
	if err != nil {
		return booking.Record{}, fmt.Errorf("supabase select: %w", err)
	}
	var rows []supabaseRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return booking.Record{}, fmt.Errorf("decode booking: %w", err)
	}
	if len(rows) == 0 {
		return booking.Record{}, ErrNotFound
	}
	r := rows[0]
	return BookingRow{
		ID:                r.ID,
		CustomerName:      r.CustomerName,
		PhoneNumber:       r.PhoneNumber,
		Email:             r.Email,
		Address:           r.Address,
		CleaningSize:      r.CleaningSize,
		Bedrooms:          r.Bedrooms,
		Bathrooms:         r.Bathrooms,
		ScheduleDate:      r.ScheduleDate,
		CleaningFrequency: r.CleaningFrequency,
		Notes:             r.Notes,
		Status:            r.Status,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}.Record(), nil
}

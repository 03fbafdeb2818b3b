package booking

import (
	"context"
	"errors"
	"time"
)

// Status is the administrative state of a stored booking.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var (
	// ErrNothingToSave is returned when a draft has no valid field to write.
	ErrNothingToSave = errors.New("booking: nothing to save")
	// ErrInvalidID is returned when an update targets a malformed record id.
	ErrInvalidID = errors.New("booking: invalid booking id")
)

// Record is the durable booking as stored.
type Record struct {
	ID                string    `json:"id"`
	CustomerName      string    `json:"customerName,omitempty"`
	PhoneNumber       string    `json:"phoneNumber,omitempty"`
	Email             string    `json:"email,omitempty"`
	Address           string    `json:"address,omitempty"`
	CleaningSize      string    `json:"cleaningSize,omitempty"`
	Bedrooms          *int      `json:"bedrooms,omitempty"`
	Bathrooms         *int      `json:"bathrooms,omitempty"`
	ScheduleDate      string    `json:"scheduleDate,omitempty"`
	CleaningFrequency string    `json:"cleaningFrequency,omitempty"`
	Notes             string    `json:"notes,omitempty"`
	Status            Status    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Store persists booking records. Insert assigns the id.
type Store interface {
	Insert(ctx context.Context, f Fields) (string, error)
	Update(ctx context.Context, id string, f Fields) error
}

// Notifier receives one call per newly created record.
type Notifier interface {
	BookingCreated(ctx context.Context, id string, d Draft) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, id string, d Draft) error

func (f NotifierFunc) BookingCreated(ctx context.Context, id string, d Draft) error {
	return f(ctx, id, d)
}

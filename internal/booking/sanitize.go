package booking

import (
	"math"
	"regexp"
	"strings"
	"unicode"
)

const (
	maxNameLen      = 100
	maxAddressLen   = 200
	maxShortTextLen = 50
	maxNotesLen     = 1000
	maxEmailLen     = 255
	maxPhoneLen     = 20
	minRooms        = 0
	maxRooms        = 50
)

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// Fields is the validated subset of a draft that may be written to the store.
// A nil field is absent and must not be written.
type Fields struct {
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
}

// Sanitize validates every field of d. Invalid fields are dropped rather than
// failing the whole draft.
func Sanitize(d Draft) Fields {
	return Fields{
		CustomerName:      sanitizeString(d.CustomerName, maxNameLen),
		PhoneNumber:       validatePhone(d.PhoneNumber),
		Email:             validateEmail(d.Email),
		Address:           sanitizeString(d.Address, maxAddressLen),
		CleaningSize:      sanitizeString(d.CleaningSize, maxShortTextLen),
		Bedrooms:          validateRooms(d.Bedrooms),
		Bathrooms:         validateRooms(d.Bathrooms),
		ScheduleDate:      sanitizeString(d.ScheduleDate, maxShortTextLen),
		CleaningFrequency: sanitizeString(d.CleaningFrequency, maxShortTextLen),
		Notes:             sanitizeString(d.Notes, maxNotesLen),
	}
}

// Empty reports whether no field survived validation.
func (f Fields) Empty() bool {
	return len(f.Columns()) == 0
}

// Columns maps the present fields to their store column names.
func (f Fields) Columns() map[string]any {
	cols := make(map[string]any, 10)
	putString := func(name string, v *string) {
		if v != nil {
			cols[name] = *v
		}
	}
	putInt := func(name string, v *int) {
		if v != nil {
			cols[name] = *v
		}
	}
	putString("customer_name", f.CustomerName)
	putString("phone_number", f.PhoneNumber)
	putString("email", f.Email)
	putString("address", f.Address)
	putString("cleaning_size", f.CleaningSize)
	putInt("bedrooms", f.Bedrooms)
	putInt("bathrooms", f.Bathrooms)
	putString("schedule_date", f.ScheduleDate)
	putString("cleaning_frequency", f.CleaningFrequency)
	putString("notes", f.Notes)
	return cols
}

func sanitizeString(s string, maxLen int) *string {
	s = strings.TrimSpace(tagPattern.ReplaceAllString(s, ""))
	if s == "" {
		return nil
	}
	s = truncate(s, maxLen)
	return &s
}

func validateEmail(s string) *string {
	s = truncate(strings.ToLower(strings.TrimSpace(s)), maxEmailLen)
	if !emailPattern.MatchString(s) {
		return nil
	}
	return &s
}

// validatePhone keeps the caller's formatting but requires 10-15 digits.
func validatePhone(s string) *string {
	digits := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits < 10 || digits > 15 {
		return nil
	}
	s = truncate(strings.TrimSpace(s), maxPhoneLen)
	return &s
}

func validateRooms(v *float64) *int {
	if v == nil || math.IsNaN(*v) || *v < minRooms || *v > maxRooms {
		return nil
	}
	n := int(math.Floor(*v))
	return &n
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

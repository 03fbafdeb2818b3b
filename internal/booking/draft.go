package booking

import (
	"math"
	"strconv"
	"strings"
)

// Draft is the progressively filled booking for one conversation.
// Empty strings and nil numbers mean "not collected yet".
type Draft struct {
	CustomerName      string   `json:"customerName,omitempty"`
	PhoneNumber       string   `json:"phoneNumber,omitempty"`
	Email             string   `json:"email,omitempty"`
	Address           string   `json:"address,omitempty"`
	CleaningSize      string   `json:"cleaningSize,omitempty"`
	Bedrooms          *float64 `json:"bedrooms,omitempty"`
	Bathrooms         *float64 `json:"bathrooms,omitempty"`
	ScheduleDate      string   `json:"scheduleDate,omitempty"`
	CleaningFrequency string   `json:"cleaningFrequency,omitempty"`
	Notes             string   `json:"notes,omitempty"`
}

// Number returns a pointer to v, for building drafts in literals.
func Number(v float64) *float64 { return &v }

// IsEmpty reports whether no field has been collected.
func (d Draft) IsEmpty() bool {
	return d.CustomerName == "" && d.PhoneNumber == "" && d.Email == "" &&
		d.Address == "" && d.CleaningSize == "" && d.Bedrooms == nil && d.Bathrooms == nil &&
		d.ScheduleDate == "" && d.CleaningFrequency == "" && d.Notes == ""
}

// Merge folds update into d. A set field is only replaced by another
// non-empty value; absent values in update never erase what d holds.
// changed reports whether any field ended up with a different value.
func (d Draft) Merge(update Draft) (merged Draft, changed bool) {
	merged = d
	str := func(dst *string, v string) {
		if v == "" || *dst == v {
			return
		}
		*dst = v
		changed = true
	}
	num := func(dst **float64, v *float64) {
		if v == nil || (*dst != nil && **dst == *v) {
			return
		}
		n := *v
		*dst = &n
		changed = true
	}
	str(&merged.CustomerName, update.CustomerName)
	str(&merged.PhoneNumber, update.PhoneNumber)
	str(&merged.Email, update.Email)
	str(&merged.Address, update.Address)
	str(&merged.CleaningSize, update.CleaningSize)
	num(&merged.Bedrooms, update.Bedrooms)
	num(&merged.Bathrooms, update.Bathrooms)
	str(&merged.ScheduleDate, update.ScheduleDate)
	str(&merged.CleaningFrequency, update.CleaningFrequency)
	str(&merged.Notes, update.Notes)
	return merged, changed
}

// DraftFromArgs builds a partial draft from function-call arguments keyed by
// the camelCase field names. Unknown keys and wrongly typed values are ignored.
func DraftFromArgs(args map[string]any) Draft {
	var d Draft
	d.CustomerName = argString(args, "customerName")
	d.PhoneNumber = argString(args, "phoneNumber")
	d.Email = argString(args, "email")
	d.Address = argString(args, "address")
	d.CleaningSize = argString(args, "cleaningSize")
	d.Bedrooms = argNumber(args, "bedrooms")
	d.Bathrooms = argNumber(args, "bathrooms")
	d.ScheduleDate = argString(args, "scheduleDate")
	d.CleaningFrequency = argString(args, "cleaningFrequency")
	d.Notes = argString(args, "notes")
	return d
}

func argString(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

func argNumber(args map[string]any, key string) *float64 {
	switch v := args[key].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return Number(v)
	case int:
		return Number(float64(v))
	case int64:
		return Number(float64(v))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return Number(f)
	}
	return nil
}

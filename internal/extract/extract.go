// Package extract recognizes booking details in free conversation text.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ecocleans/booking-agent/internal/booking"
)

var (
	phoneRe    = regexp.MustCompile(`\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	emailRe    = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	bedroomRe  = regexp.MustCompile(`(?i)(\d+)\s*bed(?:room)?s?\b`)
	bathroomRe = regexp.MustCompile(`(?i)(\d+)\s*bath(?:room)?s?\b`)
	// Trigger phrase is case-insensitive; the name itself must be capitalized.
	nameRe    = regexp.MustCompile(`(?i:\bmy name is|\bi'm|\bi am|\bthis is)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)
	addressRe = regexp.MustCompile(`(?i)(?:address is|live at|located at|\bat)\s+(\d+[^,.\n]+?(?:street|st|avenue|ave|road|rd|drive|dr|lane|ln|way|boulevard|blvd)\b[^,.\n]*)`)
	freqRe    = regexp.MustCompile(`(?i)\b(one[- ]?time|bi[- ]?weekly|weekly|monthly|every\s+(?:week|two weeks|other week|month))\b`)
)

// FromText returns the booking fields found in text. Categories without a
// match are left empty. The function is stateless.
func FromText(text string) booking.Draft {
	var d booking.Draft
	if m := phoneRe.FindString(text); m != "" {
		d.PhoneNumber = m
	}
	if m := emailRe.FindString(text); m != "" {
		d.Email = m
	}
	d.Bedrooms = firstNumber(bedroomRe, text)
	d.Bathrooms = firstNumber(bathroomRe, text)
	if m := nameRe.FindStringSubmatch(text); m != nil {
		d.CustomerName = m[1]
	}
	if m := addressRe.FindStringSubmatch(text); m != nil {
		d.Address = strings.TrimSpace(m[1])
	}
	if m := freqRe.FindStringSubmatch(text); m != nil {
		d.CleaningFrequency = m[1]
	}
	return d
}

func firstNumber(re *regexp.Regexp, text string) *float64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return booking.Number(float64(n))
}

// Package notify tells the business about new bookings by email and SMS.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ecocleans/booking-agent/internal/booking"
)

const (
	resendEndpoint   = "https://api.resend.com/emails"
	DefaultEmailFrom = "EcoCleans <onboarding@resend.dev>"
	DefaultEmailTo   = "info@ecocleans.ca"

	notProvided  = "Not provided"
	notSpecified = "Not specified"
)

// ErrNotConfigured means the channel has no credentials and was skipped.
var ErrNotConfigured = errors.New("notify: channel not configured")

var emailTemplate = template.Must(template.New("booking").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <div style="background-color: #22c55e; color: white; padding: 20px; text-align: center;">
    <h1 style="margin: 0;">New Booking Request</h1>
  </div>
  <div style="padding: 20px; background-color: #f9fafb;">
    <h2 style="color: #22c55e;">Customer Information</h2>
    <table style="width: 100%; border-collapse: collapse;">
      <tr><td style="font-weight: bold; width: 40%;">Name:</td><td>{{.CustomerName}}</td></tr>
      <tr><td style="font-weight: bold;">Phone:</td><td>{{.PhoneNumber}}</td></tr>
      <tr><td style="font-weight: bold;">Email:</td><td>{{.Email}}</td></tr>
      <tr><td style="font-weight: bold;">Address:</td><td>{{.Address}}</td></tr>
    </table>
    <h2 style="color: #22c55e;">Cleaning Details</h2>
    <table style="width: 100%; border-collapse: collapse;">
      <tr><td style="font-weight: bold; width: 40%;">Home Size:</td><td>{{.CleaningSize}}</td></tr>
      <tr><td style="font-weight: bold;">Bedrooms:</td><td>{{.Bedrooms}}</td></tr>
      <tr><td style="font-weight: bold;">Bathrooms:</td><td>{{.Bathrooms}}</td></tr>
      <tr><td style="font-weight: bold;">Frequency:</td><td>{{.CleaningFrequency}}</td></tr>
      <tr><td style="font-weight: bold;">Preferred Date:</td><td>{{.ScheduleDate}}</td></tr>
    </table>
{{- if .Notes}}
    <h2 style="color: #22c55e;">Additional Notes</h2>
    <p style="background-color: white; padding: 15px; border: 1px solid #e5e7eb;">{{.Notes}}</p>
{{- end}}
    <p style="margin-top: 30px; color: #166534;"><strong>Action Required:</strong> Please follow up with this customer as soon as possible.</p>
    <p style="font-size: 12px; color: #6b7280;">Reference: {{.ID}}</p>
  </div>
  <div style="background-color: #1f2937; color: white; padding: 15px; text-align: center; font-size: 12px;">EcoCleans - Professional Cleaning Services</div>
</div>
`))

// Summary is a booking with display defaults filled in.
type Summary struct {
	ID                string
	CustomerName      string
	PhoneNumber       string
	Email             string
	Address           string
	CleaningSize      string
	Bedrooms          string
	Bathrooms         string
	CleaningFrequency string
	ScheduleDate      string
	Notes             string
}

// Summarize fills missing fields with "Not provided" or "Not specified".
func Summarize(id string, d booking.Draft) Summary {
	return Summary{
		ID:                id,
		CustomerName:      or(d.CustomerName, notProvided),
		PhoneNumber:       or(d.PhoneNumber, notProvided),
		Email:             or(d.Email, notProvided),
		Address:           or(d.Address, notProvided),
		CleaningSize:      or(d.CleaningSize, notSpecified),
		Bedrooms:          rooms(d.Bedrooms),
		Bathrooms:         rooms(d.Bathrooms),
		CleaningFrequency: or(d.CleaningFrequency, notSpecified),
		ScheduleDate:      or(d.ScheduleDate, notSpecified),
		Notes:             d.Notes,
	}
}

// Subject is the email subject line.
func Subject(d booking.Draft) string {
	return fmt.Sprintf("New Booking: %s - %s", or(d.CustomerName, "New Customer"), or(d.ScheduleDate, "Date TBD"))
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func rooms(v *float64) string {
	if v == nil || *v == 0 {
		return notSpecified
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// Email sends the booking summary through the Resend API.
type Email struct {
	HTTPClient *http.Client
	Endpoint   string
	APIKey     string
	From       string
	To         string
}

// NewEmail returns a Resend sender. An empty apiKey disables the channel.
func NewEmail(apiKey, from, to string) *Email {
	return &Email{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Endpoint:   resendEndpoint,
		APIKey:     apiKey,
		From:       or(from, DefaultEmailFrom),
		To:         or(to, DefaultEmailTo),
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Name implements Channel.
func (e *Email) Name() string { return "email" }

// Send implements Channel.
func (e *Email) Send(ctx context.Context, id string, d booking.Draft) error {
	if e.APIKey == "" {
		return ErrNotConfigured
	}
	var html bytes.Buffer
	if err := emailTemplate.Execute(&html, Summarize(id, d)); err != nil {
		return fmt.Errorf("render email: %w", err)
	}
	body, err := json.Marshal(resendRequest{From: e.From, To: []string{e.To}, Subject: Subject(d), HTML: html.String()})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+e.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("resend request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("resend status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

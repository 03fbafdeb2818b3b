package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"

	"github.com/ecocleans/booking-agent/internal/booking"
)

func sampleDraft() booking.Draft {
	return booking.Draft{
		CustomerName: "Jane <b>Doe</b>",
		PhoneNumber:  "555-123-4567",
		ScheduleDate: "next Friday",
		Bedrooms:     booking.Number(3),
		Notes:        "gate code <1234>",
	}
}

func TestSubject(t *testing.T) {
	if got := Subject(booking.Draft{}); got != "New Booking: New Customer - Date TBD" {
		t.Fatalf("unexpected default subject %q", got)
	}
	if got := Subject(booking.Draft{CustomerName: "Jane", ScheduleDate: "Friday"}); got != "New Booking: Jane - Friday" {
		t.Fatalf("unexpected subject %q", got)
	}
}

func TestSummarize_Defaults(t *testing.T) {
	s := Summarize("id-1", booking.Draft{Bathrooms: booking.Number(1.5)})
	if s.CustomerName != notProvided || s.Email != notProvided || s.CleaningSize != notSpecified {
		t.Fatalf("missing defaults: %+v", s)
	}
	if s.Bedrooms != notSpecified || s.Bathrooms != "1.5" {
		t.Fatalf("unexpected room display %q %q", s.Bedrooms, s.Bathrooms)
	}
}

func TestEmail_SendsEscapedHTML(t *testing.T) {
	var got resendRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)
		_, _ = w.Write([]byte(`{"id":"em_1"}`))
	}))
	defer srv.Close()

	e := NewEmail("re_key", "", "")
	e.HTTPClient = &http.Client{Timeout: 2 * time.Second, Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		req.URL.Scheme = "http"
		req.URL.Host = srv.Listener.Addr().String()
		return http.DefaultTransport.RoundTrip(req)
	})}

	if err := e.Send(context.Background(), "b-1", sampleDraft()); err != nil {
		t.Fatalf("send: %v", err)
	}
	if auth != "Bearer re_key" {
		t.Fatalf("unexpected auth header %q", auth)
	}
	if got.From != DefaultEmailFrom || len(got.To) != 1 || got.To[0] != DefaultEmailTo {
		t.Fatalf("unexpected envelope %+v", got)
	}
	if strings.Contains(got.HTML, "<b>Doe</b>") || !strings.Contains(got.HTML, "&lt;b&gt;Doe&lt;/b&gt;") {
		t.Fatalf("customer input must be escaped")
	}
	if !strings.Contains(got.HTML, "Additional Notes") || !strings.Contains(got.HTML, notProvided) {
		t.Fatalf("expected notes section and defaults in body")
	}
}

func TestEmail_Failures(t *testing.T) {
	if err := NewEmail("", "", "").Send(context.Background(), "x", booking.Draft{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid from"}`))
	}))
	defer srv.Close()
	e := NewEmail("k", "", "")
	e.Endpoint = srv.URL
	err := e.Send(context.Background(), "x", booking.Draft{})
	if err == nil || !strings.Contains(err.Error(), "422") {
		t.Fatalf("expected status error, got %v", err)
	}
}

type fakeMessages struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeMessages) CreateMessage(p *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, p)
	return &twilioApi.ApiV2010Message{}, f.err
}

func TestSMS_Send(t *testing.T) {
	fm := &fakeMessages{}
	s := &SMS{api: fm, from: "+15550000000", to: "+15551111111"}
	if err := s.Send(context.Background(), "b-1", sampleDraft()); err != nil {
		t.Fatalf("send: %v", err)
	}
	p := fm.params[0]
	if *p.To != "+15551111111" || *p.From != "+15550000000" {
		t.Fatalf("unexpected numbers %s %s", *p.To, *p.From)
	}
	if !strings.Contains(*p.Body, "555-123-4567") || !strings.HasSuffix(*p.Body, "Ref b-1") {
		t.Fatalf("unexpected body %q", *p.Body)
	}

	if err := NewSMS("", "", "", "").Send(context.Background(), "b", booking.Draft{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSMS_PacedSendsRespectDeadline(t *testing.T) {
	fm := &fakeMessages{}
	s := &SMS{api: fm, from: "+15550000000", to: "+15551111111", pace: rate.NewLimiter(rate.Every(time.Hour), 1)}
	if err := s.Send(context.Background(), "b-1", sampleDraft()); err != nil {
		t.Fatalf("first send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Send(ctx, "b-2", sampleDraft()); err == nil {
		t.Fatalf("second send inside the pacing interval should fail on deadline")
	}
	if len(fm.params) != 1 {
		t.Fatalf("expected one message created, got %d", len(fm.params))
	}
}

func TestSMSBody_Truncates(t *testing.T) {
	d := booking.Draft{Address: strings.Repeat("x", 600)}
	if n := len([]rune(SMSBody("id", d))); n != maxSMSLen {
		t.Fatalf("expected %d runes, got %d", maxSMSLen, n)
	}
}

type stubChannel struct {
	name  string
	err   error
	calls int
}

func (s *stubChannel) Name() string { return s.name }
func (s *stubChannel) Send(ctx context.Context, id string, d booking.Draft) error {
	s.calls++
	return s.err
}

func TestMulti_ContinuesPastFailures(t *testing.T) {
	failing := &stubChannel{name: "email", err: errors.New("down")}
	skipped := &stubChannel{name: "sms", err: ErrNotConfigured}
	ok := &stubChannel{name: "other"}
	m := NewMulti(nil, failing, skipped, ok)

	err := m.BookingCreated(context.Background(), "id", booking.Draft{})
	if err == nil || !strings.Contains(err.Error(), "email: down") {
		t.Fatalf("expected joined email failure, got %v", err)
	}
	if errors.Is(err, ErrNotConfigured) {
		t.Fatalf("skipped channels are not failures")
	}
	if failing.calls != 1 || skipped.calls != 1 || ok.calls != 1 {
		t.Fatalf("every channel should be tried once")
	}

	if err := NewMulti(nil, skipped).BookingCreated(context.Background(), "id", booking.Draft{}); err != nil {
		t.Fatalf("only skipped channels should not fail: %v", err)
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

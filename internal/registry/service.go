package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"eventpass/internal/ticket"
)

// RegistrationInput is the payload accepted from the registration form.
type RegistrationInput struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Gender       string `json:"gender"`
	AcademicYear string `json:"academic_year"`
	Batch        string `json:"batch"`
}

// Ticket is the result of a successful registration: the persisted
// attendee plus the rendered QR image and a filesystem-safe download name.
type Ticket struct {
	Attendee Attendee
	PNG      []byte
	Filename string
	URL      string
}

// Service coordinates registration and check-in over a Store.
type Service struct {
	store   Store
	baseURL string
}

// NewService creates a service. baseURL is the public origin embedded in
// ticket check-in URLs.
func NewService(store Store, baseURL string) *Service {
	return &Service{store: store, baseURL: baseURL}
}

// Register validates input, persists exactly one new attendee, and
// returns the rendered ticket. The store insert is the sole uniqueness
// gate; nothing is written on any failure path.
func (s *Service) Register(ctx context.Context, in RegistrationInput) (Ticket, error) {
	if err := validate(in); err != nil {
		return Ticket{}, err
	}

	att := Attendee{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(in.Name),
		Email:        NormalizeEmail(in.Email),
		Gender:       in.Gender,
		AcademicYear: in.AcademicYear,
		Batch:        in.Batch,
		Token:        NewToken(),
		RegisteredAt: time.Now().UTC(),
	}

	saved, err := s.store.Insert(ctx, att)
	if errors.Is(err, ErrDuplicateToken) {
		// A 128-bit collision is effectively impossible; one retry with a
		// fresh token covers it without looping forever.
		att.Token = NewToken()
		saved, err = s.store.Insert(ctx, att)
	}
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return Ticket{}, ErrDuplicateEmail
		}
		return Ticket{}, fmt.Errorf("persist attendee: %w", err)
	}

	checkinURL := ticket.CheckinURL(s.baseURL, saved.Token)
	png, err := ticket.Encode(checkinURL)
	if err != nil {
		return Ticket{}, fmt.Errorf("render ticket: %w", err)
	}

	return Ticket{
		Attendee: saved,
		PNG:      png,
		Filename: ticket.Filename(saved.Name),
		URL:      checkinURL,
	}, nil
}

// CheckIn redeems a token. The three-way result is domain data: the
// operator needs "not a ticket" vs "already used" vs "accept", so none of
// these outcomes is an error.
func (s *Service) CheckIn(ctx context.Context, token string) (CheckinResult, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return CheckinResult{Status: StatusNotRegistered}, nil
	}

	att, transitioned, err := s.store.CheckIn(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return CheckinResult{Status: StatusNotRegistered}, nil
	}
	if err != nil {
		return CheckinResult{}, fmt.Errorf("check in token: %w", err)
	}
	if !transitioned {
		return CheckinResult{Status: StatusAlreadyScanned, Name: att.Name}, nil
	}
	return CheckinResult{Status: StatusSuccess, Name: att.Name}, nil
}

// Attendees returns every registration, newest first.
func (s *Service) Attendees(ctx context.Context) ([]Attendee, error) {
	return s.store.ListAll(ctx)
}

// Lookup finds one attendee by (normalized) email; nil when absent.
func (s *Service) Lookup(ctx context.Context, email string) (*Attendee, error) {
	return s.store.FindByEmail(ctx, NormalizeEmail(email))
}

// Stats returns aggregate attendance counts.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	return s.store.Stats(ctx)
}

// Scans returns the most recent scan audit entries.
func (s *Service) Scans(ctx context.Context, limit int) ([]ScanEvent, error) {
	return s.store.ListScans(ctx, limit)
}

// Reset wipes every attendee and scan record. Irreversible; used between
// events, never for individual corrections.
func (s *Service) Reset(ctx context.Context) error {
	return s.store.ResetAll(ctx)
}

func validate(in RegistrationInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return invalidf("name", "required")
	}
	email := NormalizeEmail(in.Email)
	if email == "" {
		return invalidf("email", "required")
	}
	if !strings.Contains(email[1:], "@") || strings.HasSuffix(email, "@") {
		return invalidf("email", "not a valid address")
	}
	if !member(Genders, in.Gender) {
		return invalidf("gender", "must be one of %s", strings.Join(Genders, ", "))
	}
	if !member(AcademicYears, in.AcademicYear) {
		return invalidf("academic_year", "must be one of %s", strings.Join(AcademicYears, ", "))
	}
	if !member(Batches, in.Batch) {
		return invalidf("batch", "must be one of %s", strings.Join(Batches, ", "))
	}
	return nil
}

package registry_test

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"eventpass/internal/registry"
	"eventpass/internal/store"
)

const baseURL = "https://event.example.com"

func newService() *registry.Service {
	return registry.NewService(store.NewMemory(), baseURL)
}

func validInput() registry.RegistrationInput {
	return registry.RegistrationInput{
		Name:         "Jane Doe",
		Email:        "jane@example.com",
		Gender:       "female",
		AcademicYear: "second",
		Batch:        "B",
	}
}

func TestRegisterValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*registry.RegistrationInput)
		field  string
	}{
		{"missing name", func(in *registry.RegistrationInput) { in.Name = "  " }, "name"},
		{"missing email", func(in *registry.RegistrationInput) { in.Email = "" }, "email"},
		{"malformed email", func(in *registry.RegistrationInput) { in.Email = "not-an-address" }, "email"},
		{"bare at sign", func(in *registry.RegistrationInput) { in.Email = "@" }, "email"},
		{"trailing at sign", func(in *registry.RegistrationInput) { in.Email = "jane@" }, "email"},
		{"unknown gender", func(in *registry.RegistrationInput) { in.Gender = "yes" }, "gender"},
		{"unknown year", func(in *registry.RegistrationInput) { in.AcademicYear = "fifth" }, "academic_year"},
		{"unknown batch", func(in *registry.RegistrationInput) { in.Batch = "Z" }, "batch"},
	}

	svc := newService()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, err := svc.Register(context.Background(), in)
			var invalid *registry.InvalidInputError
			if !errors.As(err, &invalid) {
				t.Fatalf("err = %v, want *InvalidInputError", err)
			}
			if invalid.Field != tc.field {
				t.Fatalf("field = %q, want %q", invalid.Field, tc.field)
			}
		})
	}
}

func TestRegisterIssuesTicket(t *testing.T) {
	svc := newService()
	tkt, err := svc.Register(context.Background(), validInput())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	att := tkt.Attendee
	if att.ID == "" || att.Token == "" {
		t.Fatalf("missing id or token: %+v", att)
	}
	if att.Email != "jane@example.com" {
		t.Fatalf("email = %q, want normalized", att.Email)
	}
	if att.CheckedIn {
		t.Fatal("new attendee must not be checked in")
	}
	if want := baseURL + "/checkin?t=" + att.Token; tkt.URL != want {
		t.Fatalf("ticket URL = %q, want %q", tkt.URL, want)
	}
	if tkt.Filename != "ticket-jane_doe.png" {
		t.Fatalf("filename = %q", tkt.Filename)
	}
	if len(tkt.PNG) == 0 {
		t.Fatal("empty ticket image")
	}
}

func TestRegisterNormalizedDuplicate(t *testing.T) {
	svc := newService()

	first := validInput()
	first.Email = "A@X.com"
	if _, err := svc.Register(context.Background(), first); err != nil {
		t.Fatalf("first register: %v", err)
	}

	second := validInput()
	second.Email = "a@x.com "
	_, err := svc.Register(context.Background(), second)
	if !errors.Is(err, registry.ErrDuplicateEmail) {
		t.Fatalf("err = %v, want ErrDuplicateEmail", err)
	}
}

func TestRegisterConcurrentSameEmail(t *testing.T) {
	svc := newService()

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Register(context.Background(), validInput())
		}(i)
	}
	wg.Wait()

	success, duplicate := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			success++
		case errors.Is(err, registry.ErrDuplicateEmail):
			duplicate++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 || duplicate != n-1 {
		t.Fatalf("success = %d, duplicate = %d; want 1 and %d", success, duplicate, n-1)
	}
}

func TestRegisterUniqueTokens(t *testing.T) {
	svc := newService()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		tkt, err := svc.Register(context.Background(), registry.RegistrationInput{
			Name: "N", Email: "user" + strconv.Itoa(i) + "@example.com",
			Gender: "other", AcademicYear: "first", Batch: "A",
		})
		if err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
		if seen[tkt.Attendee.Token] {
			t.Fatalf("duplicate token at %d", i)
		}
		seen[tkt.Attendee.Token] = true
	}
}

func TestCheckinOutcomes(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	if res, err := svc.CheckIn(ctx, "deadbeefdeadbeefdeadbeefdeadbeef"); err != nil {
		t.Fatalf("checkin unknown: %v", err)
	} else if res.Status != registry.StatusNotRegistered {
		t.Fatalf("status = %q, want not_registered", res.Status)
	}

	if res, err := svc.CheckIn(ctx, "   "); err != nil {
		t.Fatalf("checkin blank: %v", err)
	} else if res.Status != registry.StatusNotRegistered {
		t.Fatalf("blank token status = %q, want not_registered", res.Status)
	}

	tkt, err := svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	res, err := svc.CheckIn(ctx, tkt.Attendee.Token)
	if err != nil {
		t.Fatalf("first checkin: %v", err)
	}
	if res.Status != registry.StatusSuccess || res.Name != "Jane Doe" {
		t.Fatalf("first checkin = %+v, want success for Jane Doe", res)
	}

	res, err = svc.CheckIn(ctx, tkt.Attendee.Token)
	if err != nil {
		t.Fatalf("second checkin: %v", err)
	}
	if res.Status != registry.StatusAlreadyScanned || res.Name != "Jane Doe" {
		t.Fatalf("second checkin = %+v, want already_scanned for Jane Doe", res)
	}
}

func TestCheckinConcurrentSingleSuccess(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	tkt, err := svc.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	results := make([]registry.CheckinResult, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.CheckIn(ctx, tkt.Attendee.Token)
			if err != nil {
				t.Errorf("checkin %d: %v", i, err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	success, already := 0, 0
	for _, res := range results {
		switch res.Status {
		case registry.StatusSuccess:
			success++
		case registry.StatusAlreadyScanned:
			already++
		default:
			t.Fatalf("unexpected status %q", res.Status)
		}
	}
	if success != 1 || already != n-1 {
		t.Fatalf("success = %d, already = %d; want 1 and %d", success, already, n-1)
	}

	att, err := svc.Lookup(ctx, "jane@example.com")
	if err != nil || att == nil {
		t.Fatalf("lookup after checkin: att=%v err=%v", att, err)
	}
	if !att.CheckedIn {
		t.Fatal("checked_in flag not persisted")
	}
}

func TestResetClearsLedger(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	if _, err := svc.Register(ctx, validInput()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}

	attendees, err := svc.Attendees(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(attendees) != 0 {
		t.Fatalf("attendees after reset = %d, want 0", len(attendees))
	}

	// The prior email must be registrable again after a wipe.
	if _, err := svc.Register(ctx, validInput()); err != nil {
		t.Fatalf("re-register after reset: %v", err)
	}
}


package registry

import (
	"strings"
	"time"
)

// Attendee is a single event registration. One row per normalized email;
// the token is the only credential needed at the door.
type Attendee struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Gender       string    `json:"gender"`
	AcademicYear string    `json:"academic_year"`
	Batch        string    `json:"batch"`
	Token        string    `json:"token"`
	CheckedIn    bool      `json:"checked_in"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Closed value sets for the enumerated registration fields.
var (
	Genders       = []string{"male", "female", "other"}
	AcademicYears = []string{"first", "second", "third", "fourth"}
	Batches       = []string{"A", "B", "C"}
)

// Status is the three-way outcome of a scan. These are business outcomes,
// not errors: the door operator needs distinct feedback for each.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusAlreadyScanned Status = "already_scanned"
	StatusNotRegistered  Status = "not_registered"
)

// CheckinResult reports the outcome of redeeming a token. Name is set for
// the two outcomes that resolved to a known attendee.
type CheckinResult struct {
	Status Status `json:"status"`
	Name   string `json:"name,omitempty"`
}

// ScanEvent is one audit-trail entry, recorded for every scan attempt.
type ScanEvent struct {
	Token     string    `json:"token"`
	Status    Status    `json:"status"`
	Name      string    `json:"name,omitempty"`
	ScannedAt time.Time `json:"scanned_at"`
}

// Stats are the aggregate attendance counts shown on the admin screen.
type Stats struct {
	Total     int `json:"total"`
	CheckedIn int `json:"checked_in"`
	Pending   int `json:"pending"`
}

// NormalizeEmail trims and lower-cases an email so that "A@X.com" and
// "a@x.com " register as the same attendee.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func member(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Package ticket renders scannable QR tickets for registered attendees.
package ticket

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

// Size is the rendered ticket edge length in pixels.
const Size = 600

const maxNameRunes = 40

// CheckinURL builds the fully-qualified URL embedded in the ticket:
// <base>/checkin?t=<token>.
func CheckinURL(base, token string) string {
	q := url.Values{}
	q.Set("t", token)
	return strings.TrimRight(base, "/") + "/checkin?" + q.Encode()
}

// Encode renders checkinURL into a Size x Size PNG QR code, black modules
// on white with the standard quiet zone. The image decodes back to the
// exact URL string with any stock reader.
func Encode(checkinURL string) ([]byte, error) {
	png, err := qrcode.Encode(checkinURL, qrcode.Medium, Size)
	if err != nil {
		return nil, fmt.Errorf("encode ticket qr: %w", err)
	}
	return png, nil
}

// Filename derives a download name for the ticket from the attendee's
// display name. Non-alphanumeric runes become underscores so the result
// is safe on any filesystem.
func Filename(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= maxNameRunes {
			break
		}
	}
	safe := strings.Trim(b.String(), "_")
	if safe == "" {
		safe = "attendee"
	}
	return "ticket-" + safe + ".png"
}

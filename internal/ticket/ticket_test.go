package ticket

import (
	"bytes"
	"image/png"
	"strings"
	"testing"
)

func TestCheckinURL(t *testing.T) {
	cases := []struct {
		base, token, want string
	}{
		{"https://event.example.com", "abc123", "https://event.example.com/checkin?t=abc123"},
		{"https://event.example.com/", "abc123", "https://event.example.com/checkin?t=abc123"},
		{"http://localhost:8080", "00ff", "http://localhost:8080/checkin?t=00ff"},
	}
	for _, tc := range cases {
		if got := CheckinURL(tc.base, tc.token); got != tc.want {
			t.Errorf("CheckinURL(%q, %q) = %q, want %q", tc.base, tc.token, got, tc.want)
		}
	}
}

func TestEncodeProducesPNG(t *testing.T) {
	url := CheckinURL("https://event.example.com", "0123456789abcdef0123456789abcdef")
	data, err := Encode(url)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("result is not a decodable PNG: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != Size || bounds.Dy() != Size {
		t.Fatalf("image is %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), Size, Size)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	// QR version 40 tops out near 3KB; beyond that encoding must fail
	// rather than emit an unscannable image.
	if _, err := Encode(strings.Repeat("x", 8000)); err == nil {
		t.Fatal("expected error for oversized payload")
	}
}

func TestFilename(t *testing.T) {
	cases := []struct {
		name, want string
	}{
		{"Jane Doe", "ticket-jane_doe.png"},
		{"  Ada Lovelace  ", "ticket-ada_lovelace.png"},
		{"O'Brien, Seán", "ticket-o_brien__se_n.png"},
		{"###", "ticket-attendee.png"},
		{"", "ticket-attendee.png"},
		{"x", "ticket-x.png"},
	}
	for _, tc := range cases {
		if got := Filename(tc.name); got != tc.want {
			t.Errorf("Filename(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestFilenameBounded(t *testing.T) {
	got := Filename(strings.Repeat("a very long name ", 20))
	if len(got) > len("ticket-")+50 {
		t.Fatalf("filename too long: %q", got)
	}
	if !strings.HasPrefix(got, "ticket-") || !strings.HasSuffix(got, ".png") {
		t.Fatalf("filename shape wrong: %q", got)
	}
}

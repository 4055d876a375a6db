package auth

import (
	"errors"
	"testing"
	"time"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("secret", "tracker", "tracker-api")
	token, err := v.Issue("alice", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	sub, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if sub != "alice" {
		t.Errorf("Verify() subject = %q, want %q", sub, "alice")
	}
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier("secret", "tracker", "tracker-api")

	expired, _ := v.Issue("alice", -time.Hour)
	otherSecret, _ := NewVerifier("other", "tracker", "tracker-api").Issue("alice", time.Hour)
	otherIssuer, _ := NewVerifier("secret", "someone-else", "tracker-api").Issue("alice", time.Hour)
	otherAudience, _ := NewVerifier("secret", "tracker", "another-api").Issue("alice", time.Hour)
	noSubject, _ := v.Issue("", time.Hour)

	tests := map[string]string{
		"expired":        expired,
		"wrong secret":   otherSecret,
		"wrong issuer":   otherIssuer,
		"wrong audience": otherAudience,
		"no subject":     noSubject,
		"garbage":        "not-a-jwt",
	}
	for name, token := range tests {
		if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify(%s) error = %v, want ErrInvalidToken", name, err)
		}
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		err    error
	}{
		{"Bearer abc.def", "abc.def", nil},
		{"bearer   abc", "abc", nil},
		{"", "", ErrMissingToken},
		{"Basic dXNlcg==", "", ErrMissingToken},
		{"Bearer ", "", ErrMissingToken},
	}
	for _, tt := range tests {
		got, err := BearerToken(tt.header)
		if got != tt.want || !errors.Is(err, tt.err) {
			t.Errorf("BearerToken(%q) = %q, %v; want %q, %v", tt.header, got, err, tt.want, tt.err)
		}
	}
}

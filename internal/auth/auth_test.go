package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueVerify(t *testing.T) {
	a, err := New("secret", time.Hour)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	token, err := a.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	got, err := a.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if got != "user-1" {
		t.Errorf("subject = %q, want user-1", got)
	}
}

func TestVerifyRejects(t *testing.T) {
	a, _ := New("secret", time.Hour)
	other, _ := New("different", time.Hour)

	foreign, _ := other.Issue("user-1")
	if _, err := a.Verify(foreign); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong secret: err = %v", err)
	}

	expired, _ := New("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _ := expired.Issue("user-1")
	if _, err := a.Verify(old); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired: err = %v", err)
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "x", Issuer: issuer})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := a.Verify(unsigned); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("alg none: err = %v", err)
	}

	if _, err := a.Verify("garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage: err = %v", err)
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New("", time.Hour); !errors.Is(err, ErrNoSecret) {
		t.Errorf("err = %v, want ErrNoSecret", err)
	}
}

func TestFromRequest(t *testing.T) {
	a, _ := New("secret", 0)
	token, _ := a.Issue("user-9")

	r := httptest.NewRequest("GET", "/api/accounts", nil)
	if _, err := a.FromRequest(r); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("no header: err = %v", err)
	}

	r.Header.Set("Authorization", "Bearer "+token)
	got, err := a.FromRequest(r)
	if err != nil {
		t.Fatalf("FromRequest failed: %v", err)
	}
	if got != "user-9" {
		t.Errorf("user = %q", got)
	}
}

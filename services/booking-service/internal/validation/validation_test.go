package validation

import (
	"errors"
	"testing"

	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/apperror"
)

type contact struct {
	Name  string `json:"name" validate:"required,max=5"`
	Email string `json:"email" validate:"required,strictemail"`
	Skip  string `json:"-" validate:"max=1"`
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	v := New()
	err := Struct(v, contact{Name: "too long", Email: "a@b"})
	var verr *apperror.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.FieldErrors["name"] != "must be at most 5 characters" {
		t.Fatalf("unexpected name error: %q", verr.FieldErrors["name"])
	}
	if verr.FieldErrors["email"] != "must be a valid email address" {
		t.Fatalf("unexpected email error: %q", verr.FieldErrors["email"])
	}
}

func TestStrictEmail(t *testing.T) {
	v := New()
	cases := map[string]bool{
		"ada@example.com":      true,
		"a.b+c@sub.example.io": true,
		"ada@example":          false,
		"ada example@x.com":    false,
		"@example.com":         false,
		"ada@@example.com":     false,
	}
	for email, ok := range cases {
		err := Struct(v, contact{Name: "ada", Email: email})
		if (err == nil) != ok {
			t.Fatalf("email %q: valid=%v, err=%v", email, ok, err)
		}
	}
}

func TestRequired(t *testing.T) {
	err := Struct(New(), contact{})
	var verr *apperror.ValidationError
	if !errors.As(err, &verr) || verr.FieldErrors["name"] != "is required" || verr.FieldErrors["email"] != "is required" {
		t.Fatalf("expected required errors, got %v", err)
	}
}

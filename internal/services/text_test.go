package services

import (
	"errors"
	"testing"
)

func TestNormalizers(t *testing.T) {
	if got := normalizeContent("  line one\n  line two \n"); got != "line one\n  line two" {
		t.Fatalf("normalizeContent = %q", got)
	}
	// "e" + combining acute composes to a single rune.
	if got := normalizeNickname("  Re\u0301my   B "); got != "R\u00e9my B" {
		t.Fatalf("normalizeNickname = %q", got)
	}
	if got := normalizeUsername(" ÅSA "); got != "åsa" {
		t.Fatalf("normalizeUsername = %q", got)
	}
}

func TestValidateUsername(t *testing.T) {
	for _, ok := range []string{"abc", "a.b-c_d", "jörg"} {
		if err := validateUsername(ok); err != nil {
			t.Fatalf("%q rejected: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "ab", "with space", "semi;colon", "averyveryveryverylongusernamethatisover"} {
		if err := validateUsername(bad); !errors.Is(err, ErrValidation) {
			t.Fatalf("%q accepted", bad)
		}
	}
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("disk full")
	err := storeErr("insert", cause)
	if !errors.Is(err, ErrStore) || !errors.Is(err, cause) {
		t.Fatalf("store error does not unwrap: %v", err)
	}
	if !errors.Is(notFound("tracker"), ErrNotFound) || !errors.Is(forbidden("x"), ErrForbidden) {
		t.Fatal("helpers lost their kinds")
	}
	var ve *ValidationError
	if !errors.As(invalid("status", "bad %d", 1), &ve) || ve.Field != "status" || ve.Reason != "bad 1" {
		t.Fatalf("validation error = %+v", ve)
	}
}

package security

import (
	"errors"
	"strings"
	"testing"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

func assertViolation(t *testing.T, err error, expectedCode string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected validation error for %s", expectedCode)
	}
	var vErr *PasswordValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected PasswordValidationError, got %T", err)
	}
	if vErr.Code != expectedCode {
		t.Fatalf("expected %s code, got %s", expectedCode, vErr.Code)
	}
}

func TestDefaultPasswordValidator(t *testing.T) {
	validator := DefaultPasswordValidator()

	if err := validator.Validate("secret1"); err != nil {
		t.Fatalf("expected six+ character password to pass, got %v", err)
	}
	if err := validator.Validate("newpass1"); err != nil {
		t.Fatalf("expected password to pass, got %v", err)
	}

	err := validator.Validate("short")
	assertViolation(t, err, "min_length")
	if err.Error() != "password must be at least 6 characters long" {
		t.Fatalf("unexpected message: %s", err.Error())
	}

	assertViolation(t, validator.Validate(strings.Repeat("a", defaultMaxPasswordLength+1)), "max_length")
}

func TestMinLengthCountsRunes(t *testing.T) {
	validator := NewPasswordValidator(MinLengthRule(6))
	if err := validator.Validate("пароль"); err != nil {
		t.Fatalf("expected six-rune password to pass, got %v", err)
	}
}

func TestPolicyValidatorWithStrengthScore(t *testing.T) {
	validator := NewPolicyValidator(PasswordPolicy{MinLength: 8, MinStrengthScore: 3})

	password := "C0mplex!Passphrase#2025"
	if strength := zxcvbn.PasswordStrength(password, nil); strength.Score < 3 {
		t.Fatalf("test password unexpectedly weak: score=%d", strength.Score)
	}
	if err := validator.Validate(password, "a@x.com"); err != nil {
		t.Fatalf("expected password to pass validation, got %v", err)
	}

	assertViolation(t, validator.Validate("Short1!"), "min_length")
	assertViolation(t, validator.Validate("password123"), "weak_password")
}

func TestNilValidator(t *testing.T) {
	var validator *PasswordValidator
	if err := validator.Validate("anything"); err == nil {
		t.Fatal("expected error from nil validator")
	}
}

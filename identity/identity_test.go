package identity

import (
	"errors"
	"testing"

	errorspkg "github.com/sweetpotato0/finsight/errors"
)

func TestNewScope(t *testing.T) {
	scope, err := NewScope("u1")
	if err != nil {
		t.Fatalf("NewScope: %v", err)
	}
	if scope.UserID() != "u1" {
		t.Errorf("UserID = %q, want u1", scope.UserID())
	}
}

func TestNewScopeRejectsEmptyUser(t *testing.T) {
	if _, err := NewScope(""); !errors.Is(err, errorspkg.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

// Package identity carries the calling user's identity for the lifetime of a
// single agent run. A Scope is created when the run begins, handed by
// reference into tool dispatch, and discarded with the run. It is never
// serialized into prompts or tool schemas, so the model cannot see or alter
// which user's data the tools operate on.
package identity

import (
	"fmt"

	errorspkg "github.com/sweetpotato0/finsight/errors"
)

// Scope binds one run to one user. The user id is unexported so the scope
// cannot be mutated after construction, even when tool instances are pooled
// across concurrent runs.
type Scope struct {
	userID string
}

// NewScope creates a scope for the given user id.
func NewScope(userID string) (*Scope, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id cannot be empty", errorspkg.ErrInvalidInput)
	}
	return &Scope{userID: userID}, nil
}

// UserID returns the user this run is scoped to.
func (s *Scope) UserID() string {
	return s.userID
}

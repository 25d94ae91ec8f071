package server

import (
	"errors"
	"net/http"
)

// Identity is the already-authenticated principal attached to a request by
// the upstream gateway. HouseholdID is empty for users without a household.
type Identity struct {
	UserID      string
	HouseholdID string
}

// ErrNoIdentity is returned when a request carries no usable identity.
var ErrNoIdentity = errors.New("no identity on request")

// Verifier resolves the identity the auth collaborator attached to a request.
type Verifier interface {
	Verify(r *http.Request) (Identity, error)
}

// Gateway identity headers. The gateway strips these from client requests
// before injecting its own, so they are trustworthy inside the perimeter.
const (
	headerUserID      = "X-Pantrio-User-Id"
	headerHouseholdID = "X-Pantrio-Household-Id"
)

// HeaderVerifier reads identity from gateway headers.
type HeaderVerifier struct{}

func (HeaderVerifier) Verify(r *http.Request) (Identity, error) {
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		return Identity{}, ErrNoIdentity
	}
	return Identity{
		UserID:      userID,
		HouseholdID: r.Header.Get(headerHouseholdID),
	}, nil
}

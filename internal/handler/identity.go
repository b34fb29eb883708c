package handler

import (
	"net/http"
	"strings"

	"github.com/ajaySingh2615/devices/internal/domain/cart"
)

// Upstream auth terminates before this service and forwards the caller's
// identity in headers: exactly one of the two must be present.
const (
	headerUserID    = "X-User-ID"
	headerSessionID = "X-Session-ID"
)

// identity extracts the caller identity from the request headers. The
// returned identity is validated by the cart domain; an empty or doubled
// identity surfaces as cart.ErrIdentityInvalid.
func identity(r *http.Request) cart.Identity {
	return cart.Identity{
		UserID:    strings.TrimSpace(r.Header.Get(headerUserID)),
		SessionID: strings.TrimSpace(r.Header.Get(headerSessionID)),
	}
}

// userID extracts the authenticated user id; empty for guests.
func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(headerUserID))
}

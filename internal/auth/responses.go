// responses.go -- Package-wide HTTP response helpers.
//
// Callback failures are deliberately bodyless: a 400 with no detail reveals
// nothing about which verification step failed.
package auth

import (
	"encoding/json"
	"net/http"
)

// badRequest returns 400 with an empty body. Every callback-path failure maps
// here, whatever the internal reason; logs keep the distinguishing detail.
func badRequest(w http.ResponseWriter) {
	w.WriteHeader(http.StatusBadRequest)
}

// notFound returns 404 with an empty body. Used for unknown providers.
func notFound(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotFound)
}

// internalError returns 500 with an empty body. Only reachable from the login
// step (entropy failure); callback failures are always 400.
func internalError(w http.ResponseWriter) {
	w.WriteHeader(http.StatusInternalServerError)
}

// writeVerdict answers /validate. Always 200 -- the verdict is the payload,
// and an expired session is indistinguishable from a missing one.
func writeVerdict(w http.ResponseWriter, unauthorized bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(struct {
		Unauthorized bool `json:"unauthorized"`
	}{unauthorized})
}

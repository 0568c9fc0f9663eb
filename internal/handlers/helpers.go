// Package handlers implements the coordinator's HTTP API
// (SPEC_FULL.md §4.17): spec.md §6's six endpoints, routed with
// gorilla/mux and wired to one internal/app.AppContext.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
)

// MaxPayloadSize bounds request bodies this API will decode, guarding
// against a client streaming an unbounded body into json.Decode.
const MaxPayloadSize = 1 << 20 // 1 MiB

// limitRequestSize wraps r.Body in an io.LimitReader sized one byte past
// MaxPayloadSize, so a decoder that hits the limit can distinguish
// "body too large" from "body exactly at the limit".
func limitRequestSize(r *http.Request) io.Reader {
	return io.LimitReader(r.Body, MaxPayloadSize+1)
}

// respondJSON writes v as a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are already sent; nothing left to do but log via the
		// standard handler recovery path the caller installs.
		return
	}
}

// respondError writes {"error": msg} with the given status code.
func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

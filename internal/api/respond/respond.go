// Package respond writes JSON responses and the API error envelope.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/joshkautz/winter-league-rankings/internal/apperr"
)

// WriteJSONObject writes v as a JSON response with the given status.
func WriteJSONObject(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the error envelope for err. Coded errors surface their
// code and message; anything else collapses to an internal error so stack
// detail never reaches the caller.
func WriteError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	WriteJSONObject(w, apperr.HTTPStatus(code), map[string]any{
		"error": map[string]any{
			"code":    string(code),
			"message": apperr.MessageOf(err),
		},
	})
}

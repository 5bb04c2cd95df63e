package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/vnetscan/vnetscan/utils/customlog"
)

// control API bodies are small; the upload endpoint does not use these helpers
const maxJSONBody = 1 << 20

var errEmptyBody = errors.New("request body is empty")

// writeJSONError sends {"error": message} with the given status.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, statusCode, map[string]string{"error": message})
}

func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// headers are already out, nothing useful left to send
		customlog.Printf(customlog.Failure, "Failed to encode response: %v\n", err)
	}
}

// decodeJSONBody decodes a bounded request body into v. Unknown fields are
// rejected so typos in probe options surface as 400s.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
}

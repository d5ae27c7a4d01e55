package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/anthill-platform/anthill-social/internal/apperrors"
)

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]interface{}{"error": err.Error()}
	var appErr *apperrors.Error
	if e, ok := err.(*apperrors.Error); ok {
		appErr = e
	}
	if appErr != nil {
		body["code"] = string(appErr.Kind)
		if appErr.Details != nil {
			body["details"] = appErr.Details
		}
	}
	_ = json.NewEncoder(w).Encode(body)
}

// writeDomainError maps a domain error to its §7 HTTP status verbatim.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, apperrors.HTTPStatus(err), err)
}

func uintParam(r *http.Request, name string) (uint64, error) {
	raw := mux.Vars(r)[name]
	return strconv.ParseUint(raw, 10, 64)
}

// resolveTarget substitutes "me" for the caller's own account (§6.1).
func resolveTarget(raw string, caller uint64) (uint64, error) {
	if raw == "me" {
		return caller, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

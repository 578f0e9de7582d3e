package service

import (
	"encoding/json"
	"errors"
	"net/http"
)

// envelope adapts a HandlerFunc to http.Handler, wrapping the result in the
// uniform response envelope and translating errors to their HTTP status.
func (s *Service) envelope(status string, handler HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := handler(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if res == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": status})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": res, "status": status})
	})
}

// writeError renders a domain error as its JSON envelope. A not-found
// condition always renders the fixed {"status":"not found"} shape; other
// domain errors render {"status": <message>} with their status code.
// Anything else is logged and rendered as a generic 500.
func (s *Service) writeError(w http.ResponseWriter, err error) {
	var serr *Error
	if errors.As(err, &serr) {
		if serr.Code == http.StatusNotFound {
			writeJSON(w, http.StatusNotFound, map[string]any{"status": "not found"})
			return
		}
		writeJSON(w, serr.Code, map[string]any{"status": serr.Message})
		return
	}

	s.log.Error("Unhandled error in request handler", "err", err)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "internal server error"})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// DecodeJSON parses the request body as a JSON object. Numbers are kept as
// json.Number so that decimal values survive the round trip without
// floating-point drift. A missing or malformed body is a BadRequest.
func DecodeJSON(r *http.Request) (map[string]any, error) {
	if r.Body == nil {
		return nil, BadRequest("missing json")
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, BadRequest("missing json")
	}
	return data, nil
}

// RequireKey fetches a required key from a decoded JSON body, reporting a
// BadRequest when it is absent.
func RequireKey(data map[string]any, key string) (any, error) {
	v, ok := data[key]
	if !ok {
		return nil, BadRequest("Missing required parameter %s", key)
	}
	return v, nil
}

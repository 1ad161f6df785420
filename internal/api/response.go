package api

import (
	"encoding/json"
	"net/http"

	"github.com/careline/careline/internal/apperr"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Status  bool   `json:"status"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type okBody struct {
	Status     bool        `json:"status"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data"`
	Pagination *pagination `json:"pagination,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, status int, body okBody) {
	body.Status = true
	writeJSON(w, status, body)
}

// writeError renders err with the status of its kind. Causes are never
// exposed.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	writeJSON(w, apperr.HTTPStatus(kind), errorBody{
		Status:  false,
		Kind:    string(kind),
		Message: apperr.Message(err),
	})
}

// decode reads a JSON request body into v.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("invalid request body")
	}
	return nil
}

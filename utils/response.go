package utils

import (
	"encoding/json"
	"net/http"

	"carsucart/models"
)

// Envelope is the response body shared by every JSON endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Paginated is the data member of a paginated listing.
type Paginated[T any] struct {
	Data []T `json:"data"`
	models.Page
}

func RespondWithError(w http.ResponseWriter, code int, msg string) {
	RespondWithJSON(w, code, Envelope{Success: false, Message: msg})
}

// Sends a JSON response
func RespondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// RespondWithData wraps data in a success envelope.
func RespondWithData(w http.ResponseWriter, statusCode int, data any) {
	RespondWithJSON(w, statusCode, Envelope{Success: true, Data: data})
}

// RespondWithPage wraps a page of items in the paginated success envelope.
func RespondWithPage[T any](w http.ResponseWriter, items []T, page models.Page) {
	if items == nil {
		items = []T{}
	}
	RespondWithData(w, http.StatusOK, Paginated[T]{Data: items, Page: page})
}

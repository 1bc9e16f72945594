// Package http provides HTTP server and handler implementations.
//
// This file implements JSON response helpers and the error to status
// mapping.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"campuscard/internal/analysis"
	"campuscard/internal/core"
	"campuscard/internal/ledger"
	"campuscard/internal/ledger/csvio"
	"campuscard/internal/log"
)

// RecordResponse is the JSON view of a stored record. Money is rendered
// with two decimals.
type RecordResponse struct {
	ID           int64  `json:"id"`
	StudentID    string `json:"student_id"`
	Name         string `json:"name"`
	Major        string `json:"major"`
	Grade        string `json:"grade"`
	Balance      string `json:"balance"`
	Timestamp    string `json:"timestamp"`
	Amount       string `json:"amount"`
	MerchantType string `json:"merchant_type"`
	Location     string `json:"location"`
	TxType       string `json:"tx_type"`
}

func NewRecordResponse(r core.Record) RecordResponse {
	return RecordResponse{
		ID:           r.ID,
		StudentID:    r.StudentID,
		Name:         r.Name,
		Major:        r.Major,
		Grade:        r.Grade,
		Balance:      core.FormatMoney(r.Balance),
		Timestamp:    core.FormatTimestamp(r.Timestamp),
		Amount:       core.FormatMoney(r.Amount),
		MerchantType: r.MerchantType,
		Location:     r.Location,
		TxType:       r.TxType.String(),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// validationErrors are the sentinels reported to clients as 422.
var validationErrors = []error{
	errBadRequest,
	analysis.ErrInvalidParameter,
	core.ErrInvalidAmount,
	core.ErrInvalidTimestamp,
	core.ErrEmptyStudentID,
	core.ErrEmptyTxType,
	csvio.ErrEmptyFile,
	csvio.ErrMissingColumn,
}

// StatusFor maps an error to its HTTP status code.
func StatusFor(err error) int {
	if errors.Is(err, ledger.ErrNotFound) {
		return http.StatusNotFound
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode JSON response", "error", err)
	}
}

// writeError answers with a JSON error body. Server errors are logged with
// the failing operation and their detail is not sent to the client.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.FromContext(r.Context()).LogError(r.Context(), "Request failed", err, op, nil)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

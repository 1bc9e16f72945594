// Package http provides HTTP server and handler implementations.
//
// This file implements parsing and validation of query parameters and
// request bodies.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"campuscard/internal/analysis"
	"campuscard/internal/core"
	"campuscard/internal/ledger"
)

// errBadRequest marks client input that could not be parsed.
var errBadRequest = errors.New("bad request")

const dateLayout = "2006-01-02"

// ParseFilter reads the record filter from query parameters. from and to take
// either a full timestamp or a date; a bare to date covers the whole day.
func ParseFilter(q url.Values) (ledger.Filter, error) {
	f := ledger.Filter{
		StudentID: strings.TrimSpace(q.Get("student_id")),
		Name:      strings.TrimSpace(q.Get("name")),
		Major:     strings.TrimSpace(q.Get("major")),
		Grade:     strings.TrimSpace(q.Get("grade")),
	}

	if v := strings.TrimSpace(q.Get("from")); v != "" {
		t, _, err := parseBound(v)
		if err != nil {
			return ledger.Filter{}, fmt.Errorf("%w: from: %v", errBadRequest, err)
		}
		f.From = &t
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		t, dateOnly, err := parseBound(v)
		if err != nil {
			return ledger.Filter{}, fmt.Errorf("%w: to: %v", errBadRequest, err)
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Second)
		}
		f.To = &t
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return ledger.Filter{}, fmt.Errorf("%w: from is after to", errBadRequest)
	}

	switch strings.ToLower(strings.TrimSpace(q.Get("order"))) {
	case "", "desc":
	case "asc":
		f.TimeAscending = true
	default:
		return ledger.Filter{}, fmt.Errorf("%w: order must be asc or desc", errBadRequest)
	}
	return f, nil
}

func parseBound(v string) (time.Time, bool, error) {
	if t, err := core.ParseTimestamp(v); err == nil {
		return t, false, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("want %q or %q, got %q", core.TimestampLayout, dateLayout, v)
	}
	return t, true, nil
}

// ParseParams overrides base with any threshold given in the query.
// Range checks are left to analysis.Params.Validate.
func ParseParams(q url.Values, base analysis.Params) (analysis.Params, error) {
	p := base

	if v := strings.TrimSpace(q.Get("single_threshold")); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return p, fmt.Errorf("%w: single_threshold %q is not a number", errBadRequest, v)
		}
		p.SingleThreshold = d
	}
	if v := strings.TrimSpace(q.Get("weekly_threshold")); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return p, fmt.Errorf("%w: weekly_threshold %q is not a number", errBadRequest, v)
		}
		p.WeeklyThreshold = d
	}
	if v := strings.TrimSpace(q.Get("freq_window_min")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, fmt.Errorf("%w: freq_window_min %q is not an integer", errBadRequest, v)
		}
		p.WindowMinutes = n
	}
	if v := strings.TrimSpace(q.Get("freq_count")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, fmt.Errorf("%w: freq_count %q is not an integer", errBadRequest, v)
		}
		p.MinCount = n
	}
	return p, nil
}

// ParseID reads the {id} path value.
func ParseID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid record id %q", errBadRequest, raw)
	}
	return id, nil
}

// RecordRequest is the JSON body accepted when creating or updating a
// record. Balance is never accepted; the store derives it.
type RecordRequest struct {
	StudentID    string      `json:"student_id"`
	Name         string      `json:"name"`
	Major        string      `json:"major"`
	Grade        string      `json:"grade"`
	Timestamp    string      `json:"timestamp"`
	Amount       json.Number `json:"amount"`
	MerchantType string      `json:"merchant_type"`
	Location     string      `json:"location"`
	TxType       string      `json:"tx_type"`
}

// DecodeRecord parses and validates a record body.
func DecodeRecord(r *http.Request) (core.Record, error) {
	var req RecordRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return core.Record{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return req.Record()
}

// Record converts the request into a validated core.Record.
func (req RecordRequest) Record() (core.Record, error) {
	ts, err := core.ParseTimestamp(req.Timestamp)
	if err != nil {
		return core.Record{}, err
	}
	amount, err := core.ParseAmount(req.Amount.String())
	if err != nil {
		return core.Record{}, err
	}

	rec := core.Record{
		StudentID:    strings.TrimSpace(req.StudentID),
		Name:         strings.TrimSpace(req.Name),
		Major:        strings.TrimSpace(req.Major),
		Grade:        strings.TrimSpace(req.Grade),
		Timestamp:    ts,
		Amount:       amount,
		MerchantType: strings.TrimSpace(req.MerchantType),
		Location:     strings.TrimSpace(req.Location),
		TxType:       core.ParseTxType(req.TxType),
	}
	if err := rec.Validate(); err != nil {
		return core.Record{}, err
	}
	return rec, nil
}

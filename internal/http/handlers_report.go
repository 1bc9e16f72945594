package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"campuscard/internal/analysis"
	"campuscard/internal/log"
	"campuscard/internal/report"
)

type lowSpendResponse struct {
	WeeklyThreshold decimal.Decimal            `json:"weekly_threshold"`
	Count           int                        `json:"count"`
	Students        []analysis.LowSpendStudent `json:"students"`
}

type suspiciousResponse struct {
	Params    analysis.Params        `json:"params"`
	Counts    analysis.AnomalyCounts `json:"counts"`
	Anomalies []analysis.Anomaly     `json:"anomalies"`
}

// reportFor resolves the filter and parameters of r and returns the matching
// report. It writes the error response itself and returns nil on failure.
func (s *Server) reportFor(w http.ResponseWriter, r *http.Request) *analysis.Report {
	q := r.URL.Query()
	f, err := ParseFilter(q)
	if err != nil {
		writeError(w, r, log.OpReport, err)
		return nil
	}
	p, err := ParseParams(q, s.params)
	if err != nil {
		writeError(w, r, log.OpReport, err)
		return nil
	}
	rep, err := s.report(r.Context(), f, p)
	if err != nil {
		writeError(w, r, log.OpReport, err)
		return nil
	}
	return rep
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep := s.reportFor(w, r)
	if rep == nil {
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(report.Text(rep)))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleLowSpend(w http.ResponseWriter, r *http.Request) {
	rep := s.reportFor(w, r)
	if rep == nil {
		return
	}
	students := rep.LowSpend
	if students == nil {
		students = []analysis.LowSpendStudent{}
	}
	writeJSON(w, http.StatusOK, lowSpendResponse{
		WeeklyThreshold: rep.Params.WeeklyThreshold,
		Count:           len(students),
		Students:        students,
	})
}

func (s *Server) handleSuspicious(w http.ResponseWriter, r *http.Request) {
	rep := s.reportFor(w, r)
	if rep == nil {
		return
	}
	anomalies := rep.Suspicious
	if anomalies == nil {
		anomalies = []analysis.Anomaly{}
	}
	writeJSON(w, http.StatusOK, suspiciousResponse{
		Params:    rep.Params,
		Counts:    rep.Anomalies,
		Anomalies: anomalies,
	})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	rep := s.reportFor(w, r)
	if rep == nil {
		return
	}
	writeJSON(w, http.StatusOK, rep.Insights)
}

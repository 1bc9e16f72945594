package http

import (
	"bytes"
	"net/http"
	"strconv"

	"campuscard/internal/core"
	"campuscard/internal/log"
)

type listResponse struct {
	Count   int              `json:"count"`
	Records []RecordResponse `json:"records"`
}

type importResponse struct {
	Imported int      `json:"imported"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors"`
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	records, err := s.svc.ListRecords(r.Context(), f)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}

	out := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, NewRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, listResponse{Count: len(out), Records: out})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	rec, err := s.svc.GetRecord(r.Context(), id)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, NewRecordResponse(rec))
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := DecodeRecord(r)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	saved, err := s.svc.AddRecord(r.Context(), rec)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	s.invalidateReports()

	logRecord(r, "Record created", saved)
	w.Header().Set("Location", "/api/records/"+strconv.FormatInt(saved.ID, 10))
	writeJSON(w, http.StatusCreated, NewRecordResponse(saved))
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	rec, err := DecodeRecord(r)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	rec.ID = id

	saved, err := s.svc.UpdateRecord(r.Context(), rec)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	s.invalidateReports()

	logRecord(r, "Record updated", saved)
	writeJSON(w, http.StatusOK, NewRecordResponse(saved))
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(r)
	if err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	if err := s.svc.DeleteRecord(r.Context(), id); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}
	s.invalidateReports()

	log.FromContext(r.Context()).InfoContext(r.Context(), "Record deleted", log.FieldRecordID, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxImportBytes)
	res, err := s.svc.Import(r.Context(), body)
	if res.Imported > 0 {
		s.invalidateReports()
	}
	if err != nil {
		writeError(w, r, log.OpImport, err)
		return
	}

	errs := res.ErrorMessages()
	writeJSON(w, http.StatusOK, importResponse{
		Imported: res.Imported,
		Rejected: len(errs),
		Errors:   errs,
	})
}

// handleExport buffers the CSV so that a store failure still yields a
// proper error status.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpExport, err)
		return
	}

	var buf bytes.Buffer
	n, err := s.svc.Export(r.Context(), &buf, f)
	if err != nil {
		writeError(w, r, log.OpExport, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="records.csv"`)
	w.Header().Set("X-Record-Count", strconv.Itoa(n))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func logRecord(r *http.Request, msg string, rec core.Record) {
	fields := log.NewFields().WithRecord(rec.ID, rec.StudentID, rec.TxType.String(), core.FormatMoney(rec.Amount))
	log.FromContext(r.Context()).InfoContext(r.Context(), msg, fields.ToSlice()...)
}

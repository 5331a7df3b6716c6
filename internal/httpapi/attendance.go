package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"classbridge/internal/model"
)

type attendancePayload struct {
	ID        string  `json:"id"`
	StudentID string  `json:"studentId"`
	ClassID   string  `json:"classId"`
	Date      string  `json:"date"`
	Status    string  `json:"status"`
	Notes     *string `json:"notes,omitempty"`
	MarkedBy  *string `json:"markedBy,omitempty"`
}

func mapAttendance(rec model.AttendanceRecord) attendancePayload {
	return attendancePayload{
		ID:        rec.ID,
		StudentID: rec.StudentID,
		ClassID:   rec.ClassID,
		Date:      rec.Date,
		Status:    string(rec.Status),
		Notes:     rec.Notes,
		MarkedBy:  rec.MarkedBy,
	}
}

func validDate(value string) bool {
	_, err := time.Parse("2006-01-02", value)
	return err == nil
}

func (s *Server) handleListAttendance(w http.ResponseWriter, r *http.Request) {
	classID := r.URL.Query().Get("classId")
	date := r.URL.Query().Get("date")
	if classID == "" || !validDate(date) {
		writeError(w, http.StatusBadRequest, "class_id_and_date_required")
		return
	}

	records, err := s.store.ListClassAttendance(r.Context(), schoolFromContext(r.Context()), classID, date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	resp := make([]attendancePayload, 0, len(records))
	for _, rec := range records {
		resp = append(resp, mapAttendance(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

type attendanceReportResponse struct {
	Records []attendancePayload `json:"records"`
	Totals  map[string]int      `json:"totals"`
}

func (s *Server) handleAttendanceReport(w http.ResponseWriter, r *http.Request) {
	classID := r.URL.Query().Get("classId")
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if classID == "" || !validDate(from) || !validDate(to) {
		writeError(w, http.StatusBadRequest, "class_id_and_range_required")
		return
	}
	if from > to {
		writeError(w, http.StatusBadRequest, "invalid_range")
		return
	}

	records, err := s.store.AttendanceReport(r.Context(), schoolFromContext(r.Context()), classID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	resp := attendanceReportResponse{
		Records: make([]attendancePayload, 0, len(records)),
		Totals:  make(map[string]int),
	}
	for _, rec := range records {
		resp.Records = append(resp.Records, mapAttendance(rec))
		resp.Totals[string(rec.Status)]++
	}
	writeJSON(w, http.StatusOK, resp)
}

type bulkAttendanceRequest struct {
	ClassID string                `json:"classId"`
	Date    string                `json:"date"`
	Records []bulkAttendanceEntry `json:"records"`
}

type bulkAttendanceEntry struct {
	StudentID string  `json:"studentId"`
	Status    string  `json:"status"`
	Notes     *string `json:"notes"`
}

// handleBulkAttendance saves one class's sheet for one day. The whole batch
// is validated before anything is written, and the upsert makes a re-submit
// overwrite the earlier sheet instead of duplicating it.
func (s *Server) handleBulkAttendance(w http.ResponseWriter, r *http.Request) {
	var req bulkAttendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.ClassID == "" || !validDate(req.Date) || len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "missing_required_fields")
		return
	}

	schoolID := schoolFromContext(r.Context())
	if _, err := s.store.GetClass(r.Context(), schoolID, req.ClassID); err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "class_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	claims := claimsFromContext(r.Context())
	now := time.Now().UTC()
	records := make([]model.AttendanceRecord, 0, len(req.Records))
	for _, entry := range req.Records {
		if entry.StudentID == "" {
			writeError(w, http.StatusBadRequest, "missing_student_id")
			return
		}
		status, ok := model.ParseAttendanceStatus(entry.Status)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_status")
			return
		}
		records = append(records, model.AttendanceRecord{
			ID:        uuid.NewString(),
			SchoolID:  schoolID,
			StudentID: entry.StudentID,
			ClassID:   req.ClassID,
			Date:      req.Date,
			Status:    status,
			Notes:     entry.Notes,
			MarkedBy:  &claims.UserID,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if err := s.store.UpsertAttendance(r.Context(), records); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "count": len(records)})
}

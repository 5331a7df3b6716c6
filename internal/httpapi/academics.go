package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"classbridge/internal/model"
)

const defaultSubjectColor = "#3b82f6"

type schoolPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	Email     string `json:"email,omitempty"`
	CreatedAt string `json:"createdAt"`
}

func (s *Server) handleGetSchool(w http.ResponseWriter, r *http.Request) {
	school, err := s.store.GetSchool(r.Context(), schoolFromContext(r.Context()))
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "school_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, schoolPayload{
		ID:        school.ID,
		Name:      school.Name,
		Slug:      school.Slug,
		Email:     school.Email,
		CreatedAt: school.CreatedAt.Format(time.RFC3339),
	})
}

type profileSummary struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FullName  string  `json:"fullName"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.store.ListSchoolProfiles(r.Context(), schoolFromContext(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapProfiles(profiles))
}

func (s *Server) handleListParents(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.store.ListParentProfiles(r.Context(), schoolFromContext(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapProfiles(profiles))
}

func mapProfiles(profiles []model.Profile) []profileSummary {
	resp := make([]profileSummary, 0, len(profiles))
	for _, p := range profiles {
		resp = append(resp, profileSummary{ID: p.ID, Email: p.Email, FullName: p.FullName, AvatarURL: p.AvatarURL})
	}
	return resp
}

// Classes

type classPayload struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	GradeLevel   string  `json:"gradeLevel"`
	Section      *string `json:"section,omitempty"`
	AcademicYear string  `json:"academicYear"`
	IsActive     bool    `json:"isActive"`
	CreatedAt    string  `json:"createdAt"`
	UpdatedAt    string  `json:"updatedAt"`
}

type createClassRequest struct {
	Name         string  `json:"name"`
	GradeLevel   string  `json:"gradeLevel"`
	Section      *string `json:"section"`
	AcademicYear string  `json:"academicYear"`
}

type updateClassRequest struct {
	Name         *string `json:"name"`
	GradeLevel   *string `json:"gradeLevel"`
	Section      *string `json:"section"`
	AcademicYear *string `json:"academicYear"`
	IsActive     *bool   `json:"isActive"`
}

func mapClass(c model.Class) classPayload {
	return classPayload{
		ID:           c.ID,
		Name:         c.Name,
		GradeLevel:   c.GradeLevel,
		Section:      c.Section,
		AcademicYear: c.AcademicYear,
		IsActive:     c.IsActive,
		CreatedAt:    c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleListClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := s.store.ListClasses(r.Context(), schoolFromContext(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	resp := make([]classPayload, 0, len(classes))
	for _, c := range classes {
		resp = append(resp, mapClass(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateClass(w http.ResponseWriter, r *http.Request) {
	var req createClassRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.GradeLevel == "" || req.AcademicYear == "" {
		writeError(w, http.StatusBadRequest, "missing_required_fields")
		return
	}

	now := time.Now().UTC()
	class := model.Class{
		ID:           uuid.NewString(),
		SchoolID:     schoolFromContext(r.Context()),
		Name:         req.Name,
		GradeLevel:   req.GradeLevel,
		Section:      req.Section,
		AcademicYear: req.AcademicYear,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateClass(r.Context(), class); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, mapClass(class))
}

func (s *Server) handleUpdateClass(w http.ResponseWriter, r *http.Request) {
	var req updateClassRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	class, err := s.store.UpdateClass(r.Context(), schoolFromContext(r.Context()), chi.URLParam(r, "classID"), model.ClassUpdate{
		Name:         req.Name,
		GradeLevel:   req.GradeLevel,
		Section:      req.Section,
		AcademicYear: req.AcademicYear,
		IsActive:     req.IsActive,
	})
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "class_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapClass(class))
}

func (s *Server) handleDeleteClass(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteClass(r.Context(), schoolFromContext(r.Context()), chi.URLParam(r, "classID")); err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "class_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Subjects

type subjectPayload struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Code        string  `json:"code"`
	Description *string `json:"description,omitempty"`
	Color       string  `json:"color"`
	IsActive    bool    `json:"isActive"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

type createSubjectRequest struct {
	Name        string  `json:"name"`
	Code        string  `json:"code"`
	Description *string `json:"description"`
	Color       string  `json:"color"`
}

type updateSubjectRequest struct {
	Name        *string `json:"name"`
	Code        *string `json:"code"`
	Description *string `json:"description"`
	Color       *string `json:"color"`
	IsActive    *bool   `json:"isActive"`
}

func mapSubject(sub model.Subject) subjectPayload {
	return subjectPayload{
		ID:          sub.ID,
		Name:        sub.Name,
		Code:        sub.Code,
		Description: sub.Description,
		Color:       sub.Color,
		IsActive:    sub.IsActive,
		CreatedAt:   sub.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   sub.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleListSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := s.store.ListSubjects(r.Context(), schoolFromContext(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	resp := make([]subjectPayload, 0, len(subjects))
	for _, sub := range subjects {
		resp = append(resp, mapSubject(sub))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateSubject(w http.ResponseWriter, r *http.Request) {
	var req createSubjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Code = strings.TrimSpace(req.Code)
	if req.Name == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "missing_required_fields")
		return
	}
	if req.Color == "" {
		req.Color = defaultSubjectColor
	}

	now := time.Now().UTC()
	subject := model.Subject{
		ID:          uuid.NewString(),
		SchoolID:    schoolFromContext(r.Context()),
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
		Color:       req.Color,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateSubject(r.Context(), subject); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, mapSubject(subject))
}

func (s *Server) handleUpdateSubject(w http.ResponseWriter, r *http.Request) {
	var req updateSubjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	subject, err := s.store.UpdateSubject(r.Context(), schoolFromContext(r.Context()), chi.URLParam(r, "subjectID"), model.SubjectUpdate{
		Name:        req.Name,
		Code:        req.Code,
		Description: req.Description,
		Color:       req.Color,
		IsActive:    req.IsActive,
	})
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "subject_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapSubject(subject))
}

func (s *Server) handleDeleteSubject(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSubject(r.Context(), schoolFromContext(r.Context()), chi.URLParam(r, "subjectID")); err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "subject_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Timetable

type timetablePayload struct {
	ID        string  `json:"id"`
	ClassID   string  `json:"classId"`
	SubjectID string  `json:"subjectId"`
	TeacherID *string `json:"teacherId,omitempty"`
	DayOfWeek int     `json:"dayOfWeek"`
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
	Room      *string `json:"room,omitempty"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt string  `json:"updatedAt"`
}

type createTimetableRequest struct {
	ClassID   string  `json:"classId"`
	SubjectID string  `json:"subjectId"`
	TeacherID *string `json:"teacherId"`
	DayOfWeek int     `json:"dayOfWeek"`
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
	Room      *string `json:"room"`
}

type updateTimetableRequest struct {
	ClassID   *string `json:"classId"`
	SubjectID *string `json:"subjectId"`
	TeacherID *string `json:"teacherId"`
	DayOfWeek *int    `json:"dayOfWeek"`
	StartTime *string `json:"startTime"`
	EndTime   *string `json:"endTime"`
	Room      *string `json:"room"`
}

func mapTimetableEntry(e model.TimetableEntry) timetablePayload {
	return timetablePayload{
		ID:        e.ID,
		ClassID:   e.ClassID,
		SubjectID: e.SubjectID,
		TeacherID: e.TeacherID,
		DayOfWeek: e.DayOfWeek,
		StartTime: e.StartTime,
		EndTime:   e.EndTime,
		Room:      e.Room,
		CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func validClockTime(value string) bool {
	_, err := time.Parse("15:04", value)
	return err == nil
}

func (s *Server) handleListTimetable(w http.ResponseWriter, r *http.Request) {
	var classID *string
	if raw := r.URL.Query().Get("classId"); raw != "" {
		classID = &raw
	}
	entries, err := s.store.ListTimetable(r.Context(), schoolFromContext(r.Context()), classID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	resp := make([]timetablePayload, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, mapTimetableEntry(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCreateTimetableEntry accepts overlapping slots: double-booking a
// teacher or room is left to the school to resolve.
func (s *Server) handleCreateTimetableEntry(w http.ResponseWriter, r *http.Request) {
	var req createTimetableRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.ClassID == "" || req.SubjectID == "" || req.StartTime == "" || req.EndTime == "" {
		writeError(w, http.StatusBadRequest, "missing_required_fields")
		return
	}
	if req.DayOfWeek < 0 || req.DayOfWeek > 6 {
		writeError(w, http.StatusBadRequest, "invalid_day_of_week")
		return
	}
	if !validClockTime(req.StartTime) || !validClockTime(req.EndTime) || req.StartTime >= req.EndTime {
		writeError(w, http.StatusBadRequest, "invalid_time_range")
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

	now := time.Now().UTC()
	entry := model.TimetableEntry{
		ID:        uuid.NewString(),
		SchoolID:  schoolID,
		ClassID:   req.ClassID,
		SubjectID: req.SubjectID,
		TeacherID: req.TeacherID,
		DayOfWeek: req.DayOfWeek,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Room:      req.Room,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateTimetableEntry(r.Context(), entry); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, mapTimetableEntry(entry))
}

func (s *Server) handleUpdateTimetableEntry(w http.ResponseWriter, r *http.Request) {
	var req updateTimetableRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.DayOfWeek != nil && (*req.DayOfWeek < 0 || *req.DayOfWeek > 6) {
		writeError(w, http.StatusBadRequest, "invalid_day_of_week")
		return
	}
	if req.StartTime != nil && !validClockTime(*req.StartTime) {
		writeError(w, http.StatusBadRequest, "invalid_time_range")
		return
	}
	if req.EndTime != nil && !validClockTime(*req.EndTime) {
		writeError(w, http.StatusBadRequest, "invalid_time_range")
		return
	}

	entry, err := s.store.UpdateTimetableEntry(r.Context(), schoolFromContext(r.Context()), chi.URLParam(r, "entryID"), model.TimetableEntryUpdate{
		ClassID:   req.ClassID,
		SubjectID: req.SubjectID,
		TeacherID: req.TeacherID,
		DayOfWeek: req.DayOfWeek,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Room:      req.Room,
	})
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "entry_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapTimetableEntry(entry))
}

func (s *Server) handleDeleteTimetableEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteTimetableEntry(r.Context(), schoolFromContext(r.Context()), chi.URLParam(r, "entryID")); err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "entry_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Students

type studentPayload struct {
	ID                    string  `json:"id"`
	ClassID               *string `json:"classId,omitempty"`
	UserID                *string `json:"userId,omitempty"`
	FirstName             string  `json:"firstName"`
	LastName              string  `json:"lastName"`
	DateOfBirth           *string `json:"dateOfBirth,omitempty"`
	Gender                *string `json:"gender,omitempty"`
	AdmissionNumber       *string `json:"admissionNumber,omitempty"`
	EnrollmentDate        string  `json:"enrollmentDate"`
	Status                string  `json:"status"`
	Address               *string `json:"address,omitempty"`
	EmergencyContactName  *string `json:"emergencyContactName,omitempty"`
	EmergencyContactPhone *string `json:"emergencyContactPhone,omitempty"`
	Notes                 *string `json:"notes,omitempty"`
	CreatedAt             string  `json:"createdAt"`
	UpdatedAt             string  `json:"updatedAt"`
}

type createStudentRequest struct {
	ClassID               *string `json:"classId"`
	UserID                *string `json:"userId"`
	FirstName             string  `json:"firstName"`
	LastName              string  `json:"lastName"`
	DateOfBirth           *string `json:"dateOfBirth"`
	Gender                *string `json:"gender"`
	AdmissionNumber       *string `json:"admissionNumber"`
	EnrollmentDate        string  `json:"enrollmentDate"`
	Address               *string `json:"address"`
	EmergencyContactName  *string `json:"emergencyContactName"`
	EmergencyContactPhone *string `json:"emergencyContactPhone"`
	Notes                 *string `json:"notes"`
}

type updateStudentRequest struct {
	ClassID               *string `json:"classId"`
	FirstName             *string `json:"firstName"`
	LastName              *string `json:"lastName"`
	DateOfBirth           *string `json:"dateOfBirth"`
	Gender                *string `json:"gender"`
	AdmissionNumber       *string `json:"admissionNumber"`
	Status                *string `json:"status"`
	Address               *string `json:"address"`
	EmergencyContactName  *string `json:"emergencyContactName"`
	EmergencyContactPhone *string `json:"emergencyContactPhone"`
	Notes                 *string `json:"notes"`
}

func mapStudent(st model.Student) studentPayload {
	return studentPayload{
		ID:                    st.ID,
		ClassID:               st.ClassID,
		UserID:                st.UserID,
		FirstName:             st.FirstName,
		LastName:              st.LastName,
		DateOfBirth:           st.DateOfBirth,
		Gender:                st.Gender,
		AdmissionNumber:       st.AdmissionNumber,
		EnrollmentDate:        st.EnrollmentDate.UTC().Format("2006-01-02"),
		Status:                string(st.Status),
		Address:               st.Address,
		EmergencyContactName:  st.EmergencyContactName,
		EmergencyContactPhone: st.EmergencyContactPhone,
		Notes:                 st.Notes,
		CreatedAt:             st.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:             st.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	var classID *string
	if raw := r.URL.Query().Get("classId"); raw != "" {
		classID = &raw
	}
	students, err := s.store.ListStudents(r.Context(), schoolFromContext(r.Context()), classID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	resp := make([]studentPayload, 0, len(students))
	for _, st := range students {
		resp = append(resp, mapStudent(st))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	var req createStudentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if req.FirstName == "" || req.LastName == "" {
		writeError(w, http.StatusBadRequest, "missing_required_fields")
		return
	}

	now := time.Now().UTC()
	enrollment := now
	if req.EnrollmentDate != "" {
		parsed, err := time.Parse("2006-01-02", req.EnrollmentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_enrollment_date")
			return
		}
		enrollment = parsed
	}

	student := model.Student{
		ID:                    uuid.NewString(),
		SchoolID:              schoolFromContext(r.Context()),
		ClassID:               req.ClassID,
		UserID:                req.UserID,
		FirstName:             req.FirstName,
		LastName:              req.LastName,
		DateOfBirth:           req.DateOfBirth,
		Gender:                req.Gender,
		AdmissionNumber:       req.AdmissionNumber,
		EnrollmentDate:        enrollment,
		Status:                model.StudentActive,
		Address:               req.Address,
		EmergencyContactName:  req.EmergencyContactName,
		EmergencyContactPhone: req.EmergencyContactPhone,
		Notes:                 req.Notes,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.store.CreateStudent(r.Context(), student); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, mapStudent(student))
}

func (s *Server) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	var req updateStudentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	update := model.StudentUpdate{
		ClassID:               req.ClassID,
		FirstName:             req.FirstName,
		LastName:              req.LastName,
		DateOfBirth:           req.DateOfBirth,
		Gender:                req.Gender,
		AdmissionNumber:       req.AdmissionNumber,
		Address:               req.Address,
		EmergencyContactName:  req.EmergencyContactName,
		EmergencyContactPhone: req.EmergencyContactPhone,
		Notes:                 req.Notes,
	}
	if req.Status != nil {
		status, ok := model.ParseStudentStatus(*req.Status)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_status")
			return
		}
		update.Status = &status
	}

	student, err := s.store.UpdateStudent(r.Context(), schoolFromContext(r.Context()), chi.URLParam(r, "studentID"), update)
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "student_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, mapStudent(student))
}

func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteStudent(r.Context(), schoolFromContext(r.Context()), chi.URLParam(r, "studentID")); err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "student_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Parent links

type parentLinkPayload struct {
	ID               string `json:"id"`
	StudentID        string `json:"studentId"`
	ParentID         string `json:"parentId"`
	Relationship     string `json:"relationship"`
	IsPrimaryContact bool   `json:"isPrimaryContact"`
	ParentName       string `json:"parentName"`
	ParentEmail      string `json:"parentEmail"`
	CreatedAt        string `json:"createdAt"`
}

type linkParentRequest struct {
	ParentID         string `json:"parentId"`
	Relationship     string `json:"relationship"`
	IsPrimaryContact bool   `json:"isPrimaryContact"`
}

func (s *Server) handleListStudentParents(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")
	if _, err := s.store.GetStudent(r.Context(), schoolFromContext(r.Context()), studentID); err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "student_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	links, err := s.store.ListStudentParents(r.Context(), studentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	resp := make([]parentLinkPayload, 0, len(links))
	for _, link := range links {
		resp = append(resp, parentLinkPayload{
			ID:               link.ID,
			StudentID:        link.StudentID,
			ParentID:         link.ParentID,
			Relationship:     link.Relationship,
			IsPrimaryContact: link.IsPrimaryContact,
			ParentName:       link.ParentName,
			ParentEmail:      link.ParentEmail,
			CreatedAt:        link.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLinkParent(w http.ResponseWriter, r *http.Request) {
	var req linkParentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.ParentID == "" {
		writeError(w, http.StatusBadRequest, "missing_parent_id")
		return
	}
	if req.Relationship == "" {
		req.Relationship = "guardian"
	}

	schoolID := schoolFromContext(r.Context())
	studentID := chi.URLParam(r, "studentID")
	if _, err := s.store.GetStudent(r.Context(), schoolID, studentID); err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "student_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	isParent, err := s.store.HasSchoolRole(r.Context(), req.ParentID, schoolID, model.RoleParent)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !isParent {
		writeError(w, http.StatusBadRequest, "not_a_parent")
		return
	}

	link := model.StudentParent{
		ID:               uuid.NewString(),
		StudentID:        studentID,
		ParentID:         req.ParentID,
		Relationship:     req.Relationship,
		IsPrimaryContact: req.IsPrimaryContact,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.store.LinkParent(r.Context(), link); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": link.ID})
}

func (s *Server) handleUnlinkParent(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")
	if _, err := s.store.GetStudent(r.Context(), schoolFromContext(r.Context()), studentID); err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "student_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if err := s.store.UnlinkParent(r.Context(), studentID, chi.URLParam(r, "linkID")); err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "link_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

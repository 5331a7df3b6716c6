package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"classbridge/internal/crypto"
	"classbridge/internal/model"
	"classbridge/internal/repository"
)

type registerRequest struct {
	SchoolName    string `json:"schoolName"`
	SchoolEmail   string `json:"schoolEmail"`
	AdminFullName string `json:"adminFullName"`
	AdminEmail    string `json:"adminEmail"`
	AdminPassword string `json:"adminPassword"`
}

type registerResponse struct {
	SchoolID string `json:"schoolId"`
	Slug     string `json:"slug"`
	UserID   string `json:"userId"`
}

// handleRegister creates a school and its first admin in a compensated
// sequence: each step that fails undoes whatever the earlier steps created,
// so a partially registered school never survives.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	req.SchoolName = strings.TrimSpace(req.SchoolName)
	req.SchoolEmail = strings.TrimSpace(strings.ToLower(req.SchoolEmail))
	req.AdminFullName = strings.TrimSpace(req.AdminFullName)
	req.AdminEmail = strings.TrimSpace(strings.ToLower(req.AdminEmail))
	if req.SchoolName == "" || req.AdminEmail == "" || req.AdminPassword == "" || req.AdminFullName == "" {
		writeError(w, http.StatusBadRequest, "missing_required_fields")
		return
	}
	if len(req.AdminPassword) < 8 {
		writeError(w, http.StatusBadRequest, "password_too_short")
		return
	}

	now := time.Now().UTC()
	school := model.School{
		ID:        uuid.NewString(),
		Name:      req.SchoolName,
		Slug:      slugify(req.SchoolName),
		Email:     req.SchoolEmail,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateSchool(r.Context(), school); err != nil {
		if errors.Is(err, repository.ErrSchoolExists) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": repository.ErrSchoolExists.Error()})
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	hash, err := crypto.HashPassword(req.AdminPassword)
	if err != nil {
		s.compensateSchool(r, school.ID)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	ident := model.Identity{
		ID:           uuid.NewString(),
		Email:        req.AdminEmail,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateIdentity(r.Context(), ident, req.AdminFullName); err != nil {
		s.compensateSchool(r, school.ID)
		if errors.Is(err, repository.ErrEmailExists) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": repository.ErrEmailExists.Error()})
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if err := s.store.AssignProfileSchool(r.Context(), ident.ID, school.ID, req.AdminFullName); err != nil {
		s.compensateIdentity(r, ident.ID)
		s.compensateSchool(r, school.ID)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	role := model.UserRole{
		ID:        uuid.NewString(),
		UserID:    ident.ID,
		Role:      model.RoleSchoolAdmin,
		SchoolID:  school.ID,
		CreatedAt: now,
	}
	if err := s.store.InsertUserRole(r.Context(), role); err != nil {
		s.compensateIdentity(r, ident.ID)
		s.compensateSchool(r, school.ID)
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		SchoolID: school.ID,
		Slug:     school.Slug,
		UserID:   ident.ID,
	})
}

func (s *Server) compensateSchool(r *http.Request, schoolID string) {
	if err := s.store.DeleteSchool(r.Context(), schoolID); err != nil {
		log.Printf("register: compensating school delete %s failed: %v", schoolID, err)
	}
}

func (s *Server) compensateIdentity(r *http.Request, userID string) {
	if err := s.store.DeleteIdentity(r.Context(), userID); err != nil {
		log.Printf("register: compensating identity delete %s failed: %v", userID, err)
	}
}

// slugify lowercases the name and collapses every non-alphanumeric run into a
// single hyphen.
func slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, ch := range strings.ToLower(name) {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
			b.WriteRune(ch)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

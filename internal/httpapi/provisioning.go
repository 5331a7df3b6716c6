package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"classbridge/internal/crypto"
	"classbridge/internal/model"
	"classbridge/internal/repository"
)

type provisionRequest struct {
	Action   string `json:"action"`
	SchoolID string `json:"school_id"`

	// create_user
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role,omitempty"`

	// delete_user
	UserID string `json:"user_id,omitempty"`
}

type schoolUserSummary struct {
	ID        string  `json:"id"`
	UserID    string  `json:"user_id"`
	Role      string  `json:"role"`
	FullName  string  `json:"full_name"`
	Email     string  `json:"email"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	CreatedAt string  `json:"created_at"`
}

func (s *Server) setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
	w.Header().Set("Access-Control-Allow-Headers", "authorization, content-type")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
}

// handleProvisionPreflight answers every preflight with the CORS headers, no
// auth required: browsers send OPTIONS without credentials.
func (s *Server) handleProvisionPreflight(w http.ResponseWriter, _ *http.Request) {
	s.setCORS(w)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	s.setCORS(w)

	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeProvisionError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req provisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeProvisionError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	switch req.Action {
	case "create_user":
		s.provisionCreateUser(w, r, claims.UserID, req)
	case "list_users":
		s.provisionListUsers(w, r, claims.UserID, req)
	case "delete_user":
		s.provisionDeleteUser(w, r, claims.UserID, req)
	default:
		writeProvisionError(w, http.StatusBadRequest, "Unknown action")
	}
}

// provisionCreateUser runs the provisioning sequence: validate first, then
// create the account, attach the school, and grant the role. A failure after
// the account exists deletes it again so no roleless orphan account remains.
func (s *Server) provisionCreateUser(w http.ResponseWriter, r *http.Request, callerID string, req provisionRequest) {
	if req.SchoolID == "" {
		writeProvisionError(w, http.StatusBadRequest, "school_id required")
		return
	}

	isAdmin, err := s.store.HasSchoolRole(r.Context(), callerID, req.SchoolID, model.RoleSchoolAdmin)
	if err != nil {
		writeProvisionError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if !isAdmin {
		writeProvisionError(w, http.StatusForbidden, "Only school admins can add users")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	if req.Email == "" || req.Password == "" || req.FullName == "" || req.Role == "" {
		writeProvisionError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	role, err := model.ParseRole(req.Role)
	if err != nil || !role.Provisionable() {
		writeProvisionError(w, http.StatusBadRequest, "Invalid role. Must be teacher, parent, or student")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeProvisionError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	now := time.Now().UTC()
	ident := model.Identity{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateIdentity(r.Context(), ident, req.FullName); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			writeProvisionError(w, http.StatusConflict, repository.ErrEmailExists.Error())
			return
		}
		writeProvisionError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	if err := s.store.AssignProfileSchool(r.Context(), ident.ID, req.SchoolID, req.FullName); err != nil {
		s.compensateIdentity(r, ident.ID)
		writeProvisionError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	userRole := model.UserRole{
		ID:        uuid.NewString(),
		UserID:    ident.ID,
		Role:      role,
		SchoolID:  req.SchoolID,
		CreatedAt: now,
	}
	if err := s.store.InsertUserRole(r.Context(), userRole); err != nil {
		s.compensateIdentity(r, ident.ID)
		writeProvisionError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	s.sessions.Invalidate(r.Context(), ident.ID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "user_id": ident.ID})
}

func (s *Server) provisionListUsers(w http.ResponseWriter, r *http.Request, callerID string, req provisionRequest) {
	if req.SchoolID == "" {
		writeProvisionError(w, http.StatusBadRequest, "school_id required")
		return
	}

	allowed, err := s.store.HasSchoolRole(r.Context(), callerID, req.SchoolID, model.RoleSchoolAdmin, model.RoleTeacher)
	if err != nil {
		writeProvisionError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if !allowed {
		writeProvisionError(w, http.StatusForbidden, "Access denied")
		return
	}

	var roleFilter *model.Role
	if req.Role != "" {
		role, err := model.ParseRole(req.Role)
		if err != nil {
			writeProvisionError(w, http.StatusBadRequest, "Invalid role filter")
			return
		}
		roleFilter = &role
	}

	users, err := s.store.ListSchoolUsers(r.Context(), req.SchoolID, roleFilter)
	if err != nil {
		writeProvisionError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	resp := make([]schoolUserSummary, 0, len(users))
	for _, u := range users {
		resp = append(resp, schoolUserSummary{
			ID:        u.ID,
			UserID:    u.UserID,
			Role:      string(u.Role),
			FullName:  u.FullName,
			Email:     u.Email,
			AvatarURL: u.AvatarURL,
			CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": resp})
}

// provisionDeleteUser removes the user's roles for the school; the profile's
// school link is cleared only when no role rows remain anywhere, so a user
// holding roles in another school keeps that membership.
func (s *Server) provisionDeleteUser(w http.ResponseWriter, r *http.Request, callerID string, req provisionRequest) {
	if req.UserID == "" || req.SchoolID == "" {
		writeProvisionError(w, http.StatusBadRequest, "user_id and school_id required")
		return
	}

	isAdmin, err := s.store.HasSchoolRole(r.Context(), callerID, req.SchoolID, model.RoleSchoolAdmin)
	if err != nil {
		writeProvisionError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	if !isAdmin {
		writeProvisionError(w, http.StatusForbidden, "Only school admins can remove users")
		return
	}

	if err := s.store.DeleteUserRoles(r.Context(), req.UserID, req.SchoolID); err != nil {
		writeProvisionError(w, http.StatusInternalServerError, "Failed to remove user")
		return
	}

	remaining, err := s.store.CountUserRoles(r.Context(), req.UserID)
	if err != nil {
		writeProvisionError(w, http.StatusInternalServerError, "Failed to remove user")
		return
	}
	if remaining == 0 {
		if err := s.store.ClearProfileSchool(r.Context(), req.UserID); err != nil {
			writeProvisionError(w, http.StatusInternalServerError, "Failed to remove user")
			return
		}
	}

	s.sessions.Invalidate(r.Context(), req.UserID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func writeProvisionError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

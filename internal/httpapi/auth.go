package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"classbridge/internal/auth"
	"classbridge/internal/crypto"
	"classbridge/internal/model"
	"classbridge/internal/session"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         userSummary `json:"user"`
}

type userSummary struct {
	ID          string        `json:"id"`
	Email       string        `json:"email"`
	FullName    string        `json:"fullName"`
	AvatarURL   *string       `json:"avatarUrl,omitempty"`
	SchoolID    *string       `json:"schoolId,omitempty"`
	PrimaryRole string        `json:"primaryRole,omitempty"`
	Dashboard   string        `json:"dashboard,omitempty"`
	Roles       []roleSummary `json:"roles"`
}

type roleSummary struct {
	Role     string `json:"role"`
	SchoolID string `json:"schoolId"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	ident, err := s.store.GetIdentityByEmail(r.Context(), req.Email)
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if err := crypto.CheckPassword(ident.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	snap, err := s.sessions.SignIn(r.Context(), ident.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	accessToken, refreshToken, err := s.issueTokens(r.Context(), snap, r.UserAgent(), clientIP(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         summarize(snap),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "missing_refresh_token")
		return
	}

	tokenHash := crypto.HashToken(req.RefreshToken)
	sess, err := s.store.GetRefreshSession(r.Context(), tokenHash)
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if sess.RevokedAt != nil || sess.ExpiresAt.Before(time.Now().UTC()) {
		writeError(w, http.StatusUnauthorized, "refresh_token_expired")
		return
	}

	snap, err := s.sessions.SignIn(r.Context(), sess.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "user_not_found")
		return
	}

	if err := s.store.RevokeRefreshSession(r.Context(), sess.ID, time.Now().UTC()); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	accessToken, refreshToken, err := s.issueTokens(r.Context(), snap, r.UserAgent(), clientIP(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         summarize(snap),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	_ = s.store.RevokeRefreshSessionsByUser(r.Context(), claims.UserID, time.Now().UTC())
	s.sessions.SignOut(r.Context(), claims.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	snap, err := s.sessions.Snapshot(r.Context(), claims.UserID)
	if err != nil {
		if notFound(err) {
			writeError(w, http.StatusNotFound, "user_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	writeJSON(w, http.StatusOK, summarize(snap))
}

func (s *Server) issueTokens(ctx context.Context, snap session.Snapshot, userAgent, ip string) (string, string, error) {
	accessToken, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, auth.Claims{
		UserID:   snap.UserID,
		Role:     string(snap.PrimaryRole),
		SchoolID: snap.SchoolID,
	})
	if err != nil {
		return "", "", err
	}

	refreshToken, err := crypto.NewRefreshToken()
	if err != nil {
		return "", "", err
	}

	now := time.Now().UTC()
	sess := model.RefreshSession{
		ID:        uuid.NewString(),
		UserID:    snap.UserID,
		TokenHash: crypto.HashToken(refreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}
	if userAgent != "" {
		sess.UserAgent = &userAgent
	}
	if ip != "" {
		sess.IPAddress = &ip
	}

	if err := s.store.CreateRefreshSession(ctx, sess); err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

func summarize(snap session.Snapshot) userSummary {
	roles := make([]roleSummary, 0, len(snap.Roles))
	for _, role := range snap.Roles {
		roles = append(roles, roleSummary{Role: string(role.Role), SchoolID: role.SchoolID})
	}
	return userSummary{
		ID:          snap.UserID,
		Email:       snap.Email,
		FullName:    snap.FullName,
		AvatarURL:   snap.AvatarURL,
		SchoolID:    snap.SchoolID,
		PrimaryRole: string(snap.PrimaryRole),
		Dashboard:   snap.Dashboard,
		Roles:       roles,
	}
}

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classbridge/internal/auth"
	"classbridge/internal/config"
	"classbridge/internal/model"
	"classbridge/internal/repository"
	"classbridge/internal/session"
)

// Store is the persistence surface the handlers depend on. *repository.Store
// satisfies it; tests substitute an in-memory implementation.
type Store interface {
	CreateSchool(ctx context.Context, school model.School) error
	GetSchool(ctx context.Context, schoolID string) (model.School, error)
	DeleteSchool(ctx context.Context, schoolID string) error

	CreateIdentity(ctx context.Context, ident model.Identity, fullName string) error
	GetIdentityByEmail(ctx context.Context, email string) (model.Identity, error)
	DeleteIdentity(ctx context.Context, userID string) error
	GetProfile(ctx context.Context, userID string) (model.Profile, error)
	AssignProfileSchool(ctx context.Context, userID, schoolID, fullName string) error
	ClearProfileSchool(ctx context.Context, userID string) error
	ListSchoolProfiles(ctx context.Context, schoolID string) ([]model.Profile, error)
	ListParentProfiles(ctx context.Context, schoolID string) ([]model.Profile, error)

	ListRoles(ctx context.Context, userID string) ([]model.UserRole, error)
	HasSchoolRole(ctx context.Context, userID, schoolID string, roles ...model.Role) (bool, error)
	InsertUserRole(ctx context.Context, role model.UserRole) error
	DeleteUserRoles(ctx context.Context, userID, schoolID string) error
	CountUserRoles(ctx context.Context, userID string) (int, error)
	ListSchoolUsers(ctx context.Context, schoolID string, role *model.Role) ([]model.SchoolUser, error)

	CreateRefreshSession(ctx context.Context, sess model.RefreshSession) error
	GetRefreshSession(ctx context.Context, tokenHash string) (model.RefreshSession, error)
	RevokeRefreshSession(ctx context.Context, sessionID string, revokedAt time.Time) error
	RevokeRefreshSessionsByUser(ctx context.Context, userID string, revokedAt time.Time) error

	ListClasses(ctx context.Context, schoolID string) ([]model.Class, error)
	GetClass(ctx context.Context, schoolID, classID string) (model.Class, error)
	CreateClass(ctx context.Context, class model.Class) error
	UpdateClass(ctx context.Context, schoolID, classID string, update model.ClassUpdate) (model.Class, error)
	DeleteClass(ctx context.Context, schoolID, classID string) error

	ListSubjects(ctx context.Context, schoolID string) ([]model.Subject, error)
	CreateSubject(ctx context.Context, subject model.Subject) error
	UpdateSubject(ctx context.Context, schoolID, subjectID string, update model.SubjectUpdate) (model.Subject, error)
	DeleteSubject(ctx context.Context, schoolID, subjectID string) error

	ListTimetable(ctx context.Context, schoolID string, classID *string) ([]model.TimetableEntry, error)
	CreateTimetableEntry(ctx context.Context, entry model.TimetableEntry) error
	UpdateTimetableEntry(ctx context.Context, schoolID, entryID string, update model.TimetableEntryUpdate) (model.TimetableEntry, error)
	DeleteTimetableEntry(ctx context.Context, schoolID, entryID string) error

	ListStudents(ctx context.Context, schoolID string, classID *string) ([]model.Student, error)
	GetStudent(ctx context.Context, schoolID, studentID string) (model.Student, error)
	CreateStudent(ctx context.Context, student model.Student) error
	UpdateStudent(ctx context.Context, schoolID, studentID string, update model.StudentUpdate) (model.Student, error)
	DeleteStudent(ctx context.Context, schoolID, studentID string) error

	ListStudentParents(ctx context.Context, studentID string) ([]model.StudentParent, error)
	LinkParent(ctx context.Context, link model.StudentParent) error
	UnlinkParent(ctx context.Context, studentID, linkID string) error

	ListClassAttendance(ctx context.Context, schoolID, classID, date string) ([]model.AttendanceRecord, error)
	AttendanceReport(ctx context.Context, schoolID, classID, from, to string) ([]model.AttendanceRecord, error)
	UpsertAttendance(ctx context.Context, records []model.AttendanceRecord) error
}

type Server struct {
	cfg      config.Config
	store    Store
	sessions *session.Manager
}

func NewServer(cfg config.Config, store Store, sessions *session.Manager) *Server {
	return &Server{cfg: cfg, store: store, sessions: sessions}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/register", s.handleRegister)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/refresh", s.handleRefresh)
	r.With(s.authMiddleware).Post("/auth/logout", s.handleLogout)
	r.With(s.authMiddleware).Get("/auth/me", s.handleGetMe)

	// Provisioning resolves its school from the request body and answers
	// preflight itself, so it sits outside the school-scoped middleware.
	r.Options("/school-users", s.handleProvisionPreflight)
	r.With(s.authMiddleware).Post("/school-users", s.handleProvision)

	staff := []model.Role{model.RoleSchoolAdmin, model.RoleTeacher}
	adminOnly := []model.Role{model.RoleSchoolAdmin}
	members := []model.Role{model.RoleSchoolAdmin, model.RoleTeacher, model.RoleParent, model.RoleStudent}

	r.With(s.authMiddleware, s.requireSchoolRole(members...)).Get("/school", s.handleGetSchool)
	r.With(s.authMiddleware, s.requireSchoolRole(staff...)).Get("/profiles", s.handleListProfiles)
	r.With(s.authMiddleware, s.requireSchoolRole(staff...)).Get("/parents", s.handleListParents)

	r.Route("/classes", func(r chi.Router) {
		r.With(s.authMiddleware, s.requireSchoolRole(staff...)).Get("/", s.handleListClasses)
		r.With(s.authMiddleware, s.requireSchoolRole(adminOnly...)).Post("/", s.handleCreateClass)
		r.With(s.authMiddleware, s.requireSchoolRole(adminOnly...)).Patch("/{classID}", s.handleUpdateClass)
		r.With(s.authMiddleware, s.requireSchoolRole(adminOnly...)).Delete("/{classID}", s.handleDeleteClass)
	})

	r.Route("/subjects", func(r chi.Router) {
		r.With(s.authMiddleware, s.requireSchoolRole(staff...)).Get("/", s.handleListSubjects)
		r.With(s.authMiddleware, s.requireSchoolRole(adminOnly...)).Post("/", s.handleCreateSubject)
		r.With(s.authMiddleware, s.requireSchoolRole(adminOnly...)).Patch("/{subjectID}", s.handleUpdateSubject)
		r.With(s.authMiddleware, s.requireSchoolRole(adminOnly...)).Delete("/{subjectID}", s.handleDeleteSubject)
	})

	r.Route("/timetable", func(r chi.Router) {
		r.With(s.authMiddleware, s.requireSchoolRole(staff...)).Get("/", s.handleListTimetable)
		r.With(s.authMiddleware, s.requireSchoolRole(adminOnly...)).Post("/", s.handleCreateTimetableEntry)
		r.With(s.authMiddleware, s.requireSchoolRole(adminOnly...)).Patch("/{entryID}", s.handleUpdateTimetableEntry)
		r.With(s.authMiddleware, s.requireSchoolRole(adminOnly...)).Delete("/{entryID}", s.handleDeleteTimetableEntry)
	})

	r.Route("/students", func(r chi.Router) {
		r.With(s.authMiddleware, s.requireSchoolRole(staff...)).Get("/", s.handleListStudents)
		r.With(s.authMiddleware, s.requireSchoolRole(adminOnly...)).Post("/", s.handleCreateStudent)
		r.With(s.authMiddleware, s.requireSchoolRole(adminOnly...)).Patch("/{studentID}", s.handleUpdateStudent)
		r.With(s.authMiddleware, s.requireSchoolRole(adminOnly...)).Delete("/{studentID}", s.handleDeleteStudent)
		r.With(s.authMiddleware, s.requireSchoolRole(staff...)).Get("/{studentID}/parents", s.handleListStudentParents)
		r.With(s.authMiddleware, s.requireSchoolRole(adminOnly...)).Post("/{studentID}/parents", s.handleLinkParent)
		r.With(s.authMiddleware, s.requireSchoolRole(adminOnly...)).Delete("/{studentID}/parents/{linkID}", s.handleUnlinkParent)
	})

	r.Route("/attendance", func(r chi.Router) {
		r.With(s.authMiddleware, s.requireSchoolRole(staff...)).Get("/", s.handleListAttendance)
		r.With(s.authMiddleware, s.requireSchoolRole(staff...)).Get("/report", s.handleAttendanceReport)
		r.With(s.authMiddleware, s.requireSchoolRole(staff...)).Post("/bulk", s.handleBulkAttendance)
	})

	return r
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireSchoolRole resolves the caller's school from their profile and
// checks current role rows for it. The check always goes to the store, not to
// token claims or a session snapshot, so a revoked role is rejected on the
// request after the revocation.
func (s *Server) requireSchoolRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "missing_token")
				return
			}

			profile, err := s.store.GetProfile(r.Context(), claims.UserID)
			if err != nil {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			if profile.SchoolID == nil {
				writeError(w, http.StatusForbidden, "no_school")
				return
			}

			ok, err := s.store.HasSchoolRole(r.Context(), claims.UserID, *profile.SchoolID, roles...)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "server_error")
				return
			}
			if !ok {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}

			ctx := context.WithValue(r.Context(), schoolKey{}, *profile.SchoolID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type claimsKey struct{}
type schoolKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims
}

func schoolFromContext(ctx context.Context) string {
	schoolID, _ := ctx.Value(schoolKey{}).(string)
	return schoolID
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return ""
}

func notFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}

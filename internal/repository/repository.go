package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"classbridge/internal/model"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrSchoolExists = errors.New("a school with this name already exists")
	ErrEmailExists  = errors.New("a user with this email already exists")
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Schools

func (s *Store) CreateSchool(ctx context.Context, school model.School) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO schools (id, name, slug, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, school.ID, school.Name, school.Slug, school.Email, school.CreatedAt, school.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrSchoolExists
	}
	return err
}

func (s *Store) GetSchool(ctx context.Context, schoolID string) (model.School, error) {
	var school model.School
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, slug, email, created_at, updated_at
		FROM schools
		WHERE id = $1
	`, schoolID)
	err := row.Scan(&school.ID, &school.Name, &school.Slug, &school.Email, &school.CreatedAt, &school.UpdatedAt)
	return school, mapNoRows(err)
}

// DeleteSchool is the compensating action for a failed registration; nothing
// else removes school rows.
func (s *Store) DeleteSchool(ctx context.Context, schoolID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM schools WHERE id = $1`, schoolID)
	return err
}

// Identities and profiles

// CreateIdentity inserts the authentication account and its blank profile row
// in one transaction, mirroring the sign-up trigger of the original store.
func (s *Store) CreateIdentity(ctx context.Context, ident model.Identity, fullName string) error {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO identities (id, email, password_hash, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
		`, ident.ID, ident.Email, ident.PasswordHash, ident.CreatedAt, ident.UpdatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO profiles (id, email, full_name, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
		`, ident.ID, ident.Email, fullName, ident.CreatedAt, ident.UpdatedAt)
		return err
	})
	if isUniqueViolation(err) {
		return ErrEmailExists
	}
	return err
}

func (s *Store) GetIdentityByEmail(ctx context.Context, email string) (model.Identity, error) {
	var ident model.Identity
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM identities
		WHERE email = $1
	`, email)
	err := row.Scan(&ident.ID, &ident.Email, &ident.PasswordHash, &ident.CreatedAt, &ident.UpdatedAt)
	return ident, mapNoRows(err)
}

// DeleteIdentity removes the account and its dependent rows. Used as the
// compensating action when a provisioning step fails after the account was
// created.
func (s *Store) DeleteIdentity(ctx context.Context, userID string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, userID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM identities WHERE id = $1`, userID)
		return err
	})
}

func (s *Store) GetProfile(ctx context.Context, userID string) (model.Profile, error) {
	var profile model.Profile
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, full_name, avatar_url, school_id, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`, userID)
	err := row.Scan(&profile.ID, &profile.Email, &profile.FullName, &profile.AvatarURL, &profile.SchoolID, &profile.CreatedAt, &profile.UpdatedAt)
	return profile, mapNoRows(err)
}

// AssignProfileSchool sets the tenant membership fields after provisioning.
func (s *Store) AssignProfileSchool(ctx context.Context, userID, schoolID, fullName string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE profiles
		SET school_id = $1, full_name = $2, updated_at = $3
		WHERE id = $4
	`, schoolID, fullName, time.Now().UTC(), userID)
	return err
}

// ClearProfileSchool nulls the profile's school link once the user holds no
// role rows anywhere.
func (s *Store) ClearProfileSchool(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE profiles
		SET school_id = NULL, updated_at = $1
		WHERE id = $2
	`, time.Now().UTC(), userID)
	return err
}

func (s *Store) ListSchoolProfiles(ctx context.Context, schoolID string) ([]model.Profile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, full_name, avatar_url, school_id, created_at, updated_at
		FROM profiles
		WHERE school_id = $1
		ORDER BY full_name ASC
	`, schoolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		var p model.Profile
		if err := rows.Scan(&p.ID, &p.Email, &p.FullName, &p.AvatarURL, &p.SchoolID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// ListParentProfiles returns the school's profiles holding a parent role,
// used by the parent-linking dropdown.
func (s *Store) ListParentProfiles(ctx context.Context, schoolID string) ([]model.Profile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.email, p.full_name, p.avatar_url, p.school_id, p.created_at, p.updated_at
		FROM profiles p
		JOIN user_roles ur ON ur.user_id = p.id
		WHERE ur.school_id = $1 AND ur.role = 'parent'
		ORDER BY p.full_name ASC
	`, schoolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []model.Profile
	for rows.Next() {
		var p model.Profile
		if err := rows.Scan(&p.ID, &p.Email, &p.FullName, &p.AvatarURL, &p.SchoolID, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// Roles

func (s *Store) ListRoles(ctx context.Context, userID string) ([]model.UserRole, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, role, school_id, created_at
		FROM user_roles
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []model.UserRole
	for rows.Next() {
		var ur model.UserRole
		if err := rows.Scan(&ur.ID, &ur.UserID, &ur.Role, &ur.SchoolID, &ur.CreatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, ur)
	}
	return roles, rows.Err()
}

// HasSchoolRole is the authorization gate's query: it re-reads current role
// rows on every call so a revocation is visible on the very next request.
func (s *Store) HasSchoolRole(ctx context.Context, userID, schoolID string, roles ...model.Role) (bool, error) {
	values := make([]string, 0, len(roles))
	for _, role := range roles {
		values = append(values, string(role))
	}
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_roles
			WHERE user_id = $1 AND school_id = $2 AND role = ANY($3)
		)
	`, userID, schoolID, values).Scan(&exists)
	return exists, err
}

func (s *Store) InsertUserRole(ctx context.Context, role model.UserRole) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_roles (id, user_id, role, school_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, role.ID, role.UserID, role.Role, role.SchoolID, role.CreatedAt)
	return err
}

func (s *Store) DeleteUserRoles(ctx context.Context, userID, schoolID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM user_roles WHERE user_id = $1 AND school_id = $2
	`, userID, schoolID)
	return err
}

func (s *Store) CountUserRoles(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM user_roles WHERE user_id = $1
	`, userID).Scan(&count)
	return count, err
}

func (s *Store) ListSchoolUsers(ctx context.Context, schoolID string, role *model.Role) ([]model.SchoolUser, error) {
	query := `
		SELECT ur.id, ur.user_id, ur.role, ur.school_id, ur.created_at,
		       p.full_name, p.email, p.avatar_url
		FROM user_roles ur
		JOIN profiles p ON p.id = ur.user_id
		WHERE ur.school_id = $1`
	args := []interface{}{schoolID}
	if role != nil {
		query += ` AND ur.role = $2`
		args = append(args, string(*role))
	}
	query += ` ORDER BY ur.created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.SchoolUser
	for rows.Next() {
		var u model.SchoolUser
		if err := rows.Scan(&u.ID, &u.UserID, &u.Role, &u.SchoolID, &u.CreatedAt, &u.FullName, &u.Email, &u.AvatarURL); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Refresh sessions

func (s *Store) CreateRefreshSession(ctx context.Context, session model.RefreshSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_token_sessions (id, user_id, token_hash, created_at, expires_at, revoked_at, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, session.ID, session.UserID, session.TokenHash, session.CreatedAt, session.ExpiresAt, session.RevokedAt, session.UserAgent, session.IPAddress)
	return err
}

func (s *Store) GetRefreshSession(ctx context.Context, tokenHash string) (model.RefreshSession, error) {
	var session model.RefreshSession
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, created_at, expires_at, revoked_at, user_agent, ip_address
		FROM refresh_token_sessions
		WHERE token_hash = $1
	`, tokenHash)
	err := row.Scan(&session.ID, &session.UserID, &session.TokenHash, &session.CreatedAt, &session.ExpiresAt, &session.RevokedAt, &session.UserAgent, &session.IPAddress)
	return session, mapNoRows(err)
}

func (s *Store) RevokeRefreshSession(ctx context.Context, sessionID string, revokedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE refresh_token_sessions SET revoked_at = $1 WHERE id = $2`, revokedAt, sessionID)
	return err
}

func (s *Store) RevokeRefreshSessionsByUser(ctx context.Context, userID string, revokedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_token_sessions
		SET revoked_at = $1
		WHERE user_id = $2 AND revoked_at IS NULL
	`, revokedAt, userID)
	return err
}

package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"classbridge/internal/model"
)

func (s *Store) ListClassAttendance(ctx context.Context, schoolID, classID, date string) ([]model.AttendanceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, school_id, student_id, class_id, date, status, notes, marked_by, created_at, updated_at
		FROM attendance_records
		WHERE school_id = $1 AND class_id = $2 AND date = $3
	`, schoolID, classID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAttendance(rows)
}

// AttendanceReport returns every record for the class in the inclusive date
// range, ordered by date so report consumers can group without re-sorting.
func (s *Store) AttendanceReport(ctx context.Context, schoolID, classID, from, to string) ([]model.AttendanceRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, school_id, student_id, class_id, date, status, notes, marked_by, created_at, updated_at
		FROM attendance_records
		WHERE school_id = $1 AND class_id = $2 AND date >= $3 AND date <= $4
		ORDER BY date ASC
	`, schoolID, classID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAttendance(rows)
}

// UpsertAttendance writes the batch in one transaction. A record for a
// (student, date) pair that already exists is overwritten, so re-submitting a
// day's sheet is idempotent.
func (s *Store) UpsertAttendance(ctx context.Context, records []model.AttendanceRecord) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, rec := range records {
			_, err := tx.Exec(ctx, `
				INSERT INTO attendance_records (id, school_id, student_id, class_id, date, status, notes, marked_by, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				ON CONFLICT (student_id, date) DO UPDATE SET
					school_id = EXCLUDED.school_id,
					class_id = EXCLUDED.class_id,
					status = EXCLUDED.status,
					notes = EXCLUDED.notes,
					marked_by = EXCLUDED.marked_by,
					updated_at = EXCLUDED.updated_at
			`, rec.ID, rec.SchoolID, rec.StudentID, rec.ClassID, rec.Date, rec.Status, rec.Notes, rec.MarkedBy, rec.CreatedAt, rec.UpdatedAt)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func scanAttendance(rows pgx.Rows) ([]model.AttendanceRecord, error) {
	var records []model.AttendanceRecord
	for rows.Next() {
		var rec model.AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.SchoolID, &rec.StudentID, &rec.ClassID, &rec.Date,
			&rec.Status, &rec.Notes, &rec.MarkedBy, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

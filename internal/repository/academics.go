package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"classbridge/internal/model"
)

// Classes

func (s *Store) ListClasses(ctx context.Context, schoolID string) ([]model.Class, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, school_id, name, grade_level, section, academic_year, is_active, created_at, updated_at
		FROM classes
		WHERE school_id = $1
		ORDER BY grade_level ASC, name ASC
	`, schoolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var classes []model.Class
	for rows.Next() {
		var c model.Class
		if err := rows.Scan(&c.ID, &c.SchoolID, &c.Name, &c.GradeLevel, &c.Section, &c.AcademicYear, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

func (s *Store) GetClass(ctx context.Context, schoolID, classID string) (model.Class, error) {
	var c model.Class
	row := s.pool.QueryRow(ctx, `
		SELECT id, school_id, name, grade_level, section, academic_year, is_active, created_at, updated_at
		FROM classes
		WHERE id = $1 AND school_id = $2
	`, classID, schoolID)
	err := row.Scan(&c.ID, &c.SchoolID, &c.Name, &c.GradeLevel, &c.Section, &c.AcademicYear, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, mapNoRows(err)
}

func (s *Store) CreateClass(ctx context.Context, c model.Class) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO classes (id, school_id, name, grade_level, section, academic_year, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.SchoolID, c.Name, c.GradeLevel, c.Section, c.AcademicYear, c.IsActive, c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *Store) UpdateClass(ctx context.Context, schoolID, classID string, update model.ClassUpdate) (model.Class, error) {
	set, args := buildSet(map[string]interface{}{
		"name":          strPtrArg(update.Name),
		"grade_level":   strPtrArg(update.GradeLevel),
		"section":       strPtrArg(update.Section),
		"academic_year": strPtrArg(update.AcademicYear),
		"is_active":     boolPtrArg(update.IsActive),
	})
	if len(args) == 0 {
		return s.GetClass(ctx, schoolID, classID)
	}
	args = append(args, time.Now().UTC(), classID, schoolID)
	query := fmt.Sprintf(`
		UPDATE classes SET %s, updated_at = $%d
		WHERE id = $%d AND school_id = $%d
		RETURNING id, school_id, name, grade_level, section, academic_year, is_active, created_at, updated_at
	`, set, len(args)-2, len(args)-1, len(args))

	var c model.Class
	err := s.pool.QueryRow(ctx, query, args...).
		Scan(&c.ID, &c.SchoolID, &c.Name, &c.GradeLevel, &c.Section, &c.AcademicYear, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, mapNoRows(err)
}

func (s *Store) DeleteClass(ctx context.Context, schoolID, classID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM classes WHERE id = $1 AND school_id = $2`, classID, schoolID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Subjects

func (s *Store) ListSubjects(ctx context.Context, schoolID string) ([]model.Subject, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, school_id, name, code, description, color, is_active, created_at, updated_at
		FROM subjects
		WHERE school_id = $1
		ORDER BY name ASC
	`, schoolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subjects []model.Subject
	for rows.Next() {
		var sub model.Subject
		if err := rows.Scan(&sub.ID, &sub.SchoolID, &sub.Name, &sub.Code, &sub.Description, &sub.Color, &sub.IsActive, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, err
		}
		subjects = append(subjects, sub)
	}
	return subjects, rows.Err()
}

func (s *Store) GetSubject(ctx context.Context, schoolID, subjectID string) (model.Subject, error) {
	var sub model.Subject
	row := s.pool.QueryRow(ctx, `
		SELECT id, school_id, name, code, description, color, is_active, created_at, updated_at
		FROM subjects
		WHERE id = $1 AND school_id = $2
	`, subjectID, schoolID)
	err := row.Scan(&sub.ID, &sub.SchoolID, &sub.Name, &sub.Code, &sub.Description, &sub.Color, &sub.IsActive, &sub.CreatedAt, &sub.UpdatedAt)
	return sub, mapNoRows(err)
}

func (s *Store) CreateSubject(ctx context.Context, sub model.Subject) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subjects (id, school_id, name, code, description, color, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, sub.ID, sub.SchoolID, sub.Name, sub.Code, sub.Description, sub.Color, sub.IsActive, sub.CreatedAt, sub.UpdatedAt)
	return err
}

func (s *Store) UpdateSubject(ctx context.Context, schoolID, subjectID string, update model.SubjectUpdate) (model.Subject, error) {
	set, args := buildSet(map[string]interface{}{
		"name":        strPtrArg(update.Name),
		"code":        strPtrArg(update.Code),
		"description": strPtrArg(update.Description),
		"color":       strPtrArg(update.Color),
		"is_active":   boolPtrArg(update.IsActive),
	})
	if len(args) == 0 {
		return s.GetSubject(ctx, schoolID, subjectID)
	}
	args = append(args, time.Now().UTC(), subjectID, schoolID)
	query := fmt.Sprintf(`
		UPDATE subjects SET %s, updated_at = $%d
		WHERE id = $%d AND school_id = $%d
		RETURNING id, school_id, name, code, description, color, is_active, created_at, updated_at
	`, set, len(args)-2, len(args)-1, len(args))

	var sub model.Subject
	err := s.pool.QueryRow(ctx, query, args...).
		Scan(&sub.ID, &sub.SchoolID, &sub.Name, &sub.Code, &sub.Description, &sub.Color, &sub.IsActive, &sub.CreatedAt, &sub.UpdatedAt)
	return sub, mapNoRows(err)
}

func (s *Store) DeleteSubject(ctx context.Context, schoolID, subjectID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM subjects WHERE id = $1 AND school_id = $2`, subjectID, schoolID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Timetable

func (s *Store) ListTimetable(ctx context.Context, schoolID string, classID *string) ([]model.TimetableEntry, error) {
	query := `
		SELECT id, school_id, class_id, subject_id, teacher_id, day_of_week, start_time, end_time, room, created_at, updated_at
		FROM timetable_entries
		WHERE school_id = $1`
	args := []interface{}{schoolID}
	if classID != nil {
		query += ` AND class_id = $2`
		args = append(args, *classID)
	}
	query += ` ORDER BY day_of_week ASC, start_time ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.TimetableEntry
	for rows.Next() {
		var e model.TimetableEntry
		if err := rows.Scan(&e.ID, &e.SchoolID, &e.ClassID, &e.SubjectID, &e.TeacherID, &e.DayOfWeek, &e.StartTime, &e.EndTime, &e.Room, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) GetTimetableEntry(ctx context.Context, schoolID, entryID string) (model.TimetableEntry, error) {
	var e model.TimetableEntry
	row := s.pool.QueryRow(ctx, `
		SELECT id, school_id, class_id, subject_id, teacher_id, day_of_week, start_time, end_time, room, created_at, updated_at
		FROM timetable_entries
		WHERE id = $1 AND school_id = $2
	`, entryID, schoolID)
	err := row.Scan(&e.ID, &e.SchoolID, &e.ClassID, &e.SubjectID, &e.TeacherID, &e.DayOfWeek, &e.StartTime, &e.EndTime, &e.Room, &e.CreatedAt, &e.UpdatedAt)
	return e, mapNoRows(err)
}

func (s *Store) CreateTimetableEntry(ctx context.Context, e model.TimetableEntry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO timetable_entries (id, school_id, class_id, subject_id, teacher_id, day_of_week, start_time, end_time, room, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, e.SchoolID, e.ClassID, e.SubjectID, e.TeacherID, e.DayOfWeek, e.StartTime, e.EndTime, e.Room, e.CreatedAt, e.UpdatedAt)
	return err
}

func (s *Store) UpdateTimetableEntry(ctx context.Context, schoolID, entryID string, update model.TimetableEntryUpdate) (model.TimetableEntry, error) {
	fields := map[string]interface{}{
		"class_id":   strPtrArg(update.ClassID),
		"subject_id": strPtrArg(update.SubjectID),
		"teacher_id": strPtrArg(update.TeacherID),
		"start_time": strPtrArg(update.StartTime),
		"end_time":   strPtrArg(update.EndTime),
		"room":       strPtrArg(update.Room),
	}
	if update.DayOfWeek != nil {
		fields["day_of_week"] = *update.DayOfWeek
	}
	set, args := buildSet(fields)
	if len(args) == 0 {
		return s.GetTimetableEntry(ctx, schoolID, entryID)
	}
	args = append(args, time.Now().UTC(), entryID, schoolID)
	query := fmt.Sprintf(`
		UPDATE timetable_entries SET %s, updated_at = $%d
		WHERE id = $%d AND school_id = $%d
		RETURNING id, school_id, class_id, subject_id, teacher_id, day_of_week, start_time, end_time, room, created_at, updated_at
	`, set, len(args)-2, len(args)-1, len(args))

	var e model.TimetableEntry
	err := s.pool.QueryRow(ctx, query, args...).
		Scan(&e.ID, &e.SchoolID, &e.ClassID, &e.SubjectID, &e.TeacherID, &e.DayOfWeek, &e.StartTime, &e.EndTime, &e.Room, &e.CreatedAt, &e.UpdatedAt)
	return e, mapNoRows(err)
}

func (s *Store) DeleteTimetableEntry(ctx context.Context, schoolID, entryID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM timetable_entries WHERE id = $1 AND school_id = $2`, entryID, schoolID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Students

func (s *Store) ListStudents(ctx context.Context, schoolID string, classID *string) ([]model.Student, error) {
	query := `
		SELECT id, school_id, class_id, user_id, first_name, last_name, date_of_birth, gender,
		       admission_number, enrollment_date, status, address,
		       emergency_contact_name, emergency_contact_phone, notes, created_at, updated_at
		FROM students
		WHERE school_id = $1`
	args := []interface{}{schoolID}
	if classID != nil {
		query += ` AND class_id = $2`
		args = append(args, *classID)
	}
	query += ` ORDER BY last_name ASC, first_name ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []model.Student
	for rows.Next() {
		var st model.Student
		if err := rows.Scan(&st.ID, &st.SchoolID, &st.ClassID, &st.UserID, &st.FirstName, &st.LastName,
			&st.DateOfBirth, &st.Gender, &st.AdmissionNumber, &st.EnrollmentDate, &st.Status,
			&st.Address, &st.EmergencyContactName, &st.EmergencyContactPhone, &st.Notes,
			&st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, err
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

func (s *Store) GetStudent(ctx context.Context, schoolID, studentID string) (model.Student, error) {
	var st model.Student
	row := s.pool.QueryRow(ctx, `
		SELECT id, school_id, class_id, user_id, first_name, last_name, date_of_birth, gender,
		       admission_number, enrollment_date, status, address,
		       emergency_contact_name, emergency_contact_phone, notes, created_at, updated_at
		FROM students
		WHERE id = $1 AND school_id = $2
	`, studentID, schoolID)
	err := row.Scan(&st.ID, &st.SchoolID, &st.ClassID, &st.UserID, &st.FirstName, &st.LastName,
		&st.DateOfBirth, &st.Gender, &st.AdmissionNumber, &st.EnrollmentDate, &st.Status,
		&st.Address, &st.EmergencyContactName, &st.EmergencyContactPhone, &st.Notes,
		&st.CreatedAt, &st.UpdatedAt)
	return st, mapNoRows(err)
}

func (s *Store) CreateStudent(ctx context.Context, st model.Student) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO students (id, school_id, class_id, user_id, first_name, last_name, date_of_birth, gender,
		                      admission_number, enrollment_date, status, address,
		                      emergency_contact_name, emergency_contact_phone, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, st.ID, st.SchoolID, st.ClassID, st.UserID, st.FirstName, st.LastName, st.DateOfBirth, st.Gender,
		st.AdmissionNumber, st.EnrollmentDate, st.Status, st.Address,
		st.EmergencyContactName, st.EmergencyContactPhone, st.Notes, st.CreatedAt, st.UpdatedAt)
	return err
}

func (s *Store) UpdateStudent(ctx context.Context, schoolID, studentID string, update model.StudentUpdate) (model.Student, error) {
	fields := map[string]interface{}{
		"class_id":                strPtrArg(update.ClassID),
		"first_name":              strPtrArg(update.FirstName),
		"last_name":               strPtrArg(update.LastName),
		"date_of_birth":           strPtrArg(update.DateOfBirth),
		"gender":                  strPtrArg(update.Gender),
		"admission_number":        strPtrArg(update.AdmissionNumber),
		"address":                 strPtrArg(update.Address),
		"emergency_contact_name":  strPtrArg(update.EmergencyContactName),
		"emergency_contact_phone": strPtrArg(update.EmergencyContactPhone),
		"notes":                   strPtrArg(update.Notes),
	}
	if update.Status != nil {
		fields["status"] = string(*update.Status)
	}
	set, args := buildSet(fields)
	if len(args) == 0 {
		return s.GetStudent(ctx, schoolID, studentID)
	}
	args = append(args, time.Now().UTC(), studentID, schoolID)
	query := fmt.Sprintf(`
		UPDATE students SET %s, updated_at = $%d
		WHERE id = $%d AND school_id = $%d
		RETURNING id, school_id, class_id, user_id, first_name, last_name, date_of_birth, gender,
		          admission_number, enrollment_date, status, address,
		          emergency_contact_name, emergency_contact_phone, notes, created_at, updated_at
	`, set, len(args)-2, len(args)-1, len(args))

	var st model.Student
	err := s.pool.QueryRow(ctx, query, args...).
		Scan(&st.ID, &st.SchoolID, &st.ClassID, &st.UserID, &st.FirstName, &st.LastName,
			&st.DateOfBirth, &st.Gender, &st.AdmissionNumber, &st.EnrollmentDate, &st.Status,
			&st.Address, &st.EmergencyContactName, &st.EmergencyContactPhone, &st.Notes,
			&st.CreatedAt, &st.UpdatedAt)
	return st, mapNoRows(err)
}

func (s *Store) DeleteStudent(ctx context.Context, schoolID, studentID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM students WHERE id = $1 AND school_id = $2`, studentID, schoolID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Student-parent links

func (s *Store) ListStudentParents(ctx context.Context, studentID string) ([]model.StudentParent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT sp.id, sp.student_id, sp.parent_id, sp.relationship, sp.is_primary_contact, sp.created_at,
		       p.full_name, p.email
		FROM student_parents sp
		JOIN profiles p ON p.id = sp.parent_id
		WHERE sp.student_id = $1
		ORDER BY sp.created_at ASC
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []model.StudentParent
	for rows.Next() {
		var link model.StudentParent
		if err := rows.Scan(&link.ID, &link.StudentID, &link.ParentID, &link.Relationship,
			&link.IsPrimaryContact, &link.CreatedAt, &link.ParentName, &link.ParentEmail); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func (s *Store) LinkParent(ctx context.Context, link model.StudentParent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO student_parents (id, student_id, parent_id, relationship, is_primary_contact, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, link.ID, link.StudentID, link.ParentID, link.Relationship, link.IsPrimaryContact, link.CreatedAt)
	return err
}

func (s *Store) UnlinkParent(ctx context.Context, studentID, linkID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM student_parents WHERE id = $1 AND student_id = $2
	`, linkID, studentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// buildSet assembles an UPDATE set clause from the non-nil fields, numbering
// placeholders from $1.
func buildSet(fields map[string]interface{}) (string, []interface{}) {
	set := ""
	var args []interface{}
	for _, column := range sortedKeys(fields) {
		value := fields[column]
		if value == nil {
			continue
		}
		if set != "" {
			set += ", "
		}
		args = append(args, value)
		set += fmt.Sprintf("%s = $%d", column, len(args))
	}
	return set, args
}

func sortedKeys(fields map[string]interface{}) []string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func strPtrArg(value *string) interface{} {
	if value == nil {
		return nil
	}
	return *value
}

func boolPtrArg(value *bool) interface{} {
	if value == nil {
		return nil
	}
	return *value
}

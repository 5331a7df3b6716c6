package httpapi

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"classbridge/internal/model"
	"classbridge/internal/repository"
)

// memStore is an in-memory Store used by the handler tests.
type memStore struct {
	mu          sync.Mutex
	schools     map[string]model.School
	identities  map[string]model.Identity
	profiles    map[string]model.Profile
	roles       []model.UserRole
	refresh     map[string]model.RefreshSession
	classes     map[string]model.Class
	subjects    map[string]model.Subject
	timetable   map[string]model.TimetableEntry
	students    map[string]model.Student
	parentLinks map[string]model.StudentParent
	attendance  map[string]model.AttendanceRecord
}

func newMemStore() *memStore {
	return &memStore{
		schools:     make(map[string]model.School),
		identities:  make(map[string]model.Identity),
		profiles:    make(map[string]model.Profile),
		refresh:     make(map[string]model.RefreshSession),
		classes:     make(map[string]model.Class),
		subjects:    make(map[string]model.Subject),
		timetable:   make(map[string]model.TimetableEntry),
		students:    make(map[string]model.Student),
		parentLinks: make(map[string]model.StudentParent),
		attendance:  make(map[string]model.AttendanceRecord),
	}
}

func attendanceKey(studentID, date string) string {
	return studentID + "|" + date
}

func (m *memStore) CreateSchool(_ context.Context, school model.School) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.schools {
		if strings.EqualFold(existing.Name, school.Name) {
			return repository.ErrSchoolExists
		}
	}
	m.schools[school.ID] = school
	return nil
}

func (m *memStore) GetSchool(_ context.Context, schoolID string) (model.School, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	school, ok := m.schools[schoolID]
	if !ok {
		return model.School{}, repository.ErrNotFound
	}
	return school, nil
}

func (m *memStore) DeleteSchool(_ context.Context, schoolID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schools, schoolID)
	return nil
}

func (m *memStore) CreateIdentity(_ context.Context, ident model.Identity, fullName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.identities {
		if existing.Email == ident.Email {
			return repository.ErrEmailExists
		}
	}
	m.identities[ident.ID] = ident
	m.profiles[ident.ID] = model.Profile{
		ID:        ident.ID,
		Email:     ident.Email,
		FullName:  fullName,
		CreatedAt: ident.CreatedAt,
		UpdatedAt: ident.UpdatedAt,
	}
	return nil
}

func (m *memStore) GetIdentityByEmail(_ context.Context, email string) (model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ident := range m.identities {
		if ident.Email == email {
			return ident, nil
		}
	}
	return model.Identity{}, repository.ErrNotFound
}

func (m *memStore) DeleteIdentity(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.identities, userID)
	delete(m.profiles, userID)
	kept := m.roles[:0]
	for _, role := range m.roles {
		if role.UserID != userID {
			kept = append(kept, role)
		}
	}
	m.roles = kept
	return nil
}

func (m *memStore) GetProfile(_ context.Context, userID string) (model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, ok := m.profiles[userID]
	if !ok {
		return model.Profile{}, repository.ErrNotFound
	}
	return profile, nil
}

func (m *memStore) AssignProfileSchool(_ context.Context, userID, schoolID, fullName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, ok := m.profiles[userID]
	if !ok {
		return repository.ErrNotFound
	}
	profile.SchoolID = &schoolID
	profile.FullName = fullName
	m.profiles[userID] = profile
	return nil
}

func (m *memStore) ClearProfileSchool(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, ok := m.profiles[userID]
	if !ok {
		return repository.ErrNotFound
	}
	profile.SchoolID = nil
	m.profiles[userID] = profile
	return nil
}

func (m *memStore) ListSchoolProfiles(_ context.Context, schoolID string) ([]model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var profiles []model.Profile
	for _, p := range m.profiles {
		if p.SchoolID != nil && *p.SchoolID == schoolID {
			profiles = append(profiles, p)
		}
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].FullName < profiles[j].FullName })
	return profiles, nil
}

func (m *memStore) ListParentProfiles(_ context.Context, schoolID string) ([]model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var profiles []model.Profile
	for _, role := range m.roles {
		if role.SchoolID == schoolID && role.Role == model.RoleParent {
			if p, ok := m.profiles[role.UserID]; ok {
				profiles = append(profiles, p)
			}
		}
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].FullName < profiles[j].FullName })
	return profiles, nil
}

func (m *memStore) ListRoles(_ context.Context, userID string) ([]model.UserRole, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var roles []model.UserRole
	for _, role := range m.roles {
		if role.UserID == userID {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

func (m *memStore) HasSchoolRole(_ context.Context, userID, schoolID string, roles ...model.Role) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var held []model.UserRole
	for _, row := range m.roles {
		if row.UserID == userID {
			held = append(held, row)
		}
	}
	for _, want := range roles {
		if model.HasRole(held, want, schoolID) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) InsertUserRole(_ context.Context, role model.UserRole) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles = append(m.roles, role)
	return nil
}

func (m *memStore) DeleteUserRoles(_ context.Context, userID, schoolID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.roles[:0]
	for _, role := range m.roles {
		if role.UserID == userID && role.SchoolID == schoolID {
			continue
		}
		kept = append(kept, role)
	}
	m.roles = kept
	return nil
}

func (m *memStore) CountUserRoles(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, role := range m.roles {
		if role.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *memStore) ListSchoolUsers(_ context.Context, schoolID string, role *model.Role) ([]model.SchoolUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var users []model.SchoolUser
	for _, held := range m.roles {
		if held.SchoolID != schoolID {
			continue
		}
		if role != nil && held.Role != *role {
			continue
		}
		profile := m.profiles[held.UserID]
		users = append(users, model.SchoolUser{
			ID:        held.ID,
			UserID:    held.UserID,
			Role:      held.Role,
			SchoolID:  held.SchoolID,
			CreatedAt: held.CreatedAt,
			FullName:  profile.FullName,
			Email:     profile.Email,
			AvatarURL: profile.AvatarURL,
		})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.After(users[j].CreatedAt) })
	return users, nil
}

func (m *memStore) CreateRefreshSession(_ context.Context, sess model.RefreshSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[sess.TokenHash] = sess
	return nil
}

func (m *memStore) GetRefreshSession(_ context.Context, tokenHash string) (model.RefreshSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.refresh[tokenHash]
	if !ok {
		return model.RefreshSession{}, repository.ErrNotFound
	}
	return sess, nil
}

func (m *memStore) RevokeRefreshSession(_ context.Context, sessionID string, revokedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, sess := range m.refresh {
		if sess.ID == sessionID {
			sess.RevokedAt = &revokedAt
			m.refresh[hash] = sess
		}
	}
	return nil
}

func (m *memStore) RevokeRefreshSessionsByUser(_ context.Context, userID string, revokedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, sess := range m.refresh {
		if sess.UserID == userID && sess.RevokedAt == nil {
			sess.RevokedAt = &revokedAt
			m.refresh[hash] = sess
		}
	}
	return nil
}

func (m *memStore) ListClasses(_ context.Context, schoolID string) ([]model.Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var classes []model.Class
	for _, c := range m.classes {
		if c.SchoolID == schoolID {
			classes = append(classes, c)
		}
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })
	return classes, nil
}

func (m *memStore) GetClass(_ context.Context, schoolID, classID string) (model.Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.classes[classID]
	if !ok || c.SchoolID != schoolID {
		return model.Class{}, repository.ErrNotFound
	}
	return c, nil
}

func (m *memStore) CreateClass(_ context.Context, class model.Class) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[class.ID] = class
	return nil
}

func (m *memStore) UpdateClass(_ context.Context, schoolID, classID string, update model.ClassUpdate) (model.Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.classes[classID]
	if !ok || c.SchoolID != schoolID {
		return model.Class{}, repository.ErrNotFound
	}
	if update.Name != nil {
		c.Name = *update.Name
	}
	if update.GradeLevel != nil {
		c.GradeLevel = *update.GradeLevel
	}
	if update.Section != nil {
		c.Section = update.Section
	}
	if update.AcademicYear != nil {
		c.AcademicYear = *update.AcademicYear
	}
	if update.IsActive != nil {
		c.IsActive = *update.IsActive
	}
	c.UpdatedAt = time.Now().UTC()
	m.classes[classID] = c
	return c, nil
}

func (m *memStore) DeleteClass(_ context.Context, schoolID, classID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.classes[classID]
	if !ok || c.SchoolID != schoolID {
		return repository.ErrNotFound
	}
	delete(m.classes, classID)
	return nil
}

func (m *memStore) ListSubjects(_ context.Context, schoolID string) ([]model.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var subjects []model.Subject
	for _, sub := range m.subjects {
		if sub.SchoolID == schoolID {
			subjects = append(subjects, sub)
		}
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Name < subjects[j].Name })
	return subjects, nil
}

func (m *memStore) CreateSubject(_ context.Context, sub model.Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects[sub.ID] = sub
	return nil
}

func (m *memStore) UpdateSubject(_ context.Context, schoolID, subjectID string, update model.SubjectUpdate) (model.Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subjects[subjectID]
	if !ok || sub.SchoolID != schoolID {
		return model.Subject{}, repository.ErrNotFound
	}
	if update.Name != nil {
		sub.Name = *update.Name
	}
	if update.Code != nil {
		sub.Code = *update.Code
	}
	if update.Description != nil {
		sub.Description = update.Description
	}
	if update.Color != nil {
		sub.Color = *update.Color
	}
	if update.IsActive != nil {
		sub.IsActive = *update.IsActive
	}
	sub.UpdatedAt = time.Now().UTC()
	m.subjects[subjectID] = sub
	return sub, nil
}

func (m *memStore) DeleteSubject(_ context.Context, schoolID, subjectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subjects[subjectID]
	if !ok || sub.SchoolID != schoolID {
		return repository.ErrNotFound
	}
	delete(m.subjects, subjectID)
	return nil
}

func (m *memStore) ListTimetable(_ context.Context, schoolID string, classID *string) ([]model.TimetableEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []model.TimetableEntry
	for _, e := range m.timetable {
		if e.SchoolID != schoolID {
			continue
		}
		if classID != nil && e.ClassID != *classID {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].DayOfWeek != entries[j].DayOfWeek {
			return entries[i].DayOfWeek < entries[j].DayOfWeek
		}
		return entries[i].StartTime < entries[j].StartTime
	})
	return entries, nil
}

func (m *memStore) CreateTimetableEntry(_ context.Context, e model.TimetableEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timetable[e.ID] = e
	return nil
}

func (m *memStore) UpdateTimetableEntry(_ context.Context, schoolID, entryID string, update model.TimetableEntryUpdate) (model.TimetableEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.timetable[entryID]
	if !ok || e.SchoolID != schoolID {
		return model.TimetableEntry{}, repository.ErrNotFound
	}
	if update.ClassID != nil {
		e.ClassID = *update.ClassID
	}
	if update.SubjectID != nil {
		e.SubjectID = *update.SubjectID
	}
	if update.TeacherID != nil {
		e.TeacherID = update.TeacherID
	}
	if update.DayOfWeek != nil {
		e.DayOfWeek = *update.DayOfWeek
	}
	if update.StartTime != nil {
		e.StartTime = *update.StartTime
	}
	if update.EndTime != nil {
		e.EndTime = *update.EndTime
	}
	if update.Room != nil {
		e.Room = update.Room
	}
	e.UpdatedAt = time.Now().UTC()
	m.timetable[entryID] = e
	return e, nil
}

func (m *memStore) DeleteTimetableEntry(_ context.Context, schoolID, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.timetable[entryID]
	if !ok || e.SchoolID != schoolID {
		return repository.ErrNotFound
	}
	delete(m.timetable, entryID)
	return nil
}

func (m *memStore) ListStudents(_ context.Context, schoolID string, classID *string) ([]model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var students []model.Student
	for _, st := range m.students {
		if st.SchoolID != schoolID {
			continue
		}
		if classID != nil && (st.ClassID == nil || *st.ClassID != *classID) {
			continue
		}
		students = append(students, st)
	}
	sort.Slice(students, func(i, j int) bool {
		if students[i].LastName != students[j].LastName {
			return students[i].LastName < students[j].LastName
		}
		return students[i].FirstName < students[j].FirstName
	})
	return students, nil
}

func (m *memStore) GetStudent(_ context.Context, schoolID, studentID string) (model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.students[studentID]
	if !ok || st.SchoolID != schoolID {
		return model.Student{}, repository.ErrNotFound
	}
	return st, nil
}

func (m *memStore) CreateStudent(_ context.Context, st model.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[st.ID] = st
	return nil
}

func (m *memStore) UpdateStudent(_ context.Context, schoolID, studentID string, update model.StudentUpdate) (model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.students[studentID]
	if !ok || st.SchoolID != schoolID {
		return model.Student{}, repository.ErrNotFound
	}
	if update.ClassID != nil {
		st.ClassID = update.ClassID
	}
	if update.FirstName != nil {
		st.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		st.LastName = *update.LastName
	}
	if update.DateOfBirth != nil {
		st.DateOfBirth = update.DateOfBirth
	}
	if update.Gender != nil {
		st.Gender = update.Gender
	}
	if update.AdmissionNumber != nil {
		st.AdmissionNumber = update.AdmissionNumber
	}
	if update.Status != nil {
		st.Status = *update.Status
	}
	if update.Address != nil {
		st.Address = update.Address
	}
	if update.EmergencyContactName != nil {
		st.EmergencyContactName = update.EmergencyContactName
	}
	if update.EmergencyContactPhone != nil {
		st.EmergencyContactPhone = update.EmergencyContactPhone
	}
	if update.Notes != nil {
		st.Notes = update.Notes
	}
	st.UpdatedAt = time.Now().UTC()
	m.students[studentID] = st
	return st, nil
}

func (m *memStore) DeleteStudent(_ context.Context, schoolID, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.students[studentID]
	if !ok || st.SchoolID != schoolID {
		return repository.ErrNotFound
	}
	delete(m.students, studentID)
	return nil
}

func (m *memStore) ListStudentParents(_ context.Context, studentID string) ([]model.StudentParent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var links []model.StudentParent
	for _, link := range m.parentLinks {
		if link.StudentID != studentID {
			continue
		}
		if p, ok := m.profiles[link.ParentID]; ok {
			link.ParentName = p.FullName
			link.ParentEmail = p.Email
		}
		links = append(links, link)
	}
	sort.Slice(links, func(i, j int) bool { return links[i].CreatedAt.Before(links[j].CreatedAt) })
	return links, nil
}

func (m *memStore) LinkParent(_ context.Context, link model.StudentParent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parentLinks[link.ID] = link
	return nil
}

func (m *memStore) UnlinkParent(_ context.Context, studentID, linkID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.parentLinks[linkID]
	if !ok || link.StudentID != studentID {
		return repository.ErrNotFound
	}
	delete(m.parentLinks, linkID)
	return nil
}

func (m *memStore) ListClassAttendance(_ context.Context, schoolID, classID, date string) ([]model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var records []model.AttendanceRecord
	for _, rec := range m.attendance {
		if rec.SchoolID == schoolID && rec.ClassID == classID && rec.Date == date {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].StudentID < records[j].StudentID })
	return records, nil
}

func (m *memStore) AttendanceReport(_ context.Context, schoolID, classID, from, to string) ([]model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var records []model.AttendanceRecord
	for _, rec := range m.attendance {
		if rec.SchoolID == schoolID && rec.ClassID == classID && rec.Date >= from && rec.Date <= to {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Date < records[j].Date })
	return records, nil
}

func (m *memStore) UpsertAttendance(_ context.Context, records []model.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		key := attendanceKey(rec.StudentID, rec.Date)
		if existing, ok := m.attendance[key]; ok {
			rec.ID = existing.ID
			rec.CreatedAt = existing.CreatedAt
		}
		m.attendance[key] = rec
	}
	return nil
}

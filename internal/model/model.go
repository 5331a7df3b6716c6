package model

import "time"

// School is the tenant: every school-scoped entity carries its id and is only
// reachable through queries filtered by the caller's resolved school id.
type School struct {
	ID        string
	Name      string
	Slug      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity is an authentication account. It is a separate record from the
// Profile so that provisioning can create the account first and attach the
// tenant membership afterwards.
type Identity struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the directory entry for an identity. SchoolID is nil exactly
// when the user holds no role rows; the provisioning flow maintains that
// invariant, not the database.
type Profile struct {
	ID        string
	Email     string
	FullName  string
	AvatarURL *string
	SchoolID  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserRole is one (user, role, school) membership row. A user may hold
// several, potentially across schools.
type UserRole struct {
	ID        string
	UserID    string
	Role      Role
	SchoolID  string
	CreatedAt time.Time
}

// SchoolUser is a role row joined with profile display fields, as returned by
// the provisioning list operation.
type SchoolUser struct {
	ID        string
	UserID    string
	Role      Role
	SchoolID  string
	CreatedAt time.Time
	FullName  string
	Email     string
	AvatarURL *string
}

type RefreshSession struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
	UserAgent *string
	IPAddress *string
}

type Class struct {
	ID           string
	SchoolID     string
	Name         string
	GradeLevel   string
	Section      *string
	AcademicYear string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ClassUpdate struct {
	Name         *string
	GradeLevel   *string
	Section      *string
	AcademicYear *string
	IsActive     *bool
}

type Subject struct {
	ID          string
	SchoolID    string
	Name        string
	Code        string
	Description *string
	Color       string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type SubjectUpdate struct {
	Name        *string
	Code        *string
	Description *string
	Color       *string
	IsActive    *bool
}

// TimetableEntry schedules a subject for a class. Double-booking a teacher or
// room is allowed: the model enforces no overlap constraint.
type TimetableEntry struct {
	ID        string
	SchoolID  string
	ClassID   string
	SubjectID string
	TeacherID *string
	DayOfWeek int
	StartTime string
	EndTime   string
	Room      *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type TimetableEntryUpdate struct {
	ClassID   *string
	SubjectID *string
	TeacherID *string
	DayOfWeek *int
	StartTime *string
	EndTime   *string
	Room      *string
}

type StudentStatus string

const (
	StudentActive      StudentStatus = "active"
	StudentInactive    StudentStatus = "inactive"
	StudentGraduated   StudentStatus = "graduated"
	StudentTransferred StudentStatus = "transferred"
)

func ParseStudentStatus(raw string) (StudentStatus, bool) {
	switch StudentStatus(raw) {
	case StudentActive, StudentInactive, StudentGraduated, StudentTransferred:
		return StudentStatus(raw), true
	}
	return "", false
}

type Student struct {
	ID                    string
	SchoolID              string
	ClassID               *string
	UserID                *string
	FirstName             string
	LastName              string
	DateOfBirth           *string
	Gender                *string
	AdmissionNumber       *string
	EnrollmentDate        time.Time
	Status                StudentStatus
	Address               *string
	EmergencyContactName  *string
	EmergencyContactPhone *string
	Notes                 *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type StudentUpdate struct {
	ClassID               *string
	FirstName             *string
	LastName              *string
	DateOfBirth           *string
	Gender                *string
	AdmissionNumber       *string
	Status                *StudentStatus
	Address               *string
	EmergencyContactName  *string
	EmergencyContactPhone *string
	Notes                 *string
}

type StudentParent struct {
	ID               string
	StudentID        string
	ParentID         string
	Relationship     string
	IsPrimaryContact bool
	CreatedAt        time.Time
	ParentName       string
	ParentEmail      string
}

type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceExcused AttendanceStatus = "excused"
)

func ParseAttendanceStatus(raw string) (AttendanceStatus, bool) {
	switch AttendanceStatus(raw) {
	case AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceExcused:
		return AttendanceStatus(raw), true
	}
	return "", false
}

// AttendanceRecord is unique per (student, date); the bulk upsert overwrites
// conflicting rows rather than merging them.
type AttendanceRecord struct {
	ID        string
	SchoolID  string
	StudentID string
	ClassID   string
	Date      string
	Status    AttendanceStatus
	Notes     *string
	MarkedBy  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

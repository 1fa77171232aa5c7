package training

import "time"

// Course is an observer training course.
type Course struct {
	ID          string
	Title       string
	Description string
	PassScore   int
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Module is one unit of course content, ordered by Sequence.
type Module struct {
	ID        string
	CourseID  string
	Title     string
	Sequence  int
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EnrollmentStatus tracks an observer's progress through a course.
type EnrollmentStatus string

const (
	EnrollmentEnrolled   EnrollmentStatus = "enrolled"
	EnrollmentInProgress EnrollmentStatus = "in_progress"
	EnrollmentCompleted  EnrollmentStatus = "completed"
	EnrollmentFailed     EnrollmentStatus = "failed"
)

// Enrollment ties an observer to a course.
type Enrollment struct {
	ID          string
	ObserverID  string
	CourseID    string
	Status      EnrollmentStatus
	Score       int
	CompletedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

package school

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/WebgateSystems/akademy/core"
)

// Approval statuses for role assignments and enrollments.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

var ErrNotFound = errors.New("school not found")

type (
	School struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		City      string    `json:"city,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}

	SchoolClass struct {
		ID        string    `json:"id"`
		SchoolID  string    `json:"school_id"`
		Name      string    `json:"name"`
		Year      int       `json:"year,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}

	// RoleAssignment is a teacher's claim on a school, pending principal
	// approval. One assignment per (user, role, school).
	RoleAssignment struct {
		ID        string    `json:"id"`
		UserID    string    `json:"user_id"`
		Role      string    `json:"role"`
		SchoolID  string    `json:"school_id"`
		Status    string    `json:"status"`
		CreatedAt time.Time `json:"created_at"`
	}

	// Enrollment is a student's membership in a school class, pending teacher
	// approval.
	Enrollment struct {
		ID            string    `json:"id"`
		UserID        string    `json:"user_id"`
		SchoolClassID string    `json:"school_class_id"`
		Status        string    `json:"status"`
		CreatedAt     time.Time `json:"created_at"`
	}
)

type (
	Repository interface {
		CreateSchool(ctx context.Context, sch School, exec ...core.DBExecutor) (School, error)
		GetSchool(ctx context.Context, id string, exec ...core.DBExecutor) (School, error)
		QuerySchools(ctx context.Context, exec ...core.DBExecutor) ([]School, error)
		CreateSchoolClass(ctx context.Context, cls SchoolClass, exec ...core.DBExecutor) (SchoolClass, error)
		QuerySchoolClasses(ctx context.Context, schoolID string, exec ...core.DBExecutor) ([]SchoolClass, error)
	}

	RoleAssignmentRepository interface {
		// CreateRoleAssignment upserts on (user, role, school) so a retried
		// registration cannot produce duplicate pending claims.
		CreateRoleAssignment(ctx context.Context, ra RoleAssignment, exec ...core.DBExecutor) (RoleAssignment, error)
		QueryRoleAssignments(ctx context.Context, userID string, exec ...core.DBExecutor) ([]RoleAssignment, error)
	}

	EnrollmentRepository interface {
		CreateEnrollment(ctx context.Context, enr Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		QueryEnrollments(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Enrollment, error)
	}
)

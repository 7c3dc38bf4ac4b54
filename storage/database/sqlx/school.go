package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/WebgateSystems/akademy/core"
	"github.com/WebgateSystems/akademy/core/school"
)

type schoolRepository struct {
	db *sqlx.DB
}

var (
	_ school.Repository               = (*schoolRepository)(nil) // interface compliance check
	_ school.RoleAssignmentRepository = (*schoolRepository)(nil)
	_ school.EnrollmentRepository     = (*schoolRepository)(nil)
)

func NewSchoolRepository(db *sqlx.DB) *schoolRepository {
	return &schoolRepository{db: db}
}

func (repo schoolRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.db
}

func (repo schoolRepository) CreateSchool(ctx context.Context, sch school.School, exec ...core.DBExecutor) (school.School, error) {
	sch.ID = uuid.New().String()
	query := `INSERT INTO school (id, name, city, created_at) VALUES ($1, $2, $3, $4)`
	_, err := repo.getExec(exec).ExecContext(ctx, query,
		sch.ID, sch.Name, null.NewString(sch.City, sch.City != ""), sch.CreatedAt.UTC())
	if err != nil {
		return school.School{}, errors.Wrap(err, "inserting school")
	}
	return sch, nil
}

func (repo schoolRepository) GetSchool(ctx context.Context, id string, exec ...core.DBExecutor) (school.School, error) {
	if _, err := uuid.Parse(id); err != nil {
		return school.School{}, school.ErrNotFound
	}

	var (
		sch  school.School
		city null.String
	)
	query := `SELECT id, name, city, created_at FROM school WHERE id = $1`
	err := repo.getExec(exec).QueryRowContext(ctx, query, id).Scan(&sch.ID, &sch.Name, &city, &sch.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return school.School{}, school.ErrNotFound
		}
		return school.School{}, errors.Wrap(err, "finding school")
	}
	sch.City = city.String
	return sch, nil
}

func (repo schoolRepository) QuerySchools(ctx context.Context, exec ...core.DBExecutor) ([]school.School, error) {
	query := `SELECT id, name, city, created_at FROM school ORDER BY name ASC`
	rows, err := repo.getExec(exec).QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "querying schools")
	}
	defer func() { _ = rows.Close() }()

	var schools []school.School
	for rows.Next() {
		var (
			sch  school.School
			city null.String
		)
		if err = rows.Scan(&sch.ID, &sch.Name, &city, &sch.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning school")
		}
		sch.City = city.String
		schools = append(schools, sch)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "querying schools")
	}
	return schools, nil
}

func (repo schoolRepository) CreateSchoolClass(ctx context.Context, cls school.SchoolClass, exec ...core.DBExecutor) (school.SchoolClass, error) {
	cls.ID = uuid.New().String()
	query := `INSERT INTO school_class (id, school_id, name, year, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := repo.getExec(exec).ExecContext(ctx, query,
		cls.ID, cls.SchoolID, cls.Name, null.NewInt(cls.Year, cls.Year != 0), cls.CreatedAt.UTC())
	if err != nil {
		return school.SchoolClass{}, errors.Wrap(err, "inserting school class")
	}
	return cls, nil
}

func (repo schoolRepository) QuerySchoolClasses(ctx context.Context, schoolID string, exec ...core.DBExecutor) ([]school.SchoolClass, error) {
	query := `SELECT id, school_id, name, year, created_at FROM school_class WHERE school_id = $1 ORDER BY name ASC`
	rows, err := repo.getExec(exec).QueryContext(ctx, query, schoolID)
	if err != nil {
		return nil, errors.Wrap(err, "querying school classes")
	}
	defer func() { _ = rows.Close() }()

	var classes []school.SchoolClass
	for rows.Next() {
		var (
			cls  school.SchoolClass
			year null.Int
		)
		if err = rows.Scan(&cls.ID, &cls.SchoolID, &cls.Name, &year, &cls.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning school class")
		}
		cls.Year = year.Int
		classes = append(classes, cls)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "querying school classes")
	}
	return classes, nil
}

// CreateRoleAssignment upserts on (user_id, role, school_id); a retried
// registration gets the existing pending row back instead of a duplicate.
func (repo schoolRepository) CreateRoleAssignment(ctx context.Context, ra school.RoleAssignment, exec ...core.DBExecutor) (school.RoleAssignment, error) {
	query := `INSERT INTO role_assignment (id, user_id, role, school_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, role, school_id) DO UPDATE SET role = excluded.role
		RETURNING id, status, created_at`
	err := repo.getExec(exec).QueryRowContext(ctx, query,
		uuid.New().String(), ra.UserID, ra.Role, ra.SchoolID, ra.Status, ra.CreatedAt.UTC(),
	).Scan(&ra.ID, &ra.Status, &ra.CreatedAt)
	if err != nil {
		return school.RoleAssignment{}, errors.Wrap(err, "inserting role assignment")
	}
	return ra, nil
}

func (repo schoolRepository) QueryRoleAssignments(ctx context.Context, userID string, exec ...core.DBExecutor) ([]school.RoleAssignment, error) {
	query := `SELECT id, user_id, role, school_id, status, created_at FROM role_assignment WHERE user_id = $1`
	rows, err := repo.getExec(exec).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying role assignments")
	}
	defer func() { _ = rows.Close() }()

	var assignments []school.RoleAssignment
	for rows.Next() {
		var ra school.RoleAssignment
		if err = rows.Scan(&ra.ID, &ra.UserID, &ra.Role, &ra.SchoolID, &ra.Status, &ra.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning role assignment")
		}
		assignments = append(assignments, ra)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "querying role assignments")
	}
	return assignments, nil
}

func (repo schoolRepository) CreateEnrollment(ctx context.Context, enr school.Enrollment, exec ...core.DBExecutor) (school.Enrollment, error) {
	query := `INSERT INTO enrollment (id, user_id, school_class_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, school_class_id) DO UPDATE SET user_id = excluded.user_id
		RETURNING id, status, created_at`
	err := repo.getExec(exec).QueryRowContext(ctx, query,
		uuid.New().String(), enr.UserID, enr.SchoolClassID, enr.Status, enr.CreatedAt.UTC(),
	).Scan(&enr.ID, &enr.Status, &enr.CreatedAt)
	if err != nil {
		return school.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return enr, nil
}

func (repo schoolRepository) QueryEnrollments(ctx context.Context, userID string, exec ...core.DBExecutor) ([]school.Enrollment, error) {
	query := `SELECT id, user_id, school_class_id, status, created_at FROM enrollment WHERE user_id = $1`
	rows, err := repo.getExec(exec).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	defer func() { _ = rows.Close() }()

	var enrollments []school.Enrollment
	for rows.Next() {
		var enr school.Enrollment
		if err = rows.Scan(&enr.ID, &enr.UserID, &enr.SchoolClassID, &enr.Status, &enr.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning enrollment")
		}
		enrollments = append(enrollments, enr)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	return enrollments, nil
}

package inmemdb

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/WebgateSystems/akademy/core"
	"github.com/WebgateSystems/akademy/core/school"
)

type schoolRepository struct {
	mutex       sync.RWMutex
	schools     map[string]*school.School
	classes     map[string]*school.SchoolClass
	assignments map[string]*school.RoleAssignment
	enrollments map[string]*school.Enrollment
}

var (
	_ school.Repository               = (*schoolRepository)(nil) // interface compliance check
	_ school.RoleAssignmentRepository = (*schoolRepository)(nil)
	_ school.EnrollmentRepository     = (*schoolRepository)(nil)
)

func NewSchoolRepository() *schoolRepository {
	return &schoolRepository{
		schools:     make(map[string]*school.School),
		classes:     make(map[string]*school.SchoolClass),
		assignments: make(map[string]*school.RoleAssignment),
		enrollments: make(map[string]*school.Enrollment),
	}
}

func (repo *schoolRepository) CreateSchool(_ context.Context, sch school.School, _ ...core.DBExecutor) (school.School, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	sch.ID = uuid.New().String()
	repo.schools[sch.ID] = &sch
	return sch, nil
}

func (repo *schoolRepository) GetSchool(_ context.Context, id string, _ ...core.DBExecutor) (school.School, error) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	if sch, ok := repo.schools[id]; ok {
		return *sch, nil
	}
	return school.School{}, school.ErrNotFound
}

func (repo *schoolRepository) QuerySchools(_ context.Context, _ ...core.DBExecutor) ([]school.School, error) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	schools := make([]school.School, 0, len(repo.schools))
	for _, sch := range repo.schools {
		schools = append(schools, *sch)
	}
	sort.Slice(schools, func(i, j int) bool { return schools[i].Name < schools[j].Name })
	return schools, nil
}

func (repo *schoolRepository) CreateSchoolClass(_ context.Context, cls school.SchoolClass, _ ...core.DBExecutor) (school.SchoolClass, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	cls.ID = uuid.New().String()
	repo.classes[cls.ID] = &cls
	return cls, nil
}

func (repo *schoolRepository) QuerySchoolClasses(_ context.Context, schoolID string, _ ...core.DBExecutor) ([]school.SchoolClass, error) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	classes := make([]school.SchoolClass, 0)
	for _, cls := range repo.classes {
		if cls.SchoolID == schoolID {
			classes = append(classes, *cls)
		}
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })
	return classes, nil
}

func (repo *schoolRepository) CreateRoleAssignment(_ context.Context, ra school.RoleAssignment, _ ...core.DBExecutor) (school.RoleAssignment, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	// upsert on (user, role, school)
	for _, existing := range repo.assignments {
		if existing.UserID == ra.UserID && existing.Role == ra.Role && existing.SchoolID == ra.SchoolID {
			return *existing, nil
		}
	}
	ra.ID = uuid.New().String()
	repo.assignments[ra.ID] = &ra
	return ra, nil
}

func (repo *schoolRepository) QueryRoleAssignments(_ context.Context, userID string, _ ...core.DBExecutor) ([]school.RoleAssignment, error) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	assignments := make([]school.RoleAssignment, 0)
	for _, ra := range repo.assignments {
		if ra.UserID == userID {
			assignments = append(assignments, *ra)
		}
	}
	return assignments, nil
}

func (repo *schoolRepository) CreateEnrollment(_ context.Context, enr school.Enrollment, _ ...core.DBExecutor) (school.Enrollment, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	// upsert on (user, class)
	for _, existing := range repo.enrollments {
		if existing.UserID == enr.UserID && existing.SchoolClassID == enr.SchoolClassID {
			return *existing, nil
		}
	}
	enr.ID = uuid.New().String()
	repo.enrollments[enr.ID] = &enr
	return enr, nil
}

func (repo *schoolRepository) QueryEnrollments(_ context.Context, userID string, _ ...core.DBExecutor) ([]school.Enrollment, error) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	enrollments := make([]school.Enrollment, 0)
	for _, enr := range repo.enrollments {
		if enr.UserID == userID {
			enrollments = append(enrollments, *enr)
		}
	}
	return enrollments, nil
}

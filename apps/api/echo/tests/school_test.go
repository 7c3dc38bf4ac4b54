package tests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/WebgateSystems/akademy/core/school"
)

func Test_schoolApi(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	sch, err := env.schRepo.CreateSchool(ctx, school.School{Name: "SP 42", City: "Warszawa", CreatedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("CreateSchool() failed: %v", err)
	}
	cls, err := env.schRepo.CreateSchoolClass(ctx, school.SchoolClass{SchoolID: sch.ID, Name: "4B", Year: 2026, CreatedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("CreateSchoolClass() failed: %v", err)
	}

	tests := []httpTest{
		{
			name:     "list schools",
			method:   http.MethodGet,
			path:     "/v1/schools",
			wantCode: http.StatusOK,
			wantData: marchallObj(t, []school.School{sch}),
		},
		{
			name:     "list classes",
			method:   http.MethodGet,
			path:     "/v1/schools/" + sch.ID + "/classes",
			wantCode: http.StatusOK,
			wantData: marchallObj(t, []school.SchoolClass{cls}),
		},
		{
			name:     "unknown school",
			method:   http.MethodGet,
			path:     "/v1/schools/nope/classes",
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "school not found"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/liamAduDonkor/adesua-sub000/core"
	"github.com/liamAduDonkor/adesua-sub000/core/metric"
	"github.com/liamAduDonkor/adesua-sub000/core/report"
	"github.com/liamAduDonkor/adesua-sub000/core/scope"
	dummydb "github.com/liamAduDonkor/adesua-sub000/storage/database/dummy"
)

// Principals of the seeded directory.
var (
	Admin      = scope.Principal{Role: scope.RoleAdmin, UserID: "admin-1"}
	HeadOf42   = scope.Principal{Role: scope.RoleSchool, UserID: "head-42"}
	HeadOf43   = scope.Principal{Role: scope.RoleSchool, UserID: "head-43"}
	TeacherOf1 = scope.Principal{Role: scope.RoleTeacher, UserID: "teach-1"}
	Student1   = scope.Principal{Role: scope.RoleStudent, UserID: "u-stu-1"}
	Parent     = scope.Principal{Role: scope.RoleParent, UserID: "mum"}
)

// Day is the recording date of seeded metrics.
var Day = time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

func NewValidator() (*validator.Validate, ut.Translator) {
	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	report.InitValidators(validate, translator)
	return validate, translator
}

func NewConfig() *core.Config {
	return &core.Config{
		TestMode:        true,
		Env:             "TEST",
		AppName:         "Adesua",
		SecretKey:       "0bb8a2f1e67d4c5a9e3f2d1c8b7a6954",
		FrontendBaseURL: "https://adesua.test",
		Server:          core.ServerConfig{JWTExpirationDelta: time.Hour},
		Reports: core.ReportsConfig{
			Workers:           2,
			PollInterval:      10 * time.Millisecond,
			GenerationTimeout: time.Second,
			MaxRetries:        3,
			DefaultTopN:       10,
		},
		Scheduler: core.SchedulerConfig{Interval: 10 * time.Millisecond},
	}
}

// SeedDirectory registers region greater-accra with schools 42 and 43, class JHS1-A in 42
// and the principals above.
func SeedDirectory(dir *dummydb.Directory) {
	dir.AddOrgUnit("greater-accra", "", dummydb.KindRegion, "greater-accra")
	dir.AddOrgUnit("volta", "", dummydb.KindRegion, "volta")
	dir.AddOrgUnit("42", "greater-accra", dummydb.KindSchool, "42")
	dir.AddOrgUnit("43", "greater-accra", dummydb.KindSchool, "43")
	dir.AddOrgUnit("42:JHS1-A", "42", dummydb.KindClass, "JHS1-A")

	dir.Assign(HeadOf42.UserID, dummydb.AssignSchool, "42")
	dir.Assign(HeadOf43.UserID, dummydb.AssignSchool, "43")
	dir.Assign(TeacherOf1.UserID, dummydb.AssignClass, "42:JHS1-A")
	dir.Assign(Student1.UserID, dummydb.AssignEntity, "stu-42-0")
	dir.Assign(Parent.UserID, dummydb.AssignChild, "stu-42-0", "stu-42-1")
}

// StudentRecord builds a student record in class JHS1-A of school, for 2023/2024.
func StudentRecord(id, school string, score float64, rating string) metric.Record {
	return metric.Record{
		EntityID:     id,
		EntityType:   metric.EntityStudent,
		Region:       "greater-accra",
		SchoolID:     school,
		ClassLabel:   "JHS1-A",
		AcademicYear: "2023/2024",
		RecordedAt:   Day,
		Numeric: map[string]float64{
			metric.FieldScore:          score,
			metric.FieldAttendanceRate: 90,
			metric.FieldPunctuality:    80,
		},
		Categorical: map[string]string{metric.FieldPerformance: rating},
	}
}

// SeedStudents appends 50 students to school 42 (30 "Good", 10 "Excellent", 10 "Poor")
// and 10 "Good" students to school 43.
func SeedStudents(t *testing.T, w metric.Writer) {
	t.Helper()

	recs := make([]metric.Record, 0, 60)
	for i := 0; i < 50; i++ {
		rating, score := "Good", 70.0
		switch {
		case i >= 40:
			rating, score = "Poor", 30
		case i >= 30:
			rating, score = "Excellent", 95
		}
		recs = append(recs, StudentRecord(fmt.Sprintf("stu-42-%d", i), "42", score, rating))
	}
	for i := 0; i < 10; i++ {
		recs = append(recs, StudentRecord(fmt.Sprintf("stu-43-%d", i), "43", 60, "Good"))
	}
	if err := w.AppendMetrics(context.Background(), recs...); err != nil {
		t.Fatalf("SeedStudents() failed: %v", err)
	}
}

// Renderer records render requests. It fails with report.ErrRender when Err is set
// and blocks for Delay (or until the context is done).
type Renderer struct {
	mu       sync.Mutex
	Err      error
	Delay    time.Duration
	Requests []report.RenderRequest
}

func (r *Renderer) Render(ctx context.Context, req report.RenderRequest) (string, error) {
	r.mu.Lock()
	r.Requests = append(r.Requests, req)
	fail, delay := r.Err, r.Delay
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if fail != nil {
		return "", errors.Wrap(report.ErrRender, fail.Error())
	}
	return fmt.Sprintf("%s/%s.%s", req.InstanceID, req.Type, req.Format), nil
}

func (r *Renderer) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Requests)
}

func (r *Renderer) SetErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Err = err
}

// Notifier records notifications.
type Notifier struct {
	mu   sync.Mutex
	Err  error
	sent []report.Notification
}

func (n *Notifier) Notify(_ context.Context, nt report.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, nt)
	return n.Err
}

func (n *Notifier) Sent() []report.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]report.Notification(nil), n.sent...)
}

// Clock is a settable clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{now: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *Clock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

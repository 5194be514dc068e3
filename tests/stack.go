package testutil

import (
	"testing"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/liamAduDonkor/adesua-sub000/core"
	"github.com/liamAduDonkor/adesua-sub000/core/analytics"
	"github.com/liamAduDonkor/adesua-sub000/core/compliance"
	"github.com/liamAduDonkor/adesua-sub000/core/report"
	"github.com/liamAduDonkor/adesua-sub000/core/scope"
	logsvc "github.com/liamAduDonkor/adesua-sub000/services/logger"
	dummydb "github.com/liamAduDonkor/adesua-sub000/storage/database/dummy"
)

// Stack is the report engine wired on the in-memory database.
type Stack struct {
	Conf      *core.Config
	Logger    core.Logger
	DB        *dummydb.DB
	Store     *dummydb.MetricStore
	Directory *dummydb.Directory
	Repo      report.Repository
	Resolver  *scope.Resolver
	Engine    *analytics.Engine
	Scorer    *compliance.Scorer
	Renderer  *Renderer
	Notifier  *Notifier
	Clock     *Clock
	Service   *report.Service
	Generator *report.Generator
	Pool      *report.Pool

	Validate   *validator.Validate
	Translator ut.Translator
}

// StackOption adjusts a Stack before its services are wired.
type StackOption func(*Stack)

// WithRepository wraps the in-memory report repository, e.g. to inject storage errors.
func WithRepository(wrap func(report.Repository) report.Repository) StackOption {
	return func(s *Stack) { s.Repo = wrap(s.Repo) }
}

func NewStack(t *testing.T, opts ...StackOption) *Stack {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	scorer, err := compliance.NewScorer()
	if err != nil {
		t.Fatalf("compliance.NewScorer() failed: %v", err)
	}

	s := &Stack{
		Conf:      NewConfig(),
		Logger:    logsvc.NewNopLogger(),
		DB:        db,
		Store:     dummydb.NewMetricStore(db),
		Directory: dummydb.NewDirectory(db),
		Repo:      dummydb.NewReportRepository(db),
		Scorer:    scorer,
		Renderer:  &Renderer{},
		Notifier:  &Notifier{},
		Clock:     NewClock(Day),
	}
	for _, opt := range opts {
		opt(s)
	}
	SeedDirectory(s.Directory)
	s.Resolver = scope.NewResolver(s.Directory)
	s.Engine = analytics.NewEngine(s.Store, s.Conf.Reports.DefaultTopN)

	validate, translator := NewValidator()
	s.Validate, s.Translator = validate, translator
	s.Service = report.NewService(report.ServiceDeps{
		Repo:       s.Repo,
		Resolver:   s.Resolver,
		Renderer:   s.Renderer,
		Notifier:   s.Notifier,
		Validate:   validate,
		Translator: translator,
		Logger:     s.Logger,
		Conf:       s.Conf,
		Clock:      s.Clock.Now,
	})
	s.Generator = report.NewGenerator(report.GeneratorDeps{
		Service: s.Service,
		Store:   s.Store,
		Engine:  s.Engine,
		Scorer:  s.Scorer,
		Logger:  s.Logger,
		Conf:    s.Conf,
	})
	s.Pool = report.NewPool(s.Service, s.Generator, s.Logger, s.Conf)
	return s
}

// StudentReport is a student performance definition over school 42.
func StudentReport() report.NewDefinition {
	return report.NewDefinition{
		Type:         report.TypeStudentPerformance,
		Title:        "Term 2 performance",
		Filters:      report.Filters{SchoolID: "42", AcademicYear: "2023/2024"},
		OutputFormat: report.FormatPDF,
		Recipients:   []string{"head@school42.edu.gh"},
	}
}

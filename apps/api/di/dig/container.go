package dig_container

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/liamAduDonkor/adesua-sub000/apps/api/echo"
	"github.com/liamAduDonkor/adesua-sub000/core"
	"github.com/liamAduDonkor/adesua-sub000/core/analytics"
	"github.com/liamAduDonkor/adesua-sub000/core/compliance"
	"github.com/liamAduDonkor/adesua-sub000/core/metric"
	"github.com/liamAduDonkor/adesua-sub000/core/report"
	"github.com/liamAduDonkor/adesua-sub000/core/scheduler"
	"github.com/liamAduDonkor/adesua-sub000/core/scope"
	emailsvc "github.com/liamAduDonkor/adesua-sub000/services/email"
	eventsvc "github.com/liamAduDonkor/adesua-sub000/services/events"
	logsvc "github.com/liamAduDonkor/adesua-sub000/services/logger"
	metricsvc "github.com/liamAduDonkor/adesua-sub000/services/metrics"
	rendersvc "github.com/liamAduDonkor/adesua-sub000/services/render"
	"github.com/liamAduDonkor/adesua-sub000/storage/database"
	sqlxrepos "github.com/liamAduDonkor/adesua-sub000/storage/database/sqlx"
)

const setUpTimeout = 30 * time.Second

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	ServiceParams struct {
		dig.In
		Conf       *core.Config
		Logger     core.Logger
		Repo       report.Repository
		Resolver   report.ScopeResolver
		Renderer   report.Renderer
		Notifier   report.Notifier
		Observer   report.Observer
		Validate   *validator.Validate
		Translator ut.Translator
	}

	ServerParams struct {
		dig.In
		Conf       *core.Config
		Logger     core.Logger
		Reports    *report.Service
		Resolver   report.ScopeResolver
		Engine     *analytics.Engine
		Scorer     *compliance.Scorer
		Store      metric.Store
		Renderer   *rendersvc.FileRenderer
		Metrics    *metricsvc.Collector
		Validate   *validator.Validate
		Translator ut.Translator
	}
)

func newZapLogger(conf *core.Config) (*logsvc.ZapLogger, error) {
	return logsvc.NewZapLogger(conf)
}

func newLogger(conf *core.Config, zl *logsvc.ZapLogger) core.Logger {
	logger := logsvc.NewRollbarLogger(zl.Named("api"), conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newDBLogger(conf *core.Config, zl *logsvc.ZapLogger) core.Logger {
	logger := logsvc.NewRollbarLogger(zl.Named("db"), conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), setUpTimeout)
	defer cancel()

	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(ctx, conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB, "up"); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Error("setting up database", err)
		return nil, errors.Wrap(err, "setting up database")
	}
	return db, nil
}

// newEventStream returns nil when no redis address is configured.
func newEventStream(conf *core.Config, logger core.Logger) (*eventsvc.Stream, error) {
	if conf.Redis.Addr == "" {
		logger.Warn("redis is not configured: report events will not be published")
		return nil, nil
	}
	client, err := eventsvc.NewClient(context.Background(), conf)
	if err != nil {
		return nil, err
	}
	return eventsvc.NewStream(client, conf, logger), nil
}

func newPublisher(stream *eventsvc.Stream) scheduler.Publisher {
	if stream == nil {
		return nil
	}
	return stream
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// newNotifier tells recipients by email, and the event stream when there is one.
func newNotifier(conf *core.Config, mailSvc core.EmailService, stream *eventsvc.Stream, logger core.Logger) report.Notifier {
	ns := report.Notifiers{emailsvc.NewNotifier(mailSvc, conf, logger)}
	if stream != nil {
		ns = append(ns, stream)
	}
	return ns
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	report.InitValidators(validate, translator)
	return validate
}

func newEngine(store metric.Store, conf *core.Config) *analytics.Engine {
	return analytics.NewEngine(store, conf.Reports.DefaultTopN)
}

func newScorer() (*compliance.Scorer, error) {
	return compliance.NewScorer()
}

func newReportService(p ServiceParams) *report.Service {
	return report.NewService(report.ServiceDeps{
		Repo:       p.Repo,
		Resolver:   p.Resolver,
		Renderer:   p.Renderer,
		Notifier:   p.Notifier,
		Observer:   p.Observer,
		Validate:   p.Validate,
		Translator: p.Translator,
		Logger:     p.Logger,
		Conf:       p.Conf,
	})
}

func newGenerator(svc *report.Service, store metric.Store, engine *analytics.Engine, scorer *compliance.Scorer, logger core.Logger, conf *core.Config) *report.Generator {
	return report.NewGenerator(report.GeneratorDeps{
		Service: svc,
		Store:   store,
		Engine:  engine,
		Scorer:  scorer,
		Logger:  logger,
		Conf:    conf,
	})
}

func newManager(repo report.Repository, svc *report.Service, publisher scheduler.Publisher, metrics *metricsvc.Collector, logger core.Logger) *scheduler.Manager {
	return scheduler.NewManager(scheduler.Deps{
		Repo:      repo,
		Service:   svc,
		Publisher: publisher,
		Observer:  metrics,
		Logger:    logger,
	})
}

func newServer(p ServerParams) *echoapi.Server {
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	return echoapi.NewServer(p.Conf.Server.Host, shutdown, &echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Reports:    p.Reports,
		Resolver:   p.Resolver,
		Engine:     p.Engine,
		Scorer:     p.Scorer,
		Store:      p.Store,
		Artifacts:  p.Renderer,
		Metrics:    p.Metrics,
		Validate:   p.Validate,
		Translator: p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newZapLogger))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(metricsvc.NewCollector))
	must(c.Provide(func(col *metricsvc.Collector) report.Observer { return col }))

	// storage
	must(c.Provide(sqlxrepos.NewReportRepository))
	must(c.Provide(sqlxrepos.NewMetricStore, dig.As(new(metric.Store))))
	must(c.Provide(sqlxrepos.NewDirectory, dig.As(new(scope.Directory))))

	// services
	must(c.Provide(newEventStream))
	must(c.Provide(newPublisher))
	must(c.Provide(newEmailService))
	must(c.Provide(newNotifier))
	must(c.Provide(rendersvc.NewFileRenderer))
	must(c.Provide(func(r *rendersvc.FileRenderer) report.Renderer { return r }))
	must(c.Provide(newTranslator))
	must(c.Provide(newValidator))

	// reports
	must(c.Provide(scope.NewResolver, dig.As(new(report.ScopeResolver))))
	must(c.Provide(newEngine))
	must(c.Provide(newScorer))
	must(c.Provide(newReportService))
	must(c.Provide(newGenerator))
	must(c.Provide(report.NewPool))
	must(c.Provide(newManager))
	must(c.Provide(scheduler.NewDriver))

	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}

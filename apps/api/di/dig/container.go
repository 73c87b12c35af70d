package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/classboard/apps/api/echo"
	"github.com/trezcool/classboard/core"
	"github.com/trezcool/classboard/core/account"
	"github.com/trezcool/classboard/core/auth"
	"github.com/trezcool/classboard/core/moderation"
	"github.com/trezcool/classboard/services/events"
	"github.com/trezcool/classboard/services/export"
	logsvc "github.com/trezcool/classboard/services/logger"
	"github.com/trezcool/classboard/services/ratelimit"
	"github.com/trezcool/classboard/storage/database"
	"github.com/trezcool/classboard/storage/database/inmem"
	sqlxrepos "github.com/trezcool/classboard/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Storage holds the repositories of the configured engine. DB is nil for the memory engine.
type Storage struct {
	dig.Out
	DB         *sqlx.DB
	Accounts   account.Repository
	Moderation moderation.Repository
}

type serverParams struct {
	dig.In
	Conf          *core.Config
	Logger        core.Logger
	Translator    ut.Translator
	Auth          *auth.Authenticator
	AccountSvc    *account.Service
	ModerationSvc *moderation.Service
	ExportSvc     *export.Service
	DB            *sqlx.DB
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) Storage {
	if conf.Database.Engine == database.EngineMemory {
		loggerParam.Logger.Warn("using the in-memory store: nothing survives a restart")
		db := inmemdb.Open()
		return Storage{
			Accounts:   inmemdb.NewAccountRepository(db),
			Moderation: inmemdb.NewModerationRepository(db),
		}
	}

	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return Storage{
		DB:         db,
		Accounts:   sqlxrepos.NewAccountRepository(db),
		Moderation: sqlxrepos.NewModerationRepository(db),
	}
}

func newValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	return validate
}

func newPublisher(bus *events.Bus) core.EventPublisher { return bus }

func newModerationService(
	repo moderation.Repository,
	accounts account.Repository,
	validate *validator.Validate,
	translator ut.Translator,
	publisher core.EventPublisher,
	logger core.Logger,
) (*moderation.Service, error) {
	return moderation.NewService(repo, accounts, validate, translator, publisher, logger)
}

func newAuthenticator(repo account.Repository, conf *core.Config, logger core.Logger) (*auth.Authenticator, error) {
	limiter, err := ratelimit.New(conf)
	if err != nil {
		return nil, err
	}
	return auth.NewAuthenticator(repo, limiter, logger, conf)
}

func newExportService(svc *account.Service, logger core.Logger) (*export.Service, error) {
	return export.NewService(svc, logger)
}

func newServer(p serverParams) (*echoapi.Server, error) {
	deps := echoapi.ServerDeps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Translator:    p.Translator,
		Auth:          p.Auth,
		AccountSvc:    p.AccountSvc,
		ModerationSvc: p.ModerationSvc,
		ExportSvc:     p.ExportSvc,
	}
	if p.DB != nil {
		deps.Ping = func(ctx context.Context) error { return p.DB.PingContext(ctx) }
	}
	return echoapi.NewServer(deps)
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(events.New))
	must(c.Provide(newPublisher))
	must(c.Provide(account.NewService))
	must(c.Provide(newModerationService))
	must(c.Provide(newAuthenticator))
	must(c.Provide(newExportService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}

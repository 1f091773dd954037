package dig_container

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/darslik/apps/api/echo"
	"github.com/trezcool/darslik/core"
	"github.com/trezcool/darslik/core/catalog"
	"github.com/trezcool/darslik/core/contact"
	"github.com/trezcool/darslik/core/library"
	"github.com/trezcool/darslik/core/quiz"
	"github.com/trezcool/darslik/core/testimonial"
	"github.com/trezcool/darslik/core/torrens"
	"github.com/trezcool/darslik/core/user"
	convertsvc "github.com/trezcool/darslik/services/convert"
	emailsvc "github.com/trezcool/darslik/services/email"
	"github.com/trezcool/darslik/services/importer"
	logsvc "github.com/trezcool/darslik/services/logger"
	mediasvc "github.com/trezcool/darslik/services/media"
	"github.com/trezcool/darslik/storage/database"
	dummydb "github.com/trezcool/darslik/storage/database/dummy"
	sqlxrepos "github.com/trezcool/darslik/storage/database/sqlx"
	"github.com/trezcool/darslik/storage/memstore"
)

// EngineDummy keeps every repository in memory (demo and local hacking; nothing is persisted).
const EngineDummy = "dummy"

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// DBCloser releases the database; a no-op for the dummy engine.
	DBCloser func() error

	Repositories struct {
		dig.Out

		Users        user.Repository
		Catalog      catalog.Repository
		Quiz         quiz.Repository
		Torrens      torrens.Repository
		Testimonials testimonial.Repository
		Library      library.Repository
		Close        DBCloser
	}

	serverParams struct {
		dig.In

		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Media      core.MediaStorage

		UserSvc        *user.Service
		CatalogSvc     *catalog.Service
		QuizSvc        *quiz.Service
		TorrensSvc     *torrens.Service
		TestimonialSvc *testimonial.Service
		LibrarySvc     *library.Service
		ContactSvc     *contact.Service
		Importer       echoapi.QuestionsImporter
	}
)

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newRepositories(conf *core.Config, loggerParam DBLoggerParam) Repositories {
	if conf.Database.Engine == EngineDummy {
		loggerParam.Logger.Warn("using the in-memory database: nothing will be persisted")
		db := dummydb.Open()
		return Repositories{
			Users:        dummydb.NewUserRepository(db),
			Catalog:      dummydb.NewCatalogRepository(db),
			Quiz:         dummydb.NewQuizRepository(db),
			Torrens:      dummydb.NewTorrensRepository(db),
			Testimonials: dummydb.NewTestimonialRepository(db),
			Library:      dummydb.NewLibraryRepository(db),
			Close:        func() error { return nil },
		}
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	if err = database.Migrate(db.DB); err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}
	return Repositories{
		Users:        sqlxrepos.NewUserRepository(db),
		Catalog:      sqlxrepos.NewCatalogRepository(db),
		Quiz:         sqlxrepos.NewQuizRepository(db),
		Torrens:      sqlxrepos.NewTorrensRepository(db),
		Testimonials: sqlxrepos.NewTestimonialRepository(db),
		Library:      sqlxrepos.NewLibraryRepository(db),
		Close:        db.Close,
	}
}

func newMediaStorage(conf *core.Config, logger core.Logger) core.MediaStorage {
	media, err := mediasvc.New(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up media storage: %v", err), err)
	}
	return media
}

func newImageProcessor(conf *core.Config) core.ImageProcessor {
	return mediasvc.NewImageNormalizer(conf.Media)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// newDocConverter returns nil when conversion is disabled; the catalog then keeps DOC lessons as they are.
func newDocConverter(conf *core.Config, media core.MediaStorage, logger core.Logger) catalog.DocConverter {
	if !conf.Convert.Enabled {
		return nil
	}
	return convertsvc.NewSofficeConverter(conf, media, logger)
}

func newSelectionStore(conf *core.Config) *memstore.SelectionStore {
	return memstore.NewSelectionStore(conf.Quiz.SelectionTTL)
}

func newQuizService(
	repo quiz.Repository,
	catSvc *catalog.Service,
	store *memstore.SelectionStore,
	logger core.Logger,
) *quiz.Service {
	return quiz.NewService(repo, catSvc, store, logger, nil /* process wide rand */)
}

func newQuestionsImporter() echoapi.QuestionsImporter {
	return importer.NewXLSXImporter("" /* first sheet */)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Validate:   p.Validate,
		Translator: p.Translator,
		Media:      p.Media,

		UserSvc:        p.UserSvc,
		CatalogSvc:     p.CatalogSvc,
		QuizSvc:        p.QuizSvc,
		TorrensSvc:     p.TorrensSvc,
		TestimonialSvc: p.TestimonialSvc,
		LibrarySvc:     p.LibrarySvc,
		ContactSvc:     p.ContactSvc,

		QuestionsImporter: p.Importer,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newRepositories))
	must(c.Provide(newMediaStorage))
	must(c.Provide(newImageProcessor))
	must(c.Provide(newEmailService))
	must(c.Provide(newDocConverter))
	must(c.Provide(newSelectionStore))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(newQuestionsImporter))

	must(c.Provide(user.NewService))
	must(c.Provide(catalog.NewService))
	must(c.Provide(newQuizService))
	must(c.Provide(torrens.NewService))
	must(c.Provide(testimonial.NewService))
	must(c.Provide(library.NewService))
	must(c.Provide(contact.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}

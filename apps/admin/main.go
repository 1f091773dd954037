package main

import (
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darslik/core"
	"github.com/trezcool/darslik/core/catalog"
	"github.com/trezcool/darslik/core/quiz"
	"github.com/trezcool/darslik/core/user"
	convertsvc "github.com/trezcool/darslik/services/convert"
	emailsvc "github.com/trezcool/darslik/services/email"
	"github.com/trezcool/darslik/services/importer"
	logsvc "github.com/trezcool/darslik/services/logger"
	mediasvc "github.com/trezcool/darslik/services/media"
	"github.com/trezcool/darslik/storage/database"
	sqlxrepos "github.com/trezcool/darslik/storage/database/sqlx"
	"github.com/trezcool/darslik/storage/memstore"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()
	appLogger := logsvc.NewRollbarLogger(logger, conf)

	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(appLogger)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()

	media, err := mediasvc.New(conf)
	errAndDie(err)

	// the conversion is what convertdocs is asked for: not gated by conf.Convert.Enabled
	convConf := *conf
	convConf.Convert.Enabled = true
	catSvc := catalog.NewService(sqlxrepos.NewCatalogRepository(db), media, convertsvc.NewSofficeConverter(&convConf, media, appLogger), appLogger)

	// start CLI
	cli := commandLine{
		db:       db.DB,
		out:      os.Stdout,
		validate: validate,
		usrSvc:   user.NewService(sqlxrepos.NewUserRepository(db), emailsvc.NewConsoleService(conf), conf),
		catSvc:   catSvc,
		quizSvc:  quiz.NewService(sqlxrepos.NewQuizRepository(db), catSvc, memstore.NewSelectionStore(0), appLogger, nil),
		importer: importer.NewXLSXImporter(""),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		_ = db.Close()
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}

package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/go-playground/validator/v10"
	"golang.org/x/term"

	"github.com/trezcool/darslik/core/catalog"
	"github.com/trezcool/darslik/core/quiz"
	"github.com/trezcool/darslik/core/user"
	"github.com/trezcool/darslik/services/importer"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sql.DB
	out      io.Writer
	validate *validator.Validate
	usrSvc   *user.Service
	catSvc   *catalog.Service
	quizSvc  *quiz.Service
	importer *importer.XLSXImporter
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                              - run a goose command (up, down, status, ...)")
	_, _ = fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL              - reset user's password")
	_, _ = fmt.Fprintln(cli.out, "  adduser -name NAME -username USERNAME -email EMAIL  - create a user (-staff for back office access)")
	_, _ = fmt.Fprintln(cli.out, "  importquiz -lesson ID -file QUESTIONS.xlsx          - replace the questions of a test lesson")
	_, _ = fmt.Fprintln(cli.out, "  convertdocs                                         - convert the DOC/DOCX lessons to PDF")
}

// promptPassword reads a password without echoing it.
func (cli *commandLine) promptPassword(label string) (string, error) {
	_, _ = fmt.Fprint(cli.out, label)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(cli.out)
	return string(pwd), err
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserStaff := addUserCmd.Bool("staff", false, "Give the user access to the back office.")

	importQuizCmd := flag.NewFlagSet("importquiz", flag.ContinueOnError)
	importQuizLesson := importQuizCmd.Int64("lesson", 0, "The ID of the test lesson.")
	importQuizFile := importQuizCmd.String("file", "", "The XLSX sheet: question, 4 options, correct option (1..4), order.")

	for _, fs := range []*flag.FlagSet{resetPasswordCmd, addUserCmd, importQuizCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *addUserName == "" || (*addUserUname == "" && *addUserEmail == "") {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword("Enter password:")
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, pwd, *addUserStaff)

	case "importquiz":
		if err := importQuizCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.importQuiz(*importQuizLesson, *importQuizFile)

	case "convertdocs":
		return cli.convertDocs()

	default:
		cli.printUsage()
		return errHelp
	}
}

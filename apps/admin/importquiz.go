package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
)

// importQuiz replaces the questions of the quiz of a test lesson with the rows of an XLSX sheet.
func (cli *commandLine) importQuiz(lessonID int64, path string) error {
	if err := vala.BeginValidation().Validate(
		vala.GreaterThan(int(lessonID), 0, "lesson"),
		vala.StringNotEmpty(path, "file"),
	).Check(); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening sheet")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer f.Close()

	inputs, err := cli.importer.ParseQuestions(f)
	if err != nil {
		return err
	}
	qz, questions, err := cli.quizSvc.ImportQuestions(context.Background(), cli.validate, lessonID, inputs)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "quiz %d: %d questions imported\n", qz.ID, len(questions))
	return nil
}

// Package importer reads quiz questions from spreadsheets.
package importer

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/darslik/core"
	"github.com/trezcool/darslik/core/quiz"
)

// sheet columns
const (
	colQuestion = iota
	colOption1
	colOption2
	colOption3
	colOption4
	colCorrect
	colOrder
)

const maxOptions = 4

// XLSXImporter parses question sheets laid out as:
// A question, B..E options, F correct option (1..4), G order (optional).
// The first row is a header.
type XLSXImporter struct {
	sheet string
}

// NewXLSXImporter returns an importer reading sheet, or the first sheet of the workbook when empty.
func NewXLSXImporter(sheet string) *XLSXImporter {
	return &XLSXImporter{sheet: sheet}
}

func (imp *XLSXImporter) ParseQuestions(r io.Reader) ([]quiz.QuestionInput, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, core.NewFieldError("file", "not a valid XLSX workbook")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer f.Close()

	sheet := imp.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, core.NewFieldError("file", "the workbook has no sheet")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "reading sheet %q", sheet)
	}
	if len(rows) > 0 {
		rows = rows[1:] // header
	}

	var inputs []quiz.QuestionInput
	for i, row := range rows {
		line := i + 2
		if isBlankRow(row) {
			continue
		}
		in, err := parseRow(row, len(inputs)+1)
		if err != nil {
			return nil, core.NewFieldError("file", fmt.Sprintf("row %d: %v", line, err))
		}
		inputs = append(inputs, in)
	}
	if len(inputs) == 0 {
		return nil, core.NewFieldError("file", "the sheet has no question")
	}
	return inputs, nil
}

// parseRow builds a single choice question; rows without an order get their position.
func parseRow(row []string, position int) (quiz.QuestionInput, error) {
	cell := func(col int) string {
		if col < len(row) {
			return strings.TrimSpace(row[col])
		}
		return ""
	}

	in := quiz.QuestionInput{
		Order: position,
		Text:  cell(colQuestion),
		Type:  quiz.TypeSingle,
	}
	if in.Text == "" {
		return in, errors.New("the question is empty")
	}

	correct, err := strconv.Atoi(cell(colCorrect))
	if err != nil || correct < 1 || correct > maxOptions {
		return in, errors.Errorf("the correct option must be a number from 1 to %d", maxOptions)
	}
	for n, col := 1, colOption1; col <= colOption4; n, col = n+1, col+1 {
		text := cell(col)
		if text == "" {
			if n == correct {
				return in, errors.Errorf("the correct option %d is empty", correct)
			}
			continue
		}
		in.Choices = append(in.Choices, quiz.ChoiceInput{Text: text, IsCorrect: n == correct})
	}

	if s := cell(colOrder); s != "" {
		order, err := strconv.Atoi(s)
		if err != nil || order < 0 {
			return in, errors.Errorf("invalid order %q", s)
		}
		in.Order = order
	}
	return in, nil
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/darslik/core/catalog"
)

// convertDocs re-runs the best-effort PDF conversion of every DOC/DOCX lesson.
func (cli *commandLine) convertDocs() error {
	ctx := context.Background()
	lessons, err := cli.catSvc.DocLessons(ctx)
	if err != nil {
		return errors.Wrap(err, "listing DOC lessons")
	}

	var converted int
	for _, l := range lessons {
		id := l.ID
		if l, err = cli.catSvc.ConvertDocLesson(ctx, id); err != nil {
			return errors.Wrapf(err, "converting lesson %d", id)
		}
		if l.Kind == catalog.KindPDF {
			converted++
		}
	}
	_, _ = fmt.Fprintf(cli.out, "%d/%d lessons converted to PDF\n", converted, len(lessons))
	return nil
}

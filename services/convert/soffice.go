// Package convertsvc converts office documents to PDF with a headless LibreOffice.
package convertsvc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/darslik/core"
)

const (
	pdfFolder      = "lessons/docs"
	defaultTimeout = 2 * time.Minute
)

var ErrDisabled = errors.New("document conversion is disabled")

// commandFunc builds the conversion command; replaced in tests.
type commandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

type SofficeConverter struct {
	media   core.MediaStorage
	binary  string
	timeout time.Duration
	logger  core.Logger
	command commandFunc
}

func NewSofficeConverter(conf *core.Config, media core.MediaStorage, logger core.Logger) *SofficeConverter {
	c := &SofficeConverter{
		media:   media,
		binary:  conf.Convert.Binary,
		timeout: conf.Convert.Timeout,
		logger:  logger,
		command: exec.CommandContext,
	}
	if c.binary == "" {
		c.binary = "soffice"
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if !conf.Convert.Enabled {
		c.binary = ""
	}
	return c
}

// ConvertToPDF copies the stored document into a temp dir, converts it and stores the PDF next to the other documents.
func (c *SofficeConverter) ConvertToPDF(ctx context.Context, docPath string) (string, error) {
	if c.binary == "" {
		return "", ErrDisabled
	}

	dir, err := os.MkdirTemp("", "darslik-convert-")
	if err != nil {
		return "", errors.Wrap(err, "creating temp dir")
	}
	defer func() { _ = os.RemoveAll(dir) }()

	src := filepath.Join(dir, "source"+strings.ToLower(path.Ext(docPath)))
	if err = c.download(ctx, docPath, src); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := c.command(ctx, c.binary, "--headless", "--norestore", "--convert-to", "pdf", "--outdir", dir, src)
	cmd.Stderr = &stderr
	if err = cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", errors.Errorf("conversion timed out after %s", c.timeout)
		}
		return "", errors.Wrapf(err, "running %s: %s", c.binary, strings.TrimSpace(stderr.String()))
	}

	out, err := os.Open(filepath.Join(dir, "source.pdf"))
	if err != nil {
		return "", errors.Wrap(err, "opening converted file")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer out.Close()

	name := strings.TrimSuffix(path.Base(docPath), path.Ext(docPath)) + ".pdf"
	pdfPath, err := c.media.Save(ctx, pdfFolder, name, "application/pdf", out)
	if err != nil {
		return "", errors.Wrap(err, "storing converted file")
	}
	c.logger.Info(fmt.Sprintf("converted %s to %s", docPath, pdfPath))
	return pdfPath, nil
}

func (c *SofficeConverter) download(ctx context.Context, docPath, dst string) error {
	rc, err := c.media.Open(ctx, docPath)
	if err != nil {
		return errors.Wrap(err, "opening document")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer rc.Close()

	f, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	if _, err = io.Copy(f, rc); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "copying document")
	}
	return errors.Wrap(f.Close(), "closing temp file")
}

// Package mediasvc stores uploaded files on the local filesystem or in Aliyun OSS, and normalises images.
package mediasvc

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/darslik/core"
)

var unsafeChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// safeName lowers filename and replaces anything outside [a-z0-9._-] with "-".
func safeName(filename string) string {
	name := strings.ToLower(filepath.Base(strings.ReplaceAll(filename, `\`, "/")))
	name = strings.Trim(unsafeChars.ReplaceAllString(name, "-"), "-.")
	if name == "" {
		return "file"
	}
	if len(name) > 100 {
		ext := path.Ext(name)
		name = name[:100-len(ext)] + ext
	}
	return name
}

// objectKey builds "<folder>/<yyyymmdd>-<uuid>-<safe name>".
func objectKey(folder, filename string, now time.Time) string {
	name := fmt.Sprintf("%s-%s-%s", now.UTC().Format("20060102"), uuid.New().String(), safeName(filename))
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

// cleanKey rejects absolute and parent-relative keys.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.TrimSpace(key))[1:]
	if k == "" || k != strings.TrimPrefix(key, "/") {
		return "", errors.Errorf("invalid media path %q", key)
	}
	return k, nil
}

func joinURL(base, key string) string {
	if key == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + key
}

// New returns the media storage selected by conf.Media.Backend.
func New(conf *core.Config) (core.MediaStorage, error) {
	switch conf.Media.Backend {
	case "", "local":
		return NewLocalStorage(conf.Media.Root, conf.Media.BaseURL)
	case "oss":
		return NewOSSStorage(conf.Media)
	}
	return nil, errors.Errorf("unknown media backend %q", conf.Media.Backend)
}

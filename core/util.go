package core

import (
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	slugInvalidRegex = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugDashRegex    = regexp.MustCompile(`[\s-]+`)
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Slugify converts `s` to a URL slug: ASCII only, lowercase, dash separated.
func Slugify(s string) string {
	// drop accents: "ō" -> "o"
	decomposed := norm.NFKD.String(s)
	var b strings.Builder
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	slug := slugInvalidRegex.ReplaceAllString(strings.ToLower(b.String()), "")
	slug = slugDashRegex.ReplaceAllString(strings.TrimSpace(slug), "-")
	return strings.Trim(slug, "-")
}

// Getwd tries to find the project root (the directory holding go.mod).
// go-test changes the working directory to the test package being run during tests,
// so walk up from the current dir until the root is found.
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd // not running from the source tree
		}
		currDir = newDir
	}
}

// Package assets embeds the static files shipped with the darslik binaries.
package assets

import "embed"

// Names begin with "_" for the email base layouts, hence the explicit patterns.
//
//go:embed common-passwords.txt.gz templates/email/*.txt templates/email/*.gohtml
var FS embed.FS

const (
	CommonPasswords = "common-passwords.txt.gz"
	EmailTemplates  = "templates/email"
)

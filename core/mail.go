package core

import (
	"bytes"
	"fmt"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/trezcool/darslik/assets"
)

// Email categories, used by the providers to tag outgoing messages.
const (
	MailCategoryAccount = "account"
	MailCategoryContact = "contact"
)

var mailTemplates emailTemplates

type (
	EmailMessage struct {
		To       []mail.Address
		Cc       []mail.Address
		Bcc      []mail.Address
		ReplyTo  *mail.Address
		Subject  string
		Category string
		BodyStr  string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // file name under assets/templates/email, without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	// ContextData is what the email templates are executed with.
	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}

	emailTemplate struct {
		text *texttmpl.Template
		html *htmltmpl.Template
	}

	emailTemplates struct {
		mu              sync.RWMutex
		byName          map[string]*emailTemplate
		frontendBaseURL string
	}
)

func (ts *emailTemplates) get(name string) (emailTemplate, string, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.byName[name]
	if !ok {
		return emailTemplate{}, ts.frontendBaseURL, false
	}
	return *t, ts.frontendBaseURL, true
}

func (ts *emailTemplates) set(byName map[string]*emailTemplate, frontendBaseURL string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.byName = byName
	ts.frontendBaseURL = frontendBaseURL
}

// Render fills TextContent and HTMLContent.
// BodyStr wins over the text template; an unknown template leaves the contents untouched.
func (m *EmailMessage) Render() error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	if m.TemplateName == "" {
		return nil
	}
	tmpl, baseURL, ok := mailTemplates.get(m.TemplateName)
	if !ok {
		return nil
	}
	data := ContextData{FrontendBaseURL: baseURL, Data: m.TemplateData}

	var buff bytes.Buffer
	if tmpl.text != nil && m.BodyStr == "" {
		if err := tmpl.text.Execute(&buff, data); err != nil {
			return fmt.Errorf("rendering %s.txt: %w", m.TemplateName, err)
		}
		m.TextContent = buff.String()
	}
	if tmpl.html != nil {
		buff.Reset()
		if err := tmpl.html.Execute(&buff, data); err != nil {
			return fmt.Errorf("rendering %s.gohtml: %w", m.TemplateName, err)
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

// ParseEmailTemplates parses the embedded email templates.
// Each template is parsed along with the base layout of its kind (`_base.txt` or `_base.gohtml`).
func ParseEmailTemplates(conf *Config, logger Logger) {
	byName := make(map[string]*emailTemplate)
	fail := func(fname string, err error) {
		logger.Error(fmt.Sprintf("parsing email template %q: %v", fname, err), err)
	}

	fps, err := fs.Glob(assets.FS, path.Join(assets.EmailTemplates, "*"))
	if err != nil {
		logger.Error(fmt.Sprintf("parsing email templates: %v", err), err)
		return
	}
	for _, fp := range fps {
		fname := path.Base(fp)
		ext := path.Ext(fname)
		if strings.HasPrefix(fname, "_") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		entry, ok := byName[name]
		if !ok {
			entry = new(emailTemplate)
			byName[name] = entry
		}

		switch ext {
		case ".txt":
			tmpl, err := texttmpl.ParseFS(assets.FS, path.Join(assets.EmailTemplates, "_base.txt"), fp)
			if err != nil {
				fail(fname, err)
				continue
			}
			if conf.Debug || conf.TestMode {
				tmpl = tmpl.Option("missingkey=error")
			}
			entry.text = tmpl
		case ".gohtml":
			tmpl, err := htmltmpl.ParseFS(assets.FS, path.Join(assets.EmailTemplates, "_base.gohtml"), fp)
			if err != nil {
				fail(fname, err)
				continue
			}
			if conf.Debug || conf.TestMode {
				tmpl = tmpl.Option("missingkey=error")
			}
			entry.html = tmpl
		}
	}
	mailTemplates.set(byName, conf.FrontendBaseURL)
}

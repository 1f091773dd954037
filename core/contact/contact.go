// Package contact forwards the site contact form to the staff mailbox.
package contact

import (
	"net/mail"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/darslik/core"
)

// Message is also the data of the "contact_message" email template.
type Message struct {
	Name    string `json:"name" form:"name" validate:"notblank"`
	Email   string `json:"email" form:"email" validate:"required,email"`
	Subject string `json:"subject" form:"subject" validate:"notblank,max=200"`
	Message string `json:"message" form:"message" validate:"notblank"`
}

func (m *Message) Clean() {
	m.Name = core.CleanString(m.Name)
	m.Email = core.CleanString(m.Email)
	m.Subject = core.CleanString(m.Subject)
	m.Message = core.CleanString(m.Message)
}

type Service struct {
	mailSvc core.EmailService
	conf    *core.Config
}

func NewService(mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{mailSvc: mailSvc, conf: conf}
}

// Send validates m and mails it to the contact address. Delivery failures are only logged by the email service.
func (svc *Service) Send(validate *validator.Validate, m Message) error {
	m.Clean()
	if err := validate.Struct(m); err != nil {
		return err
	}
	svc.mailSvc.SendMessages(svc.email(m))
	return nil
}

func (svc *Service) email(m Message) *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{svc.conf.ContactEmail},
		ReplyTo:      &mail.Address{Name: m.Name, Address: m.Email},
		Subject:      m.Subject, // the email service adds the "[<app name>] " prefix
		Category:     core.MailCategoryContact,
		TemplateName: "contact_message",
		TemplateData: m,
	}
}

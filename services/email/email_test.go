package emailsvc

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darslik/core"
	logsvc "github.com/trezcool/darslik/services/logger"
)

var testConf = &core.Config{
	AppName:          "Darslik",
	DefaultFromEmail: mail.Address{Name: "Darslik", Address: "noreply@darslik.test"},
}

func testMessage() core.EmailMessage {
	return core.EmailMessage{
		To:          []mail.Address{{Name: "Staff", Address: "staff@darslik.test"}},
		ReplyTo:     &mail.Address{Address: "learner@example.com"},
		Subject:     "Hello",
		Category:    core.MailCategoryContact,
		TextContent: "plain body",
		HTMLContent: "<p>html body</p>",
	}
}

func TestConsoleService_compose(t *testing.T) {
	svc := NewConsoleService(testConf).(*consoleService)

	t.Run("both parts", func(t *testing.T) {
		out, err := svc.compose(testMessage())
		require.NoError(t, err)
		assert.Contains(t, out, "Subject: [Darslik] Hello\r\n")
		assert.Contains(t, out, "To: \"Staff\" <staff@darslik.test>\r\n")
		assert.Contains(t, out, "Reply-To: <learner@example.com>\r\n")
		assert.Contains(t, out, "X-Category: contact\r\n")
		assert.Contains(t, out, "Content-Type: multipart/alternative; boundary=")
		assert.Contains(t, out, "plain body")
		assert.Contains(t, out, "<p>html body</p>")
		assert.NotContains(t, out, "CC:")
	})

	t.Run("text only", func(t *testing.T) {
		msg := testMessage()
		msg.HTMLContent = ""
		out, err := svc.compose(msg)
		require.NoError(t, err)
		assert.Contains(t, out, "text/plain")
		assert.NotContains(t, out, "text/html")
	})
}

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	svc := NewConsoleServiceMock(testConf)
	ResetSentMessages()

	empty := testMessage()
	empty.TextContent, empty.HTMLContent = "", ""
	noRecipient := testMessage()
	noRecipient.To = nil
	bodyStr := core.EmailMessage{To: testMessage().To, Subject: "Body", BodyStr: "raw body"}

	svc.SendMessages(&empty, &noRecipient, &bodyStr)

	msg, ok := LastSentMessage()
	require.True(t, ok)
	assert.Len(t, SentMessages, 1)
	assert.Equal(t, "raw body", msg.TextContent)
}

func TestSendgridService_prepare(t *testing.T) {
	svc := NewSendgridService(testConf, logsvc.NewDiscardLogger())

	m := svc.prepare(testMessage())
	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[Darslik] Hello", m.Personalizations[0].Subject)
	assert.Equal(t, "staff@darslik.test", m.Personalizations[0].To[0].Address)
	assert.Equal(t, "noreply@darslik.test", m.From.Address)
	require.NotNil(t, m.ReplyTo)
	assert.Equal(t, "learner@example.com", m.ReplyTo.Address)
	assert.Equal(t, []string{core.MailCategoryContact}, m.Categories)
	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "text/html", m.Content[1].Type)
}

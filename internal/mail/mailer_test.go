package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type nopWriteCloser struct {
	*bytes.Buffer
}

func (nopWriteCloser) Close() error { return nil }

type fakeSMTPClient struct {
	from   string
	rcpts  []string
	body   bytes.Buffer
	authed bool
	quit   bool
}

func (c *fakeSMTPClient) Mail(from string) error {
	c.from = from
	return nil
}

func (c *fakeSMTPClient) Rcpt(to string) error {
	c.rcpts = append(c.rcpts, to)
	return nil
}

func (c *fakeSMTPClient) Data() (io.WriteCloser, error) {
	return nopWriteCloser{&c.body}, nil
}

func (c *fakeSMTPClient) Quit() error {
	c.quit = true
	return nil
}

func (c *fakeSMTPClient) Close() error { return nil }

func (c *fakeSMTPClient) StartTLS(*tls.Config) error { return nil }

func (c *fakeSMTPClient) Auth(smtp.Auth) error {
	c.authed = true
	return nil
}

func (c *fakeSMTPClient) Extension(string) (bool, string) { return false, "" }

func newFakeMailer(cfg SMTPSettings, client *fakeSMTPClient) *smtpMailer {
	return &smtpMailer{
		cfg: cfg,
		dial: func(context.Context, SMTPSettings) (net.Conn, smtpClient, error) {
			server, clientConn := net.Pipe()
			_ = server.Close()
			return clientConn, client, nil
		},
	}
}

func TestDisabledMailerReportsDisabled(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	require.NoError(t, err)
	require.True(t, errors.Is(mailer.Send(context.Background(), Message{To: []string{"a@example.com"}}), ErrSMTPDisabled))
}

func TestNewSMTPMailerValidatesEnabledConfig(t *testing.T) {
	_, err := NewSMTPMailer(SMTPSettings{Enabled: true, Port: 25})
	require.Error(t, err)
	_, err = NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com"})
	require.Error(t, err)
}

func TestSendWritesMessage(t *testing.T) {
	client := &fakeSMTPClient{}
	mailer := newFakeMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com", Port: 587, Username: "bot", From: "noreply@example.com"}, client)

	err := mailer.Send(context.Background(), Message{
		To:       []string{"bob@example.com", " bob@example.com "},
		Subject:  "Hello\nWorld",
		TextBody: "plain body",
	})
	require.NoError(t, err)
	require.Equal(t, "noreply@example.com", client.from)
	require.Equal(t, []string{"bob@example.com"}, client.rcpts)
	require.True(t, client.authed)
	require.True(t, client.quit)
	require.Contains(t, client.body.String(), "Subject: Hello World\r\n")
	require.True(t, strings.HasSuffix(client.body.String(), "plain body"))
}

func TestSendRejectsInvalidRecipients(t *testing.T) {
	client := &fakeSMTPClient{}
	mailer := newFakeMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com", Port: 587, From: "noreply@example.com"}, client)

	require.Error(t, mailer.Send(context.Background(), Message{To: []string{"not an address"}}))
	require.Error(t, mailer.Send(context.Background(), Message{}))
}

type capturingMailer struct {
	messages []Message
}

func (m *capturingMailer) Send(_ context.Context, msg Message) error {
	m.messages = append(m.messages, msg)
	return nil
}

func TestSendBoardInvitationRendersLinks(t *testing.T) {
	mailer := &capturingMailer{}
	sender := NewInvitationSender(mailer, "https://app.example.com/invitations/")

	err := sender.SendBoardInvitation(context.Background(), BoardInvitation{
		To:              "bob@example.com",
		SenderName:      "Ada",
		BoardTitle:      "Roadmap <2026>",
		InvitationToken: "tok_123",
		ExpiresAt:       time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, mailer.messages, 1)

	message := mailer.messages[0]
	require.Equal(t, []string{"bob@example.com"}, message.To)
	require.Equal(t, "Ada invited you to Roadmap <2026>", message.Subject)
	require.Contains(t, message.TextBody, "https://app.example.com/invitations/accept/tok_123")
	require.Contains(t, message.TextBody, "https://app.example.com/invitations/decline/tok_123")
	require.Contains(t, message.TextBody, "Hi bob@example.com")
	require.Contains(t, message.HTMLBody, "Roadmap &lt;2026&gt;")
}

func TestFormatMessageEncodesNonASCIISubject(t *testing.T) {
	raw := formatMessage("noreply@example.com", []string{"ivan@example.com"}, Message{
		Subject:  "Zoë invited you to Café Roadmap",
		TextBody: "hello",
	})
	subject := ""
	for _, line := range strings.Split(raw, "\r\n") {
		if strings.HasPrefix(line, "Subject: ") {
			subject = line
			break
		}
	}
	require.True(t, strings.HasPrefix(subject, "Subject: =?utf-8?q?"), subject)
	for _, r := range subject {
		require.Less(t, r, rune(128), "subject header must be ASCII: %q", subject)
	}

	plain := formatMessage("noreply@example.com", []string{"ivan@example.com"}, Message{Subject: "Plain\r\ntitle", TextBody: "hello"})
	require.Contains(t, plain, "Subject: Plain  title\r\n")
}

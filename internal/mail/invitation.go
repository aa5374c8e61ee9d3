package mail

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"
	"time"
)

// BoardInvitation carries everything the invitation email shows.
type BoardInvitation struct {
	To              string
	ReceiverName    string
	SenderName      string
	BoardTitle      string
	InvitationToken string
	ExpiresAt       time.Time
}

// InvitationSender renders and sends board invitation emails.
type InvitationSender struct {
	mailer    Mailer
	acceptURL string
}

// NewInvitationSender builds accept/decline links from acceptURL, e.g. https://app.example.com/invitations.
func NewInvitationSender(mailer Mailer, acceptURL string) *InvitationSender {
	return &InvitationSender{mailer: mailer, acceptURL: strings.TrimRight(strings.TrimSpace(acceptURL), "/")}
}

type invitationView struct {
	ReceiverName string
	SenderName   string
	BoardTitle   string
	AcceptLink   string
	DeclineLink  string
	ExpiresAt    string
}

var invitationText = texttemplate.Must(texttemplate.New("invitation.txt").Parse(`Hi {{.ReceiverName}},

{{.SenderName}} invited you to collaborate on the board "{{.BoardTitle}}".

Accept:  {{.AcceptLink}}
Decline: {{.DeclineLink}}

This invitation expires on {{.ExpiresAt}}.
`))

var invitationHTML = htmltemplate.Must(htmltemplate.New("invitation.html").Parse(`<p>Hi {{.ReceiverName}},</p>
<p><strong>{{.SenderName}}</strong> invited you to collaborate on the board <strong>{{.BoardTitle}}</strong>.</p>
<p><a href="{{.AcceptLink}}">Accept invitation</a> &middot; <a href="{{.DeclineLink}}">Decline</a></p>
<p>This invitation expires on {{.ExpiresAt}}.</p>
`))

// SendBoardInvitation renders the invitation and hands it to the mailer.
func (s *InvitationSender) SendBoardInvitation(ctx context.Context, invitation BoardInvitation) error {
	if s == nil || s.mailer == nil {
		return ErrSMTPDisabled
	}
	receiver := strings.TrimSpace(invitation.ReceiverName)
	if receiver == "" {
		receiver = invitation.To
	}
	token := url.PathEscape(invitation.InvitationToken)
	view := invitationView{
		ReceiverName: receiver,
		SenderName:   invitation.SenderName,
		BoardTitle:   invitation.BoardTitle,
		AcceptLink:   s.acceptURL + "/accept/" + token,
		DeclineLink:  s.acceptURL + "/decline/" + token,
		ExpiresAt:    invitation.ExpiresAt.UTC().Format("January 2, 2006 15:04 MST"),
	}

	var text, html bytes.Buffer
	if err := invitationText.Execute(&text, view); err != nil {
		return fmt.Errorf("mail: render invitation text: %w", err)
	}
	if err := invitationHTML.Execute(&html, view); err != nil {
		return fmt.Errorf("mail: render invitation html: %w", err)
	}

	return s.mailer.Send(ctx, Message{
		To:       []string{invitation.To},
		Subject:  fmt.Sprintf("%s invited you to %s", invitation.SenderName, invitation.BoardTitle),
		TextBody: text.String(),
		HTMLBody: html.String(),
	})
}

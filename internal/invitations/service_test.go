package invitations

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/activity"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/boards"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/mail"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

type sequenceIDs struct {
	next int
}

func (p *sequenceIDs) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("inv-%03d", p.next), nil
}

type mailerSpy struct {
	sent []mail.BoardInvitation
	err  error
}

func (m *mailerSpy) SendBoardInvitation(_ context.Context, invitation mail.BoardInvitation) error {
	m.sent = append(m.sent, invitation)
	return m.err
}

type notifierSpy struct {
	inputs []notifications.Input
}

func (n *notifierSpy) Notify(_ context.Context, input notifications.Input) error {
	n.inputs = append(n.inputs, input)
	return nil
}

type metricRecorder struct {
	metrics []string
}

func (r *metricRecorder) Record(_ context.Context, userID string, metric activity.Metric) {
	r.metrics = append(r.metrics, userID+":"+string(metric))
}

type fixture struct {
	db       *gorm.DB
	service  *Service
	mailer   *mailerSpy
	notifier *notifierSpy
	recorder *metricRecorder
	now      *time.Time
	logs     *observer.ObservedLogs
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "invitations.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&users.User{}, &boards.Board{}, &boards.Member{}, &Invitation{}))
	require.NoError(t, db.Exec(PendingIndexSQL).Error)

	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	for _, account := range []users.User{
		{ID: "owner", Email: "owner@example.com", Name: "Olivia", PasswordHash: "x"},
		{ID: "admin", Email: "admin@example.com", Name: "Adam", PasswordHash: "x"},
		{ID: "member", Email: "member@example.com", Name: "Mia", PasswordHash: "x"},
		{ID: "bob", Email: "bob@example.com", Name: "Bob", PasswordHash: "x"},
		{ID: "carol", Email: "carol@example.com", PasswordHash: "x"},
	} {
		require.NoError(t, db.Create(&account).Error)
	}
	require.NoError(t, db.Create(&boards.Board{ID: "board-1", Title: "Roadmap", OwnerUserID: "owner", CreatedAt: now, UpdatedAt: now}).Error)
	require.NoError(t, db.Create(&boards.Member{ID: "m-admin", BoardID: "board-1", UserID: "admin", Role: boards.RoleAdmin, AddedBy: "owner", AddedAt: now}).Error)
	require.NoError(t, db.Create(&boards.Member{ID: "m-member", BoardID: "board-1", UserID: "member", Role: boards.RoleUser, AddedBy: "owner", AddedAt: now.Add(time.Minute)}).Error)

	directory, err := users.NewService(users.ServiceConfig{Database: db})
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	mailer := &mailerSpy{}
	notifier := &notifierSpy{}
	recorder := &metricRecorder{}
	tokenCount := 0
	tokens := func() (string, error) {
		tokenCount++
		return fmt.Sprintf("token-%d", tokenCount), nil
	}
	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: &sequenceIDs{},
		Clock:      func() time.Time { return now },
		Logger:     zap.New(core),
		Tokens:     tokens,
		Directory:  directory,
		Mailer:     mailer,
		Notifier:   notifier,
		Activity:   recorder,
	})
	require.NoError(t, err)
	return fixture{db: db, service: service, mailer: mailer, notifier: notifier, recorder: recorder, now: &now, logs: logs}
}

func (f fixture) invitationsFor(t *testing.T, email string) []Invitation {
	t.Helper()
	var invitations []Invitation
	require.NoError(t, f.db.Where("board_id = ? AND email = ?", "board-1", email).Order("created_at ASC").Find(&invitations).Error)
	return invitations
}

func (f fixture) memberRow(t *testing.T, userID string) *boards.Member {
	t.Helper()
	member, err := boards.FindMember(f.db, "board-1", userID)
	require.NoError(t, err)
	return member
}

func TestInviteAndAcceptCreatesMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	invitation, err := f.service.Invite(ctx, "board-1", "owner", InviteInput{Email: " Bob@Example.com ", Role: "USER"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, invitation.Status)
	require.Equal(t, "bob@example.com", invitation.Email)
	require.Equal(t, "bob", *invitation.ReceiverID)
	require.Equal(t, f.now.Add(7*24*time.Hour), invitation.ExpiresAt)

	require.Len(t, f.mailer.sent, 1)
	require.Equal(t, mail.BoardInvitation{
		To:              "bob@example.com",
		ReceiverName:    "Bob",
		SenderName:      "Olivia",
		BoardTitle:      "Roadmap",
		InvitationToken: "token-1",
		ExpiresAt:       invitation.ExpiresAt,
	}, f.mailer.sent[0])
	require.Len(t, f.notifier.inputs, 1)
	require.Equal(t, notifications.TypeBoardInvitation, f.notifier.inputs[0].Type)
	require.Equal(t, "bob", f.notifier.inputs[0].UserID)

	_, err = f.service.RespondByToken(ctx, "token-1", Responder{UserID: "carol", Email: "bob@example.com"}, true)
	require.True(t, errors.Is(err, ErrNotInvitee))
	require.Nil(t, f.memberRow(t, "bob"))

	accepted, err := f.service.RespondByToken(ctx, "token-1", Responder{UserID: "bob", Email: "bob@example.com"}, true)
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, accepted.Status)
	require.Equal(t, "bob", *accepted.ReceiverID)

	member := f.memberRow(t, "bob")
	require.NotNil(t, member)
	require.Equal(t, boards.RoleUser, member.Role)
	require.Equal(t, "owner", member.AddedBy)

	stored := f.invitationsFor(t, "bob@example.com")
	require.Len(t, stored, 1)
	require.Equal(t, StatusAccepted, stored[0].Status)
	require.NotNil(t, stored[0].RespondedAt)

	last := f.notifier.inputs[len(f.notifier.inputs)-1]
	require.Equal(t, notifications.TypeInvitationAccepted, last.Type)
	require.Equal(t, "owner", last.UserID)
	require.Equal(t, []string{"owner:invitations_sent", "bob:invitations_accepted"}, f.recorder.metrics)

	_, err = f.service.RespondByToken(ctx, "token-1", Responder{UserID: "bob", Email: "bob@example.com"}, true)
	require.True(t, errors.Is(err, ErrInvitationNotPending))

	_, err = f.service.RespondByToken(ctx, "unknown", Responder{UserID: "bob"}, true)
	require.True(t, errors.Is(err, ErrInvitationNotFound))
}

func TestInviteKeepsOnePendingPerEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Invite(ctx, "board-1", "admin", InviteInput{Email: "dave@example.com"})
	require.NoError(t, err)

	_, err = f.service.Invite(ctx, "board-1", "owner", InviteInput{Email: "DAVE@example.com", Role: "ADMIN"})
	require.True(t, errors.Is(err, ErrPendingInvitation))

	declined, err := f.service.RespondByToken(ctx, "token-1", Responder{UserID: "dave", Email: "dave@example.com"}, false)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, declined.Status)
	require.Nil(t, f.memberRow(t, "dave"))
	last := f.notifier.inputs[len(f.notifier.inputs)-1]
	require.Equal(t, notifications.TypeInvitationDeclined, last.Type)
	require.Equal(t, "admin", last.UserID)

	replacement, err := f.service.Invite(ctx, "board-1", "owner", InviteInput{Email: "dave@example.com", Role: "ADMIN"})
	require.NoError(t, err)

	stored := f.invitationsFor(t, "dave@example.com")
	require.Len(t, stored, 1)
	require.Equal(t, replacement.ID, stored[0].ID)
	require.Equal(t, StatusPending, stored[0].Status)
	require.Equal(t, boards.RoleAdmin, stored[0].Role)
	require.Nil(t, stored[0].ReceiverID)
}

func TestPendingIndexRejectsSecondPendingRow(t *testing.T) {
	f := newFixture(t)
	now := *f.now
	first := Invitation{ID: "a", BoardID: "board-1", SenderID: "owner", Email: "x@example.com", Role: boards.RoleUser, Token: "ta", Status: StatusPending, CreatedAt: now, ExpiresAt: now}
	second := first
	second.ID, second.Token = "b", "tb"

	require.NoError(t, f.db.Create(&first).Error)
	require.Error(t, f.db.Create(&second).Error)

	second.Status = StatusRejected
	require.NoError(t, f.db.Create(&second).Error)
}

func TestExpiredInvitationFlipsAndStaysExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	responder := Responder{UserID: "bob", Email: "bob@example.com"}

	_, err := f.service.Invite(ctx, "board-1", "owner", InviteInput{Email: "bob@example.com"})
	require.NoError(t, err)

	*f.now = f.now.Add(8 * 24 * time.Hour)
	expired, err := f.service.RespondByToken(ctx, "token-1", responder, true)
	require.True(t, errors.Is(err, ErrInvitationExpired))
	require.Equal(t, StatusExpired, expired.Status)
	require.Equal(t, StatusExpired, f.invitationsFor(t, "bob@example.com")[0].Status)
	require.Nil(t, f.memberRow(t, "bob"))

	_, err = f.service.RespondByToken(ctx, "token-1", responder, true)
	require.True(t, errors.Is(err, ErrInvitationExpired))
	require.Nil(t, f.memberRow(t, "bob"))

	_, err = f.service.Invite(ctx, "board-1", "owner", InviteInput{Email: "bob@example.com"})
	require.NoError(t, err)
	stored := f.invitationsFor(t, "bob@example.com")
	require.Len(t, stored, 1)
	require.Equal(t, "token-2", stored[0].Token)
}

func TestReinviteReplacesPendingPastDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Invite(ctx, "board-1", "owner", InviteInput{Email: "erin@example.com"})
	require.NoError(t, err)

	*f.now = f.now.Add(7*24*time.Hour + time.Second)
	replacement, err := f.service.Invite(ctx, "board-1", "owner", InviteInput{Email: "erin@example.com"})
	require.NoError(t, err)

	stored := f.invitationsFor(t, "erin@example.com")
	require.Len(t, stored, 1)
	require.Equal(t, replacement.ID, stored[0].ID)
}

func TestInviteGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	testCases := []struct {
		name     string
		boardID  string
		senderID string
		input    InviteInput
		want     error
	}{
		{name: "plain-user", boardID: "board-1", senderID: "member", input: InviteInput{Email: "new@example.com"}, want: boards.ErrInsufficientRole},
		{name: "stranger", boardID: "board-1", senderID: "carol", input: InviteInput{Email: "new@example.com"}, want: boards.ErrInsufficientRole},
		{name: "missing-board", boardID: "nope", senderID: "owner", input: InviteInput{Email: "new@example.com"}, want: boards.ErrBoardNotFound},
		{name: "owner-email", boardID: "board-1", senderID: "admin", input: InviteInput{Email: "owner@example.com"}, want: ErrAlreadyMember},
		{name: "existing-member", boardID: "board-1", senderID: "owner", input: InviteInput{Email: "member@example.com"}, want: ErrAlreadyMember},
		{name: "bad-email", boardID: "board-1", senderID: "owner", input: InviteInput{Email: "not-an-email"}, want: ErrInvalidEmail},
		{name: "owner-role", boardID: "board-1", senderID: "owner", input: InviteInput{Email: "new@example.com", Role: "OWNER"}, want: ErrInvalidRole},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := f.service.Invite(ctx, testCase.boardID, testCase.senderID, testCase.input)
			require.True(t, errors.Is(err, testCase.want), "got %v", err)
		})
	}
	require.Empty(t, f.mailer.sent)
}

func TestUnboundInvitationMatchesEmailAndOwnerGetsNoRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := *f.now
	require.NoError(t, f.db.Create(&Invitation{ID: "x1", BoardID: "board-1", SenderID: "admin", Email: "owner@example.com", Role: boards.RoleAdmin, Token: "owner-token", Status: StatusPending, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}).Error)
	require.NoError(t, f.db.Create(&Invitation{ID: "x2", BoardID: "board-1", SenderID: "owner", Email: "frank@example.com", Role: boards.RoleUser, Token: "frank-token", Status: StatusPending, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}).Error)

	_, err := f.service.RespondByToken(ctx, "frank-token", Responder{UserID: "carol", Email: "carol@example.com"}, true)
	require.True(t, errors.Is(err, ErrNotInvitee))

	accepted, err := f.service.RespondByToken(ctx, "owner-token", Responder{UserID: "owner", Email: "Owner@Example.com"}, true)
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, accepted.Status)
	require.Nil(t, f.memberRow(t, "owner"))

	_, err = f.service.RespondByToken(ctx, "frank-token", Responder{UserID: "frank", Email: "FRANK@example.com"}, true)
	require.NoError(t, err)
	require.Equal(t, boards.RoleUser, f.memberRow(t, "frank").Role)
}

func TestRemoveMemberRespectsRoles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := *f.now
	require.NoError(t, f.db.Create(&boards.Member{ID: "m-admin2", BoardID: "board-1", UserID: "bob", Role: boards.RoleAdmin, AddedBy: "owner", AddedAt: now}).Error)

	require.True(t, errors.Is(f.service.RemoveMember(ctx, "board-1", "bob", "admin"), boards.ErrInsufficientRole))
	require.True(t, errors.Is(f.service.RemoveMember(ctx, "board-1", "owner", "admin"), ErrOwnerImmutable))
	require.True(t, errors.Is(f.service.RemoveMember(ctx, "board-1", "admin", "member"), boards.ErrInsufficientRole))
	require.True(t, errors.Is(f.service.RemoveMember(ctx, "board-1", "carol", "owner"), ErrMemberNotFound))

	require.NoError(t, f.service.RemoveMember(ctx, "board-1", "member", "admin"))
	require.Nil(t, f.memberRow(t, "member"))
	require.NoError(t, f.service.RemoveMember(ctx, "board-1", "bob", "owner"))
	require.Nil(t, f.memberRow(t, "bob"))

	require.Len(t, f.notifier.inputs, 2)
	require.Equal(t, notifications.TypeMemberRemoved, f.notifier.inputs[0].Type)
	require.Equal(t, "member", f.notifier.inputs[0].UserID)
}

func TestUpdateMemberRoleAndLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	promoted, err := f.service.UpdateMemberRole(ctx, "board-1", "member", "owner", "ADMIN")
	require.NoError(t, err)
	require.Equal(t, boards.RoleAdmin, promoted.Role)
	require.Equal(t, boards.RoleAdmin, f.memberRow(t, "member").Role)

	_, err = f.service.UpdateMemberRole(ctx, "board-1", "member", "admin", "USER")
	require.True(t, errors.Is(err, boards.ErrInsufficientRole))
	_, err = f.service.UpdateMemberRole(ctx, "board-1", "member", "owner", "OWNER")
	require.True(t, errors.Is(err, ErrInvalidRole))
	_, err = f.service.UpdateMemberRole(ctx, "board-1", "owner", "owner", "USER")
	require.True(t, errors.Is(err, ErrOwnerImmutable))
	_, err = f.service.UpdateMemberRole(ctx, "board-1", "carol", "owner", "USER")
	require.True(t, errors.Is(err, ErrMemberNotFound))

	require.True(t, errors.Is(f.service.Leave(ctx, "board-1", "owner"), ErrOwnerCannotLeave))
	require.True(t, errors.Is(f.service.Leave(ctx, "board-1", "carol"), boards.ErrBoardNotFound))
	require.NoError(t, f.service.Leave(ctx, "board-1", "member"))
	require.Nil(t, f.memberRow(t, "member"))
}

func TestListMembersSynthesizesOwner(t *testing.T) {
	f := newFixture(t)

	members, err := f.service.ListMembers(context.Background(), "board-1", "member")
	require.NoError(t, err)
	require.Len(t, members, 3)
	require.Equal(t, "owner", members[0].UserID)
	require.Equal(t, "owner@example.com", members[0].Email)
	require.Equal(t, "Olivia", members[0].Name)
	require.Equal(t, boards.RoleOwner, members[0].Role)
	require.True(t, members[0].AddedAt.Equal(*f.now))
	require.Equal(t, "admin", members[1].UserID)
	require.Equal(t, boards.RoleAdmin, members[1].Role)
	require.Equal(t, "member@example.com", members[2].Email)

	_, err = f.service.ListMembers(context.Background(), "board-1", "carol")
	require.True(t, errors.Is(err, boards.ErrInsufficientRole))
	_, err = f.service.ListMembers(context.Background(), "missing-board", "owner")
	require.True(t, errors.Is(err, boards.ErrBoardNotFound))
}

func TestPendingListingAndExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Invite(ctx, "board-1", "owner", InviteInput{Email: "bob@example.com"})
	require.NoError(t, err)
	_, err = f.service.Invite(ctx, "board-1", "owner", InviteInput{Email: "gina@example.com"})
	require.NoError(t, err)

	pending, err := f.service.ListPendingFor(ctx, Responder{UserID: "bob", Email: "bob@example.com"})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	pending, err = f.service.ListPendingFor(ctx, Responder{UserID: "gina", Email: "Gina@example.com"})
	require.NoError(t, err)
	require.Len(t, pending, 1)

	listed, err := f.service.ListBoardInvitations(ctx, "board-1", "admin")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	_, err = f.service.ListBoardInvitations(ctx, "board-1", "member")
	require.True(t, errors.Is(err, boards.ErrInsufficientRole))

	expired, err := f.service.ExpireStale(ctx, f.now.Add(8*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(2), expired)

	*f.now = f.now.Add(8 * 24 * time.Hour)
	pending, err = f.service.ListPendingFor(ctx, Responder{UserID: "bob", Email: "bob@example.com"})
	require.NoError(t, err)
	require.Empty(t, pending)

	require.NoError(t, f.service.DeleteBoardData(f.db, "board-1"))
	require.Empty(t, f.invitationsFor(t, "bob@example.com"))
}

func TestMailFailureDoesNotFailInvite(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = errors.New("smtp down")

	invitation, err := f.service.Invite(context.Background(), "board-1", "owner", InviteInput{Email: "hank@example.com"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, invitation.Status)
	require.Equal(t, 1, f.logs.FilterMessage("invitation email failed").Len())
	require.Len(t, f.invitationsFor(t, "hank@example.com"), 1)
}

func TestRandomTokenIsURLSafeAndUnique(t *testing.T) {
	first, err := RandomToken()
	require.NoError(t, err)
	second, err := RandomToken()
	require.NoError(t, err)
	require.NotEqual(t, first, second)
	require.Len(t, first, 43)
	require.NotContains(t, first, "=")
}

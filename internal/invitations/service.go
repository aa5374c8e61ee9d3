// Package invitations drives the token based board invitation lifecycle and membership management.
package invitations

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/activity"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/boards"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/mail"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvitationNotFound   = apperrors.NotFound("invitation_not_found", "Invitation not found")
	ErrInvitationNotPending = apperrors.BadRequest("invitation_not_pending", "Invitation has already been answered")
	ErrInvitationExpired    = apperrors.BadRequest("invitation_expired", "Invitation has expired")
	ErrPendingInvitation    = apperrors.BadRequest("invitation_pending", "A pending invitation already exists for this email")
	ErrAlreadyMember        = apperrors.BadRequest("already_member", "User already has access to this board")
	ErrNotInvitee           = apperrors.Forbidden("not_invitee", "This invitation is addressed to another user")
	ErrInvalidEmail         = apperrors.BadRequest("invalid_email", "A valid email address is required")
	ErrInvalidRole          = apperrors.BadRequest("invalid_role", "Role must be ADMIN or USER")
	ErrMemberNotFound       = apperrors.NotFound("member_not_found", "Member not found")
	ErrOwnerImmutable       = apperrors.Forbidden("owner_immutable", "The board owner cannot be changed or removed")
	ErrOwnerCannotLeave     = apperrors.BadRequest("owner_cannot_leave", "The board owner cannot leave the board")
)

const (
	opInvite     = "invitations.invite"
	opRespond    = "invitations.respond"
	opMembers    = "invitations.members"
	opRemove     = "invitations.remove_member"
	opUpdateRole = "invitations.update_role"
	opLeave      = "invitations.leave"
	opList       = "invitations.list"
	opExpire     = "invitations.expire"
	opCascade    = "invitations.cascade"

	defaultTTL     = 7 * 24 * time.Hour
	tokenByteCount = 32
)

// Directory resolves registered users by email and renders display names.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (users.User, error)
	DisplayName(ctx context.Context, userID string) string
}

// InvitationMailer delivers invitation emails.
type InvitationMailer interface {
	SendBoardInvitation(ctx context.Context, invitation mail.BoardInvitation) error
}

// TokenGenerator produces opaque invitation tokens.
type TokenGenerator func() (string, error)

// Responder is the authenticated user answering an invitation.
type Responder struct {
	UserID string
	Email  string
}

// InviteInput carries the invitee and the role they will receive.
type InviteInput struct {
	Email string
	Role  string
}

type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
	TTL        time.Duration
	Tokens     TokenGenerator
	Directory  Directory
	Mailer     InvitationMailer
	Notifier   notifications.Notifier
	Activity   activity.Recorder
}

// Service owns invitations and board membership rows.
type Service struct {
	db         *gorm.DB
	idProvider ids.Provider
	clock      func() time.Time
	logger     *zap.Logger
	ttl        time.Duration
	tokens     TokenGenerator
	directory  Directory
	mailer     InvitationMailer
	notifier   notifications.Notifier
	activity   activity.Recorder
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("invitations: database connection required")
	}
	if cfg.Directory == nil {
		return nil, fmt.Errorf("invitations: user directory required")
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	tokens := cfg.Tokens
	if tokens == nil {
		tokens = RandomToken
	}
	recorder := cfg.Activity
	if recorder == nil {
		recorder = activity.NopRecorder()
	}
	return &Service{
		db:         cfg.Database,
		idProvider: idProvider,
		clock:      clock,
		logger:     logger,
		ttl:        ttl,
		tokens:     tokens,
		directory:  cfg.Directory,
		mailer:     cfg.Mailer,
		notifier:   cfg.Notifier,
		activity:   recorder,
	}, nil
}

// RandomToken returns 32 random bytes encoded as unpadded URL-safe base64.
func RandomToken() (string, error) {
	buffer := make([]byte, tokenByteCount)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// Invite creates a PENDING invitation for email on boardID. The sender must be OWNER or ADMIN.
// A live PENDING invitation for the same pair is rejected; answered or expired ones are replaced.
func (s *Service) Invite(ctx context.Context, boardID, senderID string, input InviteInput) (Invitation, error) {
	email := users.NormalizeEmail(input.Email)
	if !validEmail(email) {
		return Invitation{}, ErrInvalidEmail
	}
	role, err := parseGrantableRole(input.Role)
	if err != nil {
		return Invitation{}, err
	}

	var invitee *users.User
	found, err := s.directory.FindByEmail(ctx, email)
	switch {
	case err == nil:
		invitee = &found
	case !errors.Is(err, users.ErrUserNotFound):
		return Invitation{}, err
	}

	token, err := s.tokens()
	if err != nil {
		s.logError(opInvite, "token_generation_failed", err)
		return Invitation{}, apperrors.Internal(opInvite, "token_generation_failed", err)
	}

	var (
		invitation Invitation
		board      boards.Board
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		access, err := boards.RequireRoleTx(tx, boardID, senderID, boards.RoleAdmin)
		if err != nil {
			return err
		}
		board = access.Board
		if err := boards.LockBoard(tx, boardID); err != nil {
			return err
		}

		if invitee != nil {
			if invitee.ID == board.OwnerUserID {
				return ErrAlreadyMember
			}
			member, err := boards.FindMember(tx, boardID, invitee.ID)
			if err != nil {
				return err
			}
			if member != nil {
				return ErrAlreadyMember
			}
		}

		now := s.clock().UTC()
		if err := s.clearStale(tx, boardID, email, now); err != nil {
			return err
		}

		id, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opInvite, "id_generation_failed", err)
			return apperrors.Internal(opInvite, "id_generation_failed", err)
		}
		invitation = Invitation{
			ID:        id,
			BoardID:   boardID,
			SenderID:  senderID,
			Email:     email,
			Role:      role,
			Token:     token,
			Status:    StatusPending,
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		}
		if invitee != nil {
			receiverID := invitee.ID
			invitation.ReceiverID = &receiverID
		}
		if err := tx.Create(&invitation).Error; err != nil {
			s.logError(opInvite, "insert_failed", err, zap.String("board_id", boardID))
			return apperrors.Internal(opInvite, "insert_failed", err)
		}
		return nil
	})
	if err != nil {
		return Invitation{}, err
	}

	s.dispatchInvite(ctx, invitation, board, invitee)
	return invitation, nil
}

// clearStale removes every non-pending invitation for (boardID, email) and fails when a live
// PENDING one remains. A PENDING invitation past its deadline is treated as expired.
func (s *Service) clearStale(tx *gorm.DB, boardID, email string, now time.Time) error {
	var existing []Invitation
	if err := tx.Where("board_id = ? AND email = ?", boardID, email).Find(&existing).Error; err != nil {
		s.logError(opInvite, "existing_select_failed", err, zap.String("board_id", boardID))
		return apperrors.Internal(opInvite, "existing_select_failed", err)
	}
	stale := make([]string, 0, len(existing))
	for _, invitation := range existing {
		if invitation.Status == StatusPending && !invitation.Expired(now) {
			return ErrPendingInvitation
		}
		stale = append(stale, invitation.ID)
	}
	if len(stale) == 0 {
		return nil
	}
	if err := tx.Where("id IN ?", stale).Delete(&Invitation{}).Error; err != nil {
		s.logError(opInvite, "stale_delete_failed", err, zap.String("board_id", boardID))
		return apperrors.Internal(opInvite, "stale_delete_failed", err)
	}
	return nil
}

func (s *Service) dispatchInvite(ctx context.Context, invitation Invitation, board boards.Board, invitee *users.User) {
	s.activity.Record(ctx, invitation.SenderID, activity.MetricInvitationsSent)

	senderName := s.directory.DisplayName(ctx, invitation.SenderID)
	receiverName := invitation.Email
	if invitee != nil && invitee.Name != "" {
		receiverName = invitee.Name
	}

	if s.mailer != nil {
		err := s.mailer.SendBoardInvitation(ctx, mail.BoardInvitation{
			To:              invitation.Email,
			ReceiverName:    receiverName,
			SenderName:      senderName,
			BoardTitle:      board.Title,
			InvitationToken: invitation.Token,
			ExpiresAt:       invitation.ExpiresAt,
		})
		if err != nil {
			s.logger.Warn("invitation email failed",
				zap.String("invitation_id", invitation.ID),
				zap.String("board_id", invitation.BoardID),
				zap.Error(err))
		}
	}

	if invitee != nil {
		s.notify(ctx, notifications.Input{
			UserID:  invitee.ID,
			Type:    notifications.TypeBoardInvitation,
			Title:   "Board invitation",
			Message: fmt.Sprintf("%s invited you to %q", senderName, board.Title),
			BoardID: board.ID,
			Data: map[string]interface{}{
				"invitationId": invitation.ID,
				"token":        invitation.Token,
				"role":         string(invitation.Role),
			},
		})
	}
}

// RespondByToken accepts or declines the invitation identified by token. Accepting inserts the
// membership and marks the invitation ACCEPTED in one transaction. An invitation found past its
// deadline is flipped to EXPIRED and the call fails with ErrInvitationExpired.
func (s *Service) RespondByToken(ctx context.Context, token string, responder Responder, accept bool) (Invitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Invitation{}, ErrInvitationNotFound
	}

	var (
		invitation Invitation
		board      boards.Board
		expired    bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("token = ?", token).Take(&invitation).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvitationNotFound
		}
		if err != nil {
			s.logError(opRespond, "select_failed", err)
			return apperrors.Internal(opRespond, "select_failed", err)
		}
		if !addressedTo(invitation, responder) {
			return ErrNotInvitee
		}
		switch invitation.Status {
		case StatusPending:
		case StatusExpired:
			return ErrInvitationExpired
		default:
			return ErrInvitationNotPending
		}

		now := s.clock().UTC()
		if invitation.Expired(now) {
			if err := s.transition(tx, invitation.ID, StatusExpired, nil, now); err != nil {
				return err
			}
			invitation.Status = StatusExpired
			expired = true
			return nil
		}

		if err := boards.LockBoard(tx, invitation.BoardID); err != nil {
			return err
		}
		board, err = boards.FindBoard(tx, invitation.BoardID)
		if err != nil {
			return err
		}

		status := StatusRejected
		if accept {
			status = StatusAccepted
			if err := s.ensureMember(tx, board, invitation, responder.UserID, now); err != nil {
				return err
			}
		}
		if err := s.transition(tx, invitation.ID, status, &responder.UserID, now); err != nil {
			return err
		}
		receiverID := responder.UserID
		invitation.Status = status
		invitation.ReceiverID = &receiverID
		invitation.RespondedAt = &now
		return nil
	})
	if err != nil {
		return Invitation{}, err
	}
	if expired {
		return invitation, ErrInvitationExpired
	}

	s.dispatchResponse(ctx, invitation, board, responder)
	return invitation, nil
}

func addressedTo(invitation Invitation, responder Responder) bool {
	if invitation.ReceiverID != nil {
		return *invitation.ReceiverID == responder.UserID
	}
	return users.NormalizeEmail(responder.Email) == invitation.Email
}

// ensureMember inserts the membership row unless the user already has access. The owner never
// receives a row.
func (s *Service) ensureMember(tx *gorm.DB, board boards.Board, invitation Invitation, userID string, now time.Time) error {
	if board.OwnerUserID == userID {
		return nil
	}
	existing, err := boards.FindMember(tx, board.ID, userID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opRespond, "id_generation_failed", err)
		return apperrors.Internal(opRespond, "id_generation_failed", err)
	}
	member := boards.Member{
		ID:      id,
		BoardID: board.ID,
		UserID:  userID,
		Role:    invitation.Role,
		AddedBy: invitation.SenderID,
		AddedAt: now,
	}
	if err := tx.Create(&member).Error; err != nil {
		s.logError(opRespond, "member_insert_failed", err, zap.String("board_id", board.ID))
		return apperrors.Internal(opRespond, "member_insert_failed", err)
	}
	return nil
}

// transition moves a PENDING invitation to status. Losing a race against another response
// surfaces as ErrInvitationNotPending.
func (s *Service) transition(tx *gorm.DB, invitationID string, status Status, receiverID *string, now time.Time) error {
	updates := map[string]interface{}{"status": status, "responded_at": now}
	if receiverID != nil {
		updates["receiver_id"] = *receiverID
	}
	result := tx.Model(&Invitation{}).
		Where("id = ? AND status = ?", invitationID, StatusPending).
		Updates(updates)
	if result.Error != nil {
		s.logError(opRespond, "status_update_failed", result.Error, zap.String("invitation_id", invitationID))
		return apperrors.Internal(opRespond, "status_update_failed", result.Error)
	}
	if result.RowsAffected != 1 {
		return ErrInvitationNotPending
	}
	return nil
}

func (s *Service) dispatchResponse(ctx context.Context, invitation Invitation, board boards.Board, responder Responder) {
	name := s.directory.DisplayName(ctx, responder.UserID)
	if name == "" {
		name = invitation.Email
	}
	input := notifications.Input{
		UserID:  invitation.SenderID,
		BoardID: board.ID,
		Data:    map[string]interface{}{"invitationId": invitation.ID, "userId": responder.UserID},
	}
	if invitation.Status == StatusAccepted {
		s.activity.Record(ctx, responder.UserID, activity.MetricInvitationsAccepted)
		input.Type = notifications.TypeInvitationAccepted
		input.Title = "Invitation accepted"
		input.Message = fmt.Sprintf("%s joined %q", name, board.Title)
	} else {
		input.Type = notifications.TypeInvitationDeclined
		input.Title = "Invitation declined"
		input.Message = fmt.Sprintf("%s declined to join %q", name, board.Title)
	}
	s.notify(ctx, input)
}

// ListMembers returns the owner followed by every member in the order they joined.
func (s *Service) ListMembers(ctx context.Context, boardID, userID string) ([]MemberView, error) {
	db := s.db.WithContext(ctx)
	access, err := boards.RequireRoleTx(db, boardID, userID, boards.RoleUser)
	if err != nil {
		return nil, err
	}

	type memberRow struct {
		UserID  string
		Role    boards.Role
		AddedBy string
		AddedAt time.Time
		Email   sql.NullString
		Name    sql.NullString
	}
	var rows []memberRow
	if err := db.Table("board_members").
		Select("board_members.user_id, board_members.role, board_members.added_by, board_members.added_at, users.email, users.name").
		Joins("LEFT JOIN users ON users.id = board_members.user_id").
		Where("board_members.board_id = ?", boardID).
		Order("board_members.added_at ASC, board_members.user_id ASC").
		Scan(&rows).Error; err != nil {
		s.logError(opMembers, "select_failed", err, zap.String("board_id", boardID))
		return nil, apperrors.Internal(opMembers, "select_failed", err)
	}

	owner := MemberView{UserID: access.Board.OwnerUserID, Role: boards.RoleOwner, AddedAt: access.Board.CreatedAt}
	var ownerAccount users.User
	err = db.Where("id = ?", access.Board.OwnerUserID).Take(&ownerAccount).Error
	switch {
	case err == nil:
		owner.Email = ownerAccount.Email
		owner.Name = ownerAccount.Name
	case !errors.Is(err, gorm.ErrRecordNotFound):
		s.logError(opMembers, "owner_select_failed", err, zap.String("board_id", boardID))
		return nil, apperrors.Internal(opMembers, "owner_select_failed", err)
	}

	members := make([]MemberView, 0, len(rows)+1)
	members = append(members, owner)
	for _, row := range rows {
		if row.UserID == access.Board.OwnerUserID {
			continue
		}
		members = append(members, MemberView{
			UserID:  row.UserID,
			Email:   row.Email.String,
			Name:    row.Name.String,
			Role:    row.Role,
			AddedBy: row.AddedBy,
			AddedAt: row.AddedAt,
		})
	}
	return members, nil
}

// RemoveMember revokes targetUserID's access. The owner may remove anyone but themselves;
// an admin may only remove plain users.
func (s *Service) RemoveMember(ctx context.Context, boardID, targetUserID, requesterID string) error {
	var board boards.Board
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		access, err := boards.RequireRoleTx(tx, boardID, requesterID, boards.RoleAdmin)
		if err != nil {
			return err
		}
		board = access.Board
		if targetUserID == board.OwnerUserID {
			return ErrOwnerImmutable
		}
		member, err := boards.FindMember(tx, boardID, targetUserID)
		if err != nil {
			return err
		}
		if member == nil {
			return ErrMemberNotFound
		}
		if access.Role != boards.RoleOwner && member.Role != boards.RoleUser {
			return boards.ErrInsufficientRole
		}
		return s.deleteMember(tx, *member, opRemove)
	})
	if err != nil {
		return err
	}

	if targetUserID != requesterID {
		s.notify(ctx, notifications.Input{
			UserID:  targetUserID,
			Type:    notifications.TypeMemberRemoved,
			Title:   "Removed from board",
			Message: fmt.Sprintf("You no longer have access to %q", board.Title),
			BoardID: board.ID,
		})
	}
	return nil
}

// UpdateMemberRole switches a member between ADMIN and USER. Only the owner may do this.
func (s *Service) UpdateMemberRole(ctx context.Context, boardID, targetUserID, requesterID, rawRole string) (boards.Member, error) {
	role, err := parseGrantableRole(rawRole)
	if err != nil {
		return boards.Member{}, err
	}
	if strings.TrimSpace(rawRole) == "" {
		return boards.Member{}, ErrInvalidRole
	}

	var member boards.Member
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		access, err := boards.RequireRoleTx(tx, boardID, requesterID, boards.RoleOwner)
		if err != nil {
			return err
		}
		if targetUserID == access.Board.OwnerUserID {
			return ErrOwnerImmutable
		}
		found, err := boards.FindMember(tx, boardID, targetUserID)
		if err != nil {
			return err
		}
		if found == nil {
			return ErrMemberNotFound
		}
		if err := tx.Model(&boards.Member{}).Where("id = ?", found.ID).Update("role", role).Error; err != nil {
			s.logError(opUpdateRole, "update_failed", err, zap.String("board_id", boardID))
			return apperrors.Internal(opUpdateRole, "update_failed", err)
		}
		member = *found
		member.Role = role
		return nil
	})
	if err != nil {
		return boards.Member{}, err
	}
	return member, nil
}

// Leave removes the caller's own membership.
func (s *Service) Leave(ctx context.Context, boardID, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		access, err := boards.RequireAccessTx(tx, boardID, userID)
		if err != nil {
			return err
		}
		if access.Role == boards.RoleOwner {
			return ErrOwnerCannotLeave
		}
		member, err := boards.FindMember(tx, boardID, userID)
		if err != nil {
			return err
		}
		if member == nil {
			return ErrMemberNotFound
		}
		return s.deleteMember(tx, *member, opLeave)
	})
}

func (s *Service) deleteMember(tx *gorm.DB, member boards.Member, operation string) error {
	if err := tx.Where("id = ?", member.ID).Delete(&boards.Member{}).Error; err != nil {
		s.logError(operation, "delete_failed", err, zap.String("board_id", member.BoardID), zap.String("user_id", member.UserID))
		return apperrors.Internal(operation, "delete_failed", err)
	}
	return nil
}

// ListBoardInvitations returns every invitation of a board, newest first. OWNER or ADMIN only.
func (s *Service) ListBoardInvitations(ctx context.Context, boardID, userID string) ([]Invitation, error) {
	db := s.db.WithContext(ctx)
	if _, err := boards.RequireRoleTx(db, boardID, userID, boards.RoleAdmin); err != nil {
		return nil, err
	}
	var invitations []Invitation
	if err := db.Where("board_id = ?", boardID).Order("created_at DESC").Find(&invitations).Error; err != nil {
		s.logError(opList, "select_failed", err, zap.String("board_id", boardID))
		return nil, apperrors.Internal(opList, "select_failed", err)
	}
	return invitations, nil
}

// ListPendingFor returns live invitations addressed to the user by id or, when unbound, by email.
func (s *Service) ListPendingFor(ctx context.Context, responder Responder) ([]Invitation, error) {
	now := s.clock().UTC()
	email := users.NormalizeEmail(responder.Email)
	var invitations []Invitation
	if err := s.db.WithContext(ctx).
		Where("status = ? AND expires_at > ?", StatusPending, now).
		Where("receiver_id = ? OR (receiver_id IS NULL AND email = ?)", responder.UserID, email).
		Order("created_at DESC").
		Find(&invitations).Error; err != nil {
		s.logError(opList, "pending_select_failed", err, zap.String("user_id", responder.UserID))
		return nil, apperrors.Internal(opList, "pending_select_failed", err)
	}
	return invitations, nil
}

// ExpireStale flips every PENDING invitation whose deadline passed before now to EXPIRED.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Model(&Invitation{}).
		Where("status = ? AND expires_at < ?", StatusPending, now.UTC()).
		Update("status", StatusExpired)
	if result.Error != nil {
		s.logError(opExpire, "update_failed", result.Error)
		return 0, apperrors.Internal(opExpire, "update_failed", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteBoardData removes a board's invitations inside the board deletion transaction.
func (s *Service) DeleteBoardData(tx *gorm.DB, boardID string) error {
	if err := tx.Where("board_id = ?", boardID).Delete(&Invitation{}).Error; err != nil {
		s.logError(opCascade, "delete_failed", err, zap.String("board_id", boardID))
		return apperrors.Internal(opCascade, "delete_failed", err)
	}
	return nil
}

func (s *Service) notify(ctx context.Context, input notifications.Input) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, input); err != nil {
		s.logger.Warn("invitation notification failed",
			zap.String("type", string(input.Type)),
			zap.String("user_id", input.UserID),
			zap.Error(err))
	}
}

// parseGrantableRole accepts ADMIN or USER; empty input defaults to USER.
func parseGrantableRole(raw string) (boards.Role, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if trimmed == "" {
		return boards.RoleUser, nil
	}
	role, ok := boards.ParseRole(trimmed)
	if !ok || role == boards.RoleOwner {
		return "", ErrInvalidRole
	}
	return role, nil
}

func validEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t\r\n")
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	if s.logger == nil {
		return
	}
	base := []zap.Field{zap.String("operation", operation), zap.String("reason", reason), zap.Error(err)}
	s.logger.Error("invitation service failure", append(base, fields...)...)
}

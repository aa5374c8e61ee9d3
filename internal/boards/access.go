package boards

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/apperrors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrBoardNotFound    = apperrors.NotFound("board_not_found", "Board not found")
	ErrInsufficientRole = apperrors.Forbidden("insufficient_role", "You do not have permission to perform this action on the board")
)

const opAccess = "boards.access"

// Access is a board together with the caller's resolved role on it.
type Access struct {
	Board Board
	Role  Role
}

// FindBoard loads a board through db, which may be a transaction.
func FindBoard(db *gorm.DB, boardID string) (Board, error) {
	var board Board
	err := db.Where("id = ?", boardID).Take(&board).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Board{}, ErrBoardNotFound
	}
	if err != nil {
		return Board{}, apperrors.Internal(opAccess, "board_select_failed", err)
	}
	return board, nil
}

// LockBoard takes a row lock on the board so concurrent reorders within it serialize.
// Drivers without row locks ignore the clause.
func LockBoard(tx *gorm.DB, boardID string) error {
	var board Board
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").Where("id = ?", boardID).Take(&board).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrBoardNotFound
	}
	if err != nil {
		return apperrors.Internal(opAccess, "board_lock_failed", err)
	}
	return nil
}

// FindMember returns the membership row for (boardID, userID), or nil.
func FindMember(db *gorm.DB, boardID, userID string) (*Member, error) {
	var member Member
	err := db.Where("board_id = ? AND user_id = ?", boardID, userID).Take(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Internal(opAccess, "member_select_failed", err)
	}
	return &member, nil
}

// LoadAccess resolves userID's role on boardID through db. A missing board yields
// ErrBoardNotFound; a board the user cannot see yields ok == false.
func LoadAccess(db *gorm.DB, boardID, userID string) (Access, bool, error) {
	board, err := FindBoard(db, boardID)
	if err != nil {
		return Access{}, false, err
	}
	member, err := FindMember(db, boardID, userID)
	if err != nil {
		return Access{}, false, err
	}
	role, ok := ResolveRole(board, userID, member)
	return Access{Board: board, Role: role}, ok, nil
}

// RequireAccessTx is the read/mutate guard for board content: any resolvable role passes and
// everything else is reported as not found so board existence does not leak.
func RequireAccessTx(db *gorm.DB, boardID, userID string) (Access, error) {
	access, ok, err := LoadAccess(db, boardID, userID)
	if err != nil {
		return Access{}, err
	}
	if !ok {
		return Access{}, ErrBoardNotFound
	}
	return access, nil
}

// RequireRoleTx is the member-management guard: a missing board is not found, a known board
// where the caller lacks min is forbidden.
func RequireRoleTx(db *gorm.DB, boardID, userID string, min Role) (Access, error) {
	access, ok, err := LoadAccess(db, boardID, userID)
	if err != nil {
		return Access{}, err
	}
	if !ok || !access.Role.AtLeast(min) {
		return Access{}, ErrInsufficientRole
	}
	return access, nil
}

// RoleFor resolves the caller's role on a board.
func (s *Service) RoleFor(ctx context.Context, boardID, userID string) (Role, bool, error) {
	access, ok, err := LoadAccess(s.db.WithContext(ctx), boardID, userID)
	if err != nil {
		s.logAccessError(err, boardID, userID)
		return "", false, err
	}
	return access.Role, ok, nil
}

func (s *Service) RequireAccess(ctx context.Context, boardID, userID string) (Access, error) {
	access, err := RequireAccessTx(s.db.WithContext(ctx), boardID, userID)
	if err != nil {
		s.logAccessError(err, boardID, userID)
	}
	return access, err
}

func (s *Service) RequireRole(ctx context.Context, boardID, userID string, min Role) (Access, error) {
	access, err := RequireRoleTx(s.db.WithContext(ctx), boardID, userID, min)
	if err != nil {
		s.logAccessError(err, boardID, userID)
	}
	return access, err
}

func (s *Service) RequireOwner(ctx context.Context, boardID, userID string) (Access, error) {
	return s.RequireRole(ctx, boardID, userID, RoleOwner)
}

func (s *Service) logAccessError(err error, boardID, userID string) {
	if apperrors.KindOf(err) != apperrors.KindInternal {
		return
	}
	s.logError(opAccess, "lookup_failed", err, zap.String("board_id", boardID), zap.String("user_id", userID))
}

package boards

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/activity"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/ordering"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidTitle = apperrors.BadRequest("invalid_title", "Title is required")

const (
	opCreate       = "boards.create"
	opList         = "boards.list"
	opUpdate       = "boards.update"
	opDelete       = "boards.delete"
	opSearch       = "boards.search"
	opParticipants = "boards.participants"

	defaultSearchLimit = 20
	maxTitleLength     = 255
)

// Cascade removes board-scoped rows owned by another package inside the delete transaction.
type Cascade interface {
	DeleteBoardData(tx *gorm.DB, boardID string) error
}

// ServiceConfig describes the dependencies of the board service.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
	Activity   activity.Recorder
	Cascades   []Cascade
}

// Service manages boards and answers access questions about them.
type Service struct {
	db         *gorm.DB
	idProvider ids.Provider
	clock      func() time.Time
	logger     *zap.Logger
	activity   activity.Recorder
	cascades   []Cascade
}

// CreateInput carries the fields accepted when creating a board.
type CreateInput struct {
	Title       string
	Description string
}

// UpdateInput carries optional board fields; nil leaves the field unchanged.
type UpdateInput struct {
	Title       *string
	Description *string
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("boards: database connection required")
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
	recorder := cfg.Activity
	if recorder == nil {
		recorder = activity.NopRecorder()
	}
	return &Service{
		db:         cfg.Database,
		idProvider: idProvider,
		clock:      clock,
		logger:     logger,
		activity:   recorder,
		cascades:   cfg.Cascades,
	}, nil
}

// AddCascade registers another package's board-scoped cleanup.
func (s *Service) AddCascade(cascade Cascade) {
	s.cascades = append(s.cascades, cascade)
}

// Create appends a new board after the owner's existing boards.
func (s *Service) Create(ctx context.Context, ownerID string, input CreateInput) (Board, error) {
	title, err := normalizeTitle(input.Title)
	if err != nil {
		return Board{}, err
	}

	var board Board
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxPosition sql.NullFloat64
		if err := tx.Model(&Board{}).
			Where("owner_user_id = ?", ownerID).
			Select("MAX(position)").
			Row().
			Scan(&maxPosition); err != nil {
			s.logError(opCreate, "max_position_failed", err, zap.String("owner_id", ownerID))
			return apperrors.Internal(opCreate, "max_position_failed", err)
		}

		id, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opCreate, "id_generation_failed", err)
			return apperrors.Internal(opCreate, "id_generation_failed", err)
		}
		now := s.clock().UTC()
		board = Board{
			ID:          id,
			Title:       title,
			Description: strings.TrimSpace(input.Description),
			OwnerUserID: ownerID,
			Position:    ordering.NextAppendPositionFrom(maxPosition),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(&board).Error; err != nil {
			s.logError(opCreate, "insert_failed", err, zap.String("owner_id", ownerID))
			return apperrors.Internal(opCreate, "insert_failed", err)
		}
		return nil
	})
	if err != nil {
		return Board{}, err
	}

	s.activity.Record(ctx, ownerID, activity.MetricBoardsCreated)
	return board, nil
}

// accessibleBoardIDs selects the ids of every board userID owns or is a member of.
func accessibleBoardIDs(db *gorm.DB, userID string) *gorm.DB {
	memberBoards := db.Session(&gorm.Session{NewDB: true}).Model(&Member{}).Select("board_id").Where("user_id = ?", userID)
	return db.Session(&gorm.Session{NewDB: true}).Model(&Board{}).Select("id").
		Where("owner_user_id = ? OR id IN (?)", userID, memberBoards)
}

// AccessibleBoardIDs is a subquery over the boards userID can see, for use in other packages' queries.
func AccessibleBoardIDs(db *gorm.DB, userID string) *gorm.DB {
	return accessibleBoardIDs(db, userID)
}

// List returns every board the user owns or is a member of, with the user's role on each.
func (s *Service) List(ctx context.Context, userID string) ([]Access, error) {
	db := s.db.WithContext(ctx)
	var boards []Board
	if err := db.Where("id IN (?)", accessibleBoardIDs(db, userID)).
		Order("position ASC, created_at ASC").
		Find(&boards).Error; err != nil {
		s.logError(opList, "select_failed", err, zap.String("user_id", userID))
		return nil, apperrors.Internal(opList, "select_failed", err)
	}

	var members []Member
	if err := db.Where("user_id = ?", userID).Find(&members).Error; err != nil {
		s.logError(opList, "member_select_failed", err, zap.String("user_id", userID))
		return nil, apperrors.Internal(opList, "member_select_failed", err)
	}
	memberByBoard := make(map[string]*Member, len(members))
	for index := range members {
		memberByBoard[members[index].BoardID] = &members[index]
	}

	result := make([]Access, 0, len(boards))
	for _, board := range boards {
		role, ok := ResolveRole(board, userID, memberByBoard[board.ID])
		if !ok {
			continue
		}
		result = append(result, Access{Board: board, Role: role})
	}
	return result, nil
}

// Get returns a board visible to the user.
func (s *Service) Get(ctx context.Context, boardID, userID string) (Access, error) {
	return s.RequireAccess(ctx, boardID, userID)
}

// Update edits title/description. OWNER and ADMIN may update; a USER is forbidden.
func (s *Service) Update(ctx context.Context, boardID, userID string, input UpdateInput) (Board, error) {
	var board Board
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		access, err := RequireAccessTx(tx, boardID, userID)
		if err != nil {
			return err
		}
		if !access.Role.AtLeast(RoleAdmin) {
			return ErrInsufficientRole
		}

		updates := map[string]interface{}{"updated_at": s.clock().UTC()}
		board = access.Board
		if input.Title != nil {
			title, err := normalizeTitle(*input.Title)
			if err != nil {
				return err
			}
			updates["title"] = title
			board.Title = title
		}
		if input.Description != nil {
			description := strings.TrimSpace(*input.Description)
			updates["description"] = description
			board.Description = description
		}
		if err := tx.Model(&Board{}).Where("id = ?", boardID).Updates(updates).Error; err != nil {
			s.logError(opUpdate, "update_failed", err, zap.String("board_id", boardID))
			return apperrors.Internal(opUpdate, "update_failed", err)
		}
		board.UpdatedAt = updates["updated_at"].(time.Time)
		return nil
	})
	if err != nil {
		return Board{}, err
	}
	return board, nil
}

// Delete removes the board and everything scoped to it in one transaction. Owner only.
func (s *Service) Delete(ctx context.Context, boardID, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		access, err := RequireAccessTx(tx, boardID, userID)
		if err != nil {
			return err
		}
		if access.Role != RoleOwner {
			return ErrInsufficientRole
		}

		for _, cascade := range s.cascades {
			if err := cascade.DeleteBoardData(tx, boardID); err != nil {
				if apperrors.KindOf(err) == apperrors.KindInternal {
					s.logError(opDelete, "cascade_failed", err, zap.String("board_id", boardID))
				}
				return err
			}
		}
		if err := tx.Where("board_id = ?", boardID).Delete(&Member{}).Error; err != nil {
			s.logError(opDelete, "member_delete_failed", err, zap.String("board_id", boardID))
			return apperrors.Internal(opDelete, "member_delete_failed", err)
		}
		if err := tx.Where("id = ?", boardID).Delete(&Board{}).Error; err != nil {
			s.logError(opDelete, "board_delete_failed", err, zap.String("board_id", boardID))
			return apperrors.Internal(opDelete, "board_delete_failed", err)
		}
		return nil
	})
}

// Search matches board titles among the boards the user can see.
func (s *Service) Search(ctx context.Context, userID, query string, limit int) ([]Board, error) {
	pattern := LikePattern(query)
	if pattern == "" {
		return []Board{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	db := s.db.WithContext(ctx)
	var boards []Board
	if err := db.Where("id IN (?)", accessibleBoardIDs(db, userID)).
		Where("LOWER(title) LIKE ? ESCAPE '"+LikeEscape+"'", pattern).
		Order("updated_at DESC").
		Limit(limit).
		Find(&boards).Error; err != nil {
		s.logError(opSearch, "select_failed", err, zap.String("user_id", userID))
		return nil, apperrors.Internal(opSearch, "select_failed", err)
	}
	return boards, nil
}

// ParticipantIDs returns the owner followed by every member of the board.
func (s *Service) ParticipantIDs(ctx context.Context, boardID string) ([]string, error) {
	db := s.db.WithContext(ctx)
	board, err := FindBoard(db, boardID)
	if err != nil {
		return nil, err
	}
	var memberIDs []string
	if err := db.Model(&Member{}).Where("board_id = ?", boardID).Order("added_at ASC").Pluck("user_id", &memberIDs).Error; err != nil {
		s.logError(opParticipants, "select_failed", err, zap.String("board_id", boardID))
		return nil, apperrors.Internal(opParticipants, "select_failed", err)
	}
	participants := make([]string, 0, len(memberIDs)+1)
	participants = append(participants, board.OwnerUserID)
	for _, memberID := range memberIDs {
		if memberID != board.OwnerUserID {
			participants = append(participants, memberID)
		}
	}
	return participants, nil
}

func normalizeTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" || len(title) > maxTitleLength {
		return "", ErrInvalidTitle
	}
	return title, nil
}

// LikeEscape is the escape character paired with LikePattern in LIKE clauses.
const LikeEscape = "!"

var likeEscaper = strings.NewReplacer(LikeEscape, LikeEscape+LikeEscape, "%", LikeEscape+"%", "_", LikeEscape+"_")

// LikePattern builds a case-insensitive substring pattern with the query's wildcards escaped.
// Use it with "LIKE ? ESCAPE '!'".
func LikePattern(query string) string {
	trimmed := strings.ToLower(strings.TrimSpace(query))
	if trimmed == "" {
		return ""
	}
	return "%" + likeEscaper.Replace(trimmed) + "%"
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	if s.logger == nil {
		return
	}
	base := []zap.Field{zap.String("operation", operation), zap.String("reason", reason), zap.Error(err)}
	s.logger.Error("board service failure", append(base, fields...)...)
}

// Package columns manages board columns and their left-to-right order.
package columns

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/activity"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/apperrors"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/boards"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/ordering"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrColumnNotFound = apperrors.NotFound("column_not_found", "Column not found")
	ErrInvalidTitle   = apperrors.BadRequest("invalid_title", "Title is required")
	ErrBoardMismatch  = apperrors.BadRequest("board_mismatch", "Columns cannot move between boards")
	ErrEmptyReorder   = apperrors.BadRequest("empty_reorder", "At least one position entry is required")
)

const (
	opCreate          = "columns.create"
	opList            = "columns.list"
	opUpdate          = "columns.update"
	opDelete          = "columns.delete"
	opMove            = "columns.move"
	opUpdatePositions = "columns.update_positions"
	opCascade         = "columns.cascade"

	maxTitleLength = 255
)

// ContentCascade removes rows stored inside columns, such as tasks, before the columns go.
type ContentCascade interface {
	DeleteColumnData(tx *gorm.DB, columnIDs []string) error
}

// ServiceConfig describes the dependencies of the column service.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
	Activity   activity.Recorder
	Content    ContentCascade
}

type Service struct {
	db         *gorm.DB
	idProvider ids.Provider
	clock      func() time.Time
	logger     *zap.Logger
	activity   activity.Recorder
	content    ContentCascade
}

// CreateInput carries the fields accepted when creating a column.
type CreateInput struct {
	BoardID string
	Title   string
}

// PositionEntry is one {id, boardId, position} triple of a bulk reorder.
type PositionEntry struct {
	ID       string
	BoardID  string
	Position float64
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("columns: database connection required")
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
		content:    cfg.Content,
	}, nil
}

// FindColumn loads a column through db, which may be a transaction.
func FindColumn(db *gorm.DB, columnID string) (Column, error) {
	var column Column
	err := db.Where("id = ?", columnID).Take(&column).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Column{}, ErrColumnNotFound
	}
	if err != nil {
		return Column{}, apperrors.Internal("columns.find", "select_failed", err)
	}
	return column, nil
}

// RequireColumnAccess loads a column and checks the caller can see its board. Hidden boards
// surface as a missing column.
func RequireColumnAccess(db *gorm.DB, columnID, userID string) (Column, boards.Access, error) {
	column, err := FindColumn(db, columnID)
	if err != nil {
		return Column{}, boards.Access{}, err
	}
	access, err := boards.RequireAccessTx(db, column.BoardID, userID)
	if errors.Is(err, boards.ErrBoardNotFound) {
		return Column{}, boards.Access{}, ErrColumnNotFound
	}
	if err != nil {
		return Column{}, boards.Access{}, err
	}
	return column, access, nil
}

// Create appends a column at the end of the board.
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (Column, error) {
	title, err := normalizeTitle(input.Title)
	if err != nil {
		return Column{}, err
	}

	var column Column
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := boards.RequireAccessTx(tx, input.BoardID, userID); err != nil {
			return err
		}
		if err := boards.LockBoard(tx, input.BoardID); err != nil {
			return err
		}

		var maxPosition sql.NullFloat64
		if err := tx.Model(&Column{}).
			Where("board_id = ?", input.BoardID).
			Select("MAX(position)").
			Row().
			Scan(&maxPosition); err != nil {
			s.logError(opCreate, "max_position_failed", err, zap.String("board_id", input.BoardID))
			return apperrors.Internal(opCreate, "max_position_failed", err)
		}

		id, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opCreate, "id_generation_failed", err)
			return apperrors.Internal(opCreate, "id_generation_failed", err)
		}
		now := s.clock().UTC()
		column = Column{
			ID:        id,
			BoardID:   input.BoardID,
			Title:     title,
			Position:  ordering.NextAppendPositionFrom(maxPosition),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Create(&column).Error; err != nil {
			s.logError(opCreate, "insert_failed", err, zap.String("board_id", input.BoardID))
			return apperrors.Internal(opCreate, "insert_failed", err)
		}
		return nil
	})
	if err != nil {
		return Column{}, err
	}

	s.activity.Record(ctx, userID, activity.MetricColumnsCreated)
	return column, nil
}

// List returns the board's columns left to right.
func (s *Service) List(ctx context.Context, boardID, userID string) ([]Column, error) {
	db := s.db.WithContext(ctx)
	if _, err := boards.RequireAccessTx(db, boardID, userID); err != nil {
		return nil, err
	}
	var columns []Column
	if err := db.Where("board_id = ?", boardID).Order("position ASC, created_at ASC").Find(&columns).Error; err != nil {
		s.logError(opList, "select_failed", err, zap.String("board_id", boardID))
		return nil, apperrors.Internal(opList, "select_failed", err)
	}
	return columns, nil
}

func (s *Service) Get(ctx context.Context, columnID, userID string) (Column, error) {
	column, _, err := RequireColumnAccess(s.db.WithContext(ctx), columnID, userID)
	return column, err
}

// Update changes the column title.
func (s *Service) Update(ctx context.Context, columnID, userID, title string) (Column, error) {
	normalized, err := normalizeTitle(title)
	if err != nil {
		return Column{}, err
	}
	var column Column
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		column, _, err = RequireColumnAccess(tx, columnID, userID)
		if err != nil {
			return err
		}
		now := s.clock().UTC()
		if err := tx.Model(&Column{}).Where("id = ?", columnID).
			Updates(map[string]interface{}{"title": normalized, "updated_at": now}).Error; err != nil {
			s.logError(opUpdate, "update_failed", err, zap.String("column_id", columnID))
			return apperrors.Internal(opUpdate, "update_failed", err)
		}
		column.Title = normalized
		column.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Column{}, err
	}
	return column, nil
}

// Delete removes the column and its tasks.
func (s *Service) Delete(ctx context.Context, columnID, userID string) (Column, error) {
	var column Column
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		column, _, err = RequireColumnAccess(tx, columnID, userID)
		if err != nil {
			return err
		}
		return s.deleteColumns(tx, []string{columnID}, opDelete)
	})
	if err != nil {
		return Column{}, err
	}
	return column, nil
}

// DeleteBoardData removes every column of the board; it runs inside the board delete transaction.
func (s *Service) DeleteBoardData(tx *gorm.DB, boardID string) error {
	var columnIDs []string
	if err := tx.Model(&Column{}).Where("board_id = ?", boardID).Pluck("id", &columnIDs).Error; err != nil {
		s.logError(opCascade, "select_failed", err, zap.String("board_id", boardID))
		return apperrors.Internal(opCascade, "select_failed", err)
	}
	if len(columnIDs) == 0 {
		return nil
	}
	return s.deleteColumns(tx, columnIDs, opCascade)
}

func (s *Service) deleteColumns(tx *gorm.DB, columnIDs []string, operation string) error {
	if s.content != nil {
		if err := s.content.DeleteColumnData(tx, columnIDs); err != nil {
			return err
		}
	}
	if err := tx.Where("id IN ?", columnIDs).Delete(&Column{}).Error; err != nil {
		s.logError(operation, "delete_failed", err, zap.Strings("column_ids", columnIDs))
		return apperrors.Internal(operation, "delete_failed", err)
	}
	return nil
}

// Move places the column after prevID and/or before nextID. The sibling set is re-read and the
// board row locked inside the transaction, so concurrent moves never produce duplicate keys.
func (s *Service) Move(ctx context.Context, columnID, userID, prevID, nextID string) (Column, error) {
	var column Column
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		column, _, err = RequireColumnAccess(tx, columnID, userID)
		if err != nil {
			return err
		}
		if err := boards.LockBoard(tx, column.BoardID); err != nil {
			return err
		}

		siblings, err := s.siblings(tx, column.BoardID, opMove)
		if err != nil {
			return err
		}
		placement, err := ordering.Place(siblings, columnID, prevID, nextID)
		if err != nil {
			return err
		}

		now := s.clock().UTC()
		if placement.Normalized != nil {
			s.logger.Debug("column positions normalized",
				zap.String("board_id", column.BoardID),
				zap.Int("columns", len(placement.Normalized)))
			for _, item := range placement.Normalized {
				if err := s.writePosition(tx, item.ID, item.Position, now, opMove); err != nil {
					return err
				}
			}
		}
		if err := s.writePosition(tx, columnID, placement.Position, now, opMove); err != nil {
			return err
		}
		column.Position = placement.Position
		column.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Column{}, err
	}
	return column, nil
}

// UpdatePositions applies a bulk reorder of {id, boardId, position} triples all-or-nothing and
// returns the affected boards' columns in their new order.
func (s *Service) UpdatePositions(ctx context.Context, userID string, entries []PositionEntry) ([]Column, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyReorder
	}

	var updated []Column
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		boardIDs := make([]string, 0)
		seenBoards := make(map[string]struct{})
		orderingEntries := make([]ordering.Entry, 0, len(entries))
		for _, entry := range entries {
			column, err := FindColumn(tx, entry.ID)
			if err != nil {
				return err
			}
			if entry.BoardID != "" && entry.BoardID != column.BoardID {
				return ErrBoardMismatch
			}
			if _, seen := seenBoards[column.BoardID]; !seen {
				seenBoards[column.BoardID] = struct{}{}
				boardIDs = append(boardIDs, column.BoardID)
			}
			orderingEntries = append(orderingEntries, ordering.Entry{ID: entry.ID, ContainerID: column.BoardID, Position: entry.Position})
		}
		sort.Strings(boardIDs)

		current := make(map[string][]ordering.Item, len(boardIDs))
		for _, boardID := range boardIDs {
			if _, err := boards.RequireAccessTx(tx, boardID, userID); err != nil {
				if errors.Is(err, boards.ErrBoardNotFound) {
					return ErrColumnNotFound
				}
				return err
			}
			if err := boards.LockBoard(tx, boardID); err != nil {
				return err
			}
			siblings, err := s.siblings(tx, boardID, opUpdatePositions)
			if err != nil {
				return err
			}
			current[boardID] = siblings
		}

		assignments, err := ordering.Rebalance(orderingEntries, current)
		if err != nil {
			return err
		}
		now := s.clock().UTC()
		for _, assignment := range assignments {
			if err := s.writePosition(tx, assignment.ID, assignment.Position, now, opUpdatePositions); err != nil {
				return err
			}
		}

		if err := tx.Where("board_id IN ?", boardIDs).
			Order("board_id ASC, position ASC").
			Find(&updated).Error; err != nil {
			s.logError(opUpdatePositions, "reload_failed", err)
			return apperrors.Internal(opUpdatePositions, "reload_failed", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) siblings(tx *gorm.DB, boardID, operation string) ([]ordering.Item, error) {
	var columns []Column
	if err := tx.Select("id", "position").Where("board_id = ?", boardID).Find(&columns).Error; err != nil {
		s.logError(operation, "siblings_select_failed", err, zap.String("board_id", boardID))
		return nil, apperrors.Internal(operation, "siblings_select_failed", err)
	}
	items := make([]ordering.Item, 0, len(columns))
	for _, column := range columns {
		items = append(items, ordering.Item{ID: column.ID, Position: column.Position})
	}
	return items, nil
}

func (s *Service) writePosition(tx *gorm.DB, columnID string, position float64, now time.Time, operation string) error {
	if err := tx.Model(&Column{}).Where("id = ?", columnID).
		Updates(map[string]interface{}{"position": position, "updated_at": now}).Error; err != nil {
		s.logError(operation, "position_update_failed", err, zap.String("column_id", columnID))
		return apperrors.Internal(operation, "position_update_failed", err)
	}
	return nil
}

func normalizeTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" || len(title) > maxTitleLength {
		return "", ErrInvalidTitle
	}
	return title, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	if s.logger == nil {
		return
	}
	base := []zap.Field{zap.String("operation", operation), zap.String("reason", reason), zap.Error(err)}
	s.logger.Error("column service failure", append(base, fields...)...)
}

// Package tasks manages tasks, their order inside a column and moves between columns.
package tasks

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
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/columns"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/ids"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/ordering"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrTaskNotFound     = apperrors.NotFound("task_not_found", "Task not found")
	ErrInvalidTitle     = apperrors.BadRequest("invalid_title", "Title is required")
	ErrInvalidPriority  = apperrors.BadRequest("invalid_priority", "Priority must be LOW, MEDIUM, HIGH or URGENT")
	ErrInvalidAssignee  = apperrors.BadRequest("invalid_assignee", "Assignee must be a participant of the board")
	ErrCrossBoardMove   = apperrors.BadRequest("cross_board_move", "Tasks can only move between columns of the same board")
	ErrEmptyReorder     = apperrors.BadRequest("empty_reorder", "At least one position entry is required")
	ErrTargetColumnGone = apperrors.NotFound("target_column_not_found", "Target column not found")
)

const (
	opCreate          = "tasks.create"
	opList            = "tasks.list"
	opUpdate          = "tasks.update"
	opDelete          = "tasks.delete"
	opMove            = "tasks.move"
	opUpdatePositions = "tasks.update_positions"
	opSearch          = "tasks.search"
	opDue             = "tasks.due"
	opCascade         = "tasks.cascade"

	maxTitleLength     = 255
	defaultSearchLimit = 20
)

type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider ids.Provider
	Clock      func() time.Time
	Logger     *zap.Logger
	Activity   activity.Recorder
	Notifier   notifications.Notifier
}

// Service manages tasks.
type Service struct {
	db         *gorm.DB
	idProvider ids.Provider
	clock      func() time.Time
	logger     *zap.Logger
	activity   activity.Recorder
	notifier   notifications.Notifier
}

// CreateInput carries the fields accepted when creating a task.
type CreateInput struct {
	ColumnID    string
	Title       string
	Description string
	Priority    string
	Tags        []string
	Deadline    *time.Time
	AssigneeID  string
}

// UpdateInput carries optional task fields; nil leaves a field unchanged.
type UpdateInput struct {
	Title       *string
	Description *string
	Priority    *string
	Tags        *[]string
	Deadline    *time.Time
	// ClearDeadline removes the deadline; it wins over Deadline.
	ClearDeadline bool
	IsCompleted   *bool
	// AssigneeID set to an empty string unassigns the task.
	AssigneeID *string
}

// MoveInput places a task in TargetColumnID (defaulting to its current column) after PrevID
// and/or before NextID.
type MoveInput struct {
	TargetColumnID string
	PrevID         string
	NextID         string
}

// PositionEntry is one {id, columnId, position} triple of a bulk reorder.
type PositionEntry struct {
	ID       string
	ColumnID string
	Position float64
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("tasks: database connection required")
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
		notifier:   cfg.Notifier,
	}, nil
}

func findTask(db *gorm.DB, taskID string) (Task, error) {
	var task Task
	err := db.Where("id = ?", taskID).Take(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Task{}, ErrTaskNotFound
	}
	if err != nil {
		return Task{}, apperrors.Internal("tasks.find", "select_failed", err)
	}
	return task, nil
}

// requireTaskAccess loads the task and its column and checks the caller sees the board.
func requireTaskAccess(db *gorm.DB, taskID, userID string) (Task, columns.Column, error) {
	task, err := findTask(db, taskID)
	if err != nil {
		return Task{}, columns.Column{}, err
	}
	column, _, err := columns.RequireColumnAccess(db, task.ColumnID, userID)
	if errors.Is(err, columns.ErrColumnNotFound) {
		return Task{}, columns.Column{}, ErrTaskNotFound
	}
	if err != nil {
		return Task{}, columns.Column{}, err
	}
	return task, column, nil
}

func requireParticipant(db *gorm.DB, boardID, userID string) error {
	_, ok, err := boards.LoadAccess(db, boardID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidAssignee
	}
	return nil
}

// Create appends a task at the bottom of the column.
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (Task, error) {
	title, err := normalizeTitle(input.Title)
	if err != nil {
		return Task{}, err
	}
	priority, ok := ParsePriority(input.Priority)
	if !ok {
		return Task{}, ErrInvalidPriority
	}
	assigneeID := strings.TrimSpace(input.AssigneeID)

	var (
		task    Task
		boardID string
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		column, _, err := columns.RequireColumnAccess(tx, input.ColumnID, userID)
		if err != nil {
			return err
		}
		boardID = column.BoardID
		if assigneeID != "" {
			if err := requireParticipant(tx, column.BoardID, assigneeID); err != nil {
				return err
			}
		}
		if err := boards.LockBoard(tx, column.BoardID); err != nil {
			return err
		}

		var maxPosition sql.NullFloat64
		if err := tx.Model(&Task{}).
			Where("column_id = ?", column.ID).
			Select("MAX(position)").
			Row().
			Scan(&maxPosition); err != nil {
			s.logError(opCreate, "max_position_failed", err, zap.String("column_id", column.ID))
			return apperrors.Internal(opCreate, "max_position_failed", err)
		}

		id, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opCreate, "id_generation_failed", err)
			return apperrors.Internal(opCreate, "id_generation_failed", err)
		}
		now := s.clock().UTC()
		creator := userID
		task = Task{
			ID:          id,
			ColumnID:    column.ID,
			Title:       title,
			Description: strings.TrimSpace(input.Description),
			Position:    ordering.NextAppendPositionFrom(maxPosition),
			Priority:    priority,
			Tags:        normalizeTags(input.Tags),
			Deadline:    utcPointer(input.Deadline),
			UserID:      &creator,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if assigneeID != "" {
			task.AssigneeID = &assigneeID
		}
		if err := tx.Create(&task).Error; err != nil {
			s.logError(opCreate, "insert_failed", err, zap.String("column_id", column.ID))
			return apperrors.Internal(opCreate, "insert_failed", err)
		}
		return nil
	})
	if err != nil {
		return Task{}, err
	}

	s.activity.Record(ctx, userID, activity.MetricTasksCreated)
	if assigneeID != "" && assigneeID != userID {
		s.notifyAssigned(ctx, task, boardID)
	}
	return task, nil
}

// Get returns a task visible to the user.
func (s *Service) Get(ctx context.Context, taskID, userID string) (Task, error) {
	task, _, err := requireTaskAccess(s.db.WithContext(ctx), taskID, userID)
	return task, err
}

// BoardIDOf returns the board a visible task belongs to.
func (s *Service) BoardIDOf(ctx context.Context, taskID, userID string) (string, error) {
	_, column, err := requireTaskAccess(s.db.WithContext(ctx), taskID, userID)
	if err != nil {
		return "", err
	}
	return column.BoardID, nil
}

// ListByColumn returns the column's tasks top to bottom.
func (s *Service) ListByColumn(ctx context.Context, columnID, userID string) ([]Task, error) {
	db := s.db.WithContext(ctx)
	if _, _, err := columns.RequireColumnAccess(db, columnID, userID); err != nil {
		return nil, err
	}
	var tasks []Task
	if err := db.Where("column_id = ?", columnID).Order("position ASC, created_at ASC").Find(&tasks).Error; err != nil {
		s.logError(opList, "select_failed", err, zap.String("column_id", columnID))
		return nil, apperrors.Internal(opList, "select_failed", err)
	}
	return tasks, nil
}

// Update edits task fields. Completing a task stamps CompletedAt and counts toward the
// completing user's statistics.
func (s *Service) Update(ctx context.Context, taskID, userID string, input UpdateInput) (Task, error) {
	var (
		task          Task
		boardID       string
		completed     bool
		newAssigneeID string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var (
			column columns.Column
			err    error
		)
		task, column, err = requireTaskAccess(tx, taskID, userID)
		if err != nil {
			return err
		}
		boardID = column.BoardID

		now := s.clock().UTC()
		updates := map[string]interface{}{"updated_at": now}
		if input.Title != nil {
			title, err := normalizeTitle(*input.Title)
			if err != nil {
				return err
			}
			updates["title"] = title
			task.Title = title
		}
		if input.Description != nil {
			description := strings.TrimSpace(*input.Description)
			updates["description"] = description
			task.Description = description
		}
		if input.Priority != nil {
			priority, ok := ParsePriority(*input.Priority)
			if !ok || *input.Priority == "" {
				return ErrInvalidPriority
			}
			updates["priority"] = priority
			task.Priority = priority
		}
		if input.Tags != nil {
			tags := normalizeTags(*input.Tags)
			updates["tags"] = tags
			task.Tags = tags
		}
		switch {
		case input.ClearDeadline:
			updates["deadline"] = nil
			task.Deadline = nil
		case input.Deadline != nil:
			deadline := input.Deadline.UTC()
			updates["deadline"] = deadline
			task.Deadline = &deadline
		}
		if input.IsCompleted != nil && *input.IsCompleted != task.IsCompleted {
			updates["is_completed"] = *input.IsCompleted
			task.IsCompleted = *input.IsCompleted
			if *input.IsCompleted {
				updates["completed_at"] = now
				task.CompletedAt = &now
				completed = true
			} else {
				updates["completed_at"] = nil
				task.CompletedAt = nil
			}
		}
		if input.AssigneeID != nil {
			assigneeID := strings.TrimSpace(*input.AssigneeID)
			if assigneeID == "" {
				updates["assignee_id"] = nil
				task.AssigneeID = nil
			} else {
				if err := requireParticipant(tx, column.BoardID, assigneeID); err != nil {
					return err
				}
				if task.AssigneeID == nil || *task.AssigneeID != assigneeID {
					newAssigneeID = assigneeID
				}
				updates["assignee_id"] = assigneeID
				task.AssigneeID = &assigneeID
			}
		}

		if err := tx.Model(&Task{}).Where("id = ?", taskID).Updates(updates).Error; err != nil {
			s.logError(opUpdate, "update_failed", err, zap.String("task_id", taskID))
			return apperrors.Internal(opUpdate, "update_failed", err)
		}
		task.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Task{}, err
	}

	if completed {
		s.activity.Record(ctx, userID, activity.MetricTasksCompleted)
	}
	if newAssigneeID != "" && newAssigneeID != userID {
		s.notifyAssigned(ctx, task, boardID)
	}
	return task, nil
}

// Delete removes the task and returns it as it was.
func (s *Service) Delete(ctx context.Context, taskID, userID string) (Task, string, error) {
	var (
		task    Task
		boardID string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var (
			column columns.Column
			err    error
		)
		task, column, err = requireTaskAccess(tx, taskID, userID)
		if err != nil {
			return err
		}
		boardID = column.BoardID
		if err := tx.Where("id = ?", taskID).Delete(&Task{}).Error; err != nil {
			s.logError(opDelete, "delete_failed", err, zap.String("task_id", taskID))
			return apperrors.Internal(opDelete, "delete_failed", err)
		}
		return nil
	})
	if err != nil {
		return Task{}, "", err
	}
	return task, boardID, nil
}

// DeleteColumnData removes the tasks of the given columns inside the caller's transaction.
func (s *Service) DeleteColumnData(tx *gorm.DB, columnIDs []string) error {
	if len(columnIDs) == 0 {
		return nil
	}
	if err := tx.Where("column_id IN ?", columnIDs).Delete(&Task{}).Error; err != nil {
		s.logError(opCascade, "delete_failed", err, zap.Strings("column_ids", columnIDs))
		return apperrors.Internal(opCascade, "delete_failed", err)
	}
	return nil
}

// Move is a cross-container move: the task leaves its column's order and is placed into the
// target column relative to the given neighbors. Both columns must share a board.
func (s *Service) Move(ctx context.Context, taskID, userID string, input MoveInput) (Task, string, error) {
	var (
		task    Task
		boardID string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var (
			source columns.Column
			err    error
		)
		task, source, err = requireTaskAccess(tx, taskID, userID)
		if err != nil {
			return err
		}
		boardID = source.BoardID

		target := source
		if targetID := strings.TrimSpace(input.TargetColumnID); targetID != "" && targetID != source.ID {
			target, err = columns.FindColumn(tx, targetID)
			if errors.Is(err, columns.ErrColumnNotFound) {
				return ErrTargetColumnGone
			}
			if err != nil {
				return err
			}
			if target.BoardID != source.BoardID {
				return ErrCrossBoardMove
			}
		}
		if err := boards.LockBoard(tx, boardID); err != nil {
			return err
		}

		siblings, err := s.siblings(tx, target.ID, opMove)
		if err != nil {
			return err
		}
		placement, err := ordering.Place(siblings, taskID, input.PrevID, input.NextID)
		if err != nil {
			return err
		}

		now := s.clock().UTC()
		if placement.Normalized != nil {
			s.logger.Debug("task positions normalized",
				zap.String("column_id", target.ID),
				zap.Int("tasks", len(placement.Normalized)))
			for _, item := range placement.Normalized {
				if err := s.writePosition(tx, item.ID, target.ID, item.Position, now, opMove); err != nil {
					return err
				}
			}
		}
		if err := s.writePosition(tx, taskID, target.ID, placement.Position, now, opMove); err != nil {
			return err
		}
		task.ColumnID = target.ID
		task.Position = placement.Position
		task.UpdatedAt = now
		return nil
	})
	if err != nil {
		return Task{}, "", err
	}
	return task, boardID, nil
}

// UpdatePositions applies a bulk reorder of {id, columnId, position} triples all-or-nothing.
// Tasks may change columns within their board. It returns the touched board ids.
func (s *Service) UpdatePositions(ctx context.Context, userID string, entries []PositionEntry) ([]string, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyReorder
	}

	var boardIDs []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		columnCache := make(map[string]columns.Column)
		loadColumn := func(columnID string) (columns.Column, error) {
			if column, ok := columnCache[columnID]; ok {
				return column, nil
			}
			column, _, err := columns.RequireColumnAccess(tx, columnID, userID)
			if err != nil {
				return columns.Column{}, err
			}
			columnCache[columnID] = column
			return column, nil
		}

		seenBoards := make(map[string]struct{})
		targetColumns := make([]string, 0)
		seenTargets := make(map[string]struct{})
		orderingEntries := make([]ordering.Entry, 0, len(entries))
		for _, entry := range entries {
			task, err := findTask(tx, entry.ID)
			if err != nil {
				return err
			}
			source, err := loadColumn(task.ColumnID)
			if errors.Is(err, columns.ErrColumnNotFound) {
				return ErrTaskNotFound
			}
			if err != nil {
				return err
			}
			targetID := entry.ColumnID
			if targetID == "" {
				targetID = task.ColumnID
			}
			target, err := loadColumn(targetID)
			if errors.Is(err, columns.ErrColumnNotFound) {
				return ErrTargetColumnGone
			}
			if err != nil {
				return err
			}
			if target.BoardID != source.BoardID {
				return ErrCrossBoardMove
			}
			if _, ok := seenBoards[target.BoardID]; !ok {
				seenBoards[target.BoardID] = struct{}{}
				boardIDs = append(boardIDs, target.BoardID)
			}
			if _, ok := seenTargets[targetID]; !ok {
				seenTargets[targetID] = struct{}{}
				targetColumns = append(targetColumns, targetID)
			}
			orderingEntries = append(orderingEntries, ordering.Entry{ID: entry.ID, ContainerID: targetID, Position: entry.Position})
		}
		sort.Strings(boardIDs)
		for _, boardID := range boardIDs {
			if err := boards.LockBoard(tx, boardID); err != nil {
				return err
			}
		}

		current := make(map[string][]ordering.Item, len(targetColumns))
		for _, columnID := range targetColumns {
			siblings, err := s.siblings(tx, columnID, opUpdatePositions)
			if err != nil {
				return err
			}
			current[columnID] = siblings
		}

		assignments, err := ordering.Rebalance(orderingEntries, current)
		if err != nil {
			return err
		}
		now := s.clock().UTC()
		for _, assignment := range assignments {
			if err := s.writePosition(tx, assignment.ID, assignment.ContainerID, assignment.Position, now, opUpdatePositions); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return boardIDs, nil
}

// Search matches task titles and descriptions across the boards the user can see.
func (s *Service) Search(ctx context.Context, userID, query string, limit int) ([]Task, error) {
	pattern := boards.LikePattern(query)
	if pattern == "" {
		return []Task{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	db := s.db.WithContext(ctx)
	visibleColumns := db.Session(&gorm.Session{NewDB: true}).Model(&columns.Column{}).Select("id").
		Where("board_id IN (?)", boards.AccessibleBoardIDs(db, userID))

	var tasks []Task
	if err := db.Where("column_id IN (?)", visibleColumns).
		Where("LOWER(title) LIKE ? ESCAPE '"+boards.LikeEscape+"' OR LOWER(description) LIKE ? ESCAPE '"+boards.LikeEscape+"'", pattern, pattern).
		Order("updated_at DESC").
		Limit(limit).
		Find(&tasks).Error; err != nil {
		s.logError(opSearch, "select_failed", err, zap.String("user_id", userID))
		return nil, apperrors.Internal(opSearch, "select_failed", err)
	}
	return tasks, nil
}

// DueBetween lists incomplete tasks whose deadline falls in [from, to).
func (s *Service) DueBetween(ctx context.Context, from, to time.Time) ([]DueTask, error) {
	return s.due(ctx, "tasks.deadline >= ? AND tasks.deadline < ?", from.UTC(), to.UTC())
}

// Overdue lists incomplete tasks whose deadline passed before now.
func (s *Service) Overdue(ctx context.Context, now time.Time) ([]DueTask, error) {
	return s.due(ctx, "tasks.deadline < ?", now.UTC())
}

func (s *Service) due(ctx context.Context, condition string, args ...interface{}) ([]DueTask, error) {
	var due []DueTask
	if err := s.db.WithContext(ctx).
		Table("tasks").
		Select("tasks.*, columns.board_id AS board_id").
		Joins("JOIN columns ON columns.id = tasks.column_id").
		Where("tasks.is_completed = ? AND tasks.deadline IS NOT NULL", false).
		Where(condition, args...).
		Order("tasks.deadline ASC").
		Scan(&due).Error; err != nil {
		s.logError(opDue, "select_failed", err)
		return nil, apperrors.Internal(opDue, "select_failed", err)
	}
	return due, nil
}

func (s *Service) siblings(tx *gorm.DB, columnID, operation string) ([]ordering.Item, error) {
	var tasks []Task
	if err := tx.Select("id", "position").Where("column_id = ?", columnID).Find(&tasks).Error; err != nil {
		s.logError(operation, "siblings_select_failed", err, zap.String("column_id", columnID))
		return nil, apperrors.Internal(operation, "siblings_select_failed", err)
	}
	items := make([]ordering.Item, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, ordering.Item{ID: task.ID, Position: task.Position})
	}
	return items, nil
}

func (s *Service) writePosition(tx *gorm.DB, taskID, columnID string, position float64, now time.Time, operation string) error {
	if err := tx.Model(&Task{}).Where("id = ?", taskID).
		Updates(map[string]interface{}{"column_id": columnID, "position": position, "updated_at": now}).Error; err != nil {
		s.logError(operation, "position_update_failed", err, zap.String("task_id", taskID))
		return apperrors.Internal(operation, "position_update_failed", err)
	}
	return nil
}

func (s *Service) notifyAssigned(ctx context.Context, task Task, boardID string) {
	if s.notifier == nil || task.AssigneeID == nil {
		return
	}
	err := s.notifier.Notify(ctx, notifications.Input{
		UserID:  *task.AssigneeID,
		Type:    notifications.TypeTaskAssigned,
		Title:   "Task assigned",
		Message: fmt.Sprintf("You were assigned to %q", task.Title),
		BoardID: boardID,
		TaskID:  task.ID,
	})
	if err != nil {
		s.logger.Warn("assignment notification failed", zap.String("task_id", task.ID), zap.Error(err))
	}
}

func normalizeTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" || len(title) > maxTitleLength {
		return "", ErrInvalidTitle
	}
	return title, nil
}

func normalizeTags(tags []string) datatypes.JSONSlice[string] {
	result := make(datatypes.JSONSlice[string], 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	if s.logger == nil {
		return
	}
	base := []zap.Field{zap.String("operation", operation), zap.String("reason", reason), zap.Error(err)}
	s.logger.Error("task service failure", append(base, fields...)...)
}

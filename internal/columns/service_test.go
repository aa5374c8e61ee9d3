package columns

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/boards"
	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/ordering"
	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type counterIDs struct {
	next int
}

func (p *counterIDs) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("col-%02d", p.next), nil
}

type contentSpy struct {
	columnIDs [][]string
}

func (c *contentSpy) DeleteColumnData(_ *gorm.DB, columnIDs []string) error {
	c.columnIDs = append(c.columnIDs, columnIDs)
	return nil
}

type fixture struct {
	db      *gorm.DB
	service *Service
	content *contentSpy
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "columns.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&boards.Board{}, &boards.Member{}, &Column{}))

	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&boards.Board{ID: "board-1", Title: "One", OwnerUserID: "owner", CreatedAt: now, UpdatedAt: now}).Error)
	require.NoError(t, db.Create(&boards.Board{ID: "board-2", Title: "Two", OwnerUserID: "owner", CreatedAt: now, UpdatedAt: now}).Error)
	require.NoError(t, db.Create(&boards.Member{ID: "m1", BoardID: "board-1", UserID: "member", Role: boards.RoleUser, AddedBy: "owner", AddedAt: now}).Error)

	content := &contentSpy{}
	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: &counterIDs{},
		Content:    content,
		Clock:      func() time.Time { return now },
	})
	require.NoError(t, err)
	return fixture{db: db, service: service, content: content}
}

func seedColumns(t *testing.T, db *gorm.DB, boardID string, positions ...float64) []string {
	t.Helper()
	ids := make([]string, 0, len(positions))
	for index, position := range positions {
		id := fmt.Sprintf("%s-seed-%d", boardID, index)
		require.NoError(t, db.Create(&Column{ID: id, BoardID: boardID, Title: id, Position: position}).Error)
		ids = append(ids, id)
	}
	return ids
}

func orderedIDs(t *testing.T, db *gorm.DB, boardID string) ([]string, []float64) {
	t.Helper()
	var columns []Column
	require.NoError(t, db.Where("board_id = ?", boardID).Order("position ASC").Find(&columns).Error)
	ids := make([]string, 0, len(columns))
	positions := make([]float64, 0, len(columns))
	for _, column := range columns {
		ids = append(ids, column.ID)
		positions = append(positions, column.Position)
	}
	return ids, positions
}

func TestCreateAppendsWithMaxPlusOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Create(ctx, "member", CreateInput{BoardID: "board-1", Title: "Todo"})
	require.NoError(t, err)
	require.Equal(t, float64(0), first.Position)

	seedColumns(t, f.db, "board-1", 1100)
	next, err := f.service.Create(ctx, "owner", CreateInput{BoardID: "board-1", Title: "Done"})
	require.NoError(t, err)
	require.Equal(t, float64(1101), next.Position)

	_, err = f.service.Create(ctx, "stranger", CreateInput{BoardID: "board-1", Title: "Nope"})
	require.True(t, errors.Is(err, boards.ErrBoardNotFound))

	_, err = f.service.Create(ctx, "owner", CreateInput{BoardID: "board-1", Title: " "})
	require.True(t, errors.Is(err, ErrInvalidTitle))
}

func TestMoveBetweenNeighborsUsesMidpoint(t *testing.T) {
	f := newFixture(t)
	ids := seedColumns(t, f.db, "board-1", 1000, 1100, 1200, 5000)
	moving := ids[3]

	column, err := f.service.Move(context.Background(), moving, "member", ids[0], ids[1])
	require.NoError(t, err)
	require.Equal(t, 1050.0, column.Position)

	order, positions := orderedIDs(t, f.db, "board-1")
	require.Equal(t, []string{ids[0], moving, ids[1], ids[2]}, order)
	require.Equal(t, []float64{1000, 1050, 1100, 1200}, positions)
}

func TestMoveNormalizesCollidingNeighbors(t *testing.T) {
	f := newFixture(t)
	ids := seedColumns(t, f.db, "board-1", 5, 5.0000001, 9)

	column, err := f.service.Move(context.Background(), ids[2], "owner", ids[0], ids[1])
	require.NoError(t, err)
	require.Equal(t, 1050.0, column.Position)

	order, positions := orderedIDs(t, f.db, "board-1")
	require.Equal(t, []string{ids[0], ids[2], ids[1]}, order)
	require.Equal(t, []float64{1000, 1050, 1100}, positions)
}

func TestMoveRejectsNeighborOutsideBoard(t *testing.T) {
	f := newFixture(t)
	ids := seedColumns(t, f.db, "board-1", 1000, 1100)
	foreign := seedColumns(t, f.db, "board-2", 1000)

	_, err := f.service.Move(context.Background(), ids[0], "owner", foreign[0], "")
	require.True(t, errors.Is(err, ordering.ErrNeighborNotFound))

	_, err = f.service.Move(context.Background(), ids[0], "stranger", "", ids[1])
	require.True(t, errors.Is(err, ErrColumnNotFound))

	_, positions := orderedIDs(t, f.db, "board-1")
	require.Equal(t, []float64{1000, 1100}, positions)
}

func TestUpdatePositionsRebalancesAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ids := seedColumns(t, f.db, "board-1", 1000, 1050, 1100)
	entries := []PositionEntry{
		{ID: ids[2], BoardID: "board-1", Position: 0.5},
		{ID: ids[0], BoardID: "board-1", Position: 1.5},
		{ID: ids[1], BoardID: "board-1", Position: 2.5},
	}

	updated, err := f.service.UpdatePositions(context.Background(), "member", entries)
	require.NoError(t, err)
	require.Len(t, updated, 3)

	order, positions := orderedIDs(t, f.db, "board-1")
	require.Equal(t, []string{ids[2], ids[0], ids[1]}, order)
	require.Equal(t, []float64{0, 1, 2}, positions)

	_, err = f.service.UpdatePositions(context.Background(), "member", entries)
	require.NoError(t, err)
	again, againPositions := orderedIDs(t, f.db, "board-1")
	require.Equal(t, order, again)
	require.Equal(t, positions, againPositions)
}

func TestUpdatePositionsIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ids := seedColumns(t, f.db, "board-1", 1000, 1100)

	_, err := f.service.UpdatePositions(context.Background(), "owner", []PositionEntry{
		{ID: ids[1], BoardID: "board-1", Position: 0},
		{ID: "missing", BoardID: "board-1", Position: 1},
	})
	require.True(t, errors.Is(err, ErrColumnNotFound))

	_, err = f.service.UpdatePositions(context.Background(), "owner", []PositionEntry{
		{ID: ids[1], BoardID: "board-2", Position: 0},
	})
	require.True(t, errors.Is(err, ErrBoardMismatch))

	_, positions := orderedIDs(t, f.db, "board-1")
	require.Equal(t, []float64{1000, 1100}, positions)
}

func TestDeleteCascadesContent(t *testing.T) {
	f := newFixture(t)
	ids := seedColumns(t, f.db, "board-1", 0, 1)

	deleted, err := f.service.Delete(context.Background(), ids[0], "member")
	require.NoError(t, err)
	require.Equal(t, "board-1", deleted.BoardID)
	require.Equal(t, [][]string{{ids[0]}}, f.content.columnIDs)

	require.NoError(t, f.service.DeleteBoardData(f.db, "board-1"))
	order, _ := orderedIDs(t, f.db, "board-1")
	require.Empty(t, order)
}

func TestUpdateRenamesColumn(t *testing.T) {
	f := newFixture(t)
	ids := seedColumns(t, f.db, "board-1", 0)

	column, err := f.service.Update(context.Background(), ids[0], "owner", "  In Review ")
	require.NoError(t, err)
	require.Equal(t, "In Review", column.Title)

	listed, err := f.service.List(context.Background(), "board-1", "member")
	require.NoError(t, err)
	require.Equal(t, "In Review", listed[0].Title)
}

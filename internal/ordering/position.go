// Package ordering assigns sparse sort keys to sibling entities (columns within a board,
// tasks within a column) and rebalances them when precision runs out.
package ordering

import (
	"database/sql"
	"sort"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/apperrors"
)

const (
	// BasePosition is the key given to the first item of an empty container.
	BasePosition = 1000.0
	// PositionGap separates head/tail inserts and normalized keys.
	PositionGap = 100.0
	// MinPositionDistance is the smallest neighbor distance a midpoint may split.
	MinPositionDistance = 1e-6
)

var (
	// ErrNeighborNotFound reports a prev/next reference outside the target container.
	ErrNeighborNotFound = apperrors.NotFound("neighbor_not_found", "Referenced neighbor does not exist in the target container")
	// ErrInvalidNeighbors reports self-referencing or duplicated neighbor references.
	ErrInvalidNeighbors = apperrors.BadRequest("invalid_neighbors", "Neighbor references are invalid")
)

// Item is one member of a sibling set.
type Item struct {
	ID       string
	Position float64
}

// Placement is the outcome of positioning one item among its siblings.
type Placement struct {
	Position float64
	// Normalized holds rewritten sibling keys when the set had to be re-spaced first.
	Normalized []Item
}

// Sorted returns a copy of items ordered by position, ties broken by id.
func Sorted(items []Item) []Item {
	ordered := make([]Item, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Position == ordered[j].Position {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].Position < ordered[j].Position
	})
	return ordered
}

// Normalize re-spaces items at BasePosition, BasePosition+PositionGap, ... in their current order.
func Normalize(items []Item) []Item {
	ordered := Sorted(items)
	for index := range ordered {
		ordered[index].Position = BasePosition + float64(index)*PositionGap
	}
	return ordered
}

// NextAppendPosition implements the creation-time scheme: max sibling key plus one, or zero.
func NextAppendPosition(maxPosition *float64) float64 {
	if maxPosition == nil {
		return 0
	}
	return *maxPosition + 1
}

// NextAppendPositionFrom adapts a MAX(position) aggregate, which is NULL for an empty container.
func NextAppendPositionFrom(maxPosition sql.NullFloat64) float64 {
	if !maxPosition.Valid {
		return NextAppendPosition(nil)
	}
	return NextAppendPosition(&maxPosition.Float64)
}

// Place computes the key for movingID inserted after prevID and/or before nextID.
// siblings is the container's current set read inside the caller's transaction; the moving
// item is ignored if present. When only one neighbor is given the other side is taken from
// the fresh read, so stale client neighbors never produce duplicate keys.
func Place(siblings []Item, movingID, prevID, nextID string) (Placement, error) {
	if movingID != "" && (prevID == movingID || nextID == movingID) {
		return Placement{}, ErrInvalidNeighbors
	}
	if prevID != "" && prevID == nextID {
		return Placement{}, ErrInvalidNeighbors
	}

	ordered := make([]Item, 0, len(siblings))
	for _, sibling := range Sorted(siblings) {
		if sibling.ID == movingID {
			continue
		}
		ordered = append(ordered, sibling)
	}

	prevIndex, nextIndex := -1, -1
	if prevID != "" {
		if prevIndex = indexOf(ordered, prevID); prevIndex < 0 {
			return Placement{}, ErrNeighborNotFound
		}
	}
	if nextID != "" {
		if nextIndex = indexOf(ordered, nextID); nextIndex < 0 {
			return Placement{}, ErrNeighborNotFound
		}
	}

	lower, upper := -1, -1
	switch {
	case prevIndex >= 0:
		lower = prevIndex
		if prevIndex+1 < len(ordered) {
			upper = prevIndex + 1
		}
	case nextIndex >= 0:
		upper = nextIndex
		lower = nextIndex - 1
	case len(ordered) > 0:
		lower = len(ordered) - 1
	}

	switch {
	case lower < 0 && upper < 0:
		return Placement{Position: BasePosition}, nil
	case upper < 0:
		return Placement{Position: ordered[lower].Position + PositionGap}, nil
	case lower < 0:
		return Placement{Position: ordered[upper].Position - PositionGap}, nil
	}

	if position, ok := midpoint(ordered[lower].Position, ordered[upper].Position); ok {
		return Placement{Position: position}, nil
	}

	normalized := Normalize(ordered)
	position, _ := midpoint(normalized[lower].Position, normalized[upper].Position)
	return Placement{Position: position, Normalized: normalized}, nil
}

func midpoint(lower, upper float64) (float64, bool) {
	if upper-lower < MinPositionDistance {
		return 0, false
	}
	middle := (lower + upper) / 2
	if middle <= lower || middle >= upper {
		return 0, false
	}
	return middle, true
}

func indexOf(items []Item, id string) int {
	for index, item := range items {
		if item.ID == id {
			return index
		}
	}
	return -1
}

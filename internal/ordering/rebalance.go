package ordering

import (
	"sort"

	"github.com/MarcoPoloResearchLab/taskboard/backend/internal/apperrors"
)

// ErrDuplicateEntry reports the same item submitted twice in one bulk reorder.
var ErrDuplicateEntry = apperrors.BadRequest("duplicate_position_entry", "Each item may appear only once in a reorder request")

// Entry is a client-submitted {id, container, position} triple.
type Entry struct {
	ID          string
	ContainerID string
	Position    float64
}

// Assignment is a dense key to persist for one item.
type Assignment struct {
	ID          string
	ContainerID string
	Position    float64
}

// Rebalance groups entries by container, orders each group by the submitted position and
// assigns dense indices 0..n-1. Siblings already stored in a touched container but absent
// from the request follow the submitted items in their stored order, so keys stay unique.
// current maps container id to the stored sibling set, read inside the caller's transaction.
func Rebalance(entries []Entry, current map[string][]Item) ([]Assignment, error) {
	submitted := make(map[string]struct{}, len(entries))
	groups := make(map[string][]Entry)
	containers := make([]string, 0)
	for _, entry := range entries {
		if _, seen := submitted[entry.ID]; seen {
			return nil, ErrDuplicateEntry
		}
		submitted[entry.ID] = struct{}{}
		if _, ok := groups[entry.ContainerID]; !ok {
			containers = append(containers, entry.ContainerID)
		}
		groups[entry.ContainerID] = append(groups[entry.ContainerID], entry)
	}
	sort.Strings(containers)

	assignments := make([]Assignment, 0, len(entries))
	for _, containerID := range containers {
		group := groups[containerID]
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Position == group[j].Position {
				return group[i].ID < group[j].ID
			}
			return group[i].Position < group[j].Position
		})

		index := 0
		for _, entry := range group {
			assignments = append(assignments, Assignment{ID: entry.ID, ContainerID: containerID, Position: float64(index)})
			index++
		}
		for _, sibling := range Sorted(current[containerID]) {
			if _, moved := submitted[sibling.ID]; moved {
				continue
			}
			assignments = append(assignments, Assignment{ID: sibling.ID, ContainerID: containerID, Position: float64(index)})
			index++
		}
	}
	return assignments, nil
}

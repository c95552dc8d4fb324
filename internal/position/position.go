// Package position computes dense 0-based orderings for siblings that share a
// parent (cards in a column, columns in a board). All functions are pure and
// never mutate their inputs.
package position

import (
	"errors"

	"github.com/google/uuid"
)

// ErrEntityNotFound is returned by Move when the entity is not among the source siblings.
var ErrEntityNotFound = errors.New("position: entity not found among siblings")

// Item is one positioned sibling.
type Item struct {
	ID       uuid.UUID
	ParentID uuid.UUID
	Position int
}

// Plan is the outcome of a move.
type Plan struct {
	// Entity is the moved item at its final placement.
	Entity Item
	// From is the parent the entity left.
	From uuid.UUID
	// Source is the renumbered remainder of the old parent. Nil for a same-parent move.
	Source []Item
	// Dest is the final ordering of the destination parent.
	Dest []Item
	// Changed holds every item whose parent or position differs from before, entity included.
	Changed []Item
}

// Clamp bounds target to [0, n].
func Clamp(target, n int) int {
	if target < 0 {
		return 0
	}
	if target > n {
		return n
	}
	return target
}

// Renumber assigns positions 0..n-1 in slice order.
func Renumber(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	for i := range out {
		out[i].Position = i
	}
	return out
}

// Insert places item at target (clamped) and renumbers the result.
func Insert(siblings []Item, item Item, target int) []Item {
	target = Clamp(target, len(siblings))
	out := make([]Item, 0, len(siblings)+1)
	out = append(out, siblings[:target]...)
	out = append(out, item)
	out = append(out, siblings[target:]...)
	return Renumber(out)
}

// Remove drops id from siblings and renumbers the remainder. ok is false when
// id is absent, in which case remaining is a renumbered copy of siblings.
func Remove(siblings []Item, id uuid.UUID) (remaining []Item, removed Item, ok bool) {
	remaining = make([]Item, 0, len(siblings))
	for _, it := range siblings {
		if it.ID == id && !ok {
			removed = it
			ok = true
			continue
		}
		remaining = append(remaining, it)
	}
	return Renumber(remaining), removed, ok
}

// Move relocates entityID from source into destParent at target. When
// destParent is the entity's current parent, dest is ignored and the move is
// computed within source alone.
func Move(source, dest []Item, entityID, destParent uuid.UUID, target int) (Plan, error) {
	remaining, moved, ok := Remove(source, entityID)
	if !ok {
		return Plan{}, ErrEntityNotFound
	}

	plan := Plan{From: moved.ParentID}
	moved.ParentID = destParent

	before := source
	if plan.From == destParent {
		plan.Dest = Insert(remaining, moved, target)
	} else {
		plan.Source = remaining
		plan.Dest = Insert(dest, moved, target)
		before = make([]Item, 0, len(source)+len(dest))
		before = append(before, source...)
		before = append(before, dest...)
	}

	for _, it := range plan.Dest {
		if it.ID == entityID {
			plan.Entity = it
			break
		}
	}

	after := make([]Item, 0, len(plan.Source)+len(plan.Dest))
	after = append(after, plan.Source...)
	after = append(after, plan.Dest...)
	plan.Changed = Changed(before, after)

	return plan, nil
}

// Changed returns the items of after that are new or whose parent or position
// differs from before, in after's order.
func Changed(before, after []Item) []Item {
	prev := make(map[uuid.UUID]Item, len(before))
	for _, it := range before {
		prev[it.ID] = it
	}
	var out []Item
	for _, it := range after {
		old, ok := prev[it.ID]
		if !ok || old.ParentID != it.ParentID || old.Position != it.Position {
			out = append(out, it)
		}
	}
	return out
}

// Dense reports whether items hold positions 0..n-1 in order.
func Dense(items []Item) bool {
	for i, it := range items {
		if it.Position != i {
			return false
		}
	}
	return true
}

package memory

import (
	"context"
	"sort"
	"time"

	"github.com/bloodchain/backend/internal/domain/inventory"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

type unitRepo struct {
	st *state
}

func (r *unitRepo) Create(_ context.Context, u *inventory.BloodUnit) error {
	if _, ok := r.st.units[u.UnitNumber]; ok {
		return shared.NewDomainError(shared.CodeConflict, "unit number already exists: "+u.UnitNumber)
	}
	for _, existing := range r.st.units {
		if existing.Serial == u.Serial {
			return shared.NewDomainError(shared.CodeConflict, "unit serial already exists")
		}
	}
	r.st.units[u.UnitNumber] = *u
	return nil
}

func (r *unitRepo) Save(_ context.Context, u *inventory.BloodUnit) error {
	if _, ok := r.st.units[u.UnitNumber]; !ok {
		return shared.NotFound("blood unit", u.UnitNumber)
	}
	r.st.units[u.UnitNumber] = *u
	return nil
}

func (r *unitRepo) FindByNumber(_ context.Context, unitNumber string) (*inventory.BloodUnit, error) {
	u, ok := r.st.units[unitNumber]
	if !ok {
		return nil, shared.NotFound("blood unit", unitNumber)
	}
	return &u, nil
}

func (r *unitRepo) ExistsByNumber(_ context.Context, unitNumber string) (bool, error) {
	_, ok := r.st.units[unitNumber]
	return ok, nil
}

func (r *unitRepo) NextSerial(_ context.Context) (int64, error) {
	var max int64
	for _, u := range r.st.units {
		if u.Serial > max {
			max = u.Serial
		}
	}
	return max + 1, nil
}

func (r *unitRepo) FindExpiredBefore(_ context.Context, day time.Time, statuses []inventory.UnitStatus) ([]inventory.BloodUnit, error) {
	var out []inventory.BloodUnit
	for _, u := range r.st.units {
		if u.ExpiryDate.Before(day) && containsStatus(statuses, u.Status) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out, nil
}

func (r *unitRepo) CountByStatus(_ context.Context) (map[inventory.UnitStatus]int64, error) {
	out := make(map[inventory.UnitStatus]int64)
	for _, u := range r.st.units {
		out[u.Status]++
	}
	return out, nil
}

type componentRepo struct {
	st *state
}

func (r *componentRepo) CreateBatch(_ context.Context, components []inventory.BloodComponent) error {
	for _, c := range components {
		if _, ok := r.st.components[c.ID]; ok {
			return shared.NewDomainError(shared.CodeConflict, "component already exists: "+c.ID)
		}
	}
	for _, c := range components {
		r.st.components[c.ID] = c
	}
	return nil
}

func (r *componentRepo) FindByID(_ context.Context, id string) (*inventory.BloodComponent, error) {
	c, ok := r.st.components[id]
	if !ok {
		return nil, shared.NotFound("blood component", id)
	}
	return &c, nil
}

func (r *componentRepo) FindByUnit(_ context.Context, unitNumber string) ([]inventory.BloodComponent, error) {
	var out []inventory.BloodComponent
	for _, c := range r.st.components {
		if c.BloodUnitID == unitNumber {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *componentRepo) available(componentType inventory.ComponentType, bloodGroup inventory.BloodGroup, day time.Time) []inventory.BloodComponent {
	var out []inventory.BloodComponent
	for _, c := range r.st.components {
		if c.Type == componentType && c.BloodGroup == bloodGroup &&
			c.Status == inventory.ComponentAvailable && c.ExpiryDate.After(day) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiryDate.Equal(out[j].ExpiryDate) {
			return out[i].ExpiryDate.Before(out[j].ExpiryDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *componentRepo) FindAvailable(_ context.Context, componentType inventory.ComponentType, bloodGroup inventory.BloodGroup, day time.Time, limit int) ([]inventory.BloodComponent, error) {
	out := r.available(componentType, bloodGroup, day)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *componentRepo) CountAvailable(_ context.Context, componentType inventory.ComponentType, bloodGroup inventory.BloodGroup, day time.Time) (int64, error) {
	return int64(len(r.available(componentType, bloodGroup, day))), nil
}

func (r *componentRepo) CountByType(_ context.Context, componentType inventory.ComponentType) (int64, error) {
	var n int64
	for _, c := range r.st.components {
		if c.Type == componentType {
			n++
		}
	}
	return n, nil
}

func (r *componentRepo) CompareAndSetStatus(_ context.Context, id string, from, to inventory.ComponentStatus, now time.Time) (bool, error) {
	c, ok := r.st.components[id]
	if !ok {
		return false, shared.NotFound("blood component", id)
	}
	if c.Status != from {
		return false, nil
	}
	c.Status = to
	c.UpdatedAt = now
	r.st.components[id] = c
	return true, nil
}

func (r *componentRepo) FindExpiredBefore(_ context.Context, day time.Time, statuses []inventory.ComponentStatus) ([]inventory.BloodComponent, error) {
	var out []inventory.BloodComponent
	for _, c := range r.st.components {
		if c.ExpiryDate.Before(day) && containsStatus(statuses, c.Status) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *componentRepo) SummarizeAvailable(_ context.Context, day time.Time) ([]inventory.StockLevel, error) {
	type key struct {
		t inventory.ComponentType
		g inventory.BloodGroup
	}
	levels := make(map[key]*inventory.StockLevel)
	for _, c := range r.st.components {
		if c.Status != inventory.ComponentAvailable || !c.ExpiryDate.After(day) {
			continue
		}
		k := key{c.Type, c.BloodGroup}
		l, ok := levels[k]
		if !ok {
			l = &inventory.StockLevel{ComponentType: c.Type, BloodGroup: c.BloodGroup, VolumeML: decimal.Zero}
			levels[k] = l
		}
		l.Count++
		l.VolumeML = l.VolumeML.Add(decimal.NewFromInt(int64(c.VolumeML)))
	}
	out := make([]inventory.StockLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ComponentType != out[j].ComponentType {
			return out[i].ComponentType < out[j].ComponentType
		}
		return out[i].BloodGroup < out[j].BloodGroup
	})
	return out, nil
}

func containsStatus[S comparable](statuses []S, s S) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

package memory

import (
	"context"
	"sort"

	"github.com/bloodchain/backend/internal/domain/request"
	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/google/uuid"
)

type requestRepo struct {
	st *state
}

func (r *requestRepo) Create(_ context.Context, req *request.BloodRequest) error {
	for _, existing := range r.st.requests {
		if existing.RequestNumber == req.RequestNumber {
			return shared.NewDomainError(shared.CodeConflict, "request number already exists: "+req.RequestNumber)
		}
	}
	r.st.requests[req.ID] = *req
	return nil
}

func (r *requestRepo) Save(_ context.Context, req *request.BloodRequest) error {
	if _, ok := r.st.requests[req.ID]; !ok {
		return shared.NotFound("blood request", req.ID.String())
	}
	r.st.requests[req.ID] = *req
	return nil
}

func (r *requestRepo) FindByID(_ context.Context, id uuid.UUID) (*request.BloodRequest, error) {
	req, ok := r.st.requests[id]
	if !ok {
		return nil, shared.NotFound("blood request", id.String())
	}
	return &req, nil
}

func (r *requestRepo) FindByNumber(_ context.Context, number string) (*request.BloodRequest, error) {
	for _, req := range r.st.requests {
		if req.RequestNumber == number {
			return &req, nil
		}
	}
	return nil, shared.NotFound("blood request", number)
}

func (r *requestRepo) ExistsByNumber(ctx context.Context, number string) (bool, error) {
	_, err := r.FindByNumber(ctx, number)
	return err == nil, nil
}

func (r *requestRepo) Count(_ context.Context) (int64, error) {
	return int64(len(r.st.requests)), nil
}

func (r *requestRepo) FindByStatus(_ context.Context, status request.Status) ([]request.BloodRequest, error) {
	var out []request.BloodRequest
	for _, req := range r.st.requests {
		if req.Status == status {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type assignmentRepo struct {
	st *state
}

func (r *assignmentRepo) Create(_ context.Context, a *request.Assignment) error {
	for _, existing := range r.st.assignments {
		if existing.ComponentID == a.ComponentID && existing.IsActive() {
			return shared.NewDomainError(shared.CodeConflict, "component already assigned: "+a.ComponentID)
		}
	}
	r.st.assignments[a.ID] = *a
	return nil
}

func (r *assignmentRepo) Save(_ context.Context, a *request.Assignment) error {
	if _, ok := r.st.assignments[a.ID]; !ok {
		return shared.NotFound("assignment", a.ID.String())
	}
	r.st.assignments[a.ID] = *a
	return nil
}

func (r *assignmentRepo) FindByRequest(_ context.Context, requestID uuid.UUID) ([]request.Assignment, error) {
	var out []request.Assignment
	for _, a := range r.st.assignments {
		if a.RequestID == requestID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AssignedAt.Equal(out[j].AssignedAt) {
			return out[i].AssignedAt.Before(out[j].AssignedAt)
		}
		return out[i].ComponentID < out[j].ComponentID
	})
	return out, nil
}

func (r *assignmentRepo) FindActiveByComponent(_ context.Context, componentID string) (*request.Assignment, error) {
	for _, a := range r.st.assignments {
		if a.ComponentID == componentID && a.IsActive() {
			return &a, nil
		}
	}
	return nil, shared.NotFound("active assignment for component", componentID)
}

type transfusionRepo struct {
	st *state
}

func (r *transfusionRepo) Create(_ context.Context, t *request.TransfusionRecord) error {
	r.st.transfusions[t.ID] = *t
	return nil
}

func (r *transfusionRepo) FindByComponent(_ context.Context, componentID string) ([]request.TransfusionRecord, error) {
	var out []request.TransfusionRecord
	for _, t := range r.st.transfusions {
		if t.ComponentID == componentID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransfusedAt.Before(out[j].TransfusedAt) })
	return out, nil
}

package commands

import (
	"context"

	"github.com/taskmaster/taskflow/internal/adapters/apiclient"
	"github.com/taskmaster/taskflow/internal/application/services"
	"github.com/taskmaster/taskflow/internal/domain/entities"
	"github.com/taskmaster/taskflow/internal/ports"
)

// taskStore is what the task commands need. It is backed by the local
// store, or by a running server when one owns the data.
type taskStore interface {
	Add(ctx context.Context, req ports.CreateTaskRequest) (*entities.Task, error)
	List(ctx context.Context) ([]entities.Task, error)
	Sorted(ctx context.Context) ([]entities.Task, error)
	ToggleComplete(ctx context.Context, id string) (*entities.Task, bool, error)
	TogglePriority(ctx context.Context, id string) (*entities.Task, bool, error)
	Update(ctx context.Context, id string, req ports.UpdateTaskRequest) (*entities.Task, bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	ClearCompleted(ctx context.Context) (int, error)
	Replace(ctx context.Context, tasks []entities.Task) (int, error)
	Stats(ctx context.Context) (entities.Stats, error)
	DueSoon(ctx context.Context) ([]entities.Task, error)
	StartingSoon(ctx context.Context) ([]entities.Task, error)
	Overdue(ctx context.Context) ([]entities.Task, error)
}

var _ taskStore = (*apiclient.Client)(nil)

// localStore adapts the in-process TaskService
type localStore struct {
	svc *services.TaskService
}

func (l localStore) Add(ctx context.Context, req ports.CreateTaskRequest) (*entities.Task, error) {
	return l.svc.Add(ctx, req)
}

func (l localStore) List(context.Context) ([]entities.Task, error) {
	return l.svc.List(), nil
}

func (l localStore) Sorted(context.Context) ([]entities.Task, error) {
	return l.svc.Sorted(), nil
}

func (l localStore) ToggleComplete(ctx context.Context, id string) (*entities.Task, bool, error) {
	task, ok := l.svc.ToggleComplete(ctx, id)
	return task, ok, nil
}

func (l localStore) TogglePriority(ctx context.Context, id string) (*entities.Task, bool, error) {
	task, ok := l.svc.TogglePriority(ctx, id)
	return task, ok, nil
}

func (l localStore) Update(ctx context.Context, id string, req ports.UpdateTaskRequest) (*entities.Task, bool, error) {
	return l.svc.Update(ctx, id, req)
}

func (l localStore) Delete(ctx context.Context, id string) (bool, error) {
	return l.svc.Delete(ctx, id), nil
}

func (l localStore) ClearCompleted(ctx context.Context) (int, error) {
	return l.svc.ClearCompleted(ctx), nil
}

func (l localStore) Replace(ctx context.Context, tasks []entities.Task) (int, error) {
	return l.svc.Replace(ctx, tasks)
}

func (l localStore) Stats(context.Context) (entities.Stats, error) {
	return l.svc.Stats(), nil
}

func (l localStore) DueSoon(context.Context) ([]entities.Task, error) {
	return l.svc.DueSoon(l.svc.Now()), nil
}

func (l localStore) StartingSoon(context.Context) ([]entities.Task, error) {
	return l.svc.StartingSoon(l.svc.Now()), nil
}

func (l localStore) Overdue(context.Context) ([]entities.Task, error) {
	return l.svc.Overdue(l.svc.Now()), nil
}

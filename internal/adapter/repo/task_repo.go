package repo

import (
	"context"
	"time"

	"motionbooth/internal/domain"
	"motionbooth/internal/infra"
	"motionbooth/internal/sqlinline"
)

// TaskRepositoryPG implements domain.TaskRepository on PostgreSQL. All state
// transitions go through conditional UPDATEs so re-entrant invocations are
// safe without any in-process coordination.
type TaskRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewTaskRepository creates a task repository backed by the SQL runner.
func NewTaskRepository(sql infra.SQLExecutor) *TaskRepositoryPG {
	return &TaskRepositoryPG{sql: sql}
}

func (r *TaskRepositoryPG) Create(ctx context.Context, task *domain.GenerationTask) error {
	_, err := r.sql.Exec(ctx, sqlinline.QInsertTask,
		task.ID, task.OwnerID, task.ImageRef, task.PromptText, task.Locale)
	return err
}

func (r *TaskRepositoryPG) GetByID(ctx context.Context, taskID string) (*domain.GenerationTask, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectTaskByID, taskID)
	task, err := scanTask(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return task, nil
}

func (r *TaskRepositoryPG) MarkSubmitted(ctx context.Context, taskID, providerTaskID string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QMarkSubmitted, taskID, providerTaskID)
	return err
}

func (r *TaskRepositoryPG) MarkPolling(ctx context.Context, taskID string, attempt int, observed domain.ProviderState) error {
	_, err := r.sql.Exec(ctx, sqlinline.QMarkPolling, taskID, attempt, string(observed))
	return err
}

func (r *TaskRepositoryPG) FinalizeSuccess(ctx context.Context, taskID, videoURL, thumbnailURL string) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QFinalizeSuccess, taskID, videoURL, thumbnailURL)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *TaskRepositoryPG) FinalizeFailure(ctx context.Context, taskID, errorMessage string, gaveUp bool) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QFinalizeFailure, taskID, errorMessage, gaveUp)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *TaskRepositoryPG) MarkNotified(ctx context.Context, taskID string) error {
	_, err := r.sql.Exec(ctx, sqlinline.QMarkNotified, taskID)
	return err
}

func (r *TaskRepositoryPG) RecordLateResult(ctx context.Context, taskID, videoURL, thumbnailURL string) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QRecordLateResult, taskID, videoURL, thumbnailURL)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *TaskRepositoryPG) ListRecheckable(ctx context.Context, ownerID string, cutoff time.Time, limit int) ([]domain.GenerationTask, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectRecheckable, ownerID, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.GenerationTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func (r *TaskRepositoryPG) ListRecheckableOwners(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectRecheckableOwners, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.GenerationTask, error) {
	var task domain.GenerationTask
	var state string
	if err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.ImageRef,
		&task.PromptText,
		&task.ProviderTaskID,
		&state,
		&task.ResultVideoURL,
		&task.ResultThumbnailURL,
		&task.ErrorMessage,
		&task.Attempt,
		&task.LastProviderState,
		&task.GaveUp,
		&task.Locale,
		&task.NotifiedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.CompletedAt,
	); err != nil {
		return nil, err
	}
	task.State = domain.TaskState(state)
	return &task, nil
}

var _ domain.TaskRepository = (*TaskRepositoryPG)(nil)

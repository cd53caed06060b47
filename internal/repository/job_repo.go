package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studygroup-backend/internal/models"
)

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	j.ID = uuid.New()
	j.Status = models.JobStatusPending

	config := []byte(j.ConfigJSON)
	if len(config) == 0 {
		config = []byte("{}")
	}

	query := `INSERT INTO jobs (id, user_id, type, reference_id, config_json, status)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		j.ID, j.UserID, j.Type, j.ReferenceID, config, j.Status,
	).Scan(&j.CreatedAt)
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j := &models.Job{}
	query := `SELECT id, user_id, type, reference_id, config_json, status, result_json, error_message,
			started_at, created_at, completed_at
		FROM jobs WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&j.ID, &j.UserID, &j.Type, &j.ReferenceID, &j.ConfigJSON, &j.Status, &j.ResultJSON,
		&j.ErrorMessage, &j.StartedAt, &j.CreatedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return j, nil
}

func (r *JobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	now := time.Now()
	switch status {
	case models.JobStatusProcessing:
		_, err := r.pool.Exec(ctx, "UPDATE jobs SET status = $1, started_at = $2 WHERE id = $3", status, now, id)
		return err
	case models.JobStatusCompleted, models.JobStatusFailed:
		_, err := r.pool.Exec(ctx, "UPDATE jobs SET status = $1, completed_at = $2 WHERE id = $3", status, now, id)
		return err
	}
	_, err := r.pool.Exec(ctx, "UPDATE jobs SET status = $1 WHERE id = $2", status, id)
	return err
}

// Finish records the outcome and moves the job to its terminal status.
func (r *JobRepo) Finish(ctx context.Context, id uuid.UUID, result models.AnalysisResult) error {
	status := models.JobStatusCompleted
	var errMsg *string
	if result.Status != "success" {
		status = models.JobStatusFailed
		errMsg = &result.Message
	}
	resultBytes, _ := json.Marshal(result)

	_, err := r.pool.Exec(ctx,
		"UPDATE jobs SET status = $1, result_json = $2, error_message = $3, completed_at = NOW() WHERE id = $4",
		status, resultBytes, errMsg, id,
	)
	return err
}

// failStaleQuery covers jobs a worker started but never finished, and jobs
// that left the queue without ever being marked processing.
const failStaleQuery = `
		UPDATE jobs SET status = $1, result_json = $2, error_message = $3, completed_at = NOW()
		WHERE (status = $4 AND started_at < $5)
		   OR (status = $6 AND created_at < $5)
		RETURNING id`

// FailStale fails jobs stuck in processing, or still pending, since before
// cutoff and returns their ids.
func (r *JobRepo) FailStale(ctx context.Context, cutoff time.Time, message string) ([]uuid.UUID, error) {
	resultBytes, _ := json.Marshal(models.AnalysisResult{Status: "error", Message: message})

	rows, err := r.pool.Query(ctx, failStaleQuery,
		models.JobStatusFailed, resultBytes, message,
		models.JobStatusProcessing, cutoff, models.JobStatusPending,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

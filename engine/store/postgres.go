package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/volcengine/ite/engine/model"
)

// PostgresStore implements Store using a PostgreSQL backend.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore initializes a new PostgresStore with a connection pool.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}

	config.MaxConns = 50
	config.MinConns = 5
	config.MaxConnLifetime = time.Hour
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// --- Task Operations ---

func (s *PostgresStore) CreateTask(ctx context.Context, task model.Task) (model.Task, error) {
	query := `
		INSERT INTO tasks (id, name, datasource_id, datasource_type, auto_update, projects, created_user, updated_user, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := s.pool.QueryRow(ctx, query,
		task.ID, task.Name, task.DatasourceID, task.DatasourceType, task.AutoUpdate,
		task.Projects, task.CreatedUser, task.UpdatedUser,
	).Scan(&task.CreatedAt, &task.UpdatedAt)
	return task, err
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	query := `
		SELECT id, name, datasource_id, datasource_type, auto_update, projects, created_user, updated_user, created_at, updated_at
		FROM tasks WHERE id = $1
	`
	var t model.Task
	err := s.pool.QueryRow(ctx, query, taskID).Scan(
		&t.ID, &t.Name, &t.DatasourceID, &t.DatasourceType, &t.AutoUpdate, &t.Projects,
		&t.CreatedUser, &t.UpdatedUser, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, task model.Task) error {
	query := `
		UPDATE tasks
		SET name = $2, datasource_id = $3, datasource_type = $4, auto_update = $5, projects = $6, updated_user = $7, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := s.pool.Exec(ctx, query,
		task.ID, task.Name, task.DatasourceID, task.DatasourceType, task.AutoUpdate, task.Projects, task.UpdatedUser,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.New("task not found")
	}
	return nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, taskID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, taskID)
	return err
}

func (s *PostgresStore) ListTasks(ctx context.Context) ([]model.Task, error) {
	return s.queryTasks(ctx, `
		SELECT id, name, datasource_id, datasource_type, auto_update, projects, created_user, updated_user, created_at, updated_at
		FROM tasks ORDER BY created_at
	`)
}

func (s *PostgresStore) ListAutoUpdateTasks(ctx context.Context) ([]model.Task, error) {
	return s.queryTasks(ctx, `
		SELECT id, name, datasource_id, datasource_type, auto_update, projects, created_user, updated_user, created_at, updated_at
		FROM tasks WHERE auto_update = TRUE ORDER BY created_at
	`)
}

func (s *PostgresStore) queryTasks(ctx context.Context, query string, args ...interface{}) ([]model.Task, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(
			&t.ID, &t.Name, &t.DatasourceID, &t.DatasourceType, &t.AutoUpdate, &t.Projects,
			&t.CreatedUser, &t.UpdatedUser, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// --- TaskVersion Operations ---

func (s *PostgresStore) CreateTaskVersion(ctx context.Context, tv model.TaskVersion) (model.TaskVersion, error) {
	resultJSON, err := json.Marshal(tv.Result)
	if err != nil {
		return tv, err
	}
	templateJSON, err := json.Marshal(tv.MetricTemplateValue)
	if err != nil {
		return tv, err
	}
	query := `
		INSERT INTO task_versions (id, task_id, version, metric_template_value, n_count, direction, sensitivity, status, error_message, result, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err = s.pool.QueryRow(ctx, query,
		tv.ID, tv.TaskID, tv.Version, templateJSON, tv.NCount, tv.Direction,
		tv.Sensitivity, tv.Status, tv.ErrorMessage, resultJSON,
	).Scan(&tv.CreatedAt, &tv.UpdatedAt)
	return tv, err
}

func (s *PostgresStore) GetTaskVersion(ctx context.Context, taskID string, version int) (*model.TaskVersion, error) {
	return s.queryOneTaskVersion(ctx, `
		SELECT id, task_id, version, metric_template_value, n_count, direction, sensitivity, status, error_message, result, created_at, updated_at
		FROM task_versions WHERE task_id = $1 AND version = $2
	`, taskID, version)
}

func (s *PostgresStore) GetTaskVersionByID(ctx context.Context, taskVersionID string) (*model.TaskVersion, error) {
	return s.queryOneTaskVersion(ctx, `
		SELECT id, task_id, version, metric_template_value, n_count, direction, sensitivity, status, error_message, result, created_at, updated_at
		FROM task_versions WHERE id = $1
	`, taskVersionID)
}

func (s *PostgresStore) GetLatestTaskVersion(ctx context.Context, taskID string) (*model.TaskVersion, error) {
	return s.queryOneTaskVersion(ctx, `
		SELECT id, task_id, version, metric_template_value, n_count, direction, sensitivity, status, error_message, result, created_at, updated_at
		FROM task_versions WHERE task_id = $1 ORDER BY version DESC LIMIT 1
	`, taskID)
}

func (s *PostgresStore) queryOneTaskVersion(ctx context.Context, query string, args ...interface{}) (*model.TaskVersion, error) {
	var tv model.TaskVersion
	var templateJSON, resultJSON []byte
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&tv.ID, &tv.TaskID, &tv.Version, &templateJSON, &tv.NCount, &tv.Direction,
		&tv.Sensitivity, &tv.Status, &tv.ErrorMessage, &resultJSON, &tv.CreatedAt, &tv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(templateJSON, &tv.MetricTemplateValue); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(resultJSON, &tv.Result); err != nil {
		return nil, err
	}
	return &tv, nil
}

// PersistResult writes the scheduler's outcome for one task request as a
// new TaskVersion row, creating it if absent and overwriting if a retry
// of the same (task, version) landed here again.
func (s *PostgresStore) PersistResult(ctx context.Context, req model.TaskRequest, status model.TaskVersionStatus, errMessage string, series []model.MetricThresholdResult) error {
	resultJSON, err := json.Marshal(series)
	if err != nil {
		return err
	}
	templateJSON, err := json.Marshal(req.MetricTemplateValue)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO task_versions (id, task_id, version, metric_template_value, n_count, direction, sensitivity, status, error_message, result, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, 0, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (task_id, version) DO UPDATE SET
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			result = EXCLUDED.result,
			updated_at = NOW()
	`
	_, err = s.pool.Exec(ctx, query,
		req.TaskID, req.TaskVersion, templateJSON, req.Direction, req.Sensitivity, status, errMessage, resultJSON,
	)
	return err
}

// --- AutoRefreshRecord Operations ---

func (s *PostgresStore) CreateRecord(ctx context.Context, status model.AutoRefreshRecordStatus, taskIDs []string) (model.AutoRefreshRecord, error) {
	rec := model.AutoRefreshRecord{Status: status, TaskAll: taskIDs}
	query := `
		INSERT INTO autorefresh_records (id, status, task_all, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := s.pool.QueryRow(ctx, query, status, taskIDs).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

func (s *PostgresStore) UpdateRecordStatus(ctx context.Context, recordID string, status model.AutoRefreshRecordStatus) error {
	_, err := s.pool.Exec(ctx, `UPDATE autorefresh_records SET status = $2, updated_at = NOW() WHERE id = $1`, recordID, status)
	return err
}

func (s *PostgresStore) DeleteRecord(ctx context.Context, recordID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM autorefresh_records WHERE id = $1`, recordID)
	return err
}

func (s *PostgresStore) LatestRecord(ctx context.Context) (*model.AutoRefreshRecord, error) {
	query := `
		SELECT id, status, task_all, created_at, updated_at
		FROM autorefresh_records ORDER BY created_at DESC LIMIT 1
	`
	var r model.AutoRefreshRecord
	err := s.pool.QueryRow(ctx, query).Scan(&r.ID, &r.Status, &r.TaskAll, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// --- AutoRefreshDetail Operations ---

func (s *PostgresStore) CreateDetail(ctx context.Context, detail model.AutoRefreshDetail) (model.AutoRefreshDetail, error) {
	query := `
		INSERT INTO autorefresh_details (id, record_id, task_id, version, status, calc_status, inject_status, created_at, updated_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := s.pool.QueryRow(ctx, query,
		detail.RecordID, detail.TaskID, detail.Version, detail.Status, detail.CalcStatus, detail.InjectStatus,
	).Scan(&detail.ID, &detail.CreatedAt, &detail.UpdatedAt)
	return detail, err
}

func (s *PostgresStore) DeleteDetail(ctx context.Context, detailID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM autorefresh_details WHERE id = $1`, detailID)
	return err
}

func (s *PostgresStore) UpdateDetail(ctx context.Context, detail model.AutoRefreshDetail) error {
	query := `
		UPDATE autorefresh_details
		SET status = $2, calc_status = $3, inject_status = $4, version = $5, updated_at = NOW()
		WHERE id = $1
	`
	_, err := s.pool.Exec(ctx, query, detail.ID, detail.Status, detail.CalcStatus, detail.InjectStatus, detail.Version)
	return err
}

func (s *PostgresStore) ListUnfinishedDetails(ctx context.Context, recordID string) ([]model.AutoRefreshDetail, error) {
	query := `
		SELECT id, record_id, task_id, version, status, calc_status, inject_status, created_at, updated_at
		FROM autorefresh_details WHERE record_id = $1 AND status != $2
	`
	rows, err := s.pool.Query(ctx, query, recordID, model.DetailCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []model.AutoRefreshDetail
	for rows.Next() {
		var d model.AutoRefreshDetail
		if err := rows.Scan(&d.ID, &d.RecordID, &d.TaskID, &d.Version, &d.Status, &d.CalcStatus, &d.InjectStatus, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, nil
}

func (s *PostgresStore) CountProcessingDetails(ctx context.Context, recordID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM autorefresh_details WHERE record_id = $1 AND status = $2`, recordID, model.DetailProcessing).Scan(&count)
	return count, err
}

// --- AlarmSyncRecord Operations ---

func (s *PostgresStore) GetAlarmSyncRecord(ctx context.Context, taskID string) (*model.AlarmSyncRecord, error) {
	query := `
		SELECT id, task_id, contact_group_ids, alert_methods, alarm_level, webhook, created_at
		FROM alarm_sync_records WHERE task_id = $1 ORDER BY created_at DESC LIMIT 1
	`
	var r model.AlarmSyncRecord
	err := s.pool.QueryRow(ctx, query, taskID).Scan(
		&r.ID, &r.TaskID, &r.ContactGroupIDs, &r.AlertMethods, &r.AlarmLevel, &r.Webhook, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) UpsertAlarmSyncRecord(ctx context.Context, rec model.AlarmSyncRecord) error {
	query := `
		INSERT INTO alarm_sync_records (id, task_id, contact_group_ids, alert_methods, alarm_level, webhook, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, NOW())
		ON CONFLICT (task_id) DO UPDATE SET
			contact_group_ids = EXCLUDED.contact_group_ids,
			alert_methods = EXCLUDED.alert_methods,
			alarm_level = EXCLUDED.alarm_level,
			webhook = EXCLUDED.webhook
	`
	_, err := s.pool.Exec(ctx, query, rec.TaskID, rec.ContactGroupIDs, rec.AlertMethods, rec.AlarmLevel, rec.Webhook)
	return err
}

// --- Coordination Operations ---

func (s *PostgresStore) IncrementDurableEpoch(ctx context.Context, resourceID string) (int64, error) {
	query := `
		INSERT INTO leader_epochs (resource_id, epoch)
		VALUES ($1, 1)
		ON CONFLICT (resource_id) DO UPDATE
		SET epoch = leader_epochs.epoch + 1
		RETURNING epoch
	`
	var newEpoch int64
	err := s.pool.QueryRow(ctx, query, resourceID).Scan(&newEpoch)
	if err != nil {
		return 0, err
	}
	return newEpoch, nil
}

func (s *PostgresStore) GetDurableEpoch(ctx context.Context, resourceID string) (int64, error) {
	query := `SELECT epoch FROM leader_epochs WHERE resource_id = $1`
	var epoch int64
	err := s.pool.QueryRow(ctx, query, resourceID).Scan(&epoch)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return epoch, nil
}

// --- Idempotency Operations ---
//
// Postgres is not the idempotency path in production (Redis is); these
// exist so PostgresStore still satisfies Store for single-backend
// deployments and tests that don't wire Redis.

func (s *PostgresStore) GetIdempotencyRecord(key string) (string, error) {
	return "", errors.New("not found")
}

func (s *PostgresStore) SetIdempotencyRecord(key string, value string, ttl time.Duration) error {
	return nil
}

func (s *PostgresStore) SetIdempotencyRecordNX(key string, value string, ttl time.Duration) error {
	return nil
}

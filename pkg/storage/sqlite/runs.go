package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/fedsim/pkg/errors"
	"github.com/absmach/fedsim/training"
)

type RunRepository interface {
	Create(ctx context.Context, r training.Run) (training.Run, error)
	Get(ctx context.Context, id string) (training.Run, error)
	Update(ctx context.Context, r training.Run) error
	List(ctx context.Context, offset, limit uint64) ([]training.Run, uint64, error)
	Delete(ctx context.Context, id string) error
}

type runRepo struct {
	db *Database
}

func NewRunRepository(db *Database) RunRepository {
	return &runRepo{db: db}
}

type dbRun struct {
	ID           string       `db:"id"`
	Name         string       `db:"name"`
	State        uint8        `db:"state"`
	Config       []byte       `db:"config"`
	Round        int          `db:"round"`
	Institutions []byte       `db:"institutions"`
	History      []byte       `db:"history"`
	Budget       []byte       `db:"budget"`
	FinalMetrics []byte       `db:"final_metrics"`
	Attack       []byte       `db:"attack"`
	Baseline     []byte       `db:"baseline"`
	CommCostMB   float64      `db:"comm_cost_mb"`
	Error        *string      `db:"error"`
	Schedule     *string      `db:"schedule"`
	Recurring    bool         `db:"recurring"`
	NextRun      sql.NullTime `db:"next_run"`
	StartTime    sql.NullTime `db:"start_time"`
	FinishTime   sql.NullTime `db:"finish_time"`
	CreatedAt    sql.NullTime `db:"created_at"`
	UpdatedAt    sql.NullTime `db:"updated_at"`
}

const runColumns = `id, name, state, config, round, institutions, history, budget, final_metrics, attack, baseline, comm_cost_mb, error, schedule, recurring, next_run, start_time, finish_time, created_at, updated_at`

func (r *runRepo) Create(ctx context.Context, run training.Run) (training.Run, error) {
	query := `INSERT INTO runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	dbr, err := toDBRun(run)
	if err != nil {
		return training.Run{}, fmt.Errorf("marshal error: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		dbr.ID, dbr.Name, dbr.State, dbr.Config, dbr.Round,
		dbr.Institutions, dbr.History, dbr.Budget, dbr.FinalMetrics,
		dbr.Attack, dbr.Baseline, dbr.CommCostMB, dbr.Error,
		dbr.Schedule, dbr.Recurring, nullTime(run.NextRun),
		nullTime(run.StartTime), nullTime(run.FinishTime),
		run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return training.Run{}, fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return run, nil
}

func (r *runRepo) Get(ctx context.Context, id string) (training.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	var dbr dbRun
	err := r.db.GetContext(ctx, &dbr, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return training.Run{}, pkgerrors.ErrNotFound
		}

		return training.Run{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return toRun(dbr)
}

func (r *runRepo) Update(ctx context.Context, run training.Run) error {
	query := `UPDATE runs SET
		name = ?,
		state = ?,
		config = ?,
		round = ?,
		institutions = ?,
		history = ?,
		budget = ?,
		final_metrics = ?,
		attack = ?,
		baseline = ?,
		comm_cost_mb = ?,
		error = ?,
		schedule = ?,
		recurring = ?,
		next_run = ?,
		start_time = ?,
		finish_time = ?,
		updated_at = ?
	WHERE id = ?`

	dbr, err := toDBRun(run)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query,
		dbr.Name, dbr.State, dbr.Config, dbr.Round,
		dbr.Institutions, dbr.History, dbr.Budget, dbr.FinalMetrics,
		dbr.Attack, dbr.Baseline, dbr.CommCostMB, dbr.Error,
		dbr.Schedule, dbr.Recurring, nullTime(run.NextRun),
		nullTime(run.StartTime), nullTime(run.FinishTime),
		run.UpdatedAt, run.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return pkgerrors.ErrNotFound
	}

	return nil
}

func (r *runRepo) List(ctx context.Context, offset, limit uint64) ([]training.Run, uint64, error) {
	var total uint64
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM runs"); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC LIMIT ? OFFSET ?`

	rows, err := r.db.QueryxContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	defer rows.Close()

	runs := make([]training.Run, 0)
	for rows.Next() {
		var dbr dbRun
		if err := rows.StructScan(&dbr); err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrDBScan, err)
		}

		run, err := toRun(dbr)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrDBScan, err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return runs, total, nil
}

func (r *runRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM runs WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("%w: %w", ErrDelete, err)
	}

	return nil
}

func toDBRun(run training.Run) (dbRun, error) {
	config, err := json.Marshal(run.Config)
	if err != nil {
		return dbRun{}, err
	}
	institutions, err := jsonBytes(run.Institutions)
	if err != nil {
		return dbRun{}, err
	}
	history, err := jsonBytes(run.History)
	if err != nil {
		return dbRun{}, err
	}
	budget, err := json.Marshal(run.Budget)
	if err != nil {
		return dbRun{}, err
	}
	finalMetrics, err := jsonBytes(run.FinalMetrics)
	if err != nil {
		return dbRun{}, err
	}
	attack, err := jsonBytes(run.Attack)
	if err != nil {
		return dbRun{}, err
	}
	baseline, err := jsonBytes(run.Baseline)
	if err != nil {
		return dbRun{}, err
	}

	return dbRun{
		ID:           run.ID,
		Name:         run.Name,
		State:        uint8(run.State),
		Config:       config,
		Round:        run.Round,
		Institutions: institutions,
		History:      history,
		Budget:       budget,
		FinalMetrics: finalMetrics,
		Attack:       attack,
		Baseline:     baseline,
		CommCostMB:   run.CommCostMB,
		Error:        nullString(run.Error),
		Schedule:     nullString(run.Schedule),
		Recurring:    run.Recurring,
	}, nil
}

func toRun(dbr dbRun) (training.Run, error) {
	run := training.Run{
		ID:         dbr.ID,
		Name:       dbr.Name,
		State:      training.State(dbr.State),
		Round:      dbr.Round,
		CommCostMB: dbr.CommCostMB,
		Recurring:  dbr.Recurring,
		CreatedAt:  dbr.CreatedAt.Time,
		UpdatedAt:  dbr.UpdatedAt.Time,
	}

	if err := json.Unmarshal(dbr.Config, &run.Config); err != nil {
		return training.Run{}, err
	}
	if err := jsonUnmarshal(dbr.Institutions, &run.Institutions); err != nil {
		return training.Run{}, err
	}
	if err := jsonUnmarshal(dbr.History, &run.History); err != nil {
		return training.Run{}, err
	}
	if err := jsonUnmarshal(dbr.Budget, &run.Budget); err != nil {
		return training.Run{}, err
	}
	if err := jsonUnmarshal(dbr.FinalMetrics, &run.FinalMetrics); err != nil {
		return training.Run{}, err
	}
	if err := jsonUnmarshal(dbr.Attack, &run.Attack); err != nil {
		return training.Run{}, err
	}
	if err := jsonUnmarshal(dbr.Baseline, &run.Baseline); err != nil {
		return training.Run{}, err
	}
	if dbr.Error != nil {
		run.Error = *dbr.Error
	}
	if dbr.Schedule != nil {
		run.Schedule = *dbr.Schedule
	}
	if dbr.NextRun.Valid {
		run.NextRun = dbr.NextRun.Time
	}
	if dbr.StartTime.Valid {
		run.StartTime = dbr.StartTime.Time
	}
	if dbr.FinishTime.Valid {
		run.FinishTime = dbr.FinishTime.Time
	}

	return run, nil
}

func jsonBytes(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}

	return json.Marshal(v)
}

func jsonUnmarshal(data []byte, v any) error {
	if data == nil {
		return nil
	}

	return json.Unmarshal(data, v)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	return &t
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/eduardojeem/repairboard/internal/store"
	"github.com/eduardojeem/repairboard/pkg/models"
)

const orderColumns = `order_id, stage, customer_name, device_type, device_brand, device_model, issue, urgency, technical_complexity, historical_value, technician_id, technician_name, promised_at, created_at, updated_at`

func scanRow(row pgx.Row) (store.Row, error) {
	var r store.Row
	err := row.Scan(&r.ID, &r.Stage, &r.CustomerName, &r.DeviceType, &r.DeviceBrand, &r.DeviceModel, &r.Issue,
		&r.Urgency, &r.Complexity, &r.Value, &r.TechnicianID, &r.TechnicianName, &r.PromisedAt, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (s *Store) ListOrders(ctx context.Context, opts store.ListOptions) ([]models.RepairOrder, error) {
	limit := store.ListLimit(opts.Limit)
	var (
		rows pgx.Rows
		err  error
	)
	if opts.Stage != "" {
		if err := store.ValidStage(opts.Stage); err != nil {
			return nil, err
		}
		rows, err = s.Pool.Query(ctx, `SELECT `+orderColumns+` FROM repair_orders WHERE stage = $1 ORDER BY created_at ASC, order_id ASC LIMIT $2`, string(opts.Stage), limit)
	} else {
		rows, err = s.Pool.Query(ctx, `SELECT `+orderColumns+` FROM repair_orders ORDER BY created_at ASC, order_id ASC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.RepairOrder, 0)
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r.Order(s.complexity))
	}
	return out, rows.Err()
}

func (s *Store) FetchOrders(ctx context.Context) ([]models.RepairOrder, error) {
	return s.ListOrders(ctx, store.ListOptions{})
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) getRow(ctx context.Context, q querier, id string, forUpdate bool) (store.Row, error) {
	sql := `SELECT ` + orderColumns + ` FROM repair_orders WHERE order_id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	r, err := scanRow(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Row{}, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	return r, err
}

func (s *Store) GetOrder(ctx context.Context, id string) (models.RepairOrder, error) {
	r, err := s.getRow(ctx, s.Pool, id, false)
	if err != nil {
		return models.RepairOrder{}, err
	}
	return r.Order(s.complexity), nil
}

func (s *Store) CreateOrder(ctx context.Context, in models.NewOrder) (models.RepairOrder, error) {
	r, err := store.NewRow(in, time.Now())
	if err != nil {
		return models.RepairOrder{}, err
	}
	_, err = s.Pool.Exec(ctx, `INSERT INTO repair_orders(`+orderColumns+`) VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		r.ID, r.Stage, r.CustomerName, r.DeviceType, r.DeviceBrand, r.DeviceModel, r.Issue,
		r.Urgency, r.Complexity, r.Value, r.TechnicianID, r.TechnicianName, r.PromisedAt, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.RepairOrder{}, fmt.Errorf("order %s: %w", r.ID, store.ErrExists)
		}
		return models.RepairOrder{}, err
	}
	return r.Order(s.complexity), nil
}

func (s *Store) UpdateOrder(ctx context.Context, id string, patch models.OrderPatch) (models.RepairOrder, models.RepairOrder, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return models.RepairOrder{}, models.RepairOrder{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	r, err := s.getRow(ctx, tx, id, true)
	if err != nil {
		return models.RepairOrder{}, models.RepairOrder{}, err
	}
	prev := r.Order(s.complexity)
	changed, err := store.ApplyPatch(&r, patch, time.Now())
	if err != nil {
		return models.RepairOrder{}, models.RepairOrder{}, err
	}
	if !changed {
		return prev, prev, nil
	}
	if _, err := tx.Exec(ctx, `UPDATE repair_orders SET customer_name=$1, device_type=$2, device_brand=$3, device_model=$4, issue=$5, urgency=$6, technical_complexity=$7, historical_value=$8, technician_id=$9, technician_name=$10, promised_at=$11, updated_at=$12 WHERE order_id=$13`,
		r.CustomerName, r.DeviceType, r.DeviceBrand, r.DeviceModel, r.Issue, r.Urgency, r.Complexity, r.Value, r.TechnicianID, r.TechnicianName, r.PromisedAt, r.UpdatedAt, id); err != nil {
		return models.RepairOrder{}, models.RepairOrder{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.RepairOrder{}, models.RepairOrder{}, err
	}
	return prev, r.Order(s.complexity), nil
}

func (s *Store) SetOrderStage(ctx context.Context, id string, stage models.Stage) (store.StageChange, error) {
	if err := store.ValidStage(stage); err != nil {
		return store.StageChange{}, err
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return store.StageChange{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	r, err := s.getRow(ctx, tx, id, true)
	if err != nil {
		return store.StageChange{}, err
	}
	prev := r.Order(s.complexity)
	if r.Stage == string(stage) {
		return store.StageChange{Previous: prev, Order: prev}, nil
	}
	r.Stage = string(stage)
	r.UpdatedAt = time.Now().Unix()
	if _, err := tx.Exec(ctx, `UPDATE repair_orders SET stage=$1, updated_at=$2 WHERE order_id=$3`, r.Stage, r.UpdatedAt, id); err != nil {
		return store.StageChange{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return store.StageChange{}, err
	}
	return store.StageChange{Previous: prev, Order: r.Order(s.complexity), Changed: true}, nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) (models.RepairOrder, error) {
	r, err := scanRow(s.Pool.QueryRow(ctx, `DELETE FROM repair_orders WHERE order_id=$1 RETURNING `+orderColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RepairOrder{}, fmt.Errorf("order %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return models.RepairOrder{}, err
	}
	return r.Order(s.complexity), nil
}

func (s *Store) CountByStage(ctx context.Context) (map[models.Stage]int64, error) {
	rows, err := s.Pool.Query(ctx, `SELECT stage, COUNT(*) FROM repair_orders GROUP BY stage`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[models.Stage]int64)
	for rows.Next() {
		var (
			st string
			n  int64
		)
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[models.Stage(st)] = n
	}
	return out, rows.Err()
}

func (s *Store) LoadPreference(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.Pool.QueryRow(ctx, `SELECT pref_value FROM preferences WHERE pref_key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) SavePreference(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("preference key required")
	}
	_, err := s.Pool.Exec(ctx, `INSERT INTO preferences(pref_key, pref_value, updated_at) VALUES($1, $2, $3)
ON CONFLICT (pref_key) DO UPDATE SET pref_value = EXCLUDED.pref_value, updated_at = EXCLUDED.updated_at`, key, value, time.Now().Unix())
	return err
}

// SeedDemo inserts the demo orders when the table is empty.
func (s *Store) SeedDemo(ctx context.Context) error {
	var n int
	if err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM repair_orders`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	for _, in := range store.DemoOrders(time.Now()) {
		if _, err := s.CreateOrder(ctx, in); err != nil {
			return fmt.Errorf("seed %s: %w", in.ID, err)
		}
	}
	return nil
}

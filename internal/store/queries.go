package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eduardojeem/repairboard/pkg/models"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(sc rowScanner) (Row, error) {
	var (
		r          Row
		complexity sql.NullInt64
		techID     sql.NullString
		techName   sql.NullString
		promised   sql.NullInt64
	)
	if err := sc.Scan(&r.ID, &r.Stage, &r.CustomerName, &r.DeviceType, &r.DeviceBrand, &r.DeviceModel, &r.Issue,
		&r.Urgency, &complexity, &r.Value, &techID, &techName, &promised, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return Row{}, err
	}
	if complexity.Valid {
		c := int(complexity.Int64)
		r.Complexity = &c
	}
	if techID.Valid {
		r.TechnicianID = &techID.String
	}
	if techName.Valid {
		r.TechnicianName = &techName.String
	}
	if promised.Valid {
		r.PromisedAt = &promised.Int64
	}
	return r, nil
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func (s *sqliteStore) ListOrders(ctx context.Context, opts ListOptions) ([]models.RepairOrder, error) {
	limit := ListLimit(opts.Limit)
	var (
		rows *sql.Rows
		err  error
	)
	if opts.Stage != "" {
		if err := ValidStage(opts.Stage); err != nil {
			return nil, err
		}
		rows, err = s.stmtListByStage.QueryContext(ctx, string(opts.Stage), limit)
	} else {
		rows, err = s.stmtListOrders.QueryContext(ctx, limit)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

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

func (s *sqliteStore) FetchOrders(ctx context.Context) ([]models.RepairOrder, error) {
	return s.ListOrders(ctx, ListOptions{})
}

func (s *sqliteStore) getRow(ctx context.Context, tx *sql.Tx, id string) (Row, error) {
	st := s.stmtGetOrder
	if tx != nil {
		st = tx.StmtContext(ctx, st)
	}
	r, err := scanRow(st.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Row{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return r, err
}

func (s *sqliteStore) GetOrder(ctx context.Context, id string) (models.RepairOrder, error) {
	r, err := s.getRow(ctx, nil, id)
	if err != nil {
		return models.RepairOrder{}, err
	}
	return r.Order(s.complexity), nil
}

func (s *sqliteStore) CreateOrder(ctx context.Context, in models.NewOrder) (models.RepairOrder, error) {
	r, err := NewRow(in, time.Now())
	if err != nil {
		return models.RepairOrder{}, err
	}
	_, err = s.stmtInsertOrder.ExecContext(ctx, r.ID, r.Stage, r.CustomerName, r.DeviceType, r.DeviceBrand, r.DeviceModel, r.Issue,
		r.Urgency, nullable(r.Complexity), r.Value, nullable(r.TechnicianID), nullable(r.TechnicianName), nullable(r.PromisedAt),
		r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return models.RepairOrder{}, fmt.Errorf("order %s: %w", r.ID, ErrExists)
		}
		return models.RepairOrder{}, err
	}
	return r.Order(s.complexity), nil
}

func (s *sqliteStore) UpdateOrder(ctx context.Context, id string, patch models.OrderPatch) (models.RepairOrder, models.RepairOrder, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.RepairOrder{}, models.RepairOrder{}, err
	}
	defer func() { _ = tx.Rollback() }()

	r, err := s.getRow(ctx, tx, id)
	if err != nil {
		return models.RepairOrder{}, models.RepairOrder{}, err
	}
	prev := r.Order(s.complexity)
	changed, err := ApplyPatch(&r, patch, time.Now())
	if err != nil {
		return models.RepairOrder{}, models.RepairOrder{}, err
	}
	if !changed {
		return prev, prev, nil
	}
	if _, err := tx.StmtContext(ctx, s.stmtUpdateOrder).ExecContext(ctx, r.CustomerName, r.DeviceType, r.DeviceBrand, r.DeviceModel, r.Issue, r.Urgency,
		nullable(r.Complexity), r.Value, nullable(r.TechnicianID), nullable(r.TechnicianName), nullable(r.PromisedAt),
		r.UpdatedAt, id); err != nil {
		return models.RepairOrder{}, models.RepairOrder{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.RepairOrder{}, models.RepairOrder{}, err
	}
	return prev, r.Order(s.complexity), nil
}

func (s *sqliteStore) SetOrderStage(ctx context.Context, id string, stage models.Stage) (StageChange, error) {
	if err := ValidStage(stage); err != nil {
		return StageChange{}, err
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return StageChange{}, err
	}
	defer func() { _ = tx.Rollback() }()

	r, err := s.getRow(ctx, tx, id)
	if err != nil {
		return StageChange{}, err
	}
	prev := r.Order(s.complexity)
	if r.Stage == string(stage) {
		return StageChange{Previous: prev, Order: prev}, nil
	}
	r.Stage = string(stage)
	r.UpdatedAt = time.Now().Unix()
	if _, err := tx.StmtContext(ctx, s.stmtSetStage).ExecContext(ctx, r.Stage, r.UpdatedAt, id); err != nil {
		return StageChange{}, err
	}
	if err := tx.Commit(); err != nil {
		return StageChange{}, err
	}
	return StageChange{Previous: prev, Order: r.Order(s.complexity), Changed: true}, nil
}

func (s *sqliteStore) DeleteOrder(ctx context.Context, id string) (models.RepairOrder, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.RepairOrder{}, err
	}
	defer func() { _ = tx.Rollback() }()

	r, err := s.getRow(ctx, tx, id)
	if err != nil {
		return models.RepairOrder{}, err
	}
	if _, err := tx.StmtContext(ctx, s.stmtDeleteOrder).ExecContext(ctx, id); err != nil {
		return models.RepairOrder{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.RepairOrder{}, err
	}
	return r.Order(s.complexity), nil
}

func (s *sqliteStore) CountByStage(ctx context.Context) (map[models.Stage]int64, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT stage, COUNT(*) FROM repair_orders GROUP BY stage`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

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

func (s *sqliteStore) LoadPreference(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.stmtGetPreference.QueryRowContext(ctx, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *sqliteStore) SavePreference(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("preference key required")
	}
	_, err := s.stmtPutPreference.ExecContext(ctx, key, value, time.Now().Unix())
	return err
}

// SeedDemo inserts the demo orders when the store is empty.
func (s *sqliteStore) SeedDemo(ctx context.Context) error {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM repair_orders`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	for _, in := range DemoOrders(time.Now()) {
		if _, err := s.CreateOrder(ctx, in); err != nil {
			return fmt.Errorf("seed %s: %w", in.ID, err)
		}
	}
	return nil
}

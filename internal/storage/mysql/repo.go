package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"tripz_dealdesk/internal/domain"
)

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func (r *Repo) Create(ctx context.Context, c domain.Calculation) error {
	input, err := marshalJSON(c.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	derived, err := marshalJSON(c.Derived)
	if err != nil {
		return fmt.Errorf("marshal derived: %w", err)
	}
	reasons, err := marshalJSON(c.Approval.Reasons)
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}

	_, err = r.db.ExecContext(ctx, insertCalculationSQL,
		c.ID,
		c.Version,
		c.Input.HotelName,
		c.Input.Stars,
		string(c.Approval.Status),
		reasons,
		c.Approval.DecidedBy,
		nullTime(c.Approval.EvaluatedAt),
		input,
		derived,
		c.CreatedAt.UTC(),
		c.UpdatedAt.UTC(),
	)
	return err
}

func (r *Repo) Update(ctx context.Context, c domain.Calculation, expectVersion int64) error {
	input, err := marshalJSON(c.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	derived, err := marshalJSON(c.Derived)
	if err != nil {
		return fmt.Errorf("marshal derived: %w", err)
	}
	reasons, err := marshalJSON(c.Approval.Reasons)
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}

	res, err := r.db.ExecContext(ctx, updateCalculationSQL,
		c.Version,
		c.Input.HotelName,
		c.Input.Stars,
		string(c.Approval.Status),
		reasons,
		c.Approval.DecidedBy,
		nullTime(c.Approval.EvaluatedAt),
		input,
		derived,
		c.UpdatedAt.UTC(),
		c.ID,
		expectVersion,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// distinguish "gone" from "someone wrote in between"
		var one int
		if scanErr := r.db.QueryRowContext(ctx, existsCalculationSQL, c.ID).Scan(&one); scanErr == sql.ErrNoRows {
			return domain.ErrNotFound
		}
		return domain.ErrStaleVersion
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (domain.Calculation, error) {
	row := r.db.QueryRowContext(ctx, getCalculationSQL, id)

	var (
		c           domain.Calculation
		status      string
		reasonsJSON []byte
		decidedBy   sql.NullString
		evaluatedAt sql.NullTime
		inputJSON   []byte
		derivedJSON []byte
	)
	if err := row.Scan(&c.ID, &c.Version, &status, &reasonsJSON, &decidedBy, &evaluatedAt, &inputJSON, &derivedJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.Calculation{}, domain.ErrNotFound
		}
		return domain.Calculation{}, err
	}

	if err := json.Unmarshal(inputJSON, &c.Input); err != nil {
		return domain.Calculation{}, fmt.Errorf("unmarshal input: %w", err)
	}
	if err := json.Unmarshal(derivedJSON, &c.Derived); err != nil {
		return domain.Calculation{}, fmt.Errorf("unmarshal derived: %w", err)
	}
	c.Approval.Status = domain.ApprovalStatus(status)
	if len(reasonsJSON) > 0 {
		if err := json.Unmarshal(reasonsJSON, &c.Approval.Reasons); err != nil {
			return domain.Calculation{}, fmt.Errorf("unmarshal reasons: %w", err)
		}
	}
	if decidedBy.Valid {
		c.Approval.DecidedBy = decidedBy.String
	}
	if evaluatedAt.Valid {
		c.Approval.EvaluatedAt = evaluatedAt.Time
	}

	overrides, err := r.ListOverrides(ctx, id)
	if err != nil {
		return domain.Calculation{}, err
	}
	c.Overrides = overrides
	return c, nil
}

func (r *Repo) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, listIDsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repo) AppendOverride(ctx context.Context, e domain.OverrideEntry) error {
	_, err := r.db.ExecContext(ctx, insertOverrideSQL,
		e.ID,
		e.CalculationID,
		e.FieldName,
		e.PreviousValue,
		e.NewValue,
		e.Justification,
		e.CreatedAt.UTC(),
	)
	return err
}

func (r *Repo) ListOverrides(ctx context.Context, id string) ([]domain.OverrideEntry, error) {
	rows, err := r.db.QueryContext(ctx, listOverridesSQL, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OverrideEntry
	for rows.Next() {
		var e domain.OverrideEntry
		if err := rows.Scan(&e.ID, &e.CalculationID, &e.FieldName, &e.PreviousValue, &e.NewValue, &e.Justification, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repo) LogTransition(ctx context.Context, id string, from, to domain.ApprovalStatus, actor string) error {
	_, err := r.db.ExecContext(ctx, insertTransitionSQL, id, string(from), string(to), actor)
	return err
}

// Package audit records every remediation row the service attempted against the backend.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const defaultListLimit = 200

// Entry is one attempted remediation row.
type Entry struct {
	ID              int64     `json:"id"`
	Action          string    `json:"action"`
	ReviewerID      string    `json:"reviewerId"`
	CertificationID string    `json:"certificationId"`
	TaskID          string    `json:"taskId"`
	LineItemID      string    `json:"lineItemId"`
	EntitlementName string    `json:"entitlementName"`
	OK              bool      `json:"ok"`
	Error           string    `json:"error,omitempty"`
	Justification   string    `json:"justification"`
	CreatedAt       time.Time `json:"createdAt"`
}

// DBTX is the subset of pgxpool.Pool the journal needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Journal struct {
	db DBTX
}

func NewJournal(db DBTX) *Journal {
	return &Journal{db: db}
}

const insertEntrySQL = `INSERT INTO remediation_audit
	(action, reviewer_id, certification_id, task_id, line_item_id, entitlement_name, ok, error, justification)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// Record appends entries in order. It stops at the first failed insert.
func (j *Journal) Record(ctx context.Context, entries []Entry) error {
	if j == nil || j.db == nil {
		return errors.New("audit journal is not configured")
	}
	for _, e := range entries {
		_, err := j.db.Exec(ctx, insertEntrySQL,
			e.Action,
			strings.TrimSpace(e.ReviewerID),
			strings.TrimSpace(e.CertificationID),
			strings.TrimSpace(e.TaskID),
			strings.TrimSpace(e.LineItemID),
			e.EntitlementName,
			e.OK,
			e.Error,
			e.Justification,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

const listEntriesSQL = `SELECT id, action, reviewer_id, certification_id, task_id, line_item_id,
	entitlement_name, ok, error, justification, created_at
	FROM remediation_audit
	WHERE certification_id = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2`

// List returns the newest entries for a certification.
func (j *Journal) List(ctx context.Context, certificationID string, limit int) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, errors.New("audit journal is not configured")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := j.db.Query(ctx, listEntriesSQL, strings.TrimSpace(certificationID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID,
			&e.Action,
			&e.ReviewerID,
			&e.CertificationID,
			&e.TaskID,
			&e.LineItemID,
			&e.EntitlementName,
			&e.OK,
			&e.Error,
			&e.Justification,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

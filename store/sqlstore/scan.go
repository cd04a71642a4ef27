package sqlstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cast"

	"github.com/mickamy/revisionable"
)

// scanRecords consumes rows selected by query.Builder.List.
func scanRecords(rows *sql.Rows) ([]revisionable.Record, error) {
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var out []revisionable.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: failed to read revisions: %w", err)
	}
	return out, nil
}

func scanRecord(rows *sql.Rows) (revisionable.Record, error) {
	var (
		rec                     revisionable.Record
		process                 sql.NullString
		oldValue, newValue, uid sql.NullString
		createdAt               any
	)
	if err := rows.Scan(
		&rec.ID,
		&rec.RevisionableType,
		&rec.RevisionableID,
		&rec.Sequence,
		&process,
		&rec.Key,
		&oldValue,
		&newValue,
		&uid,
		&createdAt,
	); err != nil {
		return revisionable.Record{}, fmt.Errorf("sqlstore: failed to scan revision: %w", err)
	}
	rec.Process = process.String
	rec.OldValue = ptr(oldValue)
	rec.NewValue = ptr(newValue)
	rec.UserID = ptr(uid)

	t, err := toTime(createdAt)
	if err != nil {
		return revisionable.Record{}, fmt.Errorf("sqlstore: invalid created_at of revision %d: %w", rec.ID, err)
	}
	rec.CreatedAt = t
	return rec, nil
}

func ptr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// toTime accepts the forms drivers hand back for timestamp columns: a
// time.Time, or raw text when the DSN does not ask for parsing (MySQL
// without parseTime).
func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t, nil
	case []byte:
		return cast.ToTimeE(string(t))
	}
	return cast.ToTimeE(v)
}

package postgres

import (
	"database/sql"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// dateArg converts a calendar date into the value bound to a DATE parameter.
func dateArg(d civil.Date) time.Time {
	return d.In(time.UTC)
}

func nullDateArg(d *civil.Date) sql.NullTime {
	if d == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: dateArg(*d), Valid: true}
}

func datePtr(v sql.NullTime) *civil.Date {
	if !v.Valid {
		return nil
	}
	d := civil.DateOf(v.Time)
	return &d
}

func nullUUIDArg(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func uuidPtr(v uuid.NullUUID) *uuid.UUID {
	if !v.Valid {
		return nil
	}
	id := v.UUID
	return &id
}

func nullTimeArg(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func nullIntArg(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullClockArg(t *civil.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.String(), Valid: true}
}

func clockPtr(v sql.NullString) (*civil.Time, error) {
	if !v.Valid {
		return nil, nil
	}
	t, err := civil.ParseTime(v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

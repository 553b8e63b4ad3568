// Package postgres provides the PostgreSQL record store for boards, tasks,
// task history and the migration ledger. It implements the interfaces
// defined in internal/store and internal/ledger over database/sql with the
// pgx driver, maps driver errors onto store errors, and embeds the goose
// schema migrations.
package postgres

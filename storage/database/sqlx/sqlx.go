package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// postgres error codes
const (
	codeForeignKeyViolation = "23503"
	codeInvalidText         = "22P02"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeForeignKeyViolation
}

// isMissingRow reports no rows, and ids the uuid columns refuse to parse, since
// neither can name an existing row.
func isMissingRow(err error) bool {
	var pqErr *pq.Error
	return errors.Is(err, sql.ErrNoRows) || errors.As(err, &pqErr) && pqErr.Code == codeInvalidText
}

func toJSON(v interface{}, empty string) (types.JSONText, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		raw = []byte(empty)
	}
	return types.JSONText(raw), nil
}

func toNullJSON(v interface{}, valid bool) (types.NullJSONText, error) {
	if !valid {
		return types.NullJSONText{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return types.NullJSONText{}, err
	}
	return types.NullJSONText{JSONText: types.JSONText(raw), Valid: true}, nil
}

// execAffected runs a built statement and returns the number of affected rows.
func execAffected(ctx context.Context, db sqlx.ExecerContext, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building statement")
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func rowExists(ctx context.Context, db sqlx.QueryerContext, table, id string) (bool, error) {
	var found bool
	err := sqlx.GetContext(ctx, db, &found, "SELECT true FROM "+table+" WHERE id = $1", id)
	if isMissingRow(err) {
		return false, nil
	}
	return found, err
}

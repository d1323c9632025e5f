package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/socialsync/internal/common"
)

// Postgres SQLSTATE codes the adapter distinguishes.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	codeCheckViolation      = "23514"
	codeInvalidText         = "22P02"
	codeInsufficientPriv    = "42501"
)

// mapError attaches the matching sentinel to a driver error while keeping
// the original in the chain.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %w", common.ErrDuplicate, err)
		case codeInsufficientPriv:
			return fmt.Errorf("%w: %w", common.ErrUnauthorized, err)
		case codeForeignKeyViolation, codeNotNullViolation, codeCheckViolation, codeInvalidText:
			return fmt.Errorf("%w: %w", common.ErrValidation, err)
		}
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", common.ErrNotFound, err)
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.As(err, &connErr) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}
	return err
}

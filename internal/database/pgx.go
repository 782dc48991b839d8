// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// PgxAdmin is an Admin over a single pgx connection.
type PgxAdmin struct {
	conn *pgx.Conn
}

// ConnectPgx is the production Connector.
func ConnectPgx(ctx context.Context, dsn string) (Admin, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &PgxAdmin{conn: conn}, nil
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// quoteLiteral quotes s as a standard-conforming string literal. DDL does
// not accept bind parameters.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Ping checks the session.
func (a *PgxAdmin) Ping(ctx context.Context) error {
	return a.conn.Ping(ctx)
}

// EnsureRole creates the login role or resets its password.
func (a *PgxAdmin) EnsureRole(ctx context.Context, role, password string) error {
	var exists bool
	err := a.conn.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)", role).Scan(&exists)
	if err != nil {
		return err
	}
	verb := "CREATE"
	if exists {
		verb = "ALTER"
	}
	_, err = a.conn.Exec(ctx, fmt.Sprintf("%s ROLE %s WITH LOGIN PASSWORD %s", verb, ident(role), quoteLiteral(password)))
	return err
}

// EnsureSchema creates schema owned by owner if missing.
func (a *PgxAdmin) EnsureSchema(ctx context.Context, schema, owner string) error {
	_, err := a.conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s AUTHORIZATION %s", ident(schema), ident(owner)))
	return err
}

// GrantSchema lets role connect to the database and use schema.
func (a *PgxAdmin) GrantSchema(ctx context.Context, schema, role string) error {
	db := a.conn.Config().Database
	stmts := []string{
		fmt.Sprintf("GRANT CONNECT ON DATABASE %s TO %s", ident(db), ident(role)),
		fmt.Sprintf("GRANT USAGE, CREATE ON SCHEMA %s TO %s", ident(schema), ident(role)),
		fmt.Sprintf("GRANT ALL PRIVILEGES ON ALL TABLES IN SCHEMA %s TO %s", ident(schema), ident(role)),
		fmt.Sprintf("GRANT ALL PRIVILEGES ON ALL SEQUENCES IN SCHEMA %s TO %s", ident(schema), ident(role)),
	}
	for _, stmt := range stmts {
		if _, err := a.conn.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// SetSearchPath pins role's search_path to schema.
func (a *PgxAdmin) SetSearchPath(ctx context.Context, role, schema string) error {
	_, err := a.conn.Exec(ctx, fmt.Sprintf("ALTER ROLE %s SET search_path TO %s", ident(role), ident(schema)))
	return err
}

// Close ends the session.
func (a *PgxAdmin) Close(ctx context.Context) error {
	return a.conn.Close(ctx)
}

var _ Admin = (*PgxAdmin)(nil)

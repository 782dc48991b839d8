// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package database provisions per-app Postgres logins and schemas on the
// shared managed Postgres service.
//
// Each app gets a role whose password is generated once and kept in the
// deploy state. Apps get an isolated schema named after them, with the
// role's search_path pinned to it, unless the schema policy lists them as
// sharing the default public schema. Re-running provisioning re-applies
// the role, schema and grants; it never rotates the password.
package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/launchpad/internal/controlplane"
	"github.com/AleutianAI/launchpad/internal/state"
	"github.com/AleutianAI/launchpad/pkg/logging"
)

// PublicSchema is the default schema shared apps use.
const PublicSchema = "public"

// Defaults for the administrative connectivity wait.
const (
	DefaultPollAttempts = 30
	DefaultPollInterval = 2 * time.Second
	DefaultAdminPort    = 15432
	passwordBytes       = 24
)

// ErrDatabaseUnreachable is returned when the exposed port never answers.
var ErrDatabaseUnreachable = errors.New("database did not become reachable")

// Admin is an administrative session on the shared database.
type Admin interface {
	Ping(ctx context.Context) error
	EnsureRole(ctx context.Context, role, password string) error
	EnsureSchema(ctx context.Context, schema, owner string) error
	GrantSchema(ctx context.Context, schema, role string) error
	SetSearchPath(ctx context.Context, role, schema string) error
	Close(ctx context.Context) error
}

// Connector opens an Admin session for a DSN.
type Connector func(ctx context.Context, dsn string) (Admin, error)

// SchemaPolicy decides which schema an app's role lives in.
type SchemaPolicy struct {
	// SharedSchemaApps use the public schema. Everyone else is isolated.
	SharedSchemaApps []string
}

// SchemaFor returns the schema of app.
func (p SchemaPolicy) SchemaFor(app string) string {
	for _, shared := range p.SharedSchemaApps {
		if shared == app {
			return PublicSchema
		}
	}
	return Identifier(app)
}

var nonIdent = regexp.MustCompile(`[^a-z0-9_]`)

// Identifier turns an app name into a Postgres identifier: lower case,
// [a-z0-9_], not starting with a digit, at most 63 bytes.
func Identifier(name string) string {
	id := nonIdent.ReplaceAllString(strings.ToLower(name), "_")
	if id == "" || (id[0] >= '0' && id[0] <= '9') {
		id = "app_" + id
	}
	if len(id) > 63 {
		id = id[:63]
	}
	return id
}

// Provisioner applies per-app credentials and schemas.
//
// # Description
//
// The managed service is not reachable from outside the platform, so the
// provisioner temporarily publishes AdminPort, waits for it with a bounded
// poll, applies the role, schema, grants and search_path, and finally
// hides the port again. The port is hidden even if ctx is cancelled.
type Provisioner struct {
	Client  controlplane.Client
	Connect Connector
	Policy  SchemaPolicy

	// Host is where the published port is reachable, usually the server IP.
	Host      string
	AdminPort int

	PollAttempts int
	PollInterval time.Duration

	Logger *logging.Logger
	// Sleep is replaced in tests.
	Sleep func(time.Duration)
	// GeneratePassword defaults to state.GenerateSecret.
	GeneratePassword func() (string, error)
}

func (p *Provisioner) defaults() {
	if p.PollAttempts <= 0 {
		p.PollAttempts = DefaultPollAttempts
	}
	if p.PollInterval <= 0 {
		p.PollInterval = DefaultPollInterval
	}
	if p.AdminPort == 0 {
		p.AdminPort = DefaultAdminPort
	}
	if p.Sleep == nil {
		p.Sleep = time.Sleep
	}
	if p.Logger == nil {
		p.Logger = logging.Nop()
	}
	if p.GeneratePassword == nil {
		p.GeneratePassword = func() (string, error) { return state.GenerateSecret(passwordBytes) }
	}
}

// AppDatabase describes what was applied for one app.
type AppDatabase struct {
	App         string
	Schema      string
	Credentials state.Credentials
	Created     bool
}

// EnsureAppDatabase provisions app's role and schema on pg.
//
// # Inputs
//
//   - st: Deploy state; credentials are read from or recorded into it.
//   - pg: The managed Postgres service.
//   - app: App name.
//
// # Outputs
//
//   - AppDatabase: Applied role, schema and whether credentials are new.
//   - error: ErrDatabaseUnreachable or an administrative failure.
func (p *Provisioner) EnsureAppDatabase(ctx context.Context, st *state.DeployState, pg *controlplane.Postgres, app string) (AppDatabase, error) {
	p.defaults()
	log := p.Logger.With("app", app, "resource", "database")

	creds, created, err := st.GetOrCreateCredentials(app, Identifier(app), p.GeneratePassword)
	if err != nil {
		return AppDatabase{}, err
	}
	schema := p.Policy.SchemaFor(app)

	port := p.AdminPort
	if err := p.Client.SetPostgresExternalPort(ctx, pg.ID, &port); err != nil {
		return AppDatabase{}, fmt.Errorf("exposing postgres port: %w", err)
	}
	if err := p.Client.DeployPostgres(ctx, pg.ID); err != nil {
		p.hidePort(pg.ID, log)
		return AppDatabase{}, fmt.Errorf("redeploying postgres with exposed port: %w", err)
	}
	defer p.hidePort(pg.ID, log)

	admin, err := p.waitForAdmin(ctx, p.adminDSN(pg), log)
	if err != nil {
		return AppDatabase{}, err
	}
	defer admin.Close(context.WithoutCancel(ctx))

	if err := admin.EnsureRole(ctx, creds.DBUser, creds.DBPassword); err != nil {
		return AppDatabase{}, fmt.Errorf("ensuring role %s: %w", creds.DBUser, err)
	}
	if schema != PublicSchema {
		if err := admin.EnsureSchema(ctx, schema, creds.DBUser); err != nil {
			return AppDatabase{}, fmt.Errorf("ensuring schema %s: %w", schema, err)
		}
	}
	if err := admin.GrantSchema(ctx, schema, creds.DBUser); err != nil {
		return AppDatabase{}, fmt.Errorf("granting schema %s: %w", schema, err)
	}
	if err := admin.SetSearchPath(ctx, creds.DBUser, schema); err != nil {
		return AppDatabase{}, fmt.Errorf("pinning search_path of %s: %w", creds.DBUser, err)
	}

	log.Info("app database ready", "schema", schema, "role", creds.DBUser, "credentials_created", created)
	return AppDatabase{App: app, Schema: schema, Credentials: creds, Created: created}, nil
}

func (p *Provisioner) adminDSN(pg *controlplane.Postgres) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(pg.DatabaseUser, pg.Password),
		Host:     net.JoinHostPort(p.Host, strconv.Itoa(p.AdminPort)),
		Path:     "/" + pg.DatabaseName,
		RawQuery: "sslmode=disable&connect_timeout=5",
	}
	return u.String()
}

// waitForAdmin polls until a session pings, up to PollAttempts times.
func (p *Provisioner) waitForAdmin(ctx context.Context, dsn string, log *logging.Logger) (Admin, error) {
	var lastErr error
	for attempt := 1; attempt <= p.PollAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		admin, err := p.Connect(ctx, dsn)
		if err == nil {
			if err = admin.Ping(ctx); err == nil {
				return admin, nil
			}
			_ = admin.Close(ctx)
		}
		lastErr = err
		log.Debug("database not reachable yet", "attempt", attempt, "max_attempts", p.PollAttempts, "error", err)
		if attempt < p.PollAttempts {
			p.Sleep(p.PollInterval)
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrDatabaseUnreachable, p.PollAttempts, lastErr)
}

func (p *Provisioner) hidePort(postgresID string, log *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := p.Client.SetPostgresExternalPort(ctx, postgresID, nil); err != nil {
		log.Warn("failed to hide postgres port", "error", err)
		return
	}
	if err := p.Client.DeployPostgres(ctx, postgresID); err != nil {
		log.Warn("failed to redeploy postgres after hiding port", "error", err)
	}
}

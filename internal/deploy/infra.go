// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/launchpad/internal/controlplane"
	"github.com/AleutianAI/launchpad/internal/database"
	"github.com/AleutianAI/launchpad/internal/reconcile"
	"github.com/AleutianAI/launchpad/internal/state"
)

// Shared service defaults.
const (
	defaultPostgresVersion = "16"
	defaultRedisVersion    = "7"
	defaultPostgresUser    = "launchpad"
	postgresPort           = 5432
	redisPort              = 6379
	servicePasswordBytes   = 24

	// servicesSecretKey scopes generated service passwords in the state's
	// generatedSecrets map. It cannot collide with an app name.
	servicesSecretKey = "_services"

	registryPasswordVar = "REGISTRY_PASSWORD"
)

// asMiss maps a control-plane not-found into a reconcile miss.
func asMiss[T any](v T, err error) (T, error) {
	if errors.Is(err, controlplane.ErrNotFound) {
		var zero T
		return zero, reconcile.ErrNotFound
	}
	return v, err
}

// ensureInfrastructure reconciles everything apps are deployed into.
func (r *run) ensureInfrastructure(ctx context.Context) error {
	seq := &sequence{StepTimeout: r.o.StepTimeout, Logger: r.log}
	steps := []step{
		{Name: "project", Run: r.ensureProject},
		{Name: "registry", Run: r.ensureRegistry},
		{Name: "postgres", Run: r.ensurePostgres},
		{Name: "redis", Run: r.ensureRedis},
		{Name: "backups", Run: r.ensureBackups},
	}
	if failures := seq.Execute(ctx, steps); len(failures) > 0 {
		return fmt.Errorf("reconciling %w", failures[0])
	}
	return nil
}

func (r *run) ensureProject(ctx context.Context) error {
	c := r.o.Client
	project, err := reconcile.FindOrCreate(ctx, reconcile.Request[*controlplane.Project]{
		Resource:   "project",
		IsConflict: controlplane.IsConflict,
		Key:        r.ws.Name,
		CachedID:   r.st.ProjectID,
		Get:        c.GetProject,
		Find: func(ctx context.Context, name string) (*controlplane.Project, error) {
			all, err := c.ListProjects(ctx)
			if err != nil {
				return nil, err
			}
			for i := range all {
				if all[i].Name == name {
					return &all[i], nil
				}
			}
			return nil, reconcile.ErrNotFound
		},
		Create: func(ctx context.Context) (*controlplane.Project, error) {
			return c.CreateProject(ctx, r.ws.Name, "Managed by launchpad")
		},
		ID: func(p *controlplane.Project) string { return p.ID },
		Persist: func(id string) error {
			r.st.SetProject(id, "")
			return r.save()
		},
		OnStaleID: func(id string, err error) {
			r.log.Warn("recorded project is gone", "project_id", id, "error", err)
		},
	})
	if err != nil {
		return err
	}
	r.observe("project", project.Action)

	env, err := reconcile.FindOrCreate(ctx, reconcile.Request[*controlplane.Environment]{
		Resource:   "environment",
		IsConflict: controlplane.IsConflict,
		Key:        r.stage,
		CachedID:   r.st.EnvironmentID,
		Get: func(ctx context.Context, id string) (*controlplane.Environment, error) {
			e, err := c.GetEnvironment(ctx, id)
			if err == nil && e.ProjectID != project.ID {
				return nil, fmt.Errorf("environment %s belongs to project %s", id, e.ProjectID)
			}
			return e, err
		},
		Find: func(_ context.Context, name string) (*controlplane.Environment, error) {
			for i := range project.Value.Environments {
				if project.Value.Environments[i].Name == name {
					return &project.Value.Environments[i], nil
				}
			}
			return nil, reconcile.ErrNotFound
		},
		Create: func(ctx context.Context) (*controlplane.Environment, error) {
			return c.CreateEnvironment(ctx, project.ID, r.stage)
		},
		ID: func(e *controlplane.Environment) string { return e.ID },
		Persist: func(id string) error {
			r.st.SetProject(project.ID, id)
			return r.save()
		},
	})
	if err != nil {
		return err
	}
	if r.st.ProjectID != project.ID || r.st.EnvironmentID != env.ID {
		r.st.SetProject(project.ID, env.ID)
		if err := r.save(); err != nil {
			return err
		}
	}
	r.observe("environment", env.Action)
	return nil
}

func (r *run) ensureRegistry(ctx context.Context) error {
	cfg := r.ws.Deploy.Registry
	if cfg.URL == "" {
		return nil
	}
	name := cfg.Name
	if name == "" {
		name = r.ws.Name
	}
	c := r.o.Client
	out, err := reconcile.FindOrCreate(ctx, reconcile.Request[*controlplane.Registry]{
		Resource:   "registry",
		IsConflict: controlplane.IsConflict,
		Key:        name,
		CachedID:   r.st.RegistryID,
		Get:        c.GetRegistry,
		Find: func(ctx context.Context, name string) (*controlplane.Registry, error) {
			all, err := c.ListRegistries(ctx)
			if err != nil {
				return nil, err
			}
			for i := range all {
				if all[i].Name == name && all[i].URL == cfg.URL {
					return &all[i], nil
				}
			}
			return nil, reconcile.ErrNotFound
		},
		Create: func(ctx context.Context) (*controlplane.Registry, error) {
			password, err := r.registryPassword(ctx)
			if err != nil {
				return nil, err
			}
			return c.CreateRegistry(ctx, controlplane.RegistryCreate{
				Name:     name,
				URL:      cfg.URL,
				Username: cfg.Username,
				Password: password,
				Prefix:   cfg.Prefix,
			})
		},
		ID: func(reg *controlplane.Registry) string { return reg.ID },
		Persist: func(id string) error {
			r.st.RegistryID = id
			return r.save()
		},
	})
	if err != nil {
		return err
	}
	r.observe("registry", out.Action)
	return nil
}

func (r *run) registryPassword(ctx context.Context) (string, error) {
	if v, ok := r.o.Secrets.Lookup(registryPasswordVar); ok && v != "" {
		return v, nil
	}
	return r.o.Credentials.ResolveCredential(ctx, CredentialRequest{
		Name:        registryPasswordVar,
		Description: fmt.Sprintf("password of registry %s for user %s", r.ws.Deploy.Registry.URL, r.ws.Deploy.Registry.Username),
		Stage:       r.stage,
	})
}

// servicePassword prefers the stage secrets and otherwise generates one
// password per service and stage.
func (r *run) servicePassword(configured, name string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	return r.st.GetOrGenerateSecret(servicesSecretKey, name, func() (string, error) {
		return state.GenerateSecret(servicePasswordBytes)
	})
}

func (r *run) serviceName(kind string) string {
	return strings.ToLower(r.ws.Name + "-" + kind)
}

func (r *run) ensurePostgres(ctx context.Context) error {
	cfg := r.ws.Services.Postgres
	if !cfg.Enabled {
		return nil
	}
	c := r.o.Client
	name := r.serviceName("postgres")
	var svc struct{ user, password string }
	if r.o.Secrets != nil {
		svc.user = r.o.Secrets.Services.Postgres.User
		svc.password = r.o.Secrets.Services.Postgres.Password
	}

	out, err := reconcile.FindOrCreate(ctx, reconcile.Request[*controlplane.Postgres]{
		Resource:   "postgres",
		IsConflict: controlplane.IsConflict,
		Key:        name,
		CachedID:   r.st.Services.PostgresID,
		Get:        c.GetPostgres,
		Find: func(ctx context.Context, name string) (*controlplane.Postgres, error) {
			return asMiss(c.FindPostgres(ctx, r.st.EnvironmentID, name))
		},
		Create: func(ctx context.Context) (*controlplane.Postgres, error) {
			password, err := r.servicePassword(svc.password, "POSTGRES_PASSWORD")
			if err != nil {
				return nil, err
			}
			user := svc.user
			if user == "" {
				user = defaultPostgresUser
			}
			version := cfg.Version
			if version == "" {
				version = defaultPostgresVersion
			}
			dbName := cfg.Database
			if dbName == "" {
				dbName = database.Identifier(r.ws.Name)
			}
			pg, err := c.CreatePostgres(ctx, controlplane.PostgresCreate{
				Name:          name,
				AppName:       name,
				EnvironmentID: r.st.EnvironmentID,
				DatabaseName:  dbName,
				DatabaseUser:  user,
				Password:      password,
				DockerImage:   "postgres:" + version,
			})
			if err != nil {
				return nil, err
			}
			r.st.SetPostgresID(pg.ID)
			if err := r.save(); err != nil {
				return nil, err
			}
			if err := c.DeployPostgres(ctx, pg.ID); err != nil {
				return nil, fmt.Errorf("deploying postgres %s: %w", pg.ID, err)
			}
			return pg, nil
		},
		ID: func(pg *controlplane.Postgres) string { return pg.ID },
		Persist: func(id string) error {
			r.st.SetPostgresID(id)
			return r.save()
		},
		OnStaleID: func(id string, err error) {
			r.log.Warn("recorded postgres is gone", "postgres_id", id, "error", err)
			r.st.ClearPostgres()
		},
	})
	if err != nil {
		return err
	}
	r.observe("postgres", out.Action)
	r.postgres = out.Value
	r.endpoints.PostgresHost = out.Value.AppName
	r.endpoints.PostgresPort = postgresPort
	r.endpoints.PostgresDatabase = out.Value.DatabaseName
	return nil
}

func (r *run) ensureRedis(ctx context.Context) error {
	cfg := r.ws.Services.Redis
	if !cfg.Enabled {
		return nil
	}
	c := r.o.Client
	name := r.serviceName("redis")
	var configured string
	if r.o.Secrets != nil {
		configured = r.o.Secrets.Services.Redis.Password
	}

	out, err := reconcile.FindOrCreate(ctx, reconcile.Request[*controlplane.Redis]{
		Resource:   "redis",
		IsConflict: controlplane.IsConflict,
		Key:        name,
		CachedID:   r.st.Services.RedisID,
		Get:        c.GetRedis,
		Find: func(ctx context.Context, name string) (*controlplane.Redis, error) {
			return asMiss(c.FindRedis(ctx, r.st.EnvironmentID, name))
		},
		Create: func(ctx context.Context) (*controlplane.Redis, error) {
			password, err := r.servicePassword(configured, "REDIS_PASSWORD")
			if err != nil {
				return nil, err
			}
			version := cfg.Version
			if version == "" {
				version = defaultRedisVersion
			}
			rd, err := c.CreateRedis(ctx, controlplane.RedisCreate{
				Name:          name,
				AppName:       name,
				EnvironmentID: r.st.EnvironmentID,
				Password:      password,
				DockerImage:   "redis:" + version,
			})
			if err != nil {
				return nil, err
			}
			r.st.SetRedisID(rd.ID)
			if err := r.save(); err != nil {
				return nil, err
			}
			if err := c.DeployRedis(ctx, rd.ID); err != nil {
				return nil, fmt.Errorf("deploying redis %s: %w", rd.ID, err)
			}
			return rd, nil
		},
		ID: func(rd *controlplane.Redis) string { return rd.ID },
		Persist: func(id string) error {
			r.st.SetRedisID(id)
			return r.save()
		},
		OnStaleID: func(id string, err error) {
			r.log.Warn("recorded redis is gone", "redis_id", id, "error", err)
			r.st.ClearRedis()
		},
	})
	if err != nil {
		return err
	}
	r.observe("redis", out.Action)
	r.endpoints.RedisHost = out.Value.AppName
	r.endpoints.RedisPort = redisPort
	r.endpoints.RedisPassword = out.Value.Password
	return nil
}

func (r *run) ensureBackups(ctx context.Context) error {
	if !r.ws.Deploy.Backups.Enabled || r.o.Backups == nil || r.postgres == nil {
		return nil
	}
	b := r.o.Backups(r.st, r.save)
	if _, err := b.Ensure(ctx); err != nil {
		return err
	}
	_, err := b.EnsureSchedule(ctx, r.postgres.ID, r.postgres.DatabaseName)
	return err
}

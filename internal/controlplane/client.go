// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package controlplane

import "context"

// Client is the control-plane surface the orchestrator needs.
//
// Get* methods fail with an error matching ErrNotFound when the identifier
// does not exist. Find* methods search by name and return ErrNotFound on a
// miss. Delete* methods on an absent resource also return ErrNotFound so
// callers can count it as already gone.
type Client interface {
	ListProjects(ctx context.Context) ([]Project, error)
	GetProject(ctx context.Context, id string) (*Project, error)
	CreateProject(ctx context.Context, name, description string) (*Project, error)
	DeleteProject(ctx context.Context, id string) error

	GetEnvironment(ctx context.Context, id string) (*Environment, error)
	CreateEnvironment(ctx context.Context, projectID, name string) (*Environment, error)

	GetApplication(ctx context.Context, id string) (*Application, error)
	FindApplication(ctx context.Context, environmentID, name string) (*Application, error)
	CreateApplication(ctx context.Context, req ApplicationCreate) (*Application, error)
	SaveImage(ctx context.Context, req ApplicationImage) error
	SaveEnvironment(ctx context.Context, req ApplicationEnv) error
	DeployApplication(ctx context.Context, id string) error
	DeleteApplication(ctx context.Context, id string) error

	ListDomains(ctx context.Context, applicationID string) ([]Domain, error)
	CreateDomain(ctx context.Context, req DomainCreate) (*Domain, error)

	ListRegistries(ctx context.Context) ([]Registry, error)
	GetRegistry(ctx context.Context, id string) (*Registry, error)
	CreateRegistry(ctx context.Context, req RegistryCreate) (*Registry, error)

	GetPostgres(ctx context.Context, id string) (*Postgres, error)
	FindPostgres(ctx context.Context, environmentID, name string) (*Postgres, error)
	CreatePostgres(ctx context.Context, req PostgresCreate) (*Postgres, error)
	DeployPostgres(ctx context.Context, id string) error
	SetPostgresExternalPort(ctx context.Context, id string, port *int) error
	DeletePostgres(ctx context.Context, id string) error

	GetRedis(ctx context.Context, id string) (*Redis, error)
	FindRedis(ctx context.Context, environmentID, name string) (*Redis, error)
	CreateRedis(ctx context.Context, req RedisCreate) (*Redis, error)
	DeployRedis(ctx context.Context, id string) error
	DeleteRedis(ctx context.Context, id string) error

	GetDestination(ctx context.Context, id string) (*Destination, error)
	ListDestinations(ctx context.Context) ([]Destination, error)
	CreateDestination(ctx context.Context, req DestinationCreate) (*Destination, error)
	DeleteDestination(ctx context.Context, id string) error

	GetBackup(ctx context.Context, id string) (*Backup, error)
	CreateBackup(ctx context.Context, req BackupCreate) (*Backup, error)
	DeleteBackup(ctx context.Context, id string) error
	RunManualBackup(ctx context.Context, backupID string) error
}

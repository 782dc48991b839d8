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

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Client.
//
// # Description
//
// Every call is appended to a log as "Method" or "Method:arg", which lets
// tests assert ordering. Failures are injected with FailOn using either
// key form; an exact "Method:arg" entry wins over a bare "Method" entry.
//
// # Thread Safety
//
// Memory is safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	seq    int
	calls  []string
	failOn map[string]error

	Projects     map[string]*Project
	Environments map[string]*Environment
	Applications map[string]*Application
	Domains      map[string]*Domain
	Registries   map[string]*Registry
	Postgres     map[string]*Postgres
	Redis        map[string]*Redis
	Destinations map[string]*Destination
	Backups      map[string]*Backup

	// Deployments counts DeployApplication calls per application id.
	Deployments map[string]int
	// ManualBackups lists backup ids passed to RunManualBackup.
	ManualBackups []string
}

// NewMemory returns an empty control plane.
func NewMemory() *Memory {
	return &Memory{
		failOn:       make(map[string]error),
		Projects:     make(map[string]*Project),
		Environments: make(map[string]*Environment),
		Applications: make(map[string]*Application),
		Domains:      make(map[string]*Domain),
		Registries:   make(map[string]*Registry),
		Postgres:     make(map[string]*Postgres),
		Redis:        make(map[string]*Redis),
		Destinations: make(map[string]*Destination),
		Backups:      make(map[string]*Backup),
		Deployments:  make(map[string]int),
	}
}

// FailOn makes calls matching key return err. A nil err clears it.
func (m *Memory) FailOn(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failOn, key)
		return
	}
	m.failOn[key] = err
}

// Calls returns a copy of the call log.
func (m *Memory) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// ResetCalls clears the call log.
func (m *Memory) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// CountCalls returns how many logged calls start with method.
func (m *Memory) CountCalls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == method || strings.HasPrefix(c, method+":") {
			n++
		}
	}
	return n
}

// enter logs a call and returns an injected failure. Caller holds mu.
func (m *Memory) enter(method, arg string) error {
	key := method
	if arg != "" {
		key = method + ":" + arg
	}
	m.calls = append(m.calls, key)
	if err, ok := m.failOn[key]; ok {
		return err
	}
	return m.failOn[method]
}

func (m *Memory) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

func (m *Memory) ListProjects(_ context.Context) ([]Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListProjects", ""); err != nil {
		return nil, err
	}
	out := make([]Project, 0, len(m.Projects))
	for _, p := range m.Projects {
		out = append(out, m.projectWithEnvs(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) projectWithEnvs(p *Project) Project {
	cp := *p
	cp.Environments = nil
	for _, e := range m.Environments {
		if e.ProjectID == p.ID {
			cp.Environments = append(cp.Environments, *e)
		}
	}
	sort.Slice(cp.Environments, func(i, j int) bool { return cp.Environments[i].ID < cp.Environments[j].ID })
	return cp
}

func (m *Memory) GetProject(_ context.Context, id string) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetProject", id); err != nil {
		return nil, err
	}
	p, ok := m.Projects[id]
	if !ok {
		return nil, notFound("project", id)
	}
	cp := m.projectWithEnvs(p)
	return &cp, nil
}

func (m *Memory) CreateProject(_ context.Context, name, description string) (*Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateProject", name); err != nil {
		return nil, err
	}
	p := &Project{ID: m.nextID("proj"), Name: name, Description: description}
	m.Projects[p.ID] = p
	cp := *p
	return &cp, nil
}

func (m *Memory) DeleteProject(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteProject", id); err != nil {
		return err
	}
	if _, ok := m.Projects[id]; !ok {
		return notFound("project", id)
	}
	delete(m.Projects, id)
	return nil
}

func (m *Memory) GetEnvironment(_ context.Context, id string) (*Environment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetEnvironment", id); err != nil {
		return nil, err
	}
	e, ok := m.Environments[id]
	if !ok {
		return nil, notFound("environment", id)
	}
	cp := *e
	return &cp, nil
}

func (m *Memory) CreateEnvironment(_ context.Context, projectID, name string) (*Environment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateEnvironment", name); err != nil {
		return nil, err
	}
	if _, ok := m.Projects[projectID]; !ok {
		return nil, notFound("project", projectID)
	}
	e := &Environment{ID: m.nextID("env"), Name: name, ProjectID: projectID}
	m.Environments[e.ID] = e
	cp := *e
	return &cp, nil
}

func (m *Memory) applicationWithDomains(a *Application) *Application {
	cp := *a
	cp.Domains = nil
	for _, d := range m.Domains {
		if d.ApplicationID == a.ID {
			cp.Domains = append(cp.Domains, *d)
		}
	}
	sort.Slice(cp.Domains, func(i, j int) bool { return cp.Domains[i].ID < cp.Domains[j].ID })
	return &cp
}

func (m *Memory) GetApplication(_ context.Context, id string) (*Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetApplication", id); err != nil {
		return nil, err
	}
	a, ok := m.Applications[id]
	if !ok {
		return nil, notFound("application", id)
	}
	return m.applicationWithDomains(a), nil
}

func (m *Memory) FindApplication(_ context.Context, environmentID, name string) (*Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindApplication", name); err != nil {
		return nil, err
	}
	for _, a := range m.Applications {
		if a.EnvironmentID == environmentID && a.Name == name {
			return m.applicationWithDomains(a), nil
		}
	}
	return nil, notFound("application", name)
}

func (m *Memory) CreateApplication(_ context.Context, req ApplicationCreate) (*Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateApplication", req.Name); err != nil {
		return nil, err
	}
	a := &Application{ID: m.nextID("app"), Name: req.Name, AppName: req.AppName, EnvironmentID: req.EnvironmentID}
	m.Applications[a.ID] = a
	cp := *a
	return &cp, nil
}

func (m *Memory) SaveImage(_ context.Context, req ApplicationImage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SaveImage", req.ApplicationID); err != nil {
		return err
	}
	a, ok := m.Applications[req.ApplicationID]
	if !ok {
		return notFound("application", req.ApplicationID)
	}
	a.DockerImage = req.DockerImage
	a.RegistryID = req.RegistryID
	return nil
}

func (m *Memory) SaveEnvironment(_ context.Context, req ApplicationEnv) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SaveEnvironment", req.ApplicationID); err != nil {
		return err
	}
	a, ok := m.Applications[req.ApplicationID]
	if !ok {
		return notFound("application", req.ApplicationID)
	}
	a.Env = req.Env
	a.BuildArgs = req.BuildArgs
	return nil
}

func (m *Memory) DeployApplication(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeployApplication", id); err != nil {
		return err
	}
	a, ok := m.Applications[id]
	if !ok {
		return notFound("application", id)
	}
	a.Status = "done"
	m.Deployments[id]++
	return nil
}

func (m *Memory) DeleteApplication(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteApplication", id); err != nil {
		return err
	}
	if _, ok := m.Applications[id]; !ok {
		return notFound("application", id)
	}
	delete(m.Applications, id)
	for did, d := range m.Domains {
		if d.ApplicationID == id {
			delete(m.Domains, did)
		}
	}
	return nil
}

func (m *Memory) ListDomains(_ context.Context, applicationID string) ([]Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListDomains", applicationID); err != nil {
		return nil, err
	}
	a, ok := m.Applications[applicationID]
	if !ok {
		return nil, notFound("application", applicationID)
	}
	return m.applicationWithDomains(a).Domains, nil
}

func (m *Memory) CreateDomain(_ context.Context, req DomainCreate) (*Domain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateDomain", req.Host); err != nil {
		return nil, err
	}
	if _, ok := m.Applications[req.ApplicationID]; !ok {
		return nil, notFound("application", req.ApplicationID)
	}
	d := &Domain{
		ID:              m.nextID("dom"),
		ApplicationID:   req.ApplicationID,
		Host:            req.Host,
		Port:            req.Port,
		HTTPS:           req.HTTPS,
		CertificateType: req.CertificateType,
	}
	m.Domains[d.ID] = d
	cp := *d
	return &cp, nil
}

func (m *Memory) ListRegistries(_ context.Context) ([]Registry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListRegistries", ""); err != nil {
		return nil, err
	}
	out := make([]Registry, 0, len(m.Registries))
	for _, r := range m.Registries {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetRegistry(_ context.Context, id string) (*Registry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetRegistry", id); err != nil {
		return nil, err
	}
	r, ok := m.Registries[id]
	if !ok {
		return nil, notFound("registry", id)
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) CreateRegistry(_ context.Context, req RegistryCreate) (*Registry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateRegistry", req.Name); err != nil {
		return nil, err
	}
	r := &Registry{ID: m.nextID("reg"), Name: req.Name, URL: req.URL, Username: req.Username, Prefix: req.Prefix}
	m.Registries[r.ID] = r
	cp := *r
	return &cp, nil
}

func (m *Memory) GetPostgres(_ context.Context, id string) (*Postgres, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetPostgres", id); err != nil {
		return nil, err
	}
	p, ok := m.Postgres[id]
	if !ok {
		return nil, notFound("postgres", id)
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) FindPostgres(_ context.Context, environmentID, name string) (*Postgres, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindPostgres", name); err != nil {
		return nil, err
	}
	for _, p := range m.Postgres {
		if p.EnvironmentID == environmentID && p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, notFound("postgres", name)
}

func (m *Memory) CreatePostgres(_ context.Context, req PostgresCreate) (*Postgres, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreatePostgres", req.Name); err != nil {
		return nil, err
	}
	p := &Postgres{
		ID:            m.nextID("pg"),
		Name:          req.Name,
		AppName:       req.AppName,
		EnvironmentID: req.EnvironmentID,
		DatabaseName:  req.DatabaseName,
		DatabaseUser:  req.DatabaseUser,
		Password:      req.Password,
		DockerImage:   req.DockerImage,
	}
	m.Postgres[p.ID] = p
	cp := *p
	return &cp, nil
}

func (m *Memory) DeployPostgres(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeployPostgres", id); err != nil {
		return err
	}
	p, ok := m.Postgres[id]
	if !ok {
		return notFound("postgres", id)
	}
	p.Status = "done"
	return nil
}

func (m *Memory) SetPostgresExternalPort(_ context.Context, id string, port *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("SetPostgresExternalPort", id); err != nil {
		return err
	}
	p, ok := m.Postgres[id]
	if !ok {
		return notFound("postgres", id)
	}
	if port == nil {
		p.ExternalPort = nil
	} else {
		v := *port
		p.ExternalPort = &v
	}
	return nil
}

func (m *Memory) DeletePostgres(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeletePostgres", id); err != nil {
		return err
	}
	if _, ok := m.Postgres[id]; !ok {
		return notFound("postgres", id)
	}
	delete(m.Postgres, id)
	return nil
}

func (m *Memory) GetRedis(_ context.Context, id string) (*Redis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetRedis", id); err != nil {
		return nil, err
	}
	r, ok := m.Redis[id]
	if !ok {
		return nil, notFound("redis", id)
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) FindRedis(_ context.Context, environmentID, name string) (*Redis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("FindRedis", name); err != nil {
		return nil, err
	}
	for _, r := range m.Redis {
		if r.EnvironmentID == environmentID && r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, notFound("redis", name)
}

func (m *Memory) CreateRedis(_ context.Context, req RedisCreate) (*Redis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateRedis", req.Name); err != nil {
		return nil, err
	}
	r := &Redis{
		ID:            m.nextID("redis"),
		Name:          req.Name,
		AppName:       req.AppName,
		EnvironmentID: req.EnvironmentID,
		Password:      req.Password,
		DockerImage:   req.DockerImage,
	}
	m.Redis[r.ID] = r
	cp := *r
	return &cp, nil
}

func (m *Memory) DeployRedis(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeployRedis", id); err != nil {
		return err
	}
	r, ok := m.Redis[id]
	if !ok {
		return notFound("redis", id)
	}
	r.Status = "done"
	return nil
}

func (m *Memory) DeleteRedis(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteRedis", id); err != nil {
		return err
	}
	if _, ok := m.Redis[id]; !ok {
		return notFound("redis", id)
	}
	delete(m.Redis, id)
	return nil
}

func (m *Memory) GetDestination(_ context.Context, id string) (*Destination, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetDestination", id); err != nil {
		return nil, err
	}
	d, ok := m.Destinations[id]
	if !ok {
		return nil, notFound("destination", id)
	}
	cp := *d
	return &cp, nil
}

func (m *Memory) ListDestinations(_ context.Context) ([]Destination, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListDestinations", ""); err != nil {
		return nil, err
	}
	out := make([]Destination, 0, len(m.Destinations))
	for _, d := range m.Destinations {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateDestination(_ context.Context, req DestinationCreate) (*Destination, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateDestination", req.Name); err != nil {
		return nil, err
	}
	d := &Destination{
		ID:              m.nextID("dest"),
		Name:            req.Name,
		Provider:        req.Provider,
		AccessKey:       req.AccessKey,
		SecretAccessKey: req.SecretAccessKey,
		Bucket:          req.Bucket,
		Region:          req.Region,
		Endpoint:        req.Endpoint,
	}
	m.Destinations[d.ID] = d
	cp := *d
	return &cp, nil
}

func (m *Memory) DeleteDestination(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteDestination", id); err != nil {
		return err
	}
	if _, ok := m.Destinations[id]; !ok {
		return notFound("destination", id)
	}
	delete(m.Destinations, id)
	return nil
}

func (m *Memory) GetBackup(_ context.Context, id string) (*Backup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetBackup", id); err != nil {
		return nil, err
	}
	b, ok := m.Backups[id]
	if !ok {
		return nil, notFound("backup", id)
	}
	cp := *b
	return &cp, nil
}

func (m *Memory) CreateBackup(_ context.Context, req BackupCreate) (*Backup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateBackup", req.DestinationID); err != nil {
		return nil, err
	}
	b := &Backup{
		ID:              m.nextID("bak"),
		Schedule:        req.Schedule,
		Prefix:          req.Prefix,
		Database:        req.Database,
		DestinationID:   req.DestinationID,
		PostgresID:      req.PostgresID,
		Enabled:         req.Enabled,
		KeepLatestCount: req.KeepLatestCount,
		DatabaseType:    req.DatabaseType,
	}
	m.Backups[b.ID] = b
	cp := *b
	return &cp, nil
}

func (m *Memory) DeleteBackup(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteBackup", id); err != nil {
		return err
	}
	if _, ok := m.Backups[id]; !ok {
		return notFound("backup", id)
	}
	delete(m.Backups, id)
	return nil
}

func (m *Memory) RunManualBackup(_ context.Context, backupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("RunManualBackup", backupID); err != nil {
		return err
	}
	if _, ok := m.Backups[backupID]; !ok {
		return notFound("backup", backupID)
	}
	m.ManualBackups = append(m.ManualBackups, backupID)
	return nil
}

var _ Client = (*Memory)(nil)

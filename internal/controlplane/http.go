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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// HTTPConfig configures HTTPClient.
type HTTPConfig struct {
	// BaseURL is the platform root, e.g. https://deploy.example.com.
	BaseURL string
	// Token is sent as the x-api-key header.
	Token string
	// RequestsPerSecond paces calls. Zero means 5.
	RequestsPerSecond float64
	// Timeout bounds a single request. Zero means 60s.
	Timeout time.Duration
	// HTTP overrides the transport, mainly for tests.
	HTTP *http.Client
}

// HTTPClient implements Client over the platform's HTTP+JSON API.
//
// # Description
//
// Queries are GET /api/<procedure>?<params>; mutations are POST
// /api/<procedure> with a JSON body. Every request waits on a token bucket
// so a large workspace does not trip the platform's rate limits.
//
// # Thread Safety
//
// HTTPClient is safe for concurrent use.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// NewHTTPClient validates cfg and returns a client.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid control-plane URL %q", cfg.BaseURL)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("%w: empty API token", ErrUnauthorized)
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	hc := cfg.HTTP
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &HTTPClient{
		baseURL: base.String(),
		token:   cfg.Token,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

func (c *HTTPClient) query(ctx context.Context, procedure string, params url.Values, out any) error {
	return c.do(ctx, http.MethodGet, procedure, params, nil, out)
}

func (c *HTTPClient) mutate(ctx context.Context, procedure string, body, out any) error {
	return c.do(ctx, http.MethodPost, procedure, nil, body, out)
}

func (c *HTTPClient) do(ctx context.Context, method, procedure string, params url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := c.baseURL + "/api/" + procedure
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", procedure, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("building %s request: %w", procedure, err)
	}
	req.Header.Set("x-api-key", c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("control plane %s %s: %w", method, procedure, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("reading %s response: %w", procedure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Method: method, Procedure: procedure}
		var payload struct {
			Message string  `json:"message"`
			Issues  []Issue `json:"issues"`
		}
		if json.Unmarshal(data, &payload) == nil {
			apiErr.Message = payload.Message
			apiErr.Issues = payload.Issues
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", procedure, err)
	}
	return nil
}

func one(key, value string) url.Values {
	return url.Values{key: []string{value}}
}

// environmentDetail is environment.one including its services.
type environmentDetail struct {
	Environment
	Applications []Application `json:"applications"`
	Postgres     []Postgres    `json:"postgres"`
	Redis        []Redis       `json:"redis"`
}

func (c *HTTPClient) environmentDetail(ctx context.Context, id string) (*environmentDetail, error) {
	var d environmentDetail
	if err := c.query(ctx, "environment.one", one("environmentId", id), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListProjects returns every project visible to the token.
func (c *HTTPClient) ListProjects(ctx context.Context) ([]Project, error) {
	var out []Project
	err := c.query(ctx, "project.all", nil, &out)
	return out, err
}

// GetProject fetches a project with its environments.
func (c *HTTPClient) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	if err := c.query(ctx, "project.one", one("projectId", id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProject creates a project.
func (c *HTTPClient) CreateProject(ctx context.Context, name, description string) (*Project, error) {
	var p Project
	err := c.mutate(ctx, "project.create", map[string]string{"name": name, "description": description}, &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProject removes a project and everything in it.
func (c *HTTPClient) DeleteProject(ctx context.Context, id string) error {
	return c.mutate(ctx, "project.remove", map[string]string{"projectId": id}, nil)
}

// GetEnvironment fetches an environment.
func (c *HTTPClient) GetEnvironment(ctx context.Context, id string) (*Environment, error) {
	d, err := c.environmentDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	return &d.Environment, nil
}

// CreateEnvironment creates an environment inside a project.
func (c *HTTPClient) CreateEnvironment(ctx context.Context, projectID, name string) (*Environment, error) {
	var e Environment
	err := c.mutate(ctx, "environment.create", map[string]string{"projectId": projectID, "name": name}, &e)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetApplication fetches an application with its domains.
func (c *HTTPClient) GetApplication(ctx context.Context, id string) (*Application, error) {
	var a Application
	if err := c.query(ctx, "application.one", one("applicationId", id), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// FindApplication returns the application called name in an environment.
func (c *HTTPClient) FindApplication(ctx context.Context, environmentID, name string) (*Application, error) {
	d, err := c.environmentDetail(ctx, environmentID)
	if err != nil {
		return nil, err
	}
	for i := range d.Applications {
		if d.Applications[i].Name == name {
			return &d.Applications[i], nil
		}
	}
	return nil, fmt.Errorf("application %q: %w", name, ErrNotFound)
}

// CreateApplication creates an application.
func (c *HTTPClient) CreateApplication(ctx context.Context, req ApplicationCreate) (*Application, error) {
	var a Application
	if err := c.mutate(ctx, "application.create", req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SaveImage points an application at an image.
func (c *HTTPClient) SaveImage(ctx context.Context, req ApplicationImage) error {
	return c.mutate(ctx, "application.saveDockerProvider", req, nil)
}

// SaveEnvironment replaces an application's variables.
func (c *HTTPClient) SaveEnvironment(ctx context.Context, req ApplicationEnv) error {
	return c.mutate(ctx, "application.saveEnvironment", req, nil)
}

// DeployApplication queues a deployment.
func (c *HTTPClient) DeployApplication(ctx context.Context, id string) error {
	return c.mutate(ctx, "application.deploy", map[string]string{"applicationId": id}, nil)
}

// DeleteApplication deletes an application.
func (c *HTTPClient) DeleteApplication(ctx context.Context, id string) error {
	return c.mutate(ctx, "application.delete", map[string]string{"applicationId": id}, nil)
}

// ListDomains returns the domain bindings of an application.
func (c *HTTPClient) ListDomains(ctx context.Context, applicationID string) ([]Domain, error) {
	var out []Domain
	err := c.query(ctx, "domain.byApplicationId", one("applicationId", applicationID), &out)
	return out, err
}

// CreateDomain binds a hostname to an application.
func (c *HTTPClient) CreateDomain(ctx context.Context, req DomainCreate) (*Domain, error) {
	var d Domain
	if err := c.mutate(ctx, "domain.create", req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListRegistries returns every registry.
func (c *HTTPClient) ListRegistries(ctx context.Context) ([]Registry, error) {
	var out []Registry
	err := c.query(ctx, "registry.all", nil, &out)
	return out, err
}

// GetRegistry fetches a registry.
func (c *HTTPClient) GetRegistry(ctx context.Context, id string) (*Registry, error) {
	var r Registry
	if err := c.query(ctx, "registry.one", one("registryId", id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRegistry registers an image registry.
func (c *HTTPClient) CreateRegistry(ctx context.Context, req RegistryCreate) (*Registry, error) {
	var r Registry
	if err := c.mutate(ctx, "registry.create", req, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetPostgres fetches a Postgres service.
func (c *HTTPClient) GetPostgres(ctx context.Context, id string) (*Postgres, error) {
	var p Postgres
	if err := c.query(ctx, "postgres.one", one("postgresId", id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// FindPostgres returns the Postgres service called name in an environment.
func (c *HTTPClient) FindPostgres(ctx context.Context, environmentID, name string) (*Postgres, error) {
	d, err := c.environmentDetail(ctx, environmentID)
	if err != nil {
		return nil, err
	}
	for i := range d.Postgres {
		if d.Postgres[i].Name == name {
			return &d.Postgres[i], nil
		}
	}
	return nil, fmt.Errorf("postgres %q: %w", name, ErrNotFound)
}

// CreatePostgres creates a Postgres service.
func (c *HTTPClient) CreatePostgres(ctx context.Context, req PostgresCreate) (*Postgres, error) {
	var p Postgres
	if err := c.mutate(ctx, "postgres.create", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeployPostgres starts or restarts a Postgres service.
func (c *HTTPClient) DeployPostgres(ctx context.Context, id string) error {
	return c.mutate(ctx, "postgres.deploy", map[string]string{"postgresId": id}, nil)
}

// SetPostgresExternalPort exposes (non-nil) or hides (nil) the service port.
func (c *HTTPClient) SetPostgresExternalPort(ctx context.Context, id string, port *int) error {
	body := struct {
		PostgresID   string `json:"postgresId"`
		ExternalPort *int   `json:"externalPort"`
	}{id, port}
	return c.mutate(ctx, "postgres.saveExternalPort", body, nil)
}

// DeletePostgres removes a Postgres service.
func (c *HTTPClient) DeletePostgres(ctx context.Context, id string) error {
	return c.mutate(ctx, "postgres.remove", map[string]string{"postgresId": id}, nil)
}

// GetRedis fetches a Redis service.
func (c *HTTPClient) GetRedis(ctx context.Context, id string) (*Redis, error) {
	var r Redis
	if err := c.query(ctx, "redis.one", one("redisId", id), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// FindRedis returns the Redis service called name in an environment.
func (c *HTTPClient) FindRedis(ctx context.Context, environmentID, name string) (*Redis, error) {
	d, err := c.environmentDetail(ctx, environmentID)
	if err != nil {
		return nil, err
	}
	for i := range d.Redis {
		if d.Redis[i].Name == name {
			return &d.Redis[i], nil
		}
	}
	return nil, fmt.Errorf("redis %q: %w", name, ErrNotFound)
}

// CreateRedis creates a Redis service.
func (c *HTTPClient) CreateRedis(ctx context.Context, req RedisCreate) (*Redis, error) {
	var r Redis
	if err := c.mutate(ctx, "redis.create", req, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// DeployRedis starts or restarts a Redis service.
func (c *HTTPClient) DeployRedis(ctx context.Context, id string) error {
	return c.mutate(ctx, "redis.deploy", map[string]string{"redisId": id}, nil)
}

// DeleteRedis removes a Redis service.
func (c *HTTPClient) DeleteRedis(ctx context.Context, id string) error {
	return c.mutate(ctx, "redis.remove", map[string]string{"redisId": id}, nil)
}

// GetDestination fetches a backup destination.
func (c *HTTPClient) GetDestination(ctx context.Context, id string) (*Destination, error) {
	var d Destination
	if err := c.query(ctx, "destination.one", one("destinationId", id), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDestinations returns every backup destination.
func (c *HTTPClient) ListDestinations(ctx context.Context) ([]Destination, error) {
	var out []Destination
	err := c.query(ctx, "destination.all", nil, &out)
	return out, err
}

// CreateDestination registers a backup destination.
func (c *HTTPClient) CreateDestination(ctx context.Context, req DestinationCreate) (*Destination, error) {
	var d Destination
	if err := c.mutate(ctx, "destination.create", req, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// DeleteDestination removes a backup destination.
func (c *HTTPClient) DeleteDestination(ctx context.Context, id string) error {
	return c.mutate(ctx, "destination.remove", map[string]string{"destinationId": id}, nil)
}

// GetBackup fetches a backup schedule.
func (c *HTTPClient) GetBackup(ctx context.Context, id string) (*Backup, error) {
	var b Backup
	if err := c.query(ctx, "backup.one", one("backupId", id), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBackup creates a backup schedule.
func (c *HTTPClient) CreateBackup(ctx context.Context, req BackupCreate) (*Backup, error) {
	var b Backup
	if err := c.mutate(ctx, "backup.create", req, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// DeleteBackup removes a backup schedule.
func (c *HTTPClient) DeleteBackup(ctx context.Context, id string) error {
	return c.mutate(ctx, "backup.remove", map[string]string{"backupId": id}, nil)
}

// RunManualBackup triggers one backup now.
func (c *HTTPClient) RunManualBackup(ctx context.Context, backupID string) error {
	return c.mutate(ctx, "backup.manualBackupPostgres", map[string]string{"backupId": backupID}, nil)
}

var _ Client = (*HTTPClient)(nil)

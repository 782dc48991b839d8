// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package envresolve

import (
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/AleutianAI/launchpad/internal/secrets"
	"github.com/AleutianAI/launchpad/internal/state"
	"github.com/AleutianAI/launchpad/internal/workspace"
)

// Well-known variable names.
const (
	VarPort                 = "PORT"
	VarNodeEnv              = "NODE_ENV"
	VarStage                = "STAGE"
	VarDatabaseURL          = "DATABASE_URL"
	VarRedisURL             = "REDIS_URL"
	VarAuthURL              = "BETTER_AUTH_URL"
	VarAuthSecret           = "BETTER_AUTH_SECRET"
	VarAuthTrustedOrigins   = "BETTER_AUTH_TRUSTED_ORIGINS"
	VarSecretsMasterKey     = "SECRETS_MASTER_KEY"
	deployedNodeEnvironment = "production"
)

// AuthSecretBytes is the random length of generated auth secrets.
const AuthSecretBytes = 32

// ServiceEndpoints are the internal addresses of provisioned services.
type ServiceEndpoints struct {
	PostgresHost     string
	PostgresPort     int
	PostgresDatabase string
	RedisHost        string
	RedisPort        int
	RedisPassword    string
}

// Context is everything the resolver may draw a value from for one app.
type Context struct {
	App    string
	Config workspace.AppConfig
	Stage  string

	// State backs generated secrets. Nil disables secret generation.
	State *state.DeployState

	Services    ServiceEndpoints
	Credentials *state.Credentials

	// DeployedURLs maps app names to public URLs of apps already deployed.
	DeployedURLs map[string]string
	FrontendURLs []string
	PublicURL    string
	MasterKey    string

	Secrets *secrets.StageSecrets
}

// Result is the outcome of batch resolution.
type Result struct {
	Resolved map[string]string
	Missing  []string
}

// Resolver maps variable names to values.
//
// # Description
//
// Rules are tried in a fixed order and the first match wins:
//
//  1. Structural: PORT, NODE_ENV, STAGE.
//  2. Computed: service URLs, auth URL/secret/origins, master key.
//  3. Dependency convention: <DEP>_URL for a declared, deployed dependency.
//  4. Stage secret store.
//
// A name no rule matches is missing. Nothing is defaulted silently.
//
// # Thread Safety
//
// Resolver holds no state; Context.State is mutated when a secret is
// generated, so one Context must not be resolved concurrently.
type Resolver struct {
	// Generate produces auth secrets. Defaults to state.GenerateSecret.
	Generate func() (string, error)
}

// New returns a resolver with the default secret generator.
func New() *Resolver {
	return &Resolver{}
}

func (r *Resolver) generate() (string, error) {
	if r.Generate != nil {
		return r.Generate()
	}
	return state.GenerateSecret(AuthSecretBytes)
}

// Resolve returns the value of name for ctx.
func (r *Resolver) Resolve(name string, ctx *Context) (string, bool) {
	if v, ok := r.structural(name, ctx); ok {
		return v, true
	}
	if v, ok := r.computed(name, ctx); ok {
		return v, true
	}
	if v, ok := dependencyURL(name, ctx); ok {
		return v, true
	}
	return ctx.Secrets.Lookup(name)
}

// ResolveAll resolves every name. Missing names are returned sorted and
// de-duplicated.
func (r *Resolver) ResolveAll(names []string, ctx *Context) Result {
	res := Result{Resolved: make(map[string]string)}
	seen := make(map[string]bool)
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if v, ok := r.Resolve(name, ctx); ok {
			res.Resolved[name] = v
			continue
		}
		res.Missing = append(res.Missing, name)
	}
	sort.Strings(res.Missing)
	return res
}

func (r *Resolver) structural(name string, ctx *Context) (string, bool) {
	switch name {
	case VarPort:
		if ctx.Config.Port == 0 {
			return "", false
		}
		return strconv.Itoa(ctx.Config.Port), true
	case VarNodeEnv:
		return deployedNodeEnvironment, true
	case VarStage:
		return ctx.Stage, ctx.Stage != ""
	}
	return "", false
}

func (r *Resolver) computed(name string, ctx *Context) (string, bool) {
	switch name {
	case VarDatabaseURL:
		return databaseURL(ctx)
	case VarRedisURL:
		return redisURL(ctx)
	case VarAuthURL:
		return ctx.PublicURL, ctx.PublicURL != ""
	case VarAuthSecret:
		if ctx.State == nil {
			return "", false
		}
		v, err := ctx.State.GetOrGenerateSecret(ctx.App, name, r.generate)
		if err != nil {
			return "", false
		}
		return v, true
	case VarAuthTrustedOrigins:
		if len(ctx.FrontendURLs) == 0 {
			return "", false
		}
		return strings.Join(ctx.FrontendURLs, ","), true
	case VarSecretsMasterKey:
		return ctx.MasterKey, ctx.MasterKey != ""
	}
	return "", false
}

func databaseURL(ctx *Context) (string, bool) {
	svc := ctx.Services
	if svc.PostgresHost == "" || ctx.Credentials == nil || ctx.Credentials.DBPassword == "" {
		return "", false
	}
	port := svc.PostgresPort
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(ctx.Credentials.DBUser, ctx.Credentials.DBPassword),
		Host:   net.JoinHostPort(svc.PostgresHost, strconv.Itoa(port)),
		Path:   "/" + svc.PostgresDatabase,
	}
	return u.String(), true
}

func redisURL(ctx *Context) (string, bool) {
	svc := ctx.Services
	if svc.RedisHost == "" {
		return "", false
	}
	port := svc.RedisPort
	if port == 0 {
		port = 6379
	}
	u := url.URL{Scheme: "redis", Host: net.JoinHostPort(svc.RedisHost, strconv.Itoa(port))}
	if svc.RedisPassword != "" {
		u.User = url.UserPassword("default", svc.RedisPassword)
	}
	return u.String(), true
}

// DependencyVar returns the <DEP>_URL variable name for a dependency.
func DependencyVar(dep string) string {
	return strings.ToUpper(strings.ReplaceAll(dep, "-", "_")) + "_URL"
}

func dependencyURL(name string, ctx *Context) (string, bool) {
	if !strings.HasSuffix(name, "_URL") {
		return "", false
	}
	for _, dep := range ctx.Config.Dependencies {
		if !strings.EqualFold(DependencyVar(dep), name) {
			continue
		}
		u, ok := ctx.DeployedURLs[dep]
		return u, ok && u != ""
	}
	return "", false
}

// Provides returns a predicate that reports whether a variable is supplied
// by a rule other than the secret store for an app with cfg. Service URLs
// count only when services runs that service for the app.
func Provides(cfg workspace.AppConfig, services workspace.ServicesConfig) secrets.Provided {
	deps := make(map[string]bool, len(cfg.Dependencies))
	for _, d := range cfg.Dependencies {
		deps[DependencyVar(d)] = true
	}
	database := services.Postgres.Enabled && (cfg.Database == nil || *cfg.Database)
	return func(name string) bool {
		switch name {
		case VarPort, VarNodeEnv, VarStage,
			VarAuthURL, VarAuthSecret, VarAuthTrustedOrigins, VarSecretsMasterKey:
			return true
		case VarDatabaseURL:
			return database
		case VarRedisURL:
			return services.Redis.Enabled
		}
	return deps[strings.ToUpper(name)]
	}
}

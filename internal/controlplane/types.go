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

// Project groups the environments of one workspace.
type Project struct {
	ID           string        `json:"projectId"`
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	Environments []Environment `json:"environments,omitempty"`
}

// Environment is one stage inside a project.
type Environment struct {
	ID        string `json:"environmentId"`
	Name      string `json:"name"`
	ProjectID string `json:"projectId"`
}

// Application is a deployable container application.
type Application struct {
	ID            string   `json:"applicationId"`
	Name          string   `json:"name"`
	AppName       string   `json:"appName,omitempty"`
	EnvironmentID string   `json:"environmentId"`
	DockerImage   string   `json:"dockerImage,omitempty"`
	RegistryID    string   `json:"registryId,omitempty"`
	Env           string   `json:"env,omitempty"`
	BuildArgs     string   `json:"buildArgs,omitempty"`
	Status        string   `json:"applicationStatus,omitempty"`
	Domains       []Domain `json:"domains,omitempty"`
}

// Domain binds a public hostname to an application port.
type Domain struct {
	ID              string `json:"domainId"`
	ApplicationID   string `json:"applicationId"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	HTTPS           bool   `json:"https"`
	CertificateType string `json:"certificateType,omitempty"`
}

// Registry is an image registry the platform pulls from.
type Registry struct {
	ID       string `json:"registryId"`
	Name     string `json:"registryName"`
	URL      string `json:"registryUrl"`
	Username string `json:"username"`
	Prefix   string `json:"imagePrefix,omitempty"`
}

// Postgres is a managed Postgres service.
type Postgres struct {
	ID            string `json:"postgresId"`
	Name          string `json:"name"`
	AppName       string `json:"appName"`
	EnvironmentID string `json:"environmentId"`
	DatabaseName  string `json:"databaseName"`
	DatabaseUser  string `json:"databaseUser"`
	Password      string `json:"databasePassword"`
	DockerImage   string `json:"dockerImage,omitempty"`
	ExternalPort  *int   `json:"externalPort"`
	Status        string `json:"applicationStatus,omitempty"`
}

// Redis is a managed Redis service.
type Redis struct {
	ID            string `json:"redisId"`
	Name          string `json:"name"`
	AppName       string `json:"appName"`
	EnvironmentID string `json:"environmentId"`
	Password      string `json:"databasePassword"`
	DockerImage   string `json:"dockerImage,omitempty"`
	Status        string `json:"applicationStatus,omitempty"`
}

// Destination is an S3-compatible backup target.
type Destination struct {
	ID              string `json:"destinationId"`
	Name            string `json:"name"`
	Provider        string `json:"provider,omitempty"`
	AccessKey       string `json:"accessKey"`
	SecretAccessKey string `json:"secretAccessKey"`
	Bucket          string `json:"bucket"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
}

// Backup is a scheduled database backup.
type Backup struct {
	ID              string `json:"backupId"`
	Schedule        string `json:"schedule"`
	Prefix          string `json:"prefix"`
	Database        string `json:"database"`
	DestinationID   string `json:"destinationId"`
	PostgresID      string `json:"postgresId,omitempty"`
	Enabled         bool   `json:"enabled"`
	KeepLatestCount int    `json:"keepLatestCount,omitempty"`
	DatabaseType    string `json:"databaseType"`
}

// ApplicationCreate is the create request for an application.
type ApplicationCreate struct {
	Name          string `json:"name"`
	AppName       string `json:"appName,omitempty"`
	Description   string `json:"description,omitempty"`
	EnvironmentID string `json:"environmentId"`
}

// ApplicationImage points an application at a prebuilt image.
type ApplicationImage struct {
	ApplicationID string `json:"applicationId"`
	DockerImage   string `json:"dockerImage"`
	RegistryID    string `json:"registryId,omitempty"`
}

// ApplicationEnv replaces an application's runtime and build variables.
// Both are newline separated KEY=VALUE lists.
type ApplicationEnv struct {
	ApplicationID string `json:"applicationId"`
	Env           string `json:"env"`
	BuildArgs     string `json:"buildArgs"`
}

// DomainCreate is the create request for a domain binding.
type DomainCreate struct {
	ApplicationID   string `json:"applicationId"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	HTTPS           bool   `json:"https"`
	CertificateType string `json:"certificateType,omitempty"`
}

// RegistryCreate is the create request for a registry.
type RegistryCreate struct {
	Name     string `json:"registryName"`
	URL      string `json:"registryUrl"`
	Username string `json:"username"`
	Password string `json:"password"`
	Prefix   string `json:"imagePrefix,omitempty"`
}

// PostgresCreate is the create request for a Postgres service.
type PostgresCreate struct {
	Name          string `json:"name"`
	AppName       string `json:"appName"`
	EnvironmentID string `json:"environmentId"`
	DatabaseName  string `json:"databaseName"`
	DatabaseUser  string `json:"databaseUser"`
	Password      string `json:"databasePassword"`
	DockerImage   string `json:"dockerImage,omitempty"`
}

// RedisCreate is the create request for a Redis service.
type RedisCreate struct {
	Name          string `json:"name"`
	AppName       string `json:"appName"`
	EnvironmentID string `json:"environmentId"`
	Password      string `json:"databasePassword"`
	DockerImage   string `json:"dockerImage,omitempty"`
}

// DestinationCreate is the create request for a backup destination.
type DestinationCreate struct {
	Name            string `json:"name"`
	Provider        string `json:"provider,omitempty"`
	AccessKey       string `json:"accessKey"`
	SecretAccessKey string `json:"secretAccessKey"`
	Bucket          string `json:"bucket"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
}

// BackupCreate is the create request for a backup schedule.
type BackupCreate struct {
	Schedule        string `json:"schedule"`
	Prefix          string `json:"prefix"`
	Database        string `json:"database"`
	DestinationID   string `json:"destinationId"`
	PostgresID      string `json:"postgresId"`
	Enabled         bool   `json:"enabled"`
	KeepLatestCount int    `json:"keepLatestCount,omitempty"`
	DatabaseType    string `json:"databaseType"`
}

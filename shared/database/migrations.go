package database

import "embed"

// MigrationsFS holds the auth-service schema (users, refresh_tokens).
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS

// MigrationsDir is the directory inside MigrationsFS.
const MigrationsDir = "migrations"

// ProfileMigrationsFS holds the user-service schema (profiles).
//
//go:embed profile_migrations/*.sql
var ProfileMigrationsFS embed.FS

// ProfileMigrationsDir is the directory inside ProfileMigrationsFS.
const ProfileMigrationsDir = "profile_migrations"

package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/nepalentity/entmigrate"
)

func getConfigFromEnv() entmigrate.Config {
	// A missing .env file is fine; the environment wins either way.
	_ = godotenv.Load()

	migrationsDir := os.Getenv("ENTMIGRATE_MIGRATIONS_DIR")
	if migrationsDir == "" {
		migrationsDir = "./migrations"
	}

	repoPath := os.Getenv("ENTMIGRATE_REPO_PATH")
	if repoPath == "" {
		repoPath = "./db"
	}

	return entmigrate.Config{
		MigrationsDir: migrationsDir,
		RepoPath:      repoPath,
	}
}

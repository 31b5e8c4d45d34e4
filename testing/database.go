// Package testing provides test utilities and database setup for the integration repositories
package testing

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // database/sql driver for the admin connection
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// integrationTables lists every table the migrations create, children first
var integrationTables = []string{
	"instituto_integration_queue",
	"instituto_integration_logs",
	"instituto_integration_config",
}

// ServerOptions locates the postgres server that hosts throwaway test databases
type ServerOptions struct {
	Host     string
	Port     int
	User     string
	Password string
	SSLMode  string
}

// ServerOptionsFromEnv reads TEST_DB_* with local defaults
func ServerOptionsFromEnv() ServerOptions {
	port, err := strconv.Atoi(os.Getenv("TEST_DB_PORT"))
	if err != nil {
		port = 5432
	}
	return ServerOptions{
		Host:     envOr("TEST_DB_HOST", "localhost"),
		Port:     port,
		User:     envOr("TEST_DB_USER", "postgres"),
		Password: envOr("TEST_DB_PASSWORD", "postgres"),
		SSLMode:  envOr("TEST_DB_SSL_MODE", "disable"),
	}
}

func (o ServerOptions) dsn(dbName string) string {
	parts := []string{
		"host=" + o.Host,
		"port=" + strconv.Itoa(o.Port),
		"user=" + o.User,
		"password=" + o.Password,
		"sslmode=" + o.SSLMode,
	}
	if dbName != "" {
		parts = append(parts, "dbname="+dbName)
	}
	return strings.Join(parts, " ")
}

// TestDB is a freshly created database with the migrations applied
type TestDB struct {
	DB     *gorm.DB
	Name   string
	server ServerOptions
}

// SetupTestDB creates a uniquely named database on the test server and migrates it.
// Callers usually skip the test when it returns an error.
func SetupTestDB() (*TestDB, error) {
	server := ServerOptionsFromEnv()
	name := "instituto_test_" + strings.ReplaceAll(uuid.NewString()[:18], "-", "")

	if err := withAdminConn(server, func(admin *sql.DB) error {
		_, err := admin.Exec("CREATE DATABASE " + name)
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to create test database: %w", err)
	}

	db, err := gorm.Open(postgres.Open(server.dsn(name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open test database %s: %w", name, err)
	}

	tdb := &TestDB{DB: db, Name: name, server: server}
	if err := tdb.migrate(); err != nil {
		_ = tdb.TeardownTestDB()
		return nil, err
	}
	return tdb, nil
}

// TeardownTestDB closes the pool and drops the database
func (tdb *TestDB) TeardownTestDB() error {
	if tdb.DB == nil {
		return nil
	}
	if sqlDB, err := tdb.DB.DB(); err == nil {
		sqlDB.Close()
	}

	return withAdminConn(tdb.server, func(admin *sql.DB) error {
		if _, err := admin.Exec(
			"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()",
			tdb.Name); err != nil {
			log.Printf("testing: terminate connections to %s failed: %v", tdb.Name, err)
		}
		_, err := admin.Exec("DROP DATABASE IF EXISTS " + tdb.Name)
		return err
	})
}

// ClearAllTables empties every integration table
func (tdb *TestDB) ClearAllTables() error {
	stmt := "TRUNCATE TABLE " + strings.Join(integrationTables, ", ") + " CASCADE"
	if err := tdb.DB.Exec(stmt).Error; err != nil {
		return fmt.Errorf("failed to truncate integration tables: %w", err)
	}
	return nil
}

// migrate applies every up migration in lexical order
func (tdb *TestDB) migrate() error {
	dir, err := findMigrationsDir()
	if err != nil {
		return err
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(files)

	// lib/pq sends argument-free Exec as a simple query, so multi-statement files run whole
	conn, err := sql.Open("postgres", tdb.server.dsn(tdb.Name))
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, path := range files {
		if strings.HasSuffix(path, "_down.sql") {
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", path, err)
		}
		if _, err := conn.Exec(string(content)); err != nil {
			return fmt.Errorf("migration %s failed: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func withAdminConn(server ServerOptions, fn func(*sql.DB) error) error {
	admin, err := sql.Open("postgres", server.dsn("postgres"))
	if err != nil {
		return err
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := admin.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres unreachable: %w", err)
	}
	return fn(admin)
}

// findMigrationsDir walks up from the working directory to the repo's migrations folder
func findMigrationsDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	for dir := wd; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		if filepath.Dir(dir) == dir {
			return "", fmt.Errorf("migrations directory not found above %s", wd)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

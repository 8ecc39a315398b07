package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Harvey-AU/knowledge-crawler/internal/db"
	"github.com/joho/godotenv"
)

// LoadTestEnv loads .env.test and maps TEST_DATABASE_URL onto DATABASE_URL,
// so integration tests can target a real PostgreSQL instance.
func LoadTestEnv(t *testing.T) {
	t.Helper()

	// If DATABASE_URL is already set (e.g. in CI), use it
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		t.Log("DATABASE_URL already set in environment")
		return
	}

	envPath := findEnvTestFile()
	if envPath == "" {
		t.Log("Warning: .env.test file not found, using environment variables as-is")
		return
	}

	envMap, err := godotenv.Read(envPath)
	if err != nil {
		t.Logf("Warning: Failed to read %s: %v", envPath, err)
		return
	}

	if testDBURL, exists := envMap["TEST_DATABASE_URL"]; exists {
		t.Setenv("DATABASE_URL", testDBURL)
		t.Log("DATABASE_URL set from TEST_DATABASE_URL in .env.test")
	}
}

// NewTestDB opens the database for a test: PostgreSQL when DATABASE_URL is
// set, otherwise a private in-memory SQLite database.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	config := &db.Config{Driver: db.DriverSQLite, SQLitePath: ":memory:"}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		config = &db.Config{Driver: db.DriverPostgres, DatabaseURL: url}
	}

	database, err := db.New(config)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return database
}

// findEnvTestFile searches for .env.test in current and parent directories
func findEnvTestFile() string {
	dir, _ := os.Getwd()

	for range 5 {
		envPath := filepath.Join(dir, ".env.test")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

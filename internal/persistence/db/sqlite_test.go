package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewSqliteCreatesSchema(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "sync-sketch-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	db, err := NewSqlite(filepath.Join(tmpDir, "nested", "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"board_snapshots", "chat_messages"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Expected table %s to exist: %v", table, err)
		}
	}
}

func TestNewMongoClientRequiresURI(t *testing.T) {
	if _, err := NewMongoClient(t.Context(), &MongoConfig{}); err == nil {
		t.Error("Expected error without URI")
	}
	if _, err := NewMongoClient(t.Context(), nil); err == nil {
		t.Error("Expected error without config")
	}
}

func TestNewRedisClientRequiresAddr(t *testing.T) {
	if _, err := NewRedisClient(t.Context(), &RedisConfig{}); err == nil {
		t.Error("Expected error without address")
	}
}

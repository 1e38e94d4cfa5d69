package stubs

import (
	"context"
	"testing"

	"supportbot/internal/models"
	"supportbot/internal/storage"
	"supportbot/internal/storage/storagetest"
)

func TestMockDB(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		db := NewMockDB()
		if err := db.Initialize(context.Background()); err != nil {
			t.Fatalf("Failed to initialize database: %v", err)
		}
		return db
	})
}

func TestMockDB_ReturnsCopies(t *testing.T) {
	db := NewMockDB()
	ctx := context.Background()

	user := &models.TgUser{UserID: 1, FullName: "Original", ThreadID: 10}
	if err := db.SaveUser(ctx, user); err != nil {
		t.Fatalf("Failed to save user: %v", err)
	}

	// Mutating the caller's value must not leak into the store
	user.FullName = "Changed"

	got, err := db.GetUser(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to get user: %v", err)
	}
	if got.FullName != "Original" {
		t.Errorf("Expected stored name 'Original', got '%s'", got.FullName)
	}

	got.ThreadID = 99
	if _, err := db.GetUserByThread(ctx, 99); err == nil {
		t.Error("Expected lookup by a locally modified thread to fail")
	}
}

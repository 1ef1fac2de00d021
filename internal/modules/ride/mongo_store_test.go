package ride

import (
	"context"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ridehail/internal/types"
)

func TestMongoStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store { return setupMongoStore(t) })
}

func setupMongoStore(t *testing.T) *MongoStore {
	t.Helper()

	uri := os.Getenv("RIDEHAIL_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("RIDEHAIL_TEST_MONGO_URI not set; skipping MongoDB store tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connect mongo: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("ridehail_test_" + string(types.NewID())[:8])
	t.Cleanup(func() { _ = db.Drop(context.Background()) })

	store := NewMongoStore(db)
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}
	return store
}

package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
)

func setupMongo(t *testing.T) *mongo.Client {
	if testing.Short() {
		t.Skip("skipping MongoDB container test in short mode")
	}
	ctx := context.Background()

	// Start MongoDB container
	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)
	return db.Client()
}

func TestMongoRepository(t *testing.T) {
	client := setupMongo(t)

	runRepositoryContract(t, func(t *testing.T) CartRepository {
		// Fresh database per subtest keeps rows isolated on one container.
		db := client.Database("cart_" + uuid.NewString()[:8])
		repo := NewMongoRepository(db)
		require.NoError(t, repo.(Migrator).Migrate(context.Background()))
		return repo
	})
}

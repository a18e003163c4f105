package db

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// NewMongoClient connects and waits for the primary to answer a ping.
func NewMongoClient(ctx context.Context, uri string, logger *slog.Logger) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(2 * time.Second))
	if err != nil {
		return nil, oops.Code("MONGO_CONNECT_FAILED").With("operation", "connect").Wrap(err)
	}

	backoff := retry.WithMaxRetries(connectAttempts, retry.NewExponential(500*time.Millisecond))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
			logger.WarnContext(ctx, "mongo_ping_failed", "err", err)
			return retry.RetryableError(err)
		}
		return nil
	})

	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, oops.Code("MONGO_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}

	return client, nil
}

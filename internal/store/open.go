package store

import (
	"context"
	"fmt"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Open selects and constructs a backend from a DSN.
//
//	""                      in-memory
//	"dynamodb://<table>"    DynamoDB, credentials from the default AWS chain
//	"postgres://..."        PostgreSQL
//	anything else           SQLite file path
func Open(ctx context.Context, dsn string) (Store, error) {
	switch DetectDSNType(dsn) {
	case DSNTypeMemory:
		slog.Debug("store.Open: using in-memory store")
		return NewInMemoryStore(), nil
	case DSNTypeDynamoDB:
		table := DynamoDBTableFromDSN(dsn)
		slog.Debug("store.Open: using DynamoDB store", "table", table)
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return NewDynamoDBStore(dynamodb.NewFromConfig(cfg), table)
	case DSNTypePostgres:
		slog.Debug("store.Open: using PostgreSQL store", "dsn_set", true)
		return NewPostgresStore(WithPostgresDSN(dsn))
	default:
		slog.Debug("store.Open: using SQLite store", "path", dsn)
		return NewSQLiteStore(WithSQLiteDSN(dsn))
	}
}

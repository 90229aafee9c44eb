package backend

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
)

func TestDatabaseName(t *testing.T) {
	tests := []struct {
		graphID string
		want    string
	}{
		{graphID: "kg1a2b3c", want: "kg1a2b3c"},
		{graphID: "Tenant_ABC", want: "tenant-abc"},
		{graphID: "sec_filings-2024", want: "sec-filings-2024"},
		{graphID: "123abc", want: "g-123abc"},
		{graphID: "_x", want: "g--x"},
	}

	for _, tt := range tests {
		t.Run(tt.graphID, func(t *testing.T) {
			assert.Equal(t, tt.want, DatabaseName(tt.graphID))
		})
	}
}

func TestClassifyNeo4jError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want types.ErrorCode
	}{
		{
			name: "existing database",
			err:  &neo4j.Neo4jError{Code: "Neo.ClientError.Database.ExistingDatabaseFound", Msg: "exists"},
			want: types.DATABASE_EXISTS,
		},
		{
			name: "missing database",
			err:  &neo4j.Neo4jError{Code: "Neo.ClientError.Database.DatabaseNotFound", Msg: "not found"},
			want: types.DATABASE_NOT_FOUND,
		},
		{
			name: "community edition",
			err:  &neo4j.Neo4jError{Code: "Neo.ClientError.Statement.UnsupportedAdministrationCommand", Msg: "Unsupported administration command: CREATE DATABASE"},
			want: types.UNSUPPORTED_OPERATION,
		},
		{
			name: "community edition by message",
			err:  fmt.Errorf("wrapped: %w", &neo4j.Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError", Msg: "Unsupported administration command"}),
			want: types.UNSUPPORTED_OPERATION,
		},
		{
			name: "syntax error",
			err:  &neo4j.Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError", Msg: "Invalid input"},
			want: types.ENGINE_OPERATION_FAILED,
		},
		{
			name: "plain error",
			err:  errors.New("boom"),
			want: types.ENGINE_OPERATION_FAILED,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyNeo4jError("kg1", "create_database", tt.err)
			assert.Equal(t, tt.want, types.CodeOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestNewNeo4jBackend_RequiresURI(t *testing.T) {
	_, err := NewNeo4jBackend(Neo4jConfig{})
	assert.Equal(t, types.CONFIG_VALIDATION_FAILED, types.CodeOf(err))
}

func TestNeo4jBackend_ValidatesBeforeConnecting(t *testing.T) {
	b, err := NewNeo4jBackend(Neo4jConfig{URI: "bolt://127.0.0.1:1", ConnectRetries: 1})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = b.ExecuteQuery(ctx, "a/b", "RETURN 1", nil)
	assert.Equal(t, types.INVALID_IDENTIFIER, types.CodeOf(err))

	_, err = b.IngestFromSource(ctx, "kg1", IngestSource{Table: "Fact", URIs: []string{"f.parquet"}, Format: FormatParquet})
	assert.Equal(t, types.UNSUPPORTED_OPERATION, types.CodeOf(err))

	assert.Nil(t, b.driver, "no driver is created for rejected calls")
}

func TestNeo4jBackend_UnreachableServer(t *testing.T) {
	b, err := NewNeo4jBackend(Neo4jConfig{
		URI:               "bolt://127.0.0.1:1",
		ConnectRetries:    2,
		ConnectionTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = b.ExecuteQuery(ctx, "kg1", "RETURN 1", nil)
	require.Error(t, err)
	assert.Equal(t, types.CONNECTION_FAILED, types.CodeOf(err))
	assert.True(t, types.IsRetryable(err))

	assert.True(t, b.HealthCheck(ctx).IsUnhealthy())
	assert.NoError(t, b.Close(ctx))
}

func TestNeo4jBackend_CredentialsProviderError(t *testing.T) {
	b, err := NewNeo4jBackend(Neo4jConfig{URI: "bolt://127.0.0.1:1"},
		WithCredentialsProvider(CredentialsFunc(func(ctx context.Context) (Credentials, error) {
			return Credentials{}, errors.New("secret not found")
		})))
	require.NoError(t, err)

	_, err = b.ListDatabases(context.Background())
	assert.Equal(t, types.CONNECTION_FAILED, types.CodeOf(err))
	assert.Contains(t, err.Error(), "secret not found")
}

func TestConvertNeo4jResult(t *testing.T) {
	records := []*neo4j.Record{
		{Keys: []string{"name", "age"}, Values: []any{"alice", int64(30)}},
		{Keys: []string{"name", "age"}, Values: []any{"bob", int64(25)}},
	}

	res := convertNeo4jResult(records, nil)
	assert.Equal(t, []string{"name", "age"}, res.Columns)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "bob", res.Records[1]["name"])

	empty := convertNeo4jResult(nil, nil)
	assert.NotNil(t, empty.Columns)
	assert.Empty(t, empty.Records)
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseReplicaURLs tests the ParseReplicaURLs function
func TestParseReplicaURLs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single URL",
			input:    "postgres://localhost:5432/db",
			expected: []string{"postgres://localhost:5432/db"},
		},
		{
			name:  "URLs with whitespace",
			input: " postgres://host1:5432/db , postgres://host2:5432/db ",
			expected: []string{
				"postgres://host1:5432/db",
				"postgres://host2:5432/db",
			},
		},
		{
			name:     "URLs with empty entries",
			input:    "postgres://host1:5432/db,,postgres://host2:5432/db,",
			expected: []string{"postgres://host1:5432/db", "postgres://host2:5432/db"},
		},
		{
			name:     "only commas and whitespace",
			input:    " , , , ",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseReplicaURLs(tt.input))
		})
	}
}

func TestNewConnectionManager_UnreachablePrimary(t *testing.T) {
	cfg := Config{
		PrimaryURL: "postgres://nonexistent:9999/testdb?connect_timeout=1",
		MaxConns:   10,
		MinConns:   2,
		Timeout:    2 * time.Second,
	}

	cm, err := NewConnectionManager(context.Background(), cfg, nil)
	assert.Error(t, err)
	assert.Nil(t, cm)
	assert.Contains(t, err.Error(), "primary")
}

func TestConnectionManager_Replica(t *testing.T) {
	t.Run("no replicas falls back to primary", func(t *testing.T) {
		primary := &sql.DB{}
		cm := NewConnectionManagerFromDB(primary)

		assert.Same(t, primary, cm.Replica())
		assert.Same(t, primary, cm.Primary())
	})

	t.Run("round robin", func(t *testing.T) {
		r1, r2 := &sql.DB{}, &sql.DB{}
		cm := NewConnectionManagerFromDB(&sql.DB{}, r1, r2)

		seen := map[*sql.DB]int{}
		for i := 0; i < 10; i++ {
			seen[cm.Replica()]++
		}
		assert.Equal(t, 5, seen[r1])
		assert.Equal(t, 5, seen[r2])
	})
}

func TestConnectionManager_HealthCheck(t *testing.T) {
	newMock := func(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		return db, mock
	}

	t.Run("healthy primary and replicas", func(t *testing.T) {
		primary, pm := newMock(t)
		replica, rm := newMock(t)
		pm.ExpectPing()
		rm.ExpectPing()

		cm := NewConnectionManagerFromDB(primary, replica)
		assert.NoError(t, cm.HealthCheck(context.Background()))
		assert.NoError(t, pm.ExpectationsWereMet())
		assert.NoError(t, rm.ExpectationsWereMet())
	})

	t.Run("unhealthy primary", func(t *testing.T) {
		primary, pm := newMock(t)
		pm.ExpectPing().WillReturnError(errors.New("connection refused"))

		err := NewConnectionManagerFromDB(primary).HealthCheck(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "primary unhealthy")
	})

	t.Run("one of two replicas down", func(t *testing.T) {
		primary, pm := newMock(t)
		r1, m1 := newMock(t)
		r2, m2 := newMock(t)
		pm.ExpectPing()
		m1.ExpectPing().WillReturnError(errors.New("timeout"))
		m2.ExpectPing()

		assert.NoError(t, NewConnectionManagerFromDB(primary, r1, r2).HealthCheck(context.Background()))
	})

	t.Run("all replicas down", func(t *testing.T) {
		primary, pm := newMock(t)
		r1, m1 := newMock(t)
		pm.ExpectPing()
		m1.ExpectPing().WillReturnError(errors.New("timeout"))

		err := NewConnectionManagerFromDB(primary, r1).HealthCheck(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "replica-0")
	})
}

func TestConnectionManager_Close(t *testing.T) {
	t.Run("closes everything", func(t *testing.T) {
		primary, pm, err := sqlmock.New()
		require.NoError(t, err)
		replica, rm, err := sqlmock.New()
		require.NoError(t, err)
		pm.ExpectClose()
		rm.ExpectClose()

		cm := NewConnectionManagerFromDB(primary, replica)
		assert.NoError(t, cm.Close())
		assert.NoError(t, pm.ExpectationsWereMet())
		assert.NoError(t, rm.ExpectationsWereMet())
		assert.Same(t, primary, cm.Replica())
	})

	t.Run("collects errors", func(t *testing.T) {
		primary, pm, err := sqlmock.New()
		require.NoError(t, err)
		replica, rm, err := sqlmock.New()
		require.NoError(t, err)
		pm.ExpectClose().WillReturnError(errors.New("primary close error"))
		rm.ExpectClose().WillReturnError(errors.New("replica close error"))

		err = NewConnectionManagerFromDB(primary, replica).Close()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection close errors")
		assert.Contains(t, err.Error(), "replica-0")
	})
}

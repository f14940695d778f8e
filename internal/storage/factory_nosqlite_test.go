//go:build !sqlite

package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStoreSQLiteUnavailable(t *testing.T) {
	_, err := NewStore("sqlite", "ignored.db")
	require.ErrorContains(t, err, "-tags sqlite")
}

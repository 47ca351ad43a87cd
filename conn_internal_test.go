package loonypg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryRejectsWhenConnNotReady(t *testing.T) {
	statuses := []ConnStatus{
		ConnStatusDisconnected,
		ConnStatusConnecting,
		ConnStatusAuthenticating,
		ConnStatusBusy,
		ConnStatusClosed,
		ConnStatusFailed,
	}

	for _, status := range statuses {
		t.Run(status.String(), func(t *testing.T) {
			c := &Conn{status: status, config: &Config{}}
			_, err := c.Query(context.Background(), "SELECT 1")
			var lockErr *ConnLockError
			require.ErrorAs(t, err, &lockErr)
			assert.False(t, c.ReadyForQuery())
		})
	}
}

func TestConnStatusString(t *testing.T) {
	assert.Equal(t, "ready", ConnStatusReady.String())
	assert.Equal(t, "busy", ConnStatusBusy.String())
	assert.Equal(t, "failed", ConnStatusFailed.String())
}

func TestCommandTag(t *testing.T) {
	tests := []struct {
		tag          CommandTag
		command      string
		rowsAffected int64
		oid          uint32
		hasOID       bool
	}{
		{tag: "INSERT 12345 7", command: "INSERT", rowsAffected: 7, oid: 12345, hasOID: true},
		{tag: "INSERT 0 5", command: "INSERT", rowsAffected: 5, oid: 0, hasOID: true},
		{tag: "SELECT 42", command: "SELECT", rowsAffected: 42},
		{tag: "UPDATE 0", command: "UPDATE", rowsAffected: 0},
		{tag: "VACUUM", command: "VACUUM", rowsAffected: 0},
		{tag: "CREATE TABLE", command: "CREATE", rowsAffected: 0},
		{tag: "EMPTY", command: "EMPTY", rowsAffected: 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.tag), func(t *testing.T) {
			assert.Equal(t, tt.command, tt.tag.Command())
			assert.Equal(t, tt.rowsAffected, tt.tag.RowsAffected())
			oid, hasOID := tt.tag.InsertOID()
			assert.Equal(t, tt.hasOID, hasOID)
			assert.Equal(t, tt.oid, oid)
		})
	}
}

func TestParseServerVersion(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"14.5", "14.5.0"},
		{"9.6.24", "9.6.24"},
		{"14.5 (Debian 14.5-1.pgdg110+1)", "14.5.0"},
		{"17beta1", "17.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			v, err := parseServerVersion(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())
		})
	}

	_, err := parseServerVersion("not a version")
	require.Error(t, err)
}

package util

import (
	"strings"
	"testing"

	"github.com/ValentinKolb/dHA/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReplicas(t *testing.T) {
	tests := []struct {
		name     string
		replicas string
		weights  string
		want     []common.ReplicaConfig
		wantErr  bool
	}{
		{
			name:     "sqlite and postgres",
			replicas: "a=sqlite3:/tmp/a.db, b=postgres:postgres://dha:pw@db-b:5432/shop?sslmode=disable",
			weights:  "b=3",
			want: []common.ReplicaConfig{
				{ID: "a", Driver: "sqlite3", DSN: "/tmp/a.db", Weight: 1},
				{ID: "b", Driver: "postgres", DSN: "postgres://dha:pw@db-b:5432/shop?sslmode=disable", Weight: 3},
			},
		},
		{
			name:     "mysql dsn with colons",
			replicas: "m=mysql:dha:pw@tcp(db-m:3306)/shop",
			want:     []common.ReplicaConfig{{ID: "m", Driver: "mysql", DSN: "dha:pw@tcp(db-m:3306)/shop", Weight: 1}},
		},
		{name: "empty", replicas: ""},
		{name: "missing driver", replicas: "a=/tmp/a.db", wantErr: true},
		{name: "missing id", replicas: "=sqlite3:/tmp/a.db", wantErr: true},
		{name: "duplicate id", replicas: "a=sqlite3:x,a=sqlite3:y", wantErr: true},
		{name: "weight for unknown replica", replicas: "a=sqlite3:x", weights: "b=2", wantErr: true},
		{name: "invalid weight", replicas: "a=sqlite3:x", weights: "a=heavy", wantErr: true},
		{name: "negative weight", replicas: "a=sqlite3:x", weights: "a=-1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReplicas(tt.replicas, tt.weights)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseArgs(t *testing.T) {
	assert.Nil(t, ParseArgs(nil))
	assert.Equal(t, []any{"7", nil, "paid"}, ParseArgs([]string{"7", "NULL", "paid"}))
}

func TestWrapString(t *testing.T) {
	wrapped := WrapString("The address of the dHA server. Multiple endpoints can be specified as a comma-separated list")
	for _, line := range strings.Split(wrapped, "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
}

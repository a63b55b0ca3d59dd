package cmd_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotfeed/cmd"
)

func TestMigrateUseraddTop(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "hotfeed.db")
	store := []string{"--driver", "sqlite", "--dsn", dsn}

	app := cmd.RootApp()
	require.NoError(t, app.Run(append([]string{"hotfeed", "migrate"}, store...)))
	require.NoError(t, app.Run(append([]string{"hotfeed", "useradd", "--name", "alice"}, store...)))
	require.NoError(t, app.Run(append([]string{"hotfeed", "top", "--limit", "3"}, store...)))
	require.NoError(t, app.Run(append([]string{"hotfeed", "tidy", "--days", "30"}, store...)))
	require.NoError(t, app.Run(append([]string{"hotfeed", "rollback"}, store...)))
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown driver", args: []string{"hotfeed", "top", "--driver", "cassandra"}},
		{name: "useradd in memory", args: []string{"hotfeed", "useradd", "--driver", "memory", "--name", "alice"}},
		{name: "malformed limit", args: []string{"hotfeed", "top", "--driver", "memory", "--limit", "abc"}},
		{name: "tidy zero days", args: []string{"hotfeed", "tidy", "--driver", "memory", "--days", "0"}},
		{name: "missing config file", args: []string{"hotfeed", "top", "--config", "does-not-exist.toml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, cmd.RootApp().Run(tt.args))
		})
	}
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanpark/access-server-go/internal/util"
)

func execute(t *testing.T, sub *cobra.Command, args ...string) (string, error) {
	t.Helper()
	cmd := &cobra.Command{Use: "accessctl", SilenceUsage: true, SilenceErrors: true}
	cmd.AddCommand(sub)

	output := &bytes.Buffer{}
	cmd.SetOut(output)
	cmd.SetErr(output)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return output.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, versionCmd, "version")
	require.NoError(t, err)
	assert.Equal(t, "accessctl version "+version+"\n", out)
}

func TestHashTokenCommand(t *testing.T) {
	t.Run("prints a verifiable bcrypt hash", func(t *testing.T) {
		out, err := execute(t, hashTokenCmd, "hash-token", "door-device-token-123")
		require.NoError(t, err)
		hash := strings.TrimSpace(out)
		assert.True(t, strings.HasPrefix(hash, "$2a$"))
		assert.True(t, util.CheckPasswordHash("door-device-token-123", hash))
	})

	t.Run("rejects short tokens", func(t *testing.T) {
		_, err := execute(t, hashTokenCmd, "hash-token", "short")
		assert.Error(t, err)
	})

	t.Run("requires exactly one argument", func(t *testing.T) {
		_, err := execute(t, hashTokenCmd, "hash-token")
		assert.Error(t, err)
	})
}

func TestLocksCommand(t *testing.T) {
	dir := t.TempDir()

	t.Run("lists locks in file order", func(t *testing.T) {
		path := filepath.Join(dir, "locks.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
locks:
  - lockId: F-gate
    facilityId: F
    purposes: [entry, exit]
    driver: log
  - lockId: F-side
    facilityId: F
    purposes: [entry]
    pinEnabled: false
    driver: log
`), 0o600))

		out, err := execute(t, locksCmd, "locks", path)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 2)
		assert.Equal(t, "F-gate\tfacility=F\tdriver=log\tpurposes=entry,exit\tpin=true", lines[0])
		assert.Contains(t, lines[1], "pin=false")
	})

	t.Run("invalid registry fails", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("locks:\n  - facilityId: F\n"), 0o600))

		_, err := execute(t, locksCmd, "locks", path)
		assert.Error(t, err)
	})

	t.Run("missing file fails", func(t *testing.T) {
		_, err := execute(t, locksCmd, "locks", filepath.Join(dir, "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestMigratePrintCommand(t *testing.T) {
	t.Cleanup(func() { migratePrintOnly = false })

	out, err := execute(t, migrateCmd, "migrate", "--print")
	require.NoError(t, err)
	assert.Contains(t, out, "CREATE TABLE IF NOT EXISTS credentials")
	assert.Contains(t, out, "invite_tokens")
}

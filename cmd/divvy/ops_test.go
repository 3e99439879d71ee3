package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"Divvy/internal/ledger"
	"Divvy/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestOfflineCommands(t *testing.T) {
	dir := t.TempDir()
	chdirForTest(t, dir)
	cfgFile := filepath.Join(dir, "config.yaml")
	stateFile := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
ledger:
  owner: 0xowner
  state_file: `+stateFile+`
  contribution_period: 1ns
display:
  symbol: DVY
database:
  sqlite_path: `+filepath.Join(dir, "divvy.db")+`
`), 0644))

	out, err := runCLI(t, "-c", cfgFile, "contribute", "8", "--as", "0xalice")
	require.NoError(t, err)
	assert.Contains(t, out, "contributed 8 DVY, pool total 8 DVY")

	_, err = runCLI(t, "-c", cfgFile, "contribute", "4", "--as", "0xbob")
	require.NoError(t, err)

	_, err = runCLI(t, "-c", cfgFile, "contribute", "4", "--as", "0xbob")
	assert.ErrorIs(t, err, ledger.ErrDuplicateContribution)

	_, err = runCLI(t, "-c", cfgFile, "open-withdrawal", "--as", "0xbob")
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	out, err = runCLI(t, "-c", cfgFile, "open-withdrawal", "--as", "0xowner")
	require.NoError(t, err)
	assert.Contains(t, out, "6 DVY per participant")

	out, err = runCLI(t, "-c", cfgFile, "withdraw", "--as", "0xbob")
	require.NoError(t, err)
	assert.Contains(t, out, "paid 6 DVY")

	out, err = runCLI(t, "-c", cfgFile, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "withdrawal window")
	assert.Contains(t, out, "0xalice")

	state, err := ledger.LoadState(stateFile)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseWithdrawing, state.Phase)
	assert.Equal(t, model.Amount(6), state.Holdings)
}

// chdirForTest mirrors testing.T.Chdir (Go 1.24+) for older toolchains:
// it changes the working directory and restores it when the test ends.
func chdirForTest(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}

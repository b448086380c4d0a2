package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionRunsWithoutConfig(t *testing.T) {
	out, err := execute(t, "version", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Regexp(t, `^pricefeed `, out)
}

func TestTwapCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	body := `[{"timestamp":0,"price":1},{"timestamp":600,"price":3},{"timestamp":1200,"price":2}]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	out, err := execute(t, "twap", "--file", path, "--window", "1h", "--decimals", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "outliers=0 ")
	assert.Contains(t, out, "normalized=200\n")
}

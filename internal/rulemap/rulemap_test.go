package rulemap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbedded(t *testing.T) {
	m, err := Load()
	require.NoError(t, err)

	assert.NotEmpty(t, m.Version())
	assert.Greater(t, m.Size(), 0)
}

func TestControlsForRule(t *testing.T) {
	m, err := Load()
	require.NoError(t, err)

	controls := m.ControlsForRule("iam_root_mfa_enabled")
	assert.Contains(t, controls, "CC6.1")
}

func TestControlsForUnknownRule(t *testing.T) {
	m, err := Load()
	require.NoError(t, err)

	// Unknown rules are a silent no-op, never an error.
	controls := m.ControlsForRule("UNKNOWN-999")
	assert.NotNil(t, controls)
	assert.Empty(t, controls)
}

func TestControlsForRuleReturnsCopy(t *testing.T) {
	m, err := Load()
	require.NoError(t, err)

	first := m.ControlsForRule("s3_bucket_public_access")
	require.NotEmpty(t, first)
	first[0] = "mutated"

	second := m.ControlsForRule("s3_bucket_public_access")
	assert.NotEqual(t, "mutated", second[0])
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")

	content := "version: \"test-1\"\nrules:\n  custom_rule: [\"CC1.1\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	m, err := FromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "test-1", m.Version())
	assert.Equal(t, []string{"CC1.1"}, m.ControlsForRule("custom_rule"))
}

func TestFromFileMissingVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules: {}\n"), 0o600))

	_, err := FromFile(path)
	assert.Error(t, err)
}

package openwhisk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCredentialsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wskprops")
	content := "APIHOST=openwhisk.example.com\nAUTH=user:secret\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("WSK_CONFIG_FILE", path)

	creds, err := LoadCredentials()
	require.NoError(t, err)
	assert.Equal(t, "openwhisk.example.com", creds.APIHost)
	assert.Equal(t, "user:secret", creds.Auth)
}

func TestLoadCredentialsMissingFileIsNotFatal(t *testing.T) {
	t.Setenv("WSK_CONFIG_FILE", filepath.Join(t.TempDir(), "does-not-exist"))

	creds, err := LoadCredentials()
	require.NoError(t, err)
	assert.Empty(t, creds.APIHost)
	assert.Empty(t, creds.Auth)
}

func TestLoadCredentialsOptionsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wskprops")
	require.NoError(t, os.WriteFile(path, []byte("APIHOST=from-file\nAUTH=a:b\n"), 0o600))
	t.Setenv("WSK_CONFIG_FILE", path)

	creds, err := LoadCredentials(WithAPIHost("explicit.example.com"))
	require.NoError(t, err)
	assert.Equal(t, "explicit.example.com", creds.APIHost)
	assert.Equal(t, "a:b", creds.Auth)
}

package openwhisk

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Credentials identify the platform endpoint and the basic-auth key.
type Credentials struct {
	APIHost string
	Auth    string
}

// CredentialsOption overrides a discovered credential field.
type CredentialsOption func(*Credentials)

func WithAPIHost(host string) CredentialsOption {
	return func(c *Credentials) {
		if host != "" {
			c.APIHost = host
		}
	}
}

func WithAuth(auth string) CredentialsOption {
	return func(c *Credentials) {
		if auth != "" {
			c.Auth = auth
		}
	}
}

// LoadCredentials reads APIHOST and AUTH from the key-value file named by
// WSK_CONFIG_FILE (default ~/.wskprops). A missing file is not an error;
// explicit options always override file values.
func LoadCredentials(opts ...CredentialsOption) (Credentials, error) {
	var creds Credentials

	path := os.Getenv("WSK_CONFIG_FILE")
	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, ".wskprops")
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			values, err := godotenv.Read(path)
			if err != nil {
				return Credentials{}, fmt.Errorf("failed to parse credentials file %s: %w", path, err)
			}
			creds.APIHost = values["APIHOST"]
			creds.Auth = values["AUTH"]
		}
	}

	for _, opt := range opts {
		opt(&creds)
	}
	return creds, nil
}

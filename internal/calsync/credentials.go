package calsync

import (
	"context"
	"fmt"

	"github.com/jw6ventures/lifeos/internal/store"
)

// resolveCredentials reads a provider's client id and secret from
// app_secrets, falling back to values from the process environment.
func resolveCredentials(ctx context.Context, secrets store.SecretRepository, fallback map[string]string, p Provider) (Credentials, error) {
	idName, secretName := p.SecretNames()

	found := map[string]string{}
	if secrets != nil {
		var err error
		found, err = secrets.Get(ctx, idName, secretName)
		if err != nil {
			return Credentials{}, fmt.Errorf("load %s credentials: %w", p.Name(), err)
		}
	}
	lookup := func(name string) string {
		if v := found[name]; v != "" {
			return v
		}
		return fallback[name]
	}

	creds := Credentials{ClientID: lookup(idName), ClientSecret: lookup(secretName)}
	var missing []string
	if creds.ClientID == "" {
		missing = append(missing, idName)
	}
	if creds.ClientSecret == "" {
		missing = append(missing, secretName)
	}
	if len(missing) > 0 {
		return Credentials{}, &ConfigError{Missing: missing}
	}
	return creds, nil
}

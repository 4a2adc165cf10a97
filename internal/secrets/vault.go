// Package secrets resolves the backend API token from Vault.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
)

const (
	defaultKVMount = "secret"
	requestTimeout = 30 * time.Second
)

// tokenFields are the secret keys checked for the token, in order.
var tokenFields = []string{"api_token", "token", "keyforge_api_token"}

type Options struct {
	Address   string
	Namespace string
	Token     string
	KVMount   string
}

type Vault struct {
	client *vaultapi.Client
	mount  string
}

func NewVault(opts Options) (*Vault, error) {
	address := strings.TrimSpace(opts.Address)
	if address == "" {
		return nil, errors.New("vault address is required")
	}
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, errors.New("vault token is required")
	}

	cfg := vaultapi.DefaultConfig()
	cfg.Address = address
	cfg.HttpClient = &http.Client{Timeout: requestTimeout}
	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client setup: %w", err)
	}
	if ns := strings.TrimSpace(opts.Namespace); ns != "" {
		client.SetNamespace(ns)
	}
	client.SetToken(token)

	mount := strings.Trim(strings.TrimSpace(opts.KVMount), "/")
	if mount == "" {
		mount = defaultKVMount
	}
	return &Vault{client: client, mount: mount}, nil
}

// APIToken reads the KV v2 secret at path and returns its token field.
func (v *Vault) APIToken(ctx context.Context, path string) (string, error) {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return "", errors.New("vault secret path is required")
	}
	secret, err := v.client.KVv2(v.mount).Get(ctx, path)
	if err != nil {
		return "", fmt.Errorf("vault read %s/%s: %w", v.mount, path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("vault secret %s/%s is empty", v.mount, path)
	}
	for _, field := range tokenFields {
		if s, ok := secret.Data[field].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), nil
		}
	}
	return "", fmt.Errorf("vault secret %s/%s has no token field (%s)", v.mount, path, strings.Join(tokenFields, ", "))
}

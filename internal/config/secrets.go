package config

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// SecretRefPrefix marks a value stored in a 1Password vault.
const SecretRefPrefix = "op://"

const secretReadTimeout = 10 * time.Second

// SecretResolver resolves a secret reference to its value.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// OnePassword resolves op:// references through the 1Password CLI.
type OnePassword struct {
	// Binary defaults to "op".
	Binary  string
	Timeout time.Duration
}

// Resolve runs `op read <ref>`.
func (o OnePassword) Resolve(ctx context.Context, ref string) (string, error) {
	bin := o.Binary
	if bin == "" {
		bin = "op"
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = secretReadTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "read", ref) //nolint:gosec // ref comes from the operator's config
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("timed out resolving secret %s", ref)
		}
		return "", fmt.Errorf("failed to resolve secret %s: %s", ref, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// ResolveSecrets replaces every op:// value with its resolved secret.
func (c *Config) ResolveSecrets(r SecretResolver) error {
	ctx := context.Background()
	resolve := func(v *string) error {
		if !strings.HasPrefix(*v, SecretRefPrefix) {
			return nil
		}
		val, err := r.Resolve(ctx, *v)
		if err != nil {
			return err
		}
		*v = val
		return nil
	}

	for _, v := range []*string{
		&c.Expensify.PartnerUserID,
		&c.Expensify.PartnerUserSecret,
		&c.Expensify.EmployeeEmail,
		&c.Notifications.SlackWebhookURL,
		&c.Ledger.Password,
	} {
		if err := resolve(v); err != nil {
			return err
		}
	}
	for i := range c.HTTP.APIKeys {
		if err := resolve(&c.HTTP.APIKeys[i]); err != nil {
			return err
		}
	}
	for name, p := range c.Plugins {
		for k, v := range p.Credentials {
			if err := resolve(&v); err != nil {
				return fmt.Errorf("plugins.%s.credentials.%s: %w", name, k, err)
			}
			p.Credentials[k] = v
		}
	}
	return nil
}

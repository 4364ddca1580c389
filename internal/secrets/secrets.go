// Package secrets resolves API keys from AWS Secrets Manager with an
// environment variable fallback.
//
// A secret is a JSON object; the provider reads one field out of it:
//
//	{"OPENAI_API_KEY": "sk-...", "NEWSCRAPPER-API-KEY": "..."}
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/charmbracelet/log"
)

// Well-known secret fields.
const (
	FieldOpenAIKey = "OPENAI_API_KEY"
	FieldAPIKey    = "NEWSCRAPPER-API-KEY"
)

// SecretsManagerAPI is the subset of the Secrets Manager client in use.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Provider returns one secret field. Lookup order:
//
//  1. Secrets Manager (when a client and a secret name are set)
//  2. the environment variable envVar
//
// A non-empty value is cached for the life of the Provider. Failed lookups
// are not cached, so a later call may still succeed.
type Provider struct {
	client     SecretsManagerAPI
	secretName string
	field      string
	envVar     string
	getenv     func(string) string
	logger     *log.Logger

	mu     sync.Mutex
	cached string
}

// NewProvider returns a Provider. client may be nil, in which case only the
// environment is consulted.
func NewProvider(client SecretsManagerAPI, secretName, field, envVar string, logger *log.Logger) *Provider {
	if logger == nil {
		logger = log.Default()
	}
	return &Provider{
		client:     client,
		secretName: secretName,
		field:      field,
		envVar:     envVar,
		getenv:     os.Getenv,
		logger:     logger,
	}
}

// APIKey returns the key, or "" with a nil error when none is configured.
// Secrets Manager errors are logged and fall through to the environment.
func (p *Provider) APIKey(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != "" {
		return p.cached, nil
	}

	if p.client != nil && p.secretName != "" {
		v, err := p.fromSecretsManager(ctx)
		if err != nil {
			p.logger.Warn("secrets.lookup_failed", "secret", p.secretName, "field", p.field, "err", err)
		} else if v != "" {
			p.cached = v
			return v, nil
		}
	}

	if p.envVar != "" {
		if v := strings.TrimSpace(p.getenv(p.envVar)); v != "" {
			p.cached = v
			return v, nil
		}
	}
	return "", nil
}

func (p *Provider) fromSecretsManager(ctx context.Context) (string, error) {
	out, err := p.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(p.secretName),
	})
	if err != nil {
		return "", fmt.Errorf("get secret value: %w", err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", p.secretName)
	}
	return ParseField(*out.SecretString, p.field)
}

// ParseField reads one string field from a JSON secret. A missing field
// yields "" without error.
func ParseField(secret, field string) (string, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(secret), &m); err != nil {
		return "", fmt.Errorf("decode secret: %w", err)
	}
	v, ok := m[field]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("secret field %s is not a string", field)
	}
	return strings.TrimSpace(s), nil
}

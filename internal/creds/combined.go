package creds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/TheMichaelB/blockbox/internal/config"
)

// ErrNoToken is returned when no source provides a content store token.
var ErrNoToken = errors.New("no content store token configured")

// Combined is the credentials document, read from a file or a secret.
//
//	{
//	  "content": {"api_token": "..."},
//	  "passwords": {"0xabc": "..."}
//	}
//
// Passwords may also be nested as {"0xabc": {"password": "..."}}.
type Combined struct {
	Content struct {
		APIToken string `json:"api_token"`
	} `json:"content"`
	Passwords json.RawMessage `json:"passwords"`
}

// SecretsAPI is the subset of the Secrets Manager client used here.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// ParseCombined parses JSON bytes into Combined.
func ParseCombined(data []byte) (*Combined, error) {
	var c Combined
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return &c, nil
}

// LoadFromFile loads Combined from a local file path.
func LoadFromFile(path string) (*Combined, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCombined(b)
}

// NewSecretsClient builds a Secrets Manager client from the default AWS
// credential chain.
func NewSecretsClient(ctx context.Context, region string) (*secretsmanager.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// LoadFromSecret loads Combined from Secrets Manager by name or ARN.
func LoadFromSecret(ctx context.Context, sm SecretsAPI, secretID string) (*Combined, error) {
	out, err := sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(secretID)})
	if err != nil {
		return nil, fmt.Errorf("get secret value: %w", err)
	}
	if out.SecretString == nil {
		return nil, fmt.Errorf("secret has no string payload")
	}
	return ParseCombined([]byte(*out.SecretString))
}

// Password returns the seal password stored for an identity (supports
// nested or flat maps).
func (c *Combined) Password(identity string) string {
	if len(c.Passwords) == 0 {
		return ""
	}
	// nested format
	var nested map[string]struct {
		Password string `json:"password"`
	}
	if err := json.Unmarshal(c.Passwords, &nested); err == nil {
		if v, ok := nested[identity]; ok {
			return v.Password
		}
	}
	// flat format
	var flat map[string]string
	if err := json.Unmarshal(c.Passwords, &flat); err == nil {
		if pw, ok := flat[identity]; ok {
			return pw
		}
	}
	return ""
}

// Resolver finds the content store token from configuration.
type Resolver struct {
	cfg *config.ContentConfig

	// Secrets is created on demand when nil.
	Secrets SecretsAPI
}

// NewResolver creates a resolver for cfg.
func NewResolver(cfg *config.ContentConfig) *Resolver {
	return &Resolver{cfg: cfg}
}

// Token returns the bearer token, checking in order the literal setting, the
// credentials file and the Secrets Manager secret.
func (r *Resolver) Token(ctx context.Context) (string, error) {
	if tok := strings.TrimSpace(r.cfg.APIToken); tok != "" {
		return tok, nil
	}

	if r.cfg.TokenFile != "" {
		c, err := LoadFromFile(r.cfg.TokenFile)
		if err != nil {
			return "", fmt.Errorf("load token file: %w", err)
		}
		if tok := strings.TrimSpace(c.Content.APIToken); tok != "" {
			return tok, nil
		}
	}

	if r.cfg.TokenSecretID != "" {
		if r.Secrets == nil {
			sm, err := NewSecretsClient(ctx, r.cfg.Region)
			if err != nil {
				return "", err
			}
			r.Secrets = sm
		}

		c, err := LoadFromSecret(ctx, r.Secrets, r.cfg.TokenSecretID)
		if err != nil {
			return "", err
		}
		if tok := strings.TrimSpace(c.Content.APIToken); tok != "" {
			return tok, nil
		}
	}

	return "", ErrNoToken
}

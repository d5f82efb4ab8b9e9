package creds_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/blockbox/internal/config"
	"github.com/TheMichaelB/blockbox/internal/creds"
)

type mockSecrets struct {
	mock.Mock
}

func (m *mockSecrets) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	args := m.Called(ctx, aws.ToString(params.SecretId))
	out, _ := args.Get(0).(*secretsmanager.GetSecretValueOutput)
	return out, args.Error(1)
}

func writeCreds(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestPassword(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		identity string
		want     string
	}{
		{"flat", `{"passwords":{"0xabc":"pw1"}}`, "0xabc", "pw1"},
		{"nested", `{"passwords":{"0xabc":{"password":"pw2"}}}`, "0xabc", "pw2"},
		{"missing", `{"passwords":{"0xabc":"pw1"}}`, "0xdef", ""},
		{"absent section", `{}`, "0xabc", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := creds.ParseCombined([]byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Password(tt.identity))
		})
	}
}

func TestParseCombinedInvalid(t *testing.T) {
	_, err := creds.ParseCombined([]byte("{"))
	assert.Error(t, err)
}

func TestResolverPrecedence(t *testing.T) {
	ctx := context.Background()
	file := writeCreds(t, `{"content":{"api_token":"from-file"}}`)

	t.Run("literal wins", func(t *testing.T) {
		r := creds.NewResolver(&config.ContentConfig{APIToken: " literal ", TokenFile: file})
		tok, err := r.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "literal", tok)
	})

	t.Run("file", func(t *testing.T) {
		r := creds.NewResolver(&config.ContentConfig{TokenFile: file})
		tok, err := r.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "from-file", tok)
	})

	t.Run("secret", func(t *testing.T) {
		sm := &mockSecrets{}
		sm.On("GetSecretValue", mock.Anything, "blockbox/prod").Return(&secretsmanager.GetSecretValueOutput{
			SecretString: aws.String(`{"content":{"api_token":"from-secret"}}`),
		}, nil)

		r := creds.NewResolver(&config.ContentConfig{TokenSecretID: "blockbox/prod"})
		r.Secrets = sm

		tok, err := r.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, "from-secret", tok)
		sm.AssertExpectations(t)
	})

	t.Run("secret error", func(t *testing.T) {
		sm := &mockSecrets{}
		sm.On("GetSecretValue", mock.Anything, "blockbox/prod").Return(nil, errors.New("access denied"))

		r := creds.NewResolver(&config.ContentConfig{TokenSecretID: "blockbox/prod"})
		r.Secrets = sm

		_, err := r.Token(ctx)
		assert.ErrorContains(t, err, "access denied")
	})

	t.Run("secret without string", func(t *testing.T) {
		sm := &mockSecrets{}
		sm.On("GetSecretValue", mock.Anything, "blockbox/prod").Return(&secretsmanager.GetSecretValueOutput{}, nil)

		r := creds.NewResolver(&config.ContentConfig{TokenSecretID: "blockbox/prod"})
		r.Secrets = sm

		_, err := r.Token(ctx)
		assert.Error(t, err)
	})

	t.Run("none", func(t *testing.T) {
		r := creds.NewResolver(&config.ContentConfig{})
		_, err := r.Token(ctx)
		assert.ErrorIs(t, err, creds.ErrNoToken)
	})

	t.Run("missing file", func(t *testing.T) {
		r := creds.NewResolver(&config.ContentConfig{TokenFile: filepath.Join(t.TempDir(), "nope.json")})
		_, err := r.Token(ctx)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/joho/godotenv"
)

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// loadAWSConfig and SecretManagerFunc are variables so tests can replace them.
var loadAWSConfig = awsconfig.LoadDefaultConfig

var SecretManagerFunc = func(ctx context.Context, region string) (SecretsManagerAPI, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := loadAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config, %w", err)
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

type tokenSecret struct {
	GitHubToken string `json:"github_token"`
}

// LoadDotEnv loads variables from path into the process environment without
// overriding ones that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ResolveToken makes sure c.GitHub.Token is set, reading it from the
// Secrets Manager secret github.token_secret when the environment gave none.
func (c *Config) ResolveToken(ctx context.Context) error {
	if c.GitHub.Token != "" {
		return nil
	}
	if c.GitHub.TokenSecret == "" {
		return errors.New("a GitHub token is required: set GITHUB_TOKEN or github.token_secret")
	}

	client, err := SecretManagerFunc(ctx, c.GitHub.TokenSecretRegion)
	if err != nil {
		return err
	}
	token, err := fetchToken(ctx, client, c.GitHub.TokenSecret)
	if err != nil {
		return err
	}
	c.GitHub.Token = token
	return nil
}

func fetchToken(ctx context.Context, client SecretsManagerAPI, secretName string) (string, error) {
	result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		return "", fmt.Errorf("failed to retrieve secret: %w", err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", secretName)
	}

	var secret tokenSecret
	if err := json.Unmarshal([]byte(*result.SecretString), &secret); err != nil {
		return "", fmt.Errorf("failed to unmarshal secret string: %w", err)
	}
	if secret.GitHubToken == "" {
		return "", fmt.Errorf("secret %s has no github_token", secretName)
	}
	return secret.GitHubToken, nil
}

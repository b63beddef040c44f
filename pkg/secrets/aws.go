package secrets

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

//go:generate moq -out mocks/secretsmanager.go -pkg mocks -skip-ensure -fmt goimports . secretsManagerClient:SecretsManagerClient

// AWSProvider reads secrets from AWS Secrets Manager. With SecretName set, the secret
// string is a json object and keys select its fields, otherwise the key is the secret id.
type AWSProvider struct {
	SecretName string

	client secretsManagerClient
}

type secretsManagerClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// NewAWSProvider makes provider with static credentials for the region
func NewAWSProvider(accessKeyID, secretAccessKey, region, secretName string) (*AWSProvider, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")))
	if err != nil {
		return nil, fmt.Errorf("can't make aws config: %w", err)
	}
	return &AWSProvider{SecretName: secretName, client: secretsmanager.NewFromConfig(cfg)}, nil
}

// Get returns the secret value or field of the named secret
func (p *AWSProvider) Get(key string) (string, error) {
	if p.SecretName == "" {
		return p.secretString(key)
	}

	raw, err := p.secretString(p.SecretName)
	if err != nil {
		return "", err
	}
	fields := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return "", fmt.Errorf("can't decode aws secret %q as json object: %w", p.SecretName, err)
	}
	val, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("%s in %s: %w", key, p.SecretName, ErrNotFound)
	}
	return val, nil
}

func (p *AWSProvider) secretString(id string) (string, error) {
	res, err := p.client.GetSecretValue(context.Background(), &secretsmanager.GetSecretValueInput{SecretId: &id})
	if err != nil {
		return "", fmt.Errorf("can't read aws secret %q: %w", id, err)
	}
	if res == nil || res.SecretString == nil {
		return "", fmt.Errorf("aws secret %q has no string value: %w", id, ErrNotFound)
	}
	return *res.SecretString, nil
}

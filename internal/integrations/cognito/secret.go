package cognito

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

// SecretName is the Secrets Manager secret holding the pool configuration.
const SecretName = "customer_support_agent"

// Config is the pool configuration shared with the chat frontend.
type Config struct {
	PoolID       string `json:"pool_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	SecretHash   string `json:"secret_hash"`
	BearerToken  string `json:"bearer_token"`
	DiscoveryURL string `json:"discovery_url"`
}

type secretsAPI interface {
	CreateSecret(ctx context.Context, in *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	UpdateSecret(ctx context.Context, in *secretsmanager.UpdateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.UpdateSecretOutput, error)
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	DeleteSecret(ctx context.Context, in *secretsmanager.DeleteSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DeleteSecretOutput, error)
}

// SecretStore keeps Config as JSON in Secrets Manager.
type SecretStore struct {
	api  secretsAPI
	name string
}

func NewSecretStore(api secretsAPI) (*SecretStore, error) {
	if api == nil {
		return nil, errors.New("cognito: secrets api must not be nil")
	}
	return &SecretStore{api: api, name: SecretName}, nil
}

func (s *SecretStore) Load(ctx context.Context) (Config, error) {
	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(s.name)})
	if err != nil {
		return Config{}, fmt.Errorf("cognito: get secret %q: %w", s.name, err)
	}
	var cfg Config
	if err := json.Unmarshal([]byte(aws.ToString(out.SecretString)), &cfg); err != nil {
		return Config{}, fmt.Errorf("cognito: decode secret %q: %w", s.name, err)
	}
	if cfg.PoolID == "" || cfg.ClientID == "" {
		return Config{}, fmt.Errorf("cognito: secret %q is missing pool or client id", s.name)
	}
	return cfg, nil
}

// Save creates the secret, or updates it when it already exists.
func (s *SecretStore) Save(ctx context.Context, cfg Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cognito: encode secret: %w", err)
	}
	_, err = s.api.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         aws.String(s.name),
		SecretString: aws.String(string(raw)),
		Description:  aws.String("Cognito configuration for the customer support agent"),
	})
	if err == nil {
		return nil
	}
	var exists *smtypes.ResourceExistsException
	if !errors.As(err, &exists) {
		return fmt.Errorf("cognito: create secret %q: %w", s.name, err)
	}
	if _, err := s.api.UpdateSecret(ctx, &secretsmanager.UpdateSecretInput{
		SecretId:     aws.String(s.name),
		SecretString: aws.String(string(raw)),
	}); err != nil {
		return fmt.Errorf("cognito: update secret %q: %w", s.name, err)
	}
	return nil
}

func (s *SecretStore) Delete(ctx context.Context) error {
	_, err := s.api.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(s.name),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil {
		var nf *smtypes.ResourceNotFoundException
		if errors.As(err, &nf) {
			return nil
		}
		return fmt.Errorf("cognito: delete secret %q: %w", s.name, err)
	}
	return nil
}

// Package cognito manages the Cognito user pool that issues bearer tokens
// for the runtime and the gateway.
package cognito

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ciptypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"

	"customer-support-agent/internal/config"
	"customer-support-agent/internal/integrations/paramstore"
)

const (
	PoolName   = "MCPServerPool"
	ClientName = "MCPServerPoolClient"

	TestUsername      = "testuser"
	testTempPassword  = "Temp123!"
	TestPassword      = "MyPassword123!"
	minPasswordLength = 8
)

type cognitoAPI interface {
	CreateUserPool(ctx context.Context, in *cip.CreateUserPoolInput, optFns ...func(*cip.Options)) (*cip.CreateUserPoolOutput, error)
	CreateUserPoolClient(ctx context.Context, in *cip.CreateUserPoolClientInput, optFns ...func(*cip.Options)) (*cip.CreateUserPoolClientOutput, error)
	AdminCreateUser(ctx context.Context, in *cip.AdminCreateUserInput, optFns ...func(*cip.Options)) (*cip.AdminCreateUserOutput, error)
	AdminSetUserPassword(ctx context.Context, in *cip.AdminSetUserPasswordInput, optFns ...func(*cip.Options)) (*cip.AdminSetUserPasswordOutput, error)
	InitiateAuth(ctx context.Context, in *cip.InitiateAuthInput, optFns ...func(*cip.Options)) (*cip.InitiateAuthOutput, error)
	ListUserPoolClients(ctx context.Context, in *cip.ListUserPoolClientsInput, optFns ...func(*cip.Options)) (*cip.ListUserPoolClientsOutput, error)
	DeleteUserPoolClient(ctx context.Context, in *cip.DeleteUserPoolClientInput, optFns ...func(*cip.Options)) (*cip.DeleteUserPoolClientOutput, error)
	ListUsers(ctx context.Context, in *cip.ListUsersInput, optFns ...func(*cip.Options)) (*cip.ListUsersOutput, error)
	AdminDeleteUser(ctx context.Context, in *cip.AdminDeleteUserInput, optFns ...func(*cip.Options)) (*cip.AdminDeleteUserOutput, error)
	DeleteUserPool(ctx context.Context, in *cip.DeleteUserPoolInput, optFns ...func(*cip.Options)) (*cip.DeleteUserPoolOutput, error)
}

// Client provisions the pool and authenticates its users.
type Client struct {
	api         cognitoAPI
	secrets     *SecretStore
	params      paramstore.Store
	paramPrefix string
	region      string
}

func New(api cognitoAPI, secrets *SecretStore, params paramstore.Store, paramPrefix, region string) (*Client, error) {
	if api == nil {
		return nil, errors.New("cognito: api must not be nil")
	}
	if secrets == nil {
		return nil, errors.New("cognito: secret store must not be nil")
	}
	if params == nil {
		return nil, errors.New("cognito: parameter store must not be nil")
	}
	if region == "" {
		return nil, errors.New("cognito: region must not be empty")
	}
	return &Client{api: api, secrets: secrets, params: params, paramPrefix: paramPrefix, region: region}, nil
}

// SecretHash returns the SECRET_HASH Cognito expects from clients with a secret.
func SecretHash(username, clientID, clientSecret string) string {
	mac := hmac.New(sha256.New, []byte(clientSecret))
	mac.Write([]byte(username + clientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// DiscoveryURL returns the OpenID discovery document URL of a pool.
func DiscoveryURL(region, poolID string) string {
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s/.well-known/openid-configuration", region, poolID)
}

// Authenticate signs username in with USER_PASSWORD_AUTH and returns the
// access token.
func (c *Client) Authenticate(ctx context.Context, clientID, clientSecret, username, password string) (string, error) {
	out, err := c.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		ClientId: aws.String(clientID),
		AuthFlow: ciptypes.AuthFlowTypeUserPasswordAuth,
		AuthParameters: map[string]string{
			"USERNAME":    username,
			"PASSWORD":    password,
			"SECRET_HASH": SecretHash(username, clientID, clientSecret),
		},
	})
	if err != nil {
		return "", fmt.Errorf("cognito: authenticate %q: %w", username, err)
	}
	if out.AuthenticationResult == nil || aws.ToString(out.AuthenticationResult.AccessToken) == "" {
		return "", fmt.Errorf("cognito: authenticate %q: no access token (challenge %q)", username, out.ChallengeName)
	}
	return aws.ToString(out.AuthenticationResult.AccessToken), nil
}

// LoadConfig returns the stored pool configuration. With refresh it also
// signs the test user in again and updates the bearer token.
func (c *Client) LoadConfig(ctx context.Context, refresh bool) (Config, error) {
	cfg, err := c.secrets.Load(ctx)
	if err != nil {
		return Config{}, err
	}
	if refresh {
		token, err := c.Authenticate(ctx, cfg.ClientID, cfg.ClientSecret, TestUsername, TestPassword)
		if err != nil {
			return Config{}, err
		}
		cfg.BearerToken = token
	}
	return cfg, nil
}

// GetOrCreate returns the stored configuration, creating the pool, app
// client and test user when none exists yet.
func (c *Client) GetOrCreate(ctx context.Context, refresh bool) (Config, error) {
	cfg, err := c.LoadConfig(ctx, refresh)
	if err == nil {
		return cfg, nil
	}
	slog.Info("no existing cognito config, creating a new pool", "err", err)
	return c.SetupPool(ctx)
}

// SetupPool creates the pool, app client and test user, then stores the
// configuration in the parameter store and Secrets Manager.
func (c *Client) SetupPool(ctx context.Context) (Config, error) {
	pool, err := c.api.CreateUserPool(ctx, &cip.CreateUserPoolInput{
		PoolName: aws.String(PoolName),
		Policies: &ciptypes.UserPoolPolicyType{
			PasswordPolicy: &ciptypes.PasswordPolicyType{MinimumLength: aws.Int32(minPasswordLength)},
		},
	})
	if err != nil {
		return Config{}, fmt.Errorf("cognito: create user pool: %w", err)
	}
	poolID := aws.ToString(pool.UserPool.Id)

	appClient, err := c.api.CreateUserPoolClient(ctx, &cip.CreateUserPoolClientInput{
		UserPoolId:     aws.String(poolID),
		ClientName:     aws.String(ClientName),
		GenerateSecret: true,
		ExplicitAuthFlows: []ciptypes.ExplicitAuthFlowsType{
			ciptypes.ExplicitAuthFlowsTypeAllowUserPasswordAuth,
			ciptypes.ExplicitAuthFlowsTypeAllowRefreshTokenAuth,
			ciptypes.ExplicitAuthFlowsTypeAllowUserSrpAuth,
		},
	})
	if err != nil {
		return Config{}, fmt.Errorf("cognito: create app client: %w", err)
	}
	clientID := aws.ToString(appClient.UserPoolClient.ClientId)
	clientSecret := aws.ToString(appClient.UserPoolClient.ClientSecret)

	if _, err := c.api.AdminCreateUser(ctx, &cip.AdminCreateUserInput{
		UserPoolId:        aws.String(poolID),
		Username:          aws.String(TestUsername),
		TemporaryPassword: aws.String(testTempPassword),
		MessageAction:     ciptypes.MessageActionTypeSuppress,
	}); err != nil {
		return Config{}, fmt.Errorf("cognito: create test user: %w", err)
	}
	if _, err := c.api.AdminSetUserPassword(ctx, &cip.AdminSetUserPasswordInput{
		UserPoolId: aws.String(poolID),
		Username:   aws.String(TestUsername),
		Password:   aws.String(TestPassword),
		Permanent:  true,
	}); err != nil {
		return Config{}, fmt.Errorf("cognito: set test user password: %w", err)
	}

	token, err := c.Authenticate(ctx, clientID, clientSecret, TestUsername, TestPassword)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		PoolID:       poolID,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		SecretHash:   SecretHash(TestUsername, clientID, clientSecret),
		BearerToken:  token,
		DiscoveryURL: DiscoveryURL(c.region, poolID),
	}

	params := []struct {
		key    string
		value  string
		secure bool
	}{
		{config.ParamClientID, cfg.ClientID, false},
		{config.ParamPoolID, cfg.PoolID, false},
		{config.ParamDiscoveryURL, cfg.DiscoveryURL, false},
		{config.ParamClientSecret, cfg.ClientSecret, true},
	}
	for _, p := range params {
		if err := c.params.PutParameter(ctx, config.ParamName(c.paramPrefix, p.key), p.value, p.secure); err != nil {
			return Config{}, fmt.Errorf("cognito: store %s: %w", p.key, err)
		}
	}
	if err := c.secrets.Save(ctx, cfg); err != nil {
		return Config{}, err
	}
	slog.Info("created cognito pool", "pool_id", poolID, "client_id", clientID, "discovery_url", cfg.DiscoveryURL)
	return cfg, nil
}

// Cleanup deletes every app client and user of poolID and then the pool. A
// pool that no longer exists is not an error.
func (c *Client) Cleanup(ctx context.Context, poolID string) error {
	if poolID == "" {
		return nil
	}
	err := c.cleanup(ctx, poolID)
	var nf *ciptypes.ResourceNotFoundException
	if errors.As(err, &nf) {
		slog.Info("user pool already deleted", "pool_id", poolID)
		return nil
	}
	return err
}

func (c *Client) cleanup(ctx context.Context, poolID string) error {
	clients, err := c.api.ListUserPoolClients(ctx, &cip.ListUserPoolClientsInput{
		UserPoolId: aws.String(poolID),
		MaxResults: aws.Int32(60),
	})
	if err != nil {
		return fmt.Errorf("cognito: list app clients: %w", err)
	}
	for _, cl := range clients.UserPoolClients {
		if _, err := c.api.DeleteUserPoolClient(ctx, &cip.DeleteUserPoolClientInput{
			UserPoolId: aws.String(poolID),
			ClientId:   cl.ClientId,
		}); err != nil {
			return fmt.Errorf("cognito: delete app client %q: %w", aws.ToString(cl.ClientName), err)
		}
	}

	users, err := c.api.ListUsers(ctx, &cip.ListUsersInput{UserPoolId: aws.String(poolID)})
	if err != nil {
		return fmt.Errorf("cognito: list users: %w", err)
	}
	for _, u := range users.Users {
		if _, err := c.api.AdminDeleteUser(ctx, &cip.AdminDeleteUserInput{
			UserPoolId: aws.String(poolID),
			Username:   u.Username,
		}); err != nil {
			return fmt.Errorf("cognito: delete user %q: %w", aws.ToString(u.Username), err)
		}
	}

	if _, err := c.api.DeleteUserPool(ctx, &cip.DeleteUserPoolInput{UserPoolId: aws.String(poolID)}); err != nil {
		return fmt.Errorf("cognito: delete user pool: %w", err)
	}
	return nil
}

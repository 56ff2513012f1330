// Command supportctl provisions and inspects the resources the customer
// support runtime depends on.
//
//	supportctl memory create|delete
//	supportctl gateway cleanup [gateway-id]
//	supportctl runtime delete [runtime-arn]
//	supportctl cognito setup|token|cleanup
//	supportctl params list
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	_ "github.com/joho/godotenv/autoload"

	"customer-support-agent/internal/config"
	"customer-support-agent/internal/gateway"
	"customer-support-agent/internal/integrations/agentcore"
	"customer-support-agent/internal/integrations/cognito"
	"customer-support-agent/internal/integrations/paramstore"
	"customer-support-agent/internal/memory"
)

const usage = `usage: supportctl <command> <action> [id]

commands:
  memory  create|delete         manage the AgentCore memory resource; delete
                                removes every memory when no id is stored
  gateway cleanup [gateway-id]  delete the gateway targets and the gateway
  runtime delete [runtime-arn]  delete one agent runtime, or all of them
  cognito setup|token|cleanup   manage the Cognito pool and bearer token
  params  list                  list the stored parameters
`

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() < 2 {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	cfg := config.Load()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}

	cmd, action, target := flag.Arg(0), flag.Arg(1), flag.Arg(2)
	switch cmd {
	case "memory":
		err = memoryCmd(ctx, cfg, awsCfg, params, action, os.Stdout)
	case "gateway":
		err = gatewayCmd(ctx, cfg, awsCfg, params, action, target, os.Stdout)
	case "runtime":
		err = runtimeCmd(ctx, cfg, awsCfg, params, action, target, os.Stdout)
	case "cognito":
		err = cognitoCmd(ctx, cfg, awsCfg, params, action, os.Stdout)
	case "params":
		err = paramsCmd(ctx, cfg, params, action, os.Stdout)
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if errors.Is(err, errUsage) {
		slog.Error("invalid arguments", "command", cmd, "action", action)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("command failed", "command", cmd, "action", action, "err", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid usage")

func memoryCmd(ctx context.Context, cfg config.Config, awsCfg aws.Config, params *paramstore.Client, action string, out io.Writer) error {
	p, err := memory.NewProvisioner(bedrockagentcorecontrol.NewFromConfig(awsCfg), params, cfg.ParamName(config.ParamMemoryID))
	if err != nil {
		return err
	}
	switch action {
	case "create":
		id, err := p.CreateOrGet(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, id)
		return nil
	case "delete":
		id, err := memory.ResolveID(ctx, params, cfg.MemoryID, cfg.ParamName(config.ParamMemoryID))
		if errors.Is(err, paramstore.ErrNotFound) {
			ids, err := p.DeleteAll(ctx)
			for _, id := range ids {
				fmt.Fprintf(out, "deleted memory %s\n", id)
			}
			return err
		}
		if err != nil {
			return err
		}
		if err := p.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted memory %s\n", id)
		return nil
	}
	return errUsage
}

func gatewayCmd(ctx context.Context, cfg config.Config, awsCfg aws.Config, params *paramstore.Client, action, gatewayID string, out io.Writer) error {
	if action != "cleanup" {
		return errUsage
	}
	if gatewayID == "" {
		id, err := params.GetParameter(ctx, cfg.ParamName(config.ParamGatewayID))
		if err != nil && !errors.Is(err, paramstore.ErrNotFound) {
			return err
		}
		gatewayID = id
	}
	c, err := gateway.NewCleaner(bedrockagentcorecontrol.NewFromConfig(awsCfg))
	if err != nil {
		return err
	}
	id, err := c.Cleanup(ctx, gatewayID)
	if err != nil {
		return err
	}
	if err := params.DeleteParameter(ctx, cfg.ParamName(config.ParamGatewayID)); err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted gateway %s\n", id)
	return nil
}

func runtimeCmd(ctx context.Context, cfg config.Config, awsCfg aws.Config, params *paramstore.Client, action, agentARN string, out io.Writer) error {
	if action != "delete" {
		return errUsage
	}
	r, err := agentcore.NewRuntimes(bedrockagentcorecontrol.NewFromConfig(awsCfg))
	if err != nil {
		return err
	}
	ids, err := r.Delete(ctx, agentARN)
	for _, id := range ids {
		fmt.Fprintf(out, "deleted runtime %s\n", id)
	}
	if err != nil {
		return err
	}
	name := cfg.ParamName(config.ParamRuntimeARN)
	stored, err := params.GetParameter(ctx, name)
	if errors.Is(err, paramstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if agentARN == "" || agentARN == stored {
		return params.DeleteParameter(ctx, name)
	}
	return nil
}

func cognitoCmd(ctx context.Context, cfg config.Config, awsCfg aws.Config, params *paramstore.Client, action string, out io.Writer) error {
	secrets, err := cognito.NewSecretStore(secretsmanager.NewFromConfig(awsCfg))
	if err != nil {
		return err
	}
	c, err := cognito.New(cip.NewFromConfig(awsCfg), secrets, params, cfg.ParamPrefix, awsCfg.Region)
	if err != nil {
		return err
	}
	switch action {
	case "setup":
		pool, err := c.GetOrCreate(ctx, true)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "pool_id=%s\nclient_id=%s\ndiscovery_url=%s\n", pool.PoolID, pool.ClientID, pool.DiscoveryURL)
		return nil
	case "token":
		pool, err := c.LoadConfig(ctx, true)
		if err != nil {
			return err
		}
		if err := secrets.Save(ctx, pool); err != nil {
			return err
		}
		fmt.Fprintln(out, pool.BearerToken)
		return nil
	case "cleanup":
		poolID, err := params.GetParameter(ctx, cfg.ParamName(config.ParamPoolID))
		if err != nil && !errors.Is(err, paramstore.ErrNotFound) {
			return err
		}
		if err := c.Cleanup(ctx, poolID); err != nil {
			return err
		}
		for _, key := range []string{config.ParamClientID, config.ParamPoolID, config.ParamDiscoveryURL, config.ParamClientSecret} {
			if err := params.DeleteParameter(ctx, cfg.ParamName(key)); err != nil {
				return err
			}
		}
		if err := secrets.Delete(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted cognito pool %s\n", poolID)
		return nil
	}
	return errUsage
}

func paramsCmd(ctx context.Context, cfg config.Config, params *paramstore.Client, action string, out io.Writer) error {
	if action != "list" {
		return errUsage
	}
	values, err := params.List(ctx, cfg.ParamPrefix)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "%s\t%s\n", name, values[name])
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcore"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentcorecontrol"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	_ "github.com/joho/godotenv/autoload"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"customer-support-agent/handler"
	"customer-support-agent/internal/agent"
	"customer-support-agent/internal/config"
	"customer-support-agent/internal/gateway"
	"customer-support-agent/internal/integrations/knowledgebase"
	"customer-support-agent/internal/integrations/paramstore"
	"customer-support-agent/internal/integrations/websearch"
	"customer-support-agent/internal/memory"
	"customer-support-agent/internal/tools"
	"customer-support-agent/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	cfg := config.Load()
	cfg.ApplyContainerEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	kb, err := knowledgebase.New(bedrockagentruntime.NewFromConfig(awsCfg), sts.NewFromConfig(awsCfg), params, awsCfg.Region)
	if err != nil {
		slog.Error("failed to create knowledge base client", "err", err)
		os.Exit(1)
	}
	toolServer := tools.NewServer(tools.Deps{Searcher: websearch.NewClient(), Retriever: kb})

	a, err := agent.New(
		agent.NewStreamingModel(agent.NewClient(cfg.Backend, awsCfg)),
		map[string]*mcp.Server{tools.ServerName: toolServer},
	)
	if err != nil {
		slog.Error("failed to create agent", "err", err)
		os.Exit(1)
	}

	control := bedrockagentcorecontrol.NewFromConfig(awsCfg)
	gw, err := gateway.New(control, params, cfg.ParamName(config.ParamGatewayID))
	if err != nil {
		slog.Error("failed to create gateway resolver", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	svc, err := usecase.NewInvokeService(a, gw, newMemory(ctx, cfg, awsCfg, control, params), usecase.InvokeConfig{
		Model:     cfg.ModelID,
		MaxTurns:  cfg.MaxTurns,
		GatewayID: cfg.GatewayID,
	})
	if err != nil {
		slog.Error("failed to create invoke service", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(svc)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		lambda.Start(h.HandleAPIGateway)
		return
	}
	if err := serve(ctx, cfg.Port, h.Router()); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

// newMemory opens the configured memory backend. Requests run without memory
// when none can be resolved.
func newMemory(ctx context.Context, cfg config.Config, awsCfg aws.Config, control *bedrockagentcorecontrol.Client, params *paramstore.Client) usecase.MemoryOpener {
	svc, err := memory.Open(ctx, params, memory.OpenConfig{
		MemoryID:  cfg.MemoryID,
		ParamName: cfg.ParamName(config.ParamMemoryID),
		Table:     cfg.MemoryTable,
	}, memory.Backends{
		Data:    bedrockagentcore.NewFromConfig(awsCfg),
		Control: control,
		Dynamo:  awsdynamodb.NewFromConfig(awsCfg),
	})
	if err != nil {
		slog.Warn("memory disabled", "err", err)
		return nil
	}
	slog.Info("memory enabled", "memory_id", svc.MemoryID(), "table", cfg.MemoryTable)
	return usecase.ServiceMemory{Service: svc}
}

func serve(ctx context.Context, port int, h http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	slog.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

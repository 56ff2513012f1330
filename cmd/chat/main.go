// Command chat is a terminal chat client for the deployed customer support
// runtime. It signs in through Cognito and streams answers as they arrive.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"

	"customer-support-agent/internal/chat"
	"customer-support-agent/internal/config"
	"customer-support-agent/internal/integrations/agentcore"
	"customer-support-agent/internal/integrations/cognito"
	"customer-support-agent/internal/integrations/paramstore"
)

func main() {
	username := flag.String("username", cognito.TestUsername, "Cognito username")
	password := flag.String("password", cognito.TestPassword, "Cognito password")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		fatal("failed to load AWS config", err)
	}
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		fatal("failed to create SSM client", err)
	}
	secrets, err := cognito.NewSecretStore(secretsmanager.NewFromConfig(awsCfg))
	if err != nil {
		fatal("failed to create secret store", err)
	}
	auth, err := cognito.New(cip.NewFromConfig(awsCfg), secrets, params, cfg.ParamPrefix, awsCfg.Region)
	if err != nil {
		fatal("failed to create cognito client", err)
	}

	pool, err := auth.LoadConfig(ctx, false)
	if err != nil {
		fatal("failed to load cognito config", err)
	}
	token, err := auth.Authenticate(ctx, pool.ClientID, pool.ClientSecret, *username, *password)
	if err != nil {
		fatal("login failed", err)
	}
	agentARN, err := params.GetParameter(ctx, cfg.ParamName(config.ParamRuntimeARN))
	if err != nil {
		fatal("failed to read runtime arn", err)
	}
	runtime, err := agentcore.NewClient(awsCfg.Region)
	if err != nil {
		fatal("failed to create runtime client", err)
	}

	newSession := func() *chat.Session {
		s, err := chat.NewSession(runtime, agentARN, uuid.NewString(), *username, token)
		if err != nil {
			fatal("failed to start session", err)
		}
		return s
	}
	session := newSession()

	fmt.Printf("Customer Support Agent\nWelcome, %s. Type /new for a new conversation, /quit to leave.\n", *username)
	run(ctx, os.Stdin, os.Stdout, session, newSession)
}

func run(ctx context.Context, in io.Reader, out io.Writer, session *chat.Session, newSession func() *chat.Session) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nHow can I help you today?\n> ")
		if !scanner.Scan() || ctx.Err() != nil {
			return
		}
		prompt := strings.TrimSpace(scanner.Text())
		switch prompt {
		case "":
			continue
		case "/quit", "/exit":
			return
		case "/new":
			session = newSession()
			fmt.Fprintf(out, "Started session %s\n", session.ID())
			continue
		}

		fmt.Fprintln(out, "Customer Support Agent is thinking...")
		reply := session.Ask(ctx, prompt, func(chunk string) {
			fmt.Fprint(out, chunk)
		})
		if reply.Err != nil {
			slog.Warn("invocation failed", "session_id", session.ID(), "err", reply.Err)
		}
		fmt.Fprintf(out, "\n\n%s\nResponse time: %.2f seconds\n", reply.Answer, reply.Elapsed.Seconds())
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}

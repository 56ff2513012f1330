package agent

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/aws"

	"customer-support-agent/internal/config"
)

// Model sends one request and reports streamed text through onText.
type Model interface {
	Send(ctx context.Context, params anthropic.MessageNewParams, onText func(string) error) (*anthropic.Message, error)
}

// NewClient returns a Messages API client for backend. The Bedrock backend
// signs requests with awsCfg; the Anthropic backend reads ANTHROPIC_API_KEY.
func NewClient(backend string, awsCfg aws.Config, opts ...option.RequestOption) anthropic.Client {
	if backend == config.BackendAnthropic {
		return anthropic.NewClient(opts...)
	}
	return anthropic.NewClient(append([]option.RequestOption{bedrock.WithConfig(awsCfg)}, opts...)...)
}

// StreamingModel is a Model over the streaming Messages API.
type StreamingModel struct {
	client anthropic.Client
}

func NewStreamingModel(client anthropic.Client) *StreamingModel {
	return &StreamingModel{client: client}
}

func (m *StreamingModel) Send(ctx context.Context, params anthropic.MessageNewParams, onText func(string) error) (*anthropic.Message, error) {
	stream := m.client.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	msg := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return nil, fmt.Errorf("agent: accumulate stream: %w", err)
		}
		ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" && onText != nil {
			if err := onText(delta.Text); err != nil {
				return nil, err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("agent: model stream: %w", err)
	}
	return &msg, nil
}

// Package chat holds the conversation state of the terminal chat client.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"customer-support-agent/internal/domain"
)

const (
	ContextWindow = 10
	Qualifier     = "DEFAULT"

	noResponse = "No response received"

	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Invoker streams a runtime invocation. *agentcore.Client satisfies it.
type Invoker interface {
	InvokeStreaming(ctx context.Context, agentARN string, payload []byte, sessionID, bearerToken, qualifier string, onChunk func(string) error) error
}

// Session is one signed-in conversation with the deployed runtime.
type Session struct {
	invoker     Invoker
	agentARN    string
	sessionID   string
	actorID     string
	bearerToken string
	messages    []domain.ChatMessage
	now         func() time.Time
}

func NewSession(invoker Invoker, agentARN, sessionID, actorID, bearerToken string) (*Session, error) {
	if invoker == nil {
		return nil, errors.New("chat: invoker must not be nil")
	}
	if strings.TrimSpace(agentARN) == "" {
		return nil, errors.New("chat: agent arn must not be empty")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, errors.New("chat: session id must not be empty")
	}
	return &Session{
		invoker:     invoker,
		agentARN:    agentARN,
		sessionID:   sessionID,
		actorID:     actorID,
		bearerToken: bearerToken,
		now:         time.Now,
	}, nil
}

func (s *Session) ID() string { return s.sessionID }

func (s *Session) Messages() []domain.ChatMessage {
	return append([]domain.ChatMessage(nil), s.messages...)
}

// Reply is the outcome of one Ask.
type Reply struct {
	Answer  string
	Elapsed time.Duration
	Err     error
}

// Ask sends prompt with the recent history as context. onChunk receives the
// streamed text. Failures become the assistant answer so the conversation
// keeps going; Reply.Err reports them.
func (s *Session) Ask(ctx context.Context, prompt string, onChunk func(string)) Reply {
	start := s.now()
	s.messages = append(s.messages, domain.ChatMessage{Role: RoleUser, Content: prompt})

	payload, err := json.Marshal(domain.InvocationRequest{
		Prompt:  BuildContext(s.messages, ContextWindow),
		ActorID: s.actorID,
		Stream:  true,
	})
	if err != nil {
		return s.finish(start, "", fmt.Errorf("chat: encode payload: %w", err))
	}

	var acc strings.Builder
	err = s.invoker.InvokeStreaming(ctx, s.agentARN, payload, s.sessionID, s.bearerToken, Qualifier, func(chunk string) error {
		if strings.TrimSpace(chunk) == "" {
			return nil
		}
		acc.WriteString(chunk)
		if onChunk != nil {
			onChunk(chunk)
		}
		return nil
	})
	return s.finish(start, acc.String(), err)
}

func (s *Session) finish(start time.Time, accumulated string, err error) Reply {
	answer := FormatResponseText(Answer(accumulated))
	if err != nil {
		answer = "Sorry, I encountered an error: " + err.Error()
	}
	s.messages = append(s.messages, domain.ChatMessage{Role: RoleAssistant, Content: answer})
	return Reply{Answer: answer, Elapsed: s.now().Sub(start), Err: err}
}

// BuildContext renders the last window exchanges as "User:"/"Assistant:" lines.
func BuildContext(messages []domain.ChatMessage, window int) string {
	if n := window * 2; len(messages) > n {
		messages = messages[len(messages)-n:]
	}
	var b strings.Builder
	for _, m := range messages {
		role := "Assistant"
		if m.Role == RoleUser {
			role = "User"
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// Answer returns the accumulated stream, or a placeholder when nothing arrived.
func Answer(accumulated string) string {
	if accumulated == "" {
		return noResponse
	}
	return accumulated
}

var escapes = strings.NewReplacer(`\"`, `"`, `\n`, "\n", `\t`, "\t", `\r`, "\r")

// FormatResponseText strips one pair of surrounding quotes and unescapes
// quotes, newlines, tabs and carriage returns.
func FormatResponseText(text string) string {
	if text == "" {
		return text
	}
	if len(text) >= 2 && strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) {
		text = text[1 : len(text)-1]
	}
	return escapes.Replace(text)
}

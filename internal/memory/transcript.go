package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"customer-support-agent/internal/domain"
)

const (
	skPrefixMsg     = "MSG#"
	skPrefixSession = "SESSION#"
	ttlDuration     = 90 * 24 * time.Hour // matches the managed memory event expiry
	statusComplete  = "complete"

	// HistoryStrategy is the single strategy type exposed by TranscriptStore.
	HistoryStrategy = "HISTORY"
)

// dynamodbAPI is the minimal DynamoDB interface required by TranscriptStore.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// TranscriptStore is a Store that keeps completed turns per actor in a
// DynamoDB table. Retrieval returns the most recent turns regardless of query.
type TranscriptStore struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

func NewTranscriptStore(api dynamodbAPI, tableName string) (*TranscriptStore, error) {
	if api == nil {
		return nil, errors.New("memory: dynamodb api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("memory: table name must not be empty")
	}
	return &TranscriptStore{api: api, tableName: tableName, now: time.Now}, nil
}

func actorPK(actorID string) string {
	return "ACTOR#" + actorID
}

func msgSK(ts time.Time) string {
	return skPrefixMsg + ts.UTC().Format(time.RFC3339Nano)
}

func sessionSK(sessionID string) string {
	return skPrefixSession + sessionID
}

func (s *TranscriptStore) ttlValue() int64 {
	return s.now().Add(ttlDuration).Unix()
}

func (s *TranscriptStore) Strategies(_ context.Context, _ string) ([]domain.MemoryStrategy, error) {
	return []domain.MemoryStrategy{{Type: HistoryStrategy, Namespace: "{actorId}"}}, nil
}

// Retrieve returns up to topK completed turns for the actor named by
// namespace, oldest first.
func (s *TranscriptStore) Retrieve(ctx context.Context, _, namespace, _ string, topK int) ([]domain.MemoryRecord, error) {
	msgs, err := s.history(ctx, namespace, topK)
	if err != nil {
		return nil, err
	}
	records := make([]domain.MemoryRecord, 0, len(msgs))
	for _, m := range msgs {
		if m.Status != statusComplete || m.Text == "" || m.Answer == "" {
			continue
		}
		records = append(records, domain.MemoryRecord{
			Text: fmt.Sprintf("Customer asked: %s | Agent answered: %s", m.Text, m.Answer),
		})
	}
	return records, nil
}

// SaveEvent writes the user/assistant pair as one completed turn and bumps the
// session turn counter in the same transaction.
func (s *TranscriptStore) SaveEvent(ctx context.Context, _, actorID, sessionID string, turns []Turn) error {
	var question, answer string
	for _, t := range turns {
		switch t.Role {
		case RoleUser:
			question = t.Text
		case RoleAssistant:
			answer = t.Text
		}
	}
	if question == "" || answer == "" {
		return errors.New("memory: SaveEvent: both user and assistant turns are required")
	}

	count, err := s.sessionTurnCount(ctx, actorID, sessionID)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	msg := domain.Message{
		PK:        actorPK(actorID),
		SK:        msgSK(now),
		ActorID:   actorID,
		SessionID: sessionID,
		Text:      question,
		Answer:    answer,
		Status:    statusComplete,
		TTL:       s.ttlValue(),
	}
	meta := domain.SessionMeta{
		PK:           actorPK(actorID),
		SK:           sessionSK(sessionID),
		ActorID:      actorID,
		SessionID:    sessionID,
		LastActivity: now.Format(time.RFC3339),
		Turns:        count + 1,
		TTL:          s.ttlValue(),
	}

	_, err = s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(s.tableName),
					Item:                messageItem(msg),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(s.tableName),
					Item:      metaItem(meta),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("memory: SaveEvent: %w", err)
	}
	return nil
}

func (s *TranscriptStore) history(ctx context.Context, actorID string, limit int) ([]domain.Message, error) {
	out, err := s.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: actorPK(actorID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		// Newest first so LIMIT favors the most recent turns.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("memory: history query: %w", err)
	}

	msgs := make([]domain.Message, 0, len(out.Items))
	for _, item := range out.Items {
		msg, err := itemToMessage(item)
		if err != nil {
			return nil, fmt.Errorf("memory: history unmarshal: %w", err)
		}
		msgs = append(msgs, msg)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *TranscriptStore) sessionTurnCount(ctx context.Context, actorID, sessionID string) (int, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: actorPK(actorID)},
			"SK": &types.AttributeValueMemberS{Value: sessionSK(sessionID)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("memory: session turn count: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return 0, nil
	}
	turns, err := intAttr(out.Item, "turns")
	if err != nil {
		return 0, fmt.Errorf("memory: session turn count decode: %w", err)
	}
	return turns, nil
}

func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.Message{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.Message{}, err
	}
	text, err := strAttr(item, "text")
	if err != nil {
		return domain.Message{}, err
	}
	answer, _ := strAttr(item, "answer")
	status, _ := strAttr(item, "status")
	sessionID, _ := strAttr(item, "sessionId")

	return domain.Message{
		PK:        pk,
		SK:        sk,
		SessionID: sessionID,
		Text:      text,
		Answer:    answer,
		Status:    status,
	}, nil
}

func messageItem(msg domain.Message) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: msg.PK},
		"SK":        &types.AttributeValueMemberS{Value: msg.SK},
		"actorId":   &types.AttributeValueMemberS{Value: msg.ActorID},
		"sessionId": &types.AttributeValueMemberS{Value: msg.SessionID},
		"text":      &types.AttributeValueMemberS{Value: msg.Text},
		"answer":    &types.AttributeValueMemberS{Value: msg.Answer},
		"status":    &types.AttributeValueMemberS{Value: msg.Status},
		"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(msg.TTL, 10)},
	}
}

func metaItem(meta domain.SessionMeta) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: meta.PK},
		"SK":           &types.AttributeValueMemberS{Value: meta.SK},
		"actorId":      &types.AttributeValueMemberS{Value: meta.ActorID},
		"sessionId":    &types.AttributeValueMemberS{Value: meta.SessionID},
		"lastActivity": &types.AttributeValueMemberS{Value: meta.LastActivity},
		"turns":        &types.AttributeValueMemberN{Value: strconv.Itoa(meta.Turns)},
		"ttl":          &types.AttributeValueMemberN{Value: strconv.FormatInt(meta.TTL, 10)},
	}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("memory: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("memory: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("memory: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("memory: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("memory: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

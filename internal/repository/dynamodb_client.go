package repository

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

	"router-agent/internal/domain"
)

const (
	skPrefixMsg = "MSG#"
	skMeta      = "META#"
	ttlDuration = 30 * 24 * time.Hour // 30-day TTL

	// one transaction holds at most 100 items; the meta item takes one slot
	maxMessagesPerTx = 99
	maxBatchDeletes  = 25
	maxBatchRetries  = 5
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoStore keeps a session as one META# item plus one MSG# item per
// message, all under the partition key SESSION#<id>. The meta item holds
// the message count; message items beyond it are ignored on load.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// NewDynamo creates a DynamoDB-backed session store.
func NewDynamo(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName, now: time.Now}, nil
}

// sessionPK returns the DynamoDB partition key for a session.
func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

// msgSK orders message items by their position in the log.
func msgSK(index int) string {
	return fmt.Sprintf("%s%08d", skPrefixMsg, index)
}

// ttlValue returns a Unix timestamp 30 days after now.
func ttlValue(now time.Time) int64 {
	return now.Add(ttlDuration).Unix()
}

type sessionMeta struct {
	Category       domain.Category
	Owner          string
	Repo           string
	MessageCount   int
	UserCount      int
	AssistantCount int
}

func (c *DynamoStore) getMeta(ctx context.Context, sessionID string) (sessionMeta, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return sessionMeta{}, false, fmt.Errorf("get meta item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return sessionMeta{}, false, nil
	}
	meta, err := itemToMeta(out.Item)
	if err != nil {
		return sessionMeta{}, false, fmt.Errorf("decode meta item: %w", err)
	}
	return meta, true, nil
}

// Save writes the messages not yet persisted plus the updated meta item.
// A state shorter than the stored log rewrites it from the start.
func (c *DynamoStore) Save(ctx context.Context, sessionID string, state domain.ConversationState) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}
	meta, _, err := c.getMeta(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("repository: Save: %w", err)
	}
	start := meta.MessageCount
	if start > len(state.Messages) {
		start = 0
	}

	now := c.now().UTC()
	pk := sessionPK(sessionID)
	pending := make([]types.TransactWriteItem, 0, len(state.Messages)-start+1)
	for i := start; i < len(state.Messages); i++ {
		pending = append(pending, types.TransactWriteItem{Put: &types.Put{
			TableName: aws.String(c.tableName),
			Item:      messageItem(pk, i, state.Messages[i], now),
		}})
	}

	// Messages first in full transactions, the meta item last so a
	// partially written log is never visible through the count.
	for len(pending) > maxMessagesPerTx {
		if _, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: pending[:maxMessagesPerTx],
		}); err != nil {
			return fmt.Errorf("repository: Save messages: %w", err)
		}
		pending = pending[maxMessagesPerTx:]
	}
	pending = append(pending, types.TransactWriteItem{Put: &types.Put{
		TableName: aws.String(c.tableName),
		Item:      metaItem(sessionID, state, now),
	}})
	if _, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: pending}); err != nil {
		return fmt.Errorf("repository: Save: %w", err)
	}
	return nil
}

func (c *DynamoStore) Load(ctx context.Context, sessionID string) (domain.ConversationState, bool, error) {
	if err := checkSessionID(sessionID); err != nil {
		return domain.ConversationState{}, false, err
	}
	meta, ok, err := c.getMeta(ctx, sessionID)
	if err != nil {
		return domain.ConversationState{}, false, fmt.Errorf("repository: Load: %w", err)
	}
	if !ok {
		return domain.ConversationState{}, false, nil
	}

	msgs := make([]domain.Message, 0, meta.MessageCount)
	err = c.queryMessages(ctx, sessionID, "", func(item map[string]types.AttributeValue) (bool, error) {
		if len(msgs) == meta.MessageCount {
			return false, nil
		}
		msg, err := itemToMessage(item)
		if err != nil {
			return false, err
		}
		msgs = append(msgs, msg)
		return true, nil
	})
	if err != nil {
		return domain.ConversationState{}, false, fmt.Errorf("repository: Load: %w", err)
	}
	if len(msgs) < meta.MessageCount {
		return domain.ConversationState{}, false, fmt.Errorf("repository: Load: session %q has %d of %d messages", sessionID, len(msgs), meta.MessageCount)
	}

	return domain.ConversationState{
		Messages: msgs,
		Category: meta.Category,
		Owner:    meta.Owner,
		Repo:     meta.Repo,
	}, true, nil
}

// queryMessages pages through the MSG# items in log order until visit
// returns false.
func (c *DynamoStore) queryMessages(ctx context.Context, sessionID, projection string, visit func(map[string]types.AttributeValue) (bool, error)) error {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	}
	if projection != "" {
		in.ProjectionExpression = aws.String(projection)
	}
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return fmt.Errorf("query messages: %w", err)
		}
		for _, item := range out.Items {
			more, err := visit(item)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// Clear deletes the meta item first, which makes the session absent, then
// the message items.
func (c *DynamoStore) Clear(ctx context.Context, sessionID string) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}
	pk := sessionPK(sessionID)
	keys := []map[string]types.AttributeValue{{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: skMeta},
	}}
	err := c.queryMessages(ctx, sessionID, "PK, SK", func(item map[string]types.AttributeValue) (bool, error) {
		keys = append(keys, map[string]types.AttributeValue{"PK": item["PK"], "SK": item["SK"]})
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("repository: Clear: %w", err)
	}

	for len(keys) > 0 {
		n := min(len(keys), maxBatchDeletes)
		if err := c.deleteBatch(ctx, keys[:n]); err != nil {
			return fmt.Errorf("repository: Clear: %w", err)
		}
		keys = keys[n:]
	}
	return nil
}

func (c *DynamoStore) deleteBatch(ctx context.Context, keys []map[string]types.AttributeValue) error {
	reqs := make([]types.WriteRequest, 0, len(keys))
	for _, k := range keys {
		reqs = append(reqs, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: k}})
	}
	pending := map[string][]types.WriteRequest{c.tableName: reqs}
	for attempt := 0; attempt < maxBatchRetries; attempt++ {
		out, err := c.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("batch delete: %w", err)
		}
		if out == nil || len(out.UnprocessedItems) == 0 {
			return nil
		}
		pending = out.UnprocessedItems
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(50*(attempt+1)) * time.Millisecond):
		}
	}
	return errors.New("batch delete: unprocessed items remain after retries")
}

func (c *DynamoStore) Stats(ctx context.Context, sessionID string) (domain.SessionStats, bool, error) {
	if err := checkSessionID(sessionID); err != nil {
		return domain.SessionStats{}, false, err
	}
	meta, ok, err := c.getMeta(ctx, sessionID)
	if err != nil {
		return domain.SessionStats{}, false, fmt.Errorf("repository: Stats: %w", err)
	}
	if !ok {
		return domain.SessionStats{}, false, nil
	}
	return domain.SessionStats{
		Total:          meta.MessageCount,
		UserCount:      meta.UserCount,
		AssistantCount: meta.AssistantCount,
	}, true, nil
}

func (c *DynamoStore) Close() error { return nil }

func messageItem(pk string, index int, msg domain.Message, now time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: pk},
		"SK":        &types.AttributeValueMemberS{Value: msgSK(index)},
		"role":      &types.AttributeValueMemberS{Value: string(msg.Role)},
		"content":   &types.AttributeValueMemberS{Value: msg.Content},
		"timestamp": &types.AttributeValueMemberS{Value: msg.Timestamp.UTC().Format(time.RFC3339Nano)},
		"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlValue(now), 10)},
	}
}

func metaItem(sessionID string, state domain.ConversationState, now time.Time) map[string]types.AttributeValue {
	st := state.Stats()
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
		"SK":             &types.AttributeValueMemberS{Value: skMeta},
		"sessionId":      &types.AttributeValueMemberS{Value: sessionID},
		"category":       &types.AttributeValueMemberS{Value: string(state.Category)},
		"owner":          &types.AttributeValueMemberS{Value: state.Owner},
		"repo":           &types.AttributeValueMemberS{Value: state.Repo},
		"messageCount":   &types.AttributeValueMemberN{Value: strconv.Itoa(st.Total)},
		"userCount":      &types.AttributeValueMemberN{Value: strconv.Itoa(st.UserCount)},
		"assistantCount": &types.AttributeValueMemberN{Value: strconv.Itoa(st.AssistantCount)},
		"lastActivity":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		"ttl":            &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlValue(now), 10)},
	}
}

// itemToMessage converts a DynamoDB attribute map to a Message.
func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	rawRole, err := strAttr(item, "role")
	if err != nil {
		return domain.Message{}, err
	}
	role, ok := domain.ParseRole(rawRole)
	if !ok {
		return domain.Message{}, fmt.Errorf("repository: unknown role %q", rawRole)
	}
	content, _ := strAttr(item, "content") // allow empty
	ts, err := strAttr(item, "timestamp")
	if err != nil {
		return domain.Message{}, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: parse timestamp: %w", err)
	}
	return domain.Message{Role: role, Content: content, Timestamp: parsed.UTC()}, nil
}

func itemToMeta(item map[string]types.AttributeValue) (sessionMeta, error) {
	var meta sessionMeta
	var err error
	if meta.MessageCount, err = intAttr(item, "messageCount"); err != nil {
		return sessionMeta{}, err
	}
	meta.UserCount, _ = intAttr(item, "userCount")
	meta.AssistantCount, _ = intAttr(item, "assistantCount")
	category, _ := strAttr(item, "category")
	meta.Category = domain.Category(category)
	meta.Owner, _ = strAttr(item, "owner")
	meta.Repo, _ = strAttr(item, "repo")
	return meta, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

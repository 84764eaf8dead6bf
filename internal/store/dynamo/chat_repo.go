// Package dynamo stores conversations and messages in a single DynamoDB table.
//
// Item layout:
//
//	PK=CONV#<id>   SK=META#              conversation snapshot
//	PK=CONV#<id>   SK=MSG#<ts>#<msgID>   message, sorted by timestamp
//	PK=USER#<uid>  SK=CONV#<id>          inbox entry per participant
package dynamo

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

	"lifecoach/backend/internal/domain"
	"lifecoach/backend/internal/store"
)

const (
	skMeta      = "META#"
	skPrefixMsg = "MSG#"
	skPrefixCnv = "CONV#"

	// Fixed width so lexical order of sort keys matches time order.
	sortTimeLayout = "2006-01-02T15:04:05.000000000Z"

	// TransactWriteItems accepts at most 100 actions.
	maxTxItems = 100
)

type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

type ChatRepo struct {
	api       dynamodbAPI
	tableName string
}

func NewChatRepo(api dynamodbAPI, tableName string) (*ChatRepo, error) {
	if api == nil {
		return nil, errors.New("dynamo: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("dynamo: table name must not be empty")
	}
	return &ChatRepo{api: api, tableName: tableName}, nil
}

func convPK(conversationID string) string {
	return "CONV#" + conversationID
}

func userPK(userID string) string {
	return "USER#" + userID
}

func msgSK(m domain.Message) string {
	return skPrefixMsg + formatTime(m.Timestamp) + "#" + m.ID
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sortTimeLayout)
}

func (r *ChatRepo) GetConversation(ctx context.Context, id string) (domain.Conversation, int64, error) {
	out, err := r.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(id)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.Conversation{}, 0, fmt.Errorf("dynamo: get conversation: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Conversation{}, 0, store.ErrNotFound
	}
	conv, version, err := itemToConversation(out.Item)
	if err != nil {
		return domain.Conversation{}, 0, fmt.Errorf("dynamo: decode conversation %s: %w", id, err)
	}
	return conv, version, nil
}

func (r *ChatRepo) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	items, err := r.queryAll(ctx, userPK(userID), skPrefixCnv)
	if err != nil {
		return nil, fmt.Errorf("dynamo: list inbox: %w", err)
	}

	convs := make([]domain.Conversation, 0, len(items))
	for _, item := range items {
		id, err := strAttr(item, "conversationId")
		if err != nil {
			return nil, fmt.Errorf("dynamo: decode inbox entry: %w", err)
		}
		conv, _, err := r.GetConversation(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, nil
}

func (r *ChatRepo) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	items, err := r.queryAll(ctx, convPK(conversationID), skPrefixMsg)
	if err != nil {
		return nil, fmt.Errorf("dynamo: list messages: %w", err)
	}
	msgs := make([]domain.Message, 0, len(items))
	for _, item := range items {
		m, err := itemToMessage(item)
		if err != nil {
			return nil, fmt.Errorf("dynamo: decode message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (r *ChatRepo) AppendMessage(ctx context.Context, conv domain.Conversation, msg domain.Message, prevVersion int64) error {
	meta := &types.Put{
		TableName: aws.String(r.tableName),
		Item:      conversationItem(conv, prevVersion+1),
	}
	if prevVersion == 0 {
		meta.ConditionExpression = aws.String("attribute_not_exists(PK)")
	} else {
		meta.ConditionExpression = aws.String("version = :prev")
		meta.ExpressionAttributeValues = map[string]types.AttributeValue{
			":prev": &types.AttributeValueMemberN{Value: strconv.FormatInt(prevVersion, 10)},
		}
	}

	items := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                messageItem(msg),
				ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
			},
		},
		{Put: meta},
	}
	if prevVersion == 0 {
		for _, p := range conv.Participants {
			items = append(items, types.TransactWriteItem{
				Put: &types.Put{
					TableName: aws.String(r.tableName),
					Item: map[string]types.AttributeValue{
						"PK":             &types.AttributeValueMemberS{Value: userPK(p)},
						"SK":             &types.AttributeValueMemberS{Value: skPrefixCnv + conv.ID},
						"conversationId": &types.AttributeValueMemberS{Value: conv.ID},
					},
				},
			})
		}
	}

	_, err := r.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		if conditionFailed(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("dynamo: append message: %w", err)
	}
	return nil
}

// MarkRead flips the read flag on the given messages of the conversation
// and zeroes userID's unread counter. Ids outside the conversation are
// ignored.
func (r *ChatRepo) MarkRead(ctx context.Context, conversationID, userID string, messageIDs []string) error {
	msgs, err := r.ListMessages(ctx, conversationID)
	if err != nil {
		return err
	}
	wanted := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = struct{}{}
	}

	var updates []types.TransactWriteItem
	for _, m := range msgs {
		if _, ok := wanted[m.ID]; !ok || m.Read {
			continue
		}
		updates = append(updates, types.TransactWriteItem{
			Update: &types.Update{
				TableName: aws.String(r.tableName),
				Key: map[string]types.AttributeValue{
					"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
					"SK": &types.AttributeValueMemberS{Value: msgSK(m)},
				},
				UpdateExpression: aws.String("SET #read = :true"),
				ExpressionAttributeNames: map[string]string{
					"#read": "read",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":true": &types.AttributeValueMemberBOOL{Value: true},
				},
			},
		})
	}

	// The counter reset bumps the version so a concurrent append that read
	// the old snapshot retries instead of restoring the stale count.
	updates = append(updates, types.TransactWriteItem{
		Update: &types.Update{
			TableName: aws.String(r.tableName),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
				"SK": &types.AttributeValueMemberS{Value: skMeta},
			},
			ConditionExpression: aws.String("attribute_exists(PK)"),
			UpdateExpression:    aws.String("SET unread.#u = :zero, updatedAt = :now ADD version :one"),
			ExpressionAttributeNames: map[string]string{
				"#u": userID,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":zero": &types.AttributeValueMemberN{Value: "0"},
				":one":  &types.AttributeValueMemberN{Value: "1"},
				":now":  &types.AttributeValueMemberS{Value: formatTime(time.Now())},
			},
		},
	})

	for start := 0; start < len(updates); start += maxTxItems {
		end := min(start+maxTxItems, len(updates))
		_, err := r.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: updates[start:end],
		})
		if err != nil {
			if conditionFailed(err) {
				return store.ErrNotFound
			}
			return fmt.Errorf("dynamo: mark read: %w", err)
		}
	}

	if len(msgs) == 0 {
		return nil
	}
	latest := msgs[len(msgs)-1]
	if _, ok := wanted[latest.ID]; !ok {
		return nil
	}
	return r.markSnapshotRead(ctx, conversationID, latest.ID)
}

// markSnapshotRead flips the read flag on the conversation's lastMessage
// copy. A newer message may have replaced the snapshot in the meantime; that
// one is left alone.
func (r *ChatRepo) markSnapshotRead(ctx context.Context, conversationID, messageID string) error {
	_, err := r.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConditionExpression: aws.String("lastMessage.#id = :id"),
		UpdateExpression:    aws.String("SET lastMessage.#read = :true"),
		ExpressionAttributeNames: map[string]string{
			"#id":   "id",
			"#read": "read",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id":   &types.AttributeValueMemberS{Value: messageID},
			":true": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil && !conditionFailed(err) {
		return fmt.Errorf("dynamo: mark snapshot read: %w", err)
	}
	return nil
}

func (r *ChatRepo) queryAll(ctx context.Context, pk, skPrefix string) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: pk},
				":prefix": &types.AttributeValueMemberS{Value: skPrefix},
			},
			ScanIndexForward:  aws.Bool(true),
			ExclusiveStartKey: startKey,
			ConsistentRead:    aws.Bool(true),
		})
		if err != nil {
			return nil, err
		}
		if out == nil {
			return items, nil
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func conditionFailed(err error) bool {
	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for _, reason := range txErr.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	var condErr *types.ConditionalCheckFailedException
	return errors.As(err, &condErr)
}

func messageItem(m domain.Message) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: convPK(m.ConversationID)},
		"SK":             &types.AttributeValueMemberS{Value: msgSK(m)},
		"id":             &types.AttributeValueMemberS{Value: m.ID},
		"conversationId": &types.AttributeValueMemberS{Value: m.ConversationID},
		"senderId":       &types.AttributeValueMemberS{Value: m.SenderID},
		"receiverId":     &types.AttributeValueMemberS{Value: m.ReceiverID},
		"content":        &types.AttributeValueMemberS{Value: m.Content},
		"type":           &types.AttributeValueMemberS{Value: string(m.Type)},
		"timestamp":      &types.AttributeValueMemberS{Value: formatTime(m.Timestamp)},
		"read":           &types.AttributeValueMemberBOOL{Value: m.Read},
	}
}

func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	var m domain.Message
	var err error
	fields := []struct {
		key string
		dst *string
	}{
		{"id", &m.ID},
		{"conversationId", &m.ConversationID},
		{"senderId", &m.SenderID},
		{"receiverId", &m.ReceiverID},
		{"content", &m.Content},
	}
	for _, f := range fields {
		if *f.dst, err = strAttr(item, f.key); err != nil {
			return domain.Message{}, err
		}
	}
	typ, err := strAttr(item, "type")
	if err != nil {
		return domain.Message{}, err
	}
	m.Type = domain.MessageType(typ)
	if m.Timestamp, err = timeAttr(item, "timestamp"); err != nil {
		return domain.Message{}, err
	}
	m.Read = boolAttr(item, "read")
	return m, nil
}

func conversationItem(c domain.Conversation, version int64) map[string]types.AttributeValue {
	participants := make([]types.AttributeValue, 0, len(c.Participants))
	for _, p := range c.Participants {
		participants = append(participants, &types.AttributeValueMemberS{Value: p})
	}
	unread := make(map[string]types.AttributeValue, len(c.UnreadCount))
	for uid, n := range c.UnreadCount {
		unread[uid] = &types.AttributeValueMemberN{Value: strconv.Itoa(n)}
	}

	item := map[string]types.AttributeValue{
		"PK":              &types.AttributeValueMemberS{Value: convPK(c.ID)},
		"SK":              &types.AttributeValueMemberS{Value: skMeta},
		"conversationId":  &types.AttributeValueMemberS{Value: c.ID},
		"participants":    &types.AttributeValueMemberL{Value: participants},
		"unread":          &types.AttributeValueMemberM{Value: unread},
		"lastMessageTime": &types.AttributeValueMemberS{Value: formatTime(c.LastMessageTime)},
		"createdAt":       &types.AttributeValueMemberS{Value: formatTime(c.CreatedAt)},
		"updatedAt":       &types.AttributeValueMemberS{Value: formatTime(c.UpdatedAt)},
		"version":         &types.AttributeValueMemberN{Value: strconv.FormatInt(version, 10)},
	}
	if c.LastMessage != nil {
		last := messageItem(*c.LastMessage)
		delete(last, "PK")
		delete(last, "SK")
		item["lastMessage"] = &types.AttributeValueMemberM{Value: last}
	}
	return item
}

func itemToConversation(item map[string]types.AttributeValue) (domain.Conversation, int64, error) {
	var c domain.Conversation
	var err error
	if c.ID, err = strAttr(item, "conversationId"); err != nil {
		return c, 0, err
	}
	if list, ok := item["participants"].(*types.AttributeValueMemberL); ok {
		for _, v := range list.Value {
			if s, ok := v.(*types.AttributeValueMemberS); ok {
				c.Participants = append(c.Participants, s.Value)
			}
		}
	}
	c.UnreadCount = make(map[string]int)
	if m, ok := item["unread"].(*types.AttributeValueMemberM); ok {
		for uid, v := range m.Value {
			n, ok := v.(*types.AttributeValueMemberN)
			if !ok {
				continue
			}
			count, err := strconv.Atoi(n.Value)
			if err != nil {
				return c, 0, fmt.Errorf("parse unread count for %q: %w", uid, err)
			}
			c.UnreadCount[uid] = count
		}
	}
	if last, ok := item["lastMessage"].(*types.AttributeValueMemberM); ok {
		m, err := itemToMessage(last.Value)
		if err != nil {
			return c, 0, fmt.Errorf("last message: %w", err)
		}
		c.LastMessage = &m
	}
	if c.LastMessageTime, err = timeAttr(item, "lastMessageTime"); err != nil {
		return c, 0, err
	}
	if c.CreatedAt, err = timeAttr(item, "createdAt"); err != nil {
		return c, 0, err
	}
	if c.UpdatedAt, err = timeAttr(item, "updatedAt"); err != nil {
		return c, 0, err
	}
	version, err := int64Attr(item, "version")
	if err != nil {
		return c, 0, err
	}
	return c, version, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(sortTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse attribute %q: %w", key, err)
	}
	return t, nil
}

func boolAttr(item map[string]types.AttributeValue, key string) bool {
	b, ok := item[key].(*types.AttributeValueMemberBOOL)
	return ok && b.Value
}

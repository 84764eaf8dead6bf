package dynamo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"lifecoach/backend/internal/domain"
	"lifecoach/backend/internal/store"
)

type fakeDynamo struct {
	getItems   map[string]map[string]types.AttributeValue
	getErr     error
	queryPages map[string][]*dynamodb.QueryOutput
	queryErr   error
	txErr      error
	updateErr  error

	lastGetInput *dynamodb.GetItemInput
	queryInputs  []*dynamodb.QueryInput
	txInputs     []*dynamodb.TransactWriteItemsInput
	updateInputs []*dynamodb.UpdateItemInput
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGetInput = in
	if f.getErr != nil {
		return nil, f.getErr
	}
	pk := in.Key["PK"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.getItems[pk]}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queryInputs = append(f.queryInputs, in)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	pk := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value
	pages := f.queryPages[pk]
	if len(pages) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	page := pages[0]
	f.queryPages[pk] = pages[1:]
	return page, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.txInputs = append(f.txInputs, in)
	return &dynamodb.TransactWriteItemsOutput{}, f.txErr
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updateInputs = append(f.updateInputs, in)
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func mustNewRepo(t *testing.T, db *fakeDynamo) *ChatRepo {
	t.Helper()
	r, err := NewChatRepo(db, "chat-table")
	require.NoError(t, err)
	return r
}

func sampleMessage(id string, at time.Time) domain.Message {
	return domain.Message{
		ID:             id,
		ConversationID: "a_b",
		SenderID:       "a",
		ReceiverID:     "b",
		Content:        "hello " + id,
		Type:           domain.MessageText,
		Timestamp:      at,
	}
}

func sampleConversation(last domain.Message) domain.Conversation {
	return domain.Conversation{
		ID:              "a_b",
		Participants:    []string{"a", "b"},
		LastMessage:     &last,
		LastMessageTime: last.Timestamp,
		UnreadCount:     map[string]int{"a": 0, "b": 2},
		CreatedAt:       last.Timestamp.Add(-time.Hour),
		UpdatedAt:       last.Timestamp,
	}
}

func TestNewChatRepo_RejectsMissingDeps(t *testing.T) {
	_, err := NewChatRepo(nil, "t")
	require.Error(t, err)
	_, err = NewChatRepo(&fakeDynamo{}, "  ")
	require.Error(t, err)
}

func TestGetConversation_RoundTripsSnapshot(t *testing.T) {
	at := time.Date(2025, 7, 10, 9, 30, 0, 123000000, time.UTC)
	conv := sampleConversation(sampleMessage("m2", at))
	db := &fakeDynamo{getItems: map[string]map[string]types.AttributeValue{
		convPK("a_b"): conversationItem(conv, 4),
	}}
	r := mustNewRepo(t, db)

	got, version, err := r.GetConversation(context.Background(), "a_b")
	require.NoError(t, err)
	require.Equal(t, int64(4), version)
	require.Equal(t, []string{"a", "b"}, got.Participants)
	require.Equal(t, 2, got.UnreadCount["b"])
	require.NotNil(t, got.LastMessage)
	require.Equal(t, "m2", got.LastMessage.ID)
	require.True(t, got.LastMessageTime.Equal(at))
	require.True(t, aws.ToBool(db.lastGetInput.ConsistentRead))
}

func TestGetConversation_Missing(t *testing.T) {
	r := mustNewRepo(t, &fakeDynamo{})
	_, _, err := r.GetConversation(context.Background(), "a_b")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetConversation_WrapsError(t *testing.T) {
	r := mustNewRepo(t, &fakeDynamo{getErr: errors.New("boom")})
	_, _, err := r.GetConversation(context.Background(), "a_b")
	require.Error(t, err)
	require.Contains(t, err.Error(), "get conversation")
}

func TestListMessages_FollowsPagination(t *testing.T) {
	t0 := time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)
	db := &fakeDynamo{queryPages: map[string][]*dynamodb.QueryOutput{
		convPK("a_b"): {
			{
				Items:            []map[string]types.AttributeValue{messageItem(sampleMessage("m1", t0))},
				LastEvaluatedKey: map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: convPK("a_b")}},
			},
			{
				Items: []map[string]types.AttributeValue{messageItem(sampleMessage("m2", t0.Add(time.Second)))},
			},
		},
	}}
	r := mustNewRepo(t, db)

	msgs, err := r.ListMessages(context.Background(), "a_b")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "m1", msgs[0].ID)
	require.Equal(t, "m2", msgs[1].ID)
	require.Len(t, db.queryInputs, 2)
	require.NotNil(t, db.queryInputs[1].ExclusiveStartKey)
	require.True(t, aws.ToBool(db.queryInputs[0].ScanIndexForward))
}

func TestListConversations_SkipsDanglingInboxEntries(t *testing.T) {
	conv := sampleConversation(sampleMessage("m1", time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)))
	inbox := func(id string) map[string]types.AttributeValue {
		return map[string]types.AttributeValue{
			"PK":             &types.AttributeValueMemberS{Value: userPK("a")},
			"SK":             &types.AttributeValueMemberS{Value: skPrefixCnv + id},
			"conversationId": &types.AttributeValueMemberS{Value: id},
		}
	}
	db := &fakeDynamo{
		queryPages: map[string][]*dynamodb.QueryOutput{
			userPK("a"): {{Items: []map[string]types.AttributeValue{inbox("a_b"), inbox("a_z")}}},
		},
		getItems: map[string]map[string]types.AttributeValue{
			convPK("a_b"): conversationItem(conv, 1),
		},
	}
	r := mustNewRepo(t, db)

	convs, err := r.ListConversations(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	require.Equal(t, "a_b", convs[0].ID)
}

func TestAppendMessage_NewConversationWritesInboxes(t *testing.T) {
	at := time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)
	msg := sampleMessage("m1", at)
	db := &fakeDynamo{}
	r := mustNewRepo(t, db)

	require.NoError(t, r.AppendMessage(context.Background(), sampleConversation(msg), msg, 0))
	require.Len(t, db.txInputs, 1)
	items := db.txInputs[0].TransactItems
	require.Len(t, items, 4)
	require.Equal(t, "attribute_not_exists(PK) AND attribute_not_exists(SK)", aws.ToString(items[0].Put.ConditionExpression))
	require.Equal(t, "attribute_not_exists(PK)", aws.ToString(items[1].Put.ConditionExpression))
	require.Equal(t, "1", items[1].Put.Item["version"].(*types.AttributeValueMemberN).Value)
	require.Equal(t, userPK("a"), items[2].Put.Item["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, userPK("b"), items[3].Put.Item["PK"].(*types.AttributeValueMemberS).Value)
}

func TestAppendMessage_ExistingConversationChecksVersion(t *testing.T) {
	msg := sampleMessage("m2", time.Date(2025, 7, 10, 9, 1, 0, 0, time.UTC))
	db := &fakeDynamo{}
	r := mustNewRepo(t, db)

	require.NoError(t, r.AppendMessage(context.Background(), sampleConversation(msg), msg, 3))
	items := db.txInputs[0].TransactItems
	require.Len(t, items, 2)
	require.Equal(t, "version = :prev", aws.ToString(items[1].Put.ConditionExpression))
	require.Equal(t, "3", items[1].Put.ExpressionAttributeValues[":prev"].(*types.AttributeValueMemberN).Value)
	require.Equal(t, "4", items[1].Put.Item["version"].(*types.AttributeValueMemberN).Value)
}

func TestAppendMessage_ConditionFailureIsConflict(t *testing.T) {
	msg := sampleMessage("m2", time.Now())
	db := &fakeDynamo{txErr: &types.TransactionCanceledException{
		CancellationReasons: []types.CancellationReason{{Code: aws.String("None")}, {Code: aws.String("ConditionalCheckFailed")}},
	}}
	r := mustNewRepo(t, db)

	err := r.AppendMessage(context.Background(), sampleConversation(msg), msg, 2)
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestAppendMessage_OtherErrorsWrapped(t *testing.T) {
	msg := sampleMessage("m2", time.Now())
	r := mustNewRepo(t, &fakeDynamo{txErr: errors.New("ProvisionedThroughputExceededException")})

	err := r.AppendMessage(context.Background(), sampleConversation(msg), msg, 2)
	require.Error(t, err)
	require.NotErrorIs(t, err, store.ErrConflict)
	require.Contains(t, err.Error(), "append message")
}

func TestMarkRead_UpdatesOnlyUnreadRequestedMessages(t *testing.T) {
	t0 := time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)
	read := sampleMessage("m0", t0)
	read.Read = true
	db := &fakeDynamo{queryPages: map[string][]*dynamodb.QueryOutput{
		convPK("a_b"): {{Items: []map[string]types.AttributeValue{
			messageItem(read),
			messageItem(sampleMessage("m1", t0.Add(time.Second))),
			messageItem(sampleMessage("m2", t0.Add(2*time.Second))),
		}}},
	}}
	r := mustNewRepo(t, db)

	require.NoError(t, r.MarkRead(context.Background(), "a_b", "b", []string{"m0", "m1", "missing"}))
	require.Len(t, db.txInputs, 1)
	items := db.txInputs[0].TransactItems
	require.Len(t, items, 2)
	require.Equal(t, msgSK(sampleMessage("m1", t0.Add(time.Second))), items[0].Update.Key["SK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, skMeta, items[1].Update.Key["SK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "b", items[1].Update.ExpressionAttributeNames["#u"])
	require.Empty(t, db.updateInputs, "m2 is the snapshot and was not in the batch")
}

func TestMarkRead_FlipsLastMessageSnapshot(t *testing.T) {
	t0 := time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)
	db := &fakeDynamo{queryPages: map[string][]*dynamodb.QueryOutput{
		convPK("a_b"): {{Items: []map[string]types.AttributeValue{
			messageItem(sampleMessage("m1", t0)),
			messageItem(sampleMessage("m2", t0.Add(time.Second))),
		}}},
	}}
	r := mustNewRepo(t, db)

	require.NoError(t, r.MarkRead(context.Background(), "a_b", "b", []string{"m1", "m2"}))
	require.Len(t, db.updateInputs, 1)
	in := db.updateInputs[0]
	require.Equal(t, skMeta, in.Key["SK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "SET lastMessage.#read = :true", aws.ToString(in.UpdateExpression))
	require.Equal(t, "m2", in.ExpressionAttributeValues[":id"].(*types.AttributeValueMemberS).Value)
}

func TestMarkRead_SnapshotReplacedMeanwhileIsNotAnError(t *testing.T) {
	t0 := time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)
	db := &fakeDynamo{
		queryPages: map[string][]*dynamodb.QueryOutput{
			convPK("a_b"): {{Items: []map[string]types.AttributeValue{messageItem(sampleMessage("m1", t0))}}},
		},
		updateErr: &types.ConditionalCheckFailedException{Message: aws.String("newer message")},
	}
	r := mustNewRepo(t, db)

	require.NoError(t, r.MarkRead(context.Background(), "a_b", "b", []string{"m1"}))
	require.Len(t, db.updateInputs, 1)

	db.queryPages = map[string][]*dynamodb.QueryOutput{
		convPK("a_b"): {{Items: []map[string]types.AttributeValue{messageItem(sampleMessage("m1", t0))}}},
	}
	db.updateErr = errors.New("throttled")
	err := r.MarkRead(context.Background(), "a_b", "b", []string{"m1"})
	require.ErrorContains(t, err, "mark snapshot read")
}

func TestMarkRead_ChunksLargeBatches(t *testing.T) {
	t0 := time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)
	var items []map[string]types.AttributeValue
	var ids []string
	for i := range 150 {
		m := sampleMessage("m"+time.Duration(i).String(), t0.Add(time.Duration(i)*time.Second))
		items = append(items, messageItem(m))
		ids = append(ids, m.ID)
	}
	db := &fakeDynamo{queryPages: map[string][]*dynamodb.QueryOutput{
		convPK("a_b"): {{Items: items}},
	}}
	r := mustNewRepo(t, db)

	require.NoError(t, r.MarkRead(context.Background(), "a_b", "b", ids))
	require.Len(t, db.txInputs, 2)
	require.Len(t, db.txInputs[0].TransactItems, maxTxItems)
	require.Len(t, db.txInputs[1].TransactItems, 51)
}

func TestMsgSK_SortsChronologically(t *testing.T) {
	early := sampleMessage("z", time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC))
	late := sampleMessage("a", time.Date(2025, 7, 10, 9, 0, 0, 500, time.UTC))
	require.Less(t, msgSK(early), msgSK(late))
}

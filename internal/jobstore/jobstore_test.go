package jobstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsSortable(t *testing.T) {
	a, err := NewID()
	require.NoError(t, err)
	b, err := NewID()
	require.NoError(t, err)
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
}

func TestMemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.Create(ctx, &Video{ID: "a", Topic: "Fourier series"}))
	assert.Error(t, s.Create(ctx, &Video{ID: "a"}))

	require.NoError(t, s.UpdateProgress(ctx, "a", "rendering", 0.6, "Rendering"))
	v, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "rendering", v.Status)
	assert.InDelta(t, 0.6, v.ProgressPercent, 1e-9)

	require.NoError(t, s.Complete(ctx, "a", Completion{Title: "Fourier", VideoURL: "https://x/a.mp4", UsedFallback: true}))
	v, err = s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, v.Status)
	assert.Equal(t, "https://x/a.mp4", v.VideoURL)
	assert.True(t, v.UsedFallback)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Fail(ctx, "missing", "x"), ErrNotFound)
}

func TestMemoryListPages(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	for _, id := range []string{"01A", "01B", "01C"} {
		require.NoError(t, s.Create(ctx, &Video{ID: id}))
	}

	page, cursor, err := s.List(ctx, 2, "")
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "01C", page[0].ID)
	assert.Equal(t, "01B", page[1].ID)
	require.NotEmpty(t, cursor)

	page, cursor, err = s.List(ctx, 2, cursor)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "01A", page[0].ID)
	assert.Empty(t, cursor)
}

// fakeDynamo records requests and serves a single stored item.
type fakeDynamo struct {
	put    *dynamodb.PutItemInput
	update *dynamodb.UpdateItemInput
	query  *dynamodb.QueryInput
	item   map[string]types.AttributeValue
	err    error
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.put = in
	f.item = in.Item
	return &dynamodb.PutItemOutput{}, f.err
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.update = in
	return &dynamodb.UpdateItemOutput{}, f.err
}

func (f *fakeDynamo) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.item}, f.err
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.query = in
	out := &dynamodb.QueryOutput{}
	if f.item != nil {
		out.Items = []map[string]types.AttributeValue{f.item}
		out.LastEvaluatedKey = map[string]types.AttributeValue{"GSI1SK": f.item["GSI1SK"]}
	}
	return out, f.err
}

func TestDynamoCreateAndGet(t *testing.T) {
	ctx := context.Background()
	fake := &fakeDynamo{}
	s := NewDynamo(fake, "videos")

	_, err := s.Get(ctx, "x")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Create(ctx, &Video{ID: "01J", Topic: "Entropy", Style: "whiteboard"}))
	assert.Equal(t, "videos", *fake.put.TableName)

	var stored Video
	require.NoError(t, attributevalue.UnmarshalMap(fake.put.Item, &stored))
	assert.Equal(t, "VIDEO#01J", stored.PK)
	assert.Equal(t, "VIDEOS", stored.GSI1PK)
	assert.Equal(t, StatusSubmitted, stored.Status)

	v, err := s.Get(ctx, "01J")
	require.NoError(t, err)
	assert.Equal(t, "Entropy", v.Topic)
	assert.Equal(t, "whiteboard", v.Style)
}

func TestDynamoUpdates(t *testing.T) {
	ctx := context.Background()
	fake := &fakeDynamo{}
	s := NewDynamo(fake, "videos")

	require.NoError(t, s.Complete(ctx, "01J", Completion{VideoURL: "u", PlanJSON: "{}"}))
	assert.Contains(t, *fake.update.UpdateExpression, "planJson = :plan")
	assert.Equal(t, &types.AttributeValueMemberS{Value: "VIDEO#01J"}, fake.update.Key["PK"])

	require.NoError(t, s.Fail(ctx, "01J", "render failed"))
	assert.Equal(t, &types.AttributeValueMemberS{Value: StatusError}, fake.update.ExpressionAttributeValues[":status"])

	fake.err = errors.New("throttled")
	assert.ErrorContains(t, s.UpdateProgress(ctx, "01J", "rendering", 0.5, "r"), "throttled")
}

func TestDynamoListCursor(t *testing.T) {
	ctx := context.Background()
	fake := &fakeDynamo{}
	s := NewDynamo(fake, "videos")
	require.NoError(t, s.Create(ctx, &Video{ID: "01J"}))

	items, next, err := s.List(ctx, 0, "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int32(defaultPage), *fake.query.Limit)
	assert.NotEmpty(t, next)

	_, _, err = s.List(ctx, 5, next)
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "VIDEO#01J"}, fake.query.ExclusiveStartKey["PK"])

	_, _, err = s.List(ctx, 5, "garbage")
	assert.Error(t, err)
}

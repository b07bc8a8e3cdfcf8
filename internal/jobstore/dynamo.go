package jobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client Dynamo uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Dynamo stores jobs in a single DynamoDB table keyed by PK/SK, with a
// GSI1 index listing every video by creation time.
type Dynamo struct {
	client    DynamoAPI
	tableName string
}

func NewDynamo(client DynamoAPI, tableName string) *Dynamo {
	return &Dynamo{client: client, tableName: tableName}
}

func key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk(id)},
		"SK": &types.AttributeValueMemberS{Value: metadataSK},
	}
}

// Create inserts a new job. v.ID must be set; Status defaults to submitted.
func (s *Dynamo) Create(ctx context.Context, v *Video) error {
	if v.ID == "" {
		return errors.New("create job: empty id")
	}
	if v.Status == "" {
		v.Status = StatusSubmitted
	}
	v.CreatedAt = now()
	v.PK = pk(v.ID)
	v.SK = metadataSK
	v.GSI1PK = listPK
	v.GSI1SK = v.CreatedAt + "#" + v.ID

	av, err := attributevalue.MarshalMap(v)
	if err != nil {
		return fmt.Errorf("marshal job item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.tableName,
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("put job item: %w", err)
	}
	return nil
}

// UpdateProgress updates the job's status, progress percent, and stage message in place.
func (s *Dynamo) UpdateProgress(ctx context.Context, id, status string, percent float64, message string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              key(id),
		UpdateExpression: aws.String("SET #status = :status, progressPercent = :pct, stageMessage = :msg, updatedAt = :now"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: status},
			":pct":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%.2f", percent)},
			":msg":    &types.AttributeValueMemberS{Value: message},
			":now":    &types.AttributeValueMemberS{Value: now()},
		},
	})
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// Complete marks the job as completed with final metadata.
func (s *Dynamo) Complete(ctx context.Context, id string, c Completion) error {
	updateExpr := "SET #status = :status, progressPercent = :pct, stageMessage = :msg, title = :title, videoUrl = :url, usedFallback = :fb, updatedAt = :now"
	values := map[string]types.AttributeValue{
		":status": &types.AttributeValueMemberS{Value: StatusCompleted},
		":pct":    &types.AttributeValueMemberN{Value: "1.00"},
		":msg":    &types.AttributeValueMemberS{Value: "Complete"},
		":title":  &types.AttributeValueMemberS{Value: c.Title},
		":url":    &types.AttributeValueMemberS{Value: c.VideoURL},
		":fb":     &types.AttributeValueMemberBOOL{Value: c.UsedFallback},
		":now":    &types.AttributeValueMemberS{Value: now()},
	}
	if c.PlanJSON != "" {
		updateExpr += ", planJson = :plan"
		values[":plan"] = &types.AttributeValueMemberS{Value: c.PlanJSON}
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              key(id),
		UpdateExpression: aws.String(updateExpr),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Fail marks the job as failed with an error message.
func (s *Dynamo) Fail(ctx context.Context, id, errMsg string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              key(id),
		UpdateExpression: aws.String("SET #status = :status, errorMessage = :err, stageMessage = :msg, updatedAt = :now"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: StatusError},
			":err":    &types.AttributeValueMemberS{Value: errMsg},
			":msg":    &types.AttributeValueMemberS{Value: "Failed: " + errMsg},
			":now":    &types.AttributeValueMemberS{Value: now()},
		},
	})
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// Get retrieves a single job by ID.
func (s *Dynamo) Get(ctx context.Context, id string) (*Video, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       key(id),
	})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	var v Video
	if err := attributevalue.UnmarshalMap(result.Item, &v); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &v, nil
}

// List returns jobs ordered by creation time (newest first) via GSI1.
func (s *Dynamo) List(ctx context.Context, limit int, cursor string) ([]Video, string, error) {
	if limit <= 0 {
		limit = defaultPage
	}

	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: listPK},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	if cursor != "" {
		// The cursor is the GSI1SK value {createdAt}#{id}.
		_, id, ok := strings.Cut(cursor, "#")
		if !ok || id == "" {
			return nil, "", fmt.Errorf("invalid cursor format")
		}
		input.ExclusiveStartKey = map[string]types.AttributeValue{
			"PK":     &types.AttributeValueMemberS{Value: pk(id)},
			"SK":     &types.AttributeValueMemberS{Value: metadataSK},
			"GSI1PK": &types.AttributeValueMemberS{Value: listPK},
			"GSI1SK": &types.AttributeValueMemberS{Value: cursor},
		}
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("list jobs: %w", err)
	}

	var items []Video
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, "", fmt.Errorf("unmarshal job list: %w", err)
	}

	var next string
	if result.LastEvaluatedKey != nil {
		if sk, ok := result.LastEvaluatedKey["GSI1SK"].(*types.AttributeValueMemberS); ok {
			next = sk.Value
		}
	}
	return items, next, nil
}

var _ Store = (*Dynamo)(nil)

// Package dynamodb implements the commit store against DynamoDB's
// TransactWriteItems primitive: the staged batch maps to one atomic
// transact-write call, and store-side cancellations surface as structured
// commit errors.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/ndjndj/dynamoid/pkg/record"
)

// Compile-time contract assertion.
var _ record.CommitStore = (*Store)(nil)

// Store issues atomic multi-item commits against DynamoDB.
type Store struct {
	client *dynamodb.Client
}

// Config holds explicit construction parameters (mostly for tests). For prod
// we rely primarily on environment variables and the default credentials
// chain.
type Config struct {
	Region          string
	Endpoint        string // optional; if set enables custom endpoint (e.g. DynamoDB Local)
	AccessKeyID     string // optional (falls back to default credentials chain)
	SecretAccessKey string // optional
	SessionToken    string // optional
}

// Environment variables:
//   DYNAMOID_STORE_DRIVER=dynamodb
//   DYNAMOID_DYNAMO_REGION=<region> (default us-east-1)
//   DYNAMOID_DYNAMO_ENDPOINT=<url> (optional, for DynamoDB Local)
//   AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)

// New creates a DynamoDB commit store from Config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{client: client}, nil
}

// OpenFromEnv constructs a DynamoDB store from process environment.
func OpenFromEnv(ctx context.Context) (*Store, error) {
	cfg := Config{
		Region:   os.Getenv("DYNAMOID_DYNAMO_REGION"),
		Endpoint: os.Getenv("DYNAMOID_DYNAMO_ENDPOINT"),
	}
	return New(ctx, cfg)
}

// Commit translates the batch into one TransactWriteItems call. The store
// accepts the whole batch or none of it; cancellation detail maps to
// record.CommitError reasons.
func (s *Store) Commit(ctx context.Context, batch []record.WriteRequest) error {
	if len(batch) > record.MaxTransactItems {
		return record.CommitError{Cause: record.ErrTooManyOperations}
	}
	items := make([]types.TransactWriteItem, 0, len(batch))
	for _, req := range batch {
		item, err := translate(req)
		if err != nil {
			return record.CommitError{Cause: err}
		}
		items = append(items, item)
	}
	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err == nil {
		return nil
	}

	var cancelled *types.TransactionCanceledException
	if errors.As(err, &cancelled) {
		var reasons []record.CancellationReason
		for i, reason := range cancelled.CancellationReasons {
			code := aws.ToString(reason.Code)
			if code == "" || code == "None" {
				continue
			}
			reasons = append(reasons, record.CancellationReason{
				Index:   i,
				Code:    code,
				Message: aws.ToString(reason.Message),
			})
		}
		return record.CommitError{Cause: err, Reasons: reasons}
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return record.CommitError{Cause: fmt.Errorf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())}
	}
	return record.CommitError{Cause: err}
}

// Get fetches one item; used by callers verifying committed state.
func (s *Store) Get(ctx context.Context, table string, key map[string]any) (map[string]any, bool, error) {
	k, err := attributevalue.MarshalMap(key)
	if err != nil {
		return nil, false, err
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            k,
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, err
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}
	var item map[string]any
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, false, err
	}
	return item, true, nil
}

func translate(req record.WriteRequest) (types.TransactWriteItem, error) {
	expr, names, values := buildCondition(req)
	switch req.Kind {
	case record.WritePut, record.WritePutIfAbsent:
		item, err := attributevalue.MarshalMap(req.Item)
		if err != nil {
			return types.TransactWriteItem{}, fmt.Errorf("marshal item for %s: %w", req.Table, err)
		}
		put := &types.Put{TableName: aws.String(req.Table), Item: item}
		if expr != "" {
			put.ConditionExpression = aws.String(expr)
			put.ExpressionAttributeNames = names
			put.ExpressionAttributeValues = values
		}
		return types.TransactWriteItem{Put: put}, nil
	case record.WriteDelete:
		key, err := attributevalue.MarshalMap(req.Key)
		if err != nil {
			return types.TransactWriteItem{}, fmt.Errorf("marshal key for %s: %w", req.Table, err)
		}
		del := &types.Delete{TableName: aws.String(req.Table), Key: key}
		if expr != "" {
			del.ConditionExpression = aws.String(expr)
			del.ExpressionAttributeNames = names
			del.ExpressionAttributeValues = values
		}
		return types.TransactWriteItem{Delete: del}, nil
	}
	return types.TransactWriteItem{}, fmt.Errorf("unsupported write kind %q", req.Kind)
}

func buildCondition(req record.WriteRequest) (string, map[string]string, map[string]types.AttributeValue) {
	cond := req.Condition
	if cond.IsZero() {
		return "", nil, nil
	}
	var parts []string
	names := make(map[string]string)
	var values map[string]types.AttributeValue
	if cond.HashNotExists {
		parts = append(parts, "attribute_not_exists(#hk)")
		names["#hk"] = req.HashAttribute
	}
	if cond.HashExists {
		parts = append(parts, "attribute_exists(#hk)")
		names["#hk"] = req.HashAttribute
	}
	if cond.LockAttribute != "" {
		parts = append(parts, "#lk = :lk")
		names["#lk"] = cond.LockAttribute
		values = map[string]types.AttributeValue{
			":lk": &types.AttributeValueMemberN{Value: strconv.FormatInt(cond.LockValue, 10)},
		}
	}
	return strings.Join(parts, " AND "), names, values
}

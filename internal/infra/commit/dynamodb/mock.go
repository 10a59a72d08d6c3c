package dynamodb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// NewMockForTests builds a Store backed by an in-process DynamoDB wire mock.
// schemas maps table name to its key attribute names (hash key first). The
// mock speaks the awsjson1.0 protocol for TransactWriteItems and GetItem and
// reproduces conditional-check and duplicate-item cancellation behavior, so
// commit semantics can be exercised without network access.
func NewMockForTests(schemas map[string][]string) *Store {
	transport := &mockTransport{
		schemas: schemas,
		tables:  make(map[string]map[string]map[string]any),
	}
	cfg := aws.Config{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider("mock", "mock", ""),
		HTTPClient:  &http.Client{Transport: transport},
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = aws.String("https://dynamodb.mock.invalid")
		o.Retryer = aws.NopRetryer{}
	})
	return &Store{client: client}
}

// mockTransport stores items as raw AttributeValue maps keyed by table and
// serialized primary key.
type mockTransport struct {
	mu      sync.Mutex
	schemas map[string][]string
	tables  map[string]map[string]map[string]any
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch req.Header.Get("X-Amz-Target") {
	case "DynamoDB_20120810.TransactWriteItems":
		return m.handleTransactWrite(body)
	case "DynamoDB_20120810.GetItem":
		return m.handleGetItem(body)
	}
	return jsonResponse(http.StatusBadRequest, map[string]any{
		"__type":  "com.amazonaws.dynamodb.v20120810#UnknownOperationException",
		"message": "unknown operation",
	})
}

type transactWritePayload struct {
	TransactItems []struct {
		Put *struct {
			TableName                 string
			Item                      map[string]any
			ConditionExpression       string
			ExpressionAttributeNames  map[string]string
			ExpressionAttributeValues map[string]any
		}
		Delete *struct {
			TableName                 string
			Key                       map[string]any
			ConditionExpression       string
			ExpressionAttributeNames  map[string]string
			ExpressionAttributeValues map[string]any
		}
	}
}

func (m *mockTransport) handleTransactWrite(body []byte) (*http.Response, error) {
	var payload transactWritePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return jsonResponse(http.StatusBadRequest, map[string]any{
			"__type":  "com.amazon.coral.validate#ValidationException",
			"message": err.Error(),
		})
	}

	type plannedWrite struct {
		table  string
		key    string
		item   map[string]any // nil for delete
		failed bool
	}
	writes := make([]plannedWrite, 0, len(payload.TransactItems))
	seen := make(map[string]bool)
	anyFailed := false
	for _, ti := range payload.TransactItems {
		var w plannedWrite
		switch {
		case ti.Put != nil:
			key, err := m.keyOfItem(ti.Put.TableName, ti.Put.Item)
			if err != nil {
				return validationError(err.Error())
			}
			w = plannedWrite{table: ti.Put.TableName, key: key, item: ti.Put.Item}
			w.failed = !m.conditionHolds(ti.Put.TableName, key, ti.Put.ConditionExpression, ti.Put.ExpressionAttributeNames, ti.Put.ExpressionAttributeValues)
		case ti.Delete != nil:
			key, err := m.keyOfItem(ti.Delete.TableName, ti.Delete.Key)
			if err != nil {
				return validationError(err.Error())
			}
			w = plannedWrite{table: ti.Delete.TableName, key: key}
			w.failed = !m.conditionHolds(ti.Delete.TableName, key, ti.Delete.ConditionExpression, ti.Delete.ExpressionAttributeNames, ti.Delete.ExpressionAttributeValues)
		default:
			return validationError("transact item must contain Put or Delete")
		}
		dup := w.table + "\x1e" + w.key
		if seen[dup] {
			return validationError("Transaction request cannot include multiple operations on one item")
		}
		seen[dup] = true
		anyFailed = anyFailed || w.failed
		writes = append(writes, w)
	}

	if anyFailed {
		reasons := make([]map[string]any, len(writes))
		for i, w := range writes {
			if w.failed {
				reasons[i] = map[string]any{"Code": "ConditionalCheckFailed", "Message": "The conditional request failed"}
			} else {
				reasons[i] = map[string]any{"Code": "None"}
			}
		}
		return jsonResponse(http.StatusBadRequest, map[string]any{
			"__type":              "com.amazonaws.dynamodb.v20120810#TransactionCanceledException",
			"Message":             "Transaction cancelled, please refer cancellation reasons for specific reasons",
			"CancellationReasons": reasons,
		})
	}

	for _, w := range writes {
		table := m.tables[w.table]
		if table == nil {
			table = make(map[string]map[string]any)
			m.tables[w.table] = table
		}
		if w.item == nil {
			delete(table, w.key)
		} else {
			table[w.key] = w.item
		}
	}
	return jsonResponse(http.StatusOK, map[string]any{})
}

func (m *mockTransport) handleGetItem(body []byte) (*http.Response, error) {
	var payload struct {
		TableName string
		Key       map[string]any
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return validationError(err.Error())
	}
	key, err := m.keyOfItem(payload.TableName, payload.Key)
	if err != nil {
		return validationError(err.Error())
	}
	item, ok := m.tables[payload.TableName][key]
	if !ok {
		return jsonResponse(http.StatusOK, map[string]any{})
	}
	return jsonResponse(http.StatusOK, map[string]any{"Item": item})
}

// keyOfItem serializes an item's primary key per the configured table schema.
func (m *mockTransport) keyOfItem(table string, item map[string]any) (string, error) {
	schema, ok := m.schemas[table]
	if !ok {
		return "", fmt.Errorf("mock has no key schema for table %q", table)
	}
	parts := make([]string, 0, len(schema))
	for _, attr := range schema {
		av, ok := item[attr]
		if !ok {
			return "", fmt.Errorf("item for table %q missing key attribute %q", table, attr)
		}
		parts = append(parts, fmt.Sprintf("%s=%v", attr, scalarOf(av)))
	}
	return strings.Join(parts, "\x1f"), nil
}

// scalarOf unwraps a single-entry AttributeValue map like {"S":"abc"}.
func scalarOf(av any) any {
	m, ok := av.(map[string]any)
	if !ok {
		return av
	}
	for _, v := range m {
		return v
	}
	return nil
}

// conditionHolds evaluates the condition-expression subset the store emits:
// attribute_not_exists(#x), attribute_exists(#x) and #x = :v, joined by AND.
func (m *mockTransport) conditionHolds(table, key, expr string, names map[string]string, values map[string]any) bool {
	if expr == "" {
		return true
	}
	existing, exists := m.tables[table][key]
	for _, part := range strings.Split(expr, " AND ") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "attribute_not_exists("):
			attr := names[strings.TrimSuffix(strings.TrimPrefix(part, "attribute_not_exists("), ")")]
			if exists && existing[attr] != nil {
				return false
			}
		case strings.HasPrefix(part, "attribute_exists("):
			attr := names[strings.TrimSuffix(strings.TrimPrefix(part, "attribute_exists("), ")")]
			if !exists || existing[attr] == nil {
				return false
			}
		case strings.Contains(part, " = "):
			fields := strings.SplitN(part, " = ", 2)
			attr := names[strings.TrimSpace(fields[0])]
			want := values[strings.TrimSpace(fields[1])]
			if !exists || !reflect.DeepEqual(existing[attr], want) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func validationError(msg string) (*http.Response, error) {
	return jsonResponse(http.StatusBadRequest, map[string]any{
		"__type":  "com.amazon.coral.validate#ValidationException",
		"message": msg,
	})
}

func jsonResponse(status int, body map[string]any) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/x-amz-json-1.0"}},
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}, nil
}

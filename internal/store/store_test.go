package store

import (
	"io"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/sirupsen/logrus"
)

// fakeDynamo serves scripted responses so queries and batch writes can be
// exercised without a real DynamoDB endpoint.
type fakeDynamo struct {
	dynamodbiface.DynamoDBAPI

	queryPages  []*dynamodb.QueryOutput
	queryErrs   []error
	queryInputs []*dynamodb.QueryInput

	batchOutputs []*dynamodb.BatchWriteItemOutput
	batchErrs    []error
	batchInputs  []*dynamodb.BatchWriteItemInput
}

func (f *fakeDynamo) QueryWithContext(_ aws.Context, input *dynamodb.QueryInput, _ ...request.Option) (*dynamodb.QueryOutput, error) {
	call := len(f.queryInputs)
	f.queryInputs = append(f.queryInputs, input)

	if call < len(f.queryErrs) && f.queryErrs[call] != nil {
		return nil, f.queryErrs[call]
	}
	if call < len(f.queryPages) {
		return f.queryPages[call], nil
	}
	return &dynamodb.QueryOutput{}, nil
}

func (f *fakeDynamo) BatchWriteItemWithContext(_ aws.Context, input *dynamodb.BatchWriteItemInput, _ ...request.Option) (*dynamodb.BatchWriteItemOutput, error) {
	call := len(f.batchInputs)
	f.batchInputs = append(f.batchInputs, input)

	if call < len(f.batchErrs) && f.batchErrs[call] != nil {
		return nil, f.batchErrs[call]
	}
	if call < len(f.batchOutputs) {
		return f.batchOutputs[call], nil
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

var testTables = Tables{
	Posts:         "posts",
	Relationships: "relationships",
	Timelines:     "timelines",
}

func newTestStore(db dynamodbiface.DynamoDBAPI) *Store {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	// Millisecond backoff keeps retry tests fast.
	return New(db, testTables, RetryConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
	}, logger)
}

func stringItem(pairs map[string]string) map[string]*dynamodb.AttributeValue {
	item := make(map[string]*dynamodb.AttributeValue, len(pairs))
	for k, v := range pairs {
		item[k] = &dynamodb.AttributeValue{S: aws.String(v)}
	}
	return item
}

package store

import (
	"time"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"feedworks/pkg/logging"
)

// Secondary index names, fixed by the table definitions.
const (
	IndexByFollowee        = "byFollowee"
	IndexByCreator         = "byCreator"
	IndexByDistributedFrom = "byDistributedFrom"
	IndexByOriginPost      = "byOriginPost"
)

// Tables holds the backing table names.
type Tables struct {
	Posts         string
	Relationships string
	Timelines     string
}

// RetryConfig bounds retries of transient DynamoDB errors.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig returns the retry defaults used in production.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}
}

// Store reads audience data and writes timeline rows in DynamoDB. It is the
// sole writer of the timelines table.
type Store struct {
	db     dynamodbiface.DynamoDBAPI
	tables Tables
	retry  retrypolicy.RetryPolicy[any]
	logger logging.Logger
}

// New creates a Store on top of an existing DynamoDB client.
func New(db dynamodbiface.DynamoDBAPI, tables Tables, cfg RetryConfig, logger logging.Logger) *Store {
	if cfg.MaxRetries <= 0 {
		cfg = DefaultRetryConfig()
	}

	retry := retrypolicy.NewBuilder[any]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ any, err error) bool {
			return isTransient(err)
		}).
		Build()

	return &Store{
		db:     db,
		tables: tables,
		retry:  retry,
		logger: logger,
	}
}

// DB exposes the underlying client for health checks.
func (s *Store) DB() dynamodbiface.DynamoDBAPI {
	return s.db
}

// isTransient reports whether a DynamoDB error is worth retrying.
func isTransient(err error) bool {
	aerr, ok := err.(awserr.Error)
	if !ok {
		return false
	}

	switch aerr.Code() {
	case dynamodb.ErrCodeProvisionedThroughputExceededException,
		dynamodb.ErrCodeRequestLimitExceeded,
		dynamodb.ErrCodeInternalServerError,
		"ThrottlingException",
		"ServiceUnavailable":
		return true
	}

	if reqErr, ok := err.(awserr.RequestFailure); ok && reqErr.StatusCode() >= 500 {
		return true
	}

	return false
}

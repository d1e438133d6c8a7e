package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/failsafe-go/failsafe-go"

	"feedworks/pkg/logging"
	"feedworks/pkg/models"
)

// maxUnprocessedAttempts bounds the retry loop for rows DynamoDB reports
// back as unprocessed on an otherwise successful BatchWriteItem call.
const maxUnprocessedAttempts = 5

// ApplyBatch executes one batch of timeline mutations as a single
// BatchWriteItem call. Puts are full overwrites of the composite key and
// deletes of absent keys succeed, so replaying a batch converges to the same
// final state. Unprocessed rows are retried with backoff; if any remain
// after the retries the whole call fails and the originating event must be
// redelivered.
func (s *Store) ApplyBatch(ctx context.Context, muts []models.TimelineMutation) error {
	if len(muts) == 0 {
		return nil
	}

	writes := make([]*dynamodb.WriteRequest, 0, len(muts))
	for _, mut := range muts {
		switch {
		case mut.Put != nil:
			writes = append(writes, &dynamodb.WriteRequest{
				PutRequest: &dynamodb.PutRequest{Item: marshalTimelineEntry(*mut.Put)},
			})
		case mut.Delete != nil:
			writes = append(writes, &dynamodb.WriteRequest{
				DeleteRequest: &dynamodb.DeleteRequest{Key: marshalTimelineKey(*mut.Delete)},
			})
		default:
			return fmt.Errorf("timeline mutation with neither put nor delete")
		}
	}

	remaining := writes
	backoff := 50 * time.Millisecond

	for attempt := 0; attempt < maxUnprocessedAttempts; attempt++ {
		input := &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]*dynamodb.WriteRequest{
				s.tables.Timelines: remaining,
			},
		}

		result, err := failsafe.With(s.retry).WithContext(ctx).Get(func() (any, error) {
			return s.db.BatchWriteItemWithContext(ctx, input)
		})
		if err != nil {
			return fmt.Errorf("batch write timeline rows: %w", err)
		}

		out := result.(*dynamodb.BatchWriteItemOutput)
		unprocessed := out.UnprocessedItems[s.tables.Timelines]
		if len(unprocessed) == 0 {
			return nil
		}

		s.logger.WithFields(logging.Fields{
			"unprocessed": len(unprocessed),
			"attempt":     attempt + 1,
		}).Warn("Retrying unprocessed timeline writes")

		remaining = unprocessed
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return fmt.Errorf("batch write left %d unprocessed timeline rows after %d attempts", len(remaining), maxUnprocessedAttempts)
}

package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/twmb/franz-go/pkg/kgo"
)

func record(topic string, partition int32, offset int64, value string) *kgo.Record {
	return &kgo.Record{
		Topic:     topic,
		Partition: partition,
		Offset:    offset,
		Value:     []byte(value),
	}
}

func TestProcessRecordsCommitsLastSuccessPerPartition(t *testing.T) {
	var handled []int64
	c := &Consumer{
		logger: quietLogger(),
		handler: func(_ context.Context, msg Message) error {
			handled = append(handled, msg.Offset)
			return nil
		},
	}

	commits := c.processRecords(context.Background(), []*kgo.Record{
		record("post_changes", 0, 1, "a"),
		record("post_changes", 0, 2, "b"),
		record("post_changes", 1, 5, "c"),
	})

	if len(handled) != 3 {
		t.Fatalf("handled %d records, want 3", len(handled))
	}
	if len(commits) != 2 {
		t.Fatalf("expected one commit record per partition, got %d", len(commits))
	}
	offsets := map[int32]int64{}
	for _, r := range commits {
		offsets[r.Partition] = r.Offset
	}
	if offsets[0] != 2 || offsets[1] != 5 {
		t.Fatalf("commit offsets = %v, want {0:2 1:5}", offsets)
	}
}

func TestProcessRecordsBlocksPartitionAfterFailure(t *testing.T) {
	var handled []int64
	c := &Consumer{
		logger: quietLogger(),
		handler: func(_ context.Context, msg Message) error {
			handled = append(handled, msg.Offset)
			if msg.Partition == 0 && msg.Offset == 2 {
				return errors.New("store unavailable")
			}
			return nil
		},
	}

	commits := c.processRecords(context.Background(), []*kgo.Record{
		record("post_changes", 0, 1, "a"),
		record("post_changes", 0, 2, "b"),
		record("post_changes", 0, 3, "c"),
		record("post_changes", 1, 7, "d"),
	})

	for _, offset := range handled {
		if offset == 3 {
			t.Fatal("offsets past a failed event on the same partition must not be processed")
		}
	}

	offsets := map[int32]int64{}
	for _, r := range commits {
		offsets[r.Partition] = r.Offset
	}
	if offsets[0] != 1 {
		t.Fatalf("partition 0 must commit only up to the last success, got %v", offsets)
	}
	if offsets[1] != 7 {
		t.Fatalf("an unrelated partition must still commit, got %v", offsets)
	}
}

func TestProcessRecordsNoSuccessNoCommit(t *testing.T) {
	c := &Consumer{
		logger: quietLogger(),
		handler: func(_ context.Context, _ Message) error {
			return errors.New("store unavailable")
		},
	}

	commits := c.processRecords(context.Background(), []*kgo.Record{
		record("post_changes", 0, 1, "a"),
	})
	if commits != nil {
		t.Fatalf("no commits expected when every record fails, got %v", commits)
	}
}

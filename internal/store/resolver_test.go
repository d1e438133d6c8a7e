package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
)

func TestFollowerIDsDrainsAllPages(t *testing.T) {
	db := &fakeDynamo{
		queryPages: []*dynamodb.QueryOutput{
			{
				Items: []map[string]*dynamodb.AttributeValue{
					stringItem(map[string]string{"follower_id": "bob"}),
					stringItem(map[string]string{"follower_id": "carol"}),
				},
				LastEvaluatedKey: stringItem(map[string]string{"follower_id": "carol"}),
			},
			{
				Items: []map[string]*dynamodb.AttributeValue{
					stringItem(map[string]string{"follower_id": "dave"}),
				},
			},
		},
	}
	s := newTestStore(db)

	followers, err := s.FollowerIDs(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FollowerIDs: %v", err)
	}

	want := []string{"bob", "carol", "dave"}
	if len(followers) != len(want) {
		t.Fatalf("got %v, want %v", followers, want)
	}
	for i := range want {
		if followers[i] != want[i] {
			t.Fatalf("got %v, want %v", followers, want)
		}
	}

	if len(db.queryInputs) != 2 {
		t.Fatalf("expected 2 query pages, got %d", len(db.queryInputs))
	}
	if db.queryInputs[1].ExclusiveStartKey == nil {
		t.Fatal("second page must resume from LastEvaluatedKey")
	}

	first := db.queryInputs[0]
	if aws.StringValue(first.IndexName) != IndexByFollowee {
		t.Fatalf("queried index %s, want %s", aws.StringValue(first.IndexName), IndexByFollowee)
	}
	if got := aws.StringValue(first.ExpressionAttributeValues[":follows"].S); got != "FOLLOWS_" {
		t.Fatalf("follows prefix condition = %q, want FOLLOWS_", got)
	}
}

func TestFollowerIDsRetriesThrottledPage(t *testing.T) {
	db := &fakeDynamo{
		queryErrs: []error{
			awserr.New(dynamodb.ErrCodeProvisionedThroughputExceededException, "throughput exceeded", nil),
			nil,
		},
		queryPages: []*dynamodb.QueryOutput{
			{},
			{
				Items: []map[string]*dynamodb.AttributeValue{
					stringItem(map[string]string{"follower_id": "bob"}),
				},
			},
		},
	}
	s := newTestStore(db)

	followers, err := s.FollowerIDs(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FollowerIDs: %v", err)
	}
	if len(followers) != 1 || followers[0] != "bob" {
		t.Fatalf("got %v, want [bob]", followers)
	}
	if len(db.queryInputs) != 2 {
		t.Fatalf("expected a retry after throttling, got %d calls", len(db.queryInputs))
	}
}

func TestFollowerIDsGivesUpOnPersistentThrottling(t *testing.T) {
	throttled := awserr.New(dynamodb.ErrCodeProvisionedThroughputExceededException, "throughput exceeded", nil)
	db := &fakeDynamo{
		queryErrs: []error{throttled, throttled, throttled, throttled},
	}
	s := newTestStore(db)

	if _, err := s.FollowerIDs(context.Background(), "alice"); err == nil {
		t.Fatal("exhausted retries must surface the throttling error")
	}
	// MaxRetries is 2, so 1 initial attempt + 2 retries.
	if len(db.queryInputs) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(db.queryInputs))
	}
}

func TestFollowerIDsAbortsOnPageError(t *testing.T) {
	db := &fakeDynamo{
		queryPages: []*dynamodb.QueryOutput{
			{
				Items: []map[string]*dynamodb.AttributeValue{
					stringItem(map[string]string{"follower_id": "bob"}),
				},
				LastEvaluatedKey: stringItem(map[string]string{"follower_id": "bob"}),
			},
		},
		queryErrs: []error{nil, errors.New("connection reset")},
	}
	s := newTestStore(db)

	followers, err := s.FollowerIDs(context.Background(), "alice")
	if err == nil {
		t.Fatal("a failed page fetch must fail the whole resolve")
	}
	if followers != nil {
		t.Fatalf("no partial result expected, got %v", followers)
	}
}

func TestRecentPostsSortsAndCaps(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	page := func(offsets ...int) *dynamodb.QueryOutput {
		out := &dynamodb.QueryOutput{}
		for _, off := range offsets {
			out.Items = append(out.Items, stringItem(map[string]string{
				"id":         fmt.Sprintf("t%02d", off),
				"creator":    "erin",
				"created_at": base.Add(time.Duration(off) * time.Minute).Format(time.RFC3339Nano),
			}))
		}
		return out
	}

	first := page(14, 13, 12, 11, 10, 9, 8, 7)
	first.LastEvaluatedKey = stringItem(map[string]string{"id": "x"})
	db := &fakeDynamo{queryPages: []*dynamodb.QueryOutput{first, page(6, 5, 4, 3, 2, 1, 0)}}
	s := newTestStore(db)

	posts, err := s.RecentPosts(context.Background(), "erin", 10)
	if err != nil {
		t.Fatalf("RecentPosts: %v", err)
	}

	if len(posts) != 10 {
		t.Fatalf("got %d posts, want 10", len(posts))
	}
	for i := 1; i < len(posts); i++ {
		if posts[i].CreatedAt.After(posts[i-1].CreatedAt) {
			t.Fatalf("posts not sorted newest-first at index %d", i)
		}
	}
	if oldest := posts[len(posts)-1].CreatedAt; oldest.Before(base.Add(5 * time.Minute)) {
		t.Fatalf("cap kept a post older than the 10 newest: %v", oldest)
	}

	if fwd := db.queryInputs[0].ScanIndexForward; fwd == nil || *fwd {
		t.Fatal("creator index must be read newest-first")
	}
}

func TestRecentPostsNonPositiveLimit(t *testing.T) {
	db := &fakeDynamo{}
	s := newTestStore(db)

	posts, err := s.RecentPosts(context.Background(), "erin", 0)
	if err != nil || posts != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", posts, err)
	}
	if len(db.queryInputs) != 0 {
		t.Fatal("no query expected for a non-positive limit")
	}
}

func TestEntriesForPostQueriesOriginIndex(t *testing.T) {
	db := &fakeDynamo{
		queryPages: []*dynamodb.QueryOutput{
			{
				Items: []map[string]*dynamodb.AttributeValue{
					stringItem(map[string]string{
						"user_id":          "bob",
						"post_id":          "t1",
						"distributed_from": "alice",
						"timestamp":        "2024-03-01T09:00:00Z",
					}),
				},
			},
		},
	}
	s := newTestStore(db)

	entries, err := s.EntriesForPost(context.Background(), "alice", "t1")
	if err != nil {
		t.Fatalf("EntriesForPost: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.UserID != "bob" || entry.PostID != "t1" || entry.DistributedFrom != "alice" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.Timestamp.IsZero() {
		t.Fatal("timestamp not parsed")
	}

	if aws.StringValue(db.queryInputs[0].IndexName) != IndexByOriginPost {
		t.Fatalf("queried index %s, want %s", aws.StringValue(db.queryInputs[0].IndexName), IndexByOriginPost)
	}
}

func TestEntriesDistributedFromQueriesProvenanceIndex(t *testing.T) {
	db := &fakeDynamo{}
	s := newTestStore(db)

	if _, err := s.EntriesDistributedFrom(context.Background(), "carol", "alice"); err != nil {
		t.Fatalf("EntriesDistributedFrom: %v", err)
	}

	input := db.queryInputs[0]
	if aws.StringValue(input.IndexName) != IndexByDistributedFrom {
		t.Fatalf("queried index %s, want %s", aws.StringValue(input.IndexName), IndexByDistributedFrom)
	}
	if got := aws.StringValue(input.ExpressionAttributeValues[":owner"].S); got != "carol" {
		t.Fatalf(":owner = %q, want carol", got)
	}
	if got := aws.StringValue(input.ExpressionAttributeValues[":creator"].S); got != "alice" {
		t.Fatalf(":creator = %q, want alice", got)
	}
}

package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/failsafe-go/failsafe-go"

	"feedworks/pkg/models"
)

// query executes one index page fetch under the store's retry policy, so a
// throttled resolve gets the same bounded backoff as a throttled batch write.
func (s *Store) query(ctx context.Context, input *dynamodb.QueryInput) (*dynamodb.QueryOutput, error) {
	result, err := failsafe.With(s.retry).WithContext(ctx).Get(func() (any, error) {
		return s.db.QueryWithContext(ctx, input)
	})
	if err != nil {
		return nil, err
	}
	return result.(*dynamodb.QueryOutput), nil
}

// FollowerIDs returns every follower of the given creator. It drains the
// byFollowee index page by page; a failed page fetch aborts the whole
// resolve, there is no partial-result fallback.
func (s *Store) FollowerIDs(ctx context.Context, creatorID string) ([]string, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.Relationships),
		IndexName:              aws.String(IndexByFollowee),
		KeyConditionExpression: aws.String("followee_id = :followee AND begins_with(sk, :follows)"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":followee": {S: aws.String(creatorID)},
			":follows":  {S: aws.String(models.FollowsPrefix + "_")},
		},
	}

	var followers []string
	for {
		out, err := s.query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query followers of %s: %w", creatorID, err)
		}

		for _, item := range out.Items {
			if id := stringAttr(item, "follower_id"); id != "" {
				followers = append(followers, id)
			}
		}

		if len(out.LastEvaluatedKey) == 0 {
			return followers, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// RecentPosts returns up to limit of the creator's most recent posts. Pages
// are fetched newest-first until the accumulated count reaches the limit;
// results are sorted by creation time before the cap is applied so "most
// recent" holds regardless of index ordering.
func (s *Store) RecentPosts(ctx context.Context, creatorID string, limit int) ([]models.Post, error) {
	if limit <= 0 {
		return nil, nil
	}

	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.Posts),
		IndexName:              aws.String(IndexByCreator),
		KeyConditionExpression: aws.String("creator = :creator"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":creator": {S: aws.String(creatorID)},
		},
		ScanIndexForward: aws.Bool(false),
	}

	var posts []models.Post
	for {
		out, err := s.query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query posts of %s: %w", creatorID, err)
		}

		for _, item := range out.Items {
			posts = append(posts, unmarshalPost(item))
		}

		if len(posts) >= limit || len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	if len(posts) > limit {
		posts = posts[:limit]
	}

	return posts, nil
}

// EntriesDistributedFrom returns every timeline row of ownerID that was
// distributed from creatorID. This is the authoritative row set for
// unfollow reversal.
func (s *Store) EntriesDistributedFrom(ctx context.Context, ownerID, creatorID string) ([]models.TimelineEntry, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.Timelines),
		IndexName:              aws.String(IndexByDistributedFrom),
		KeyConditionExpression: aws.String("user_id = :owner AND distributed_from = :creator"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":owner":   {S: aws.String(ownerID)},
			":creator": {S: aws.String(creatorID)},
		},
	}

	return s.queryEntries(ctx, input, "provenance entries")
}

// EntriesForPost returns every timeline row produced by fanning out the
// given post, across all owners. This is the authoritative row set for
// post-removal reversal; the current follower set is never re-derived.
func (s *Store) EntriesForPost(ctx context.Context, creatorID, postID string) ([]models.TimelineEntry, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tables.Timelines),
		IndexName:              aws.String(IndexByOriginPost),
		KeyConditionExpression: aws.String("distributed_from = :creator AND post_id = :post"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":creator": {S: aws.String(creatorID)},
			":post":    {S: aws.String(postID)},
		},
	}

	return s.queryEntries(ctx, input, "origin post entries")
}

func (s *Store) queryEntries(ctx context.Context, input *dynamodb.QueryInput, what string) ([]models.TimelineEntry, error) {
	var entries []models.TimelineEntry
	for {
		out, err := s.query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", what, err)
		}

		for _, item := range out.Items {
			entries = append(entries, unmarshalTimelineEntry(item))
		}

		if len(out.LastEvaluatedKey) == 0 {
			return entries, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

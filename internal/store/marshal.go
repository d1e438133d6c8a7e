package store

import (
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"

	"feedworks/pkg/models"
)

// Timestamps are stored as RFC3339Nano in UTC so identical inputs always
// produce identical attribute values.
const timeFormat = time.RFC3339Nano

// marshalTimelineEntry converts an entry into a DynamoDB item. Absent
// optional attributes are omitted entirely, never written as NULL.
func marshalTimelineEntry(entry models.TimelineEntry) map[string]*dynamodb.AttributeValue {
	item := map[string]*dynamodb.AttributeValue{
		"user_id":          {S: aws.String(entry.UserID)},
		"post_id":          {S: aws.String(entry.PostID)},
		"timestamp":        {S: aws.String(entry.Timestamp.UTC().Format(timeFormat))},
		"distributed_from": {S: aws.String(entry.DistributedFrom)},
	}

	if entry.RepostOf != "" {
		item["repost_of"] = &dynamodb.AttributeValue{S: aws.String(entry.RepostOf)}
	}
	if entry.ReplyToPostID != "" {
		item["reply_to_post_id"] = &dynamodb.AttributeValue{S: aws.String(entry.ReplyToPostID)}
	}
	if len(entry.ReplyToUserIDs) > 0 {
		ids := make([]*dynamodb.AttributeValue, 0, len(entry.ReplyToUserIDs))
		for _, id := range entry.ReplyToUserIDs {
			ids = append(ids, &dynamodb.AttributeValue{S: aws.String(id)})
		}
		item["reply_to_user_ids"] = &dynamodb.AttributeValue{L: ids}
	}

	return item
}

// marshalTimelineKey converts a composite key into DynamoDB key attributes.
func marshalTimelineKey(key models.TimelineKey) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"user_id": {S: aws.String(key.UserID)},
		"post_id": {S: aws.String(key.PostID)},
	}
}

func unmarshalTimelineEntry(item map[string]*dynamodb.AttributeValue) models.TimelineEntry {
	entry := models.TimelineEntry{
		UserID:          stringAttr(item, "user_id"),
		PostID:          stringAttr(item, "post_id"),
		DistributedFrom: stringAttr(item, "distributed_from"),
		RepostOf:        stringAttr(item, "repost_of"),
		ReplyToPostID:   stringAttr(item, "reply_to_post_id"),
	}

	if ts := stringAttr(item, "timestamp"); ts != "" {
		if parsed, err := time.Parse(timeFormat, ts); err == nil {
			entry.Timestamp = parsed
		}
	}

	if v, ok := item["reply_to_user_ids"]; ok && v.L != nil {
		for _, id := range v.L {
			if id.S != nil {
				entry.ReplyToUserIDs = append(entry.ReplyToUserIDs, *id.S)
			}
		}
	}

	return entry
}

func unmarshalPost(item map[string]*dynamodb.AttributeValue) models.Post {
	post := models.Post{
		ID:            stringAttr(item, "id"),
		Creator:       stringAttr(item, "creator"),
		Kind:          stringAttr(item, "kind"),
		RepostOf:      stringAttr(item, "repost_of"),
		ReplyToPostID: stringAttr(item, "reply_to_post_id"),
		Replies:       numberAttr(item, "replies"),
		Likes:         numberAttr(item, "likes"),
		Reposts:       numberAttr(item, "reposts"),
	}

	if ts := stringAttr(item, "created_at"); ts != "" {
		if parsed, err := time.Parse(timeFormat, ts); err == nil {
			post.CreatedAt = parsed
		}
	}

	if v, ok := item["reply_to_user_ids"]; ok && v.L != nil {
		for _, id := range v.L {
			if id.S != nil {
				post.ReplyToUserIDs = append(post.ReplyToUserIDs, *id.S)
			}
		}
	}

	return post
}

func stringAttr(item map[string]*dynamodb.AttributeValue, name string) string {
	if v, ok := item[name]; ok && v.S != nil {
		return *v.S
	}
	return ""
}

func numberAttr(item map[string]*dynamodb.AttributeValue, name string) int64 {
	if v, ok := item[name]; ok && v.N != nil {
		if n, err := strconv.ParseInt(*v.N, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

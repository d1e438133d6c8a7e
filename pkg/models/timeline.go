package models

import (
	"strings"
	"time"
)

// Post kinds as written by the post CRUD service.
const (
	PostKindOriginal = "original"
	PostKindRepost   = "repost"
	PostKindReply    = "reply"
)

// FollowsPrefix is the relation-type prefix on relationship sort keys that
// marks an edge as a follow. All other prefixes are ignored by this service.
const FollowsPrefix = "FOLLOWS"

// Post is a source record owned by the post CRUD service. This service only
// ever reads it from change events and creator-index queries.
type Post struct {
	ID             string    `json:"id"`
	Creator        string    `json:"creator"`
	CreatedAt      time.Time `json:"created_at"`
	Kind           string    `json:"kind"`
	RepostOf       string    `json:"repost_of,omitempty"`
	ReplyToPostID  string    `json:"reply_to_post_id,omitempty"`
	ReplyToUserIDs []string  `json:"reply_to_user_ids,omitempty"`
	Replies        int64     `json:"replies"`
	Likes          int64     `json:"likes"`
	Reposts        int64     `json:"reposts"`
}

// Relationship is an edge from follower to followee, keyed
// (follower_id, sk) with sk carrying the relation-type prefix.
type Relationship struct {
	FollowerID string `json:"follower_id"`
	FolloweeID string `json:"followee_id"`
	SortKey    string `json:"sk"`
}

// IsFollows reports whether the edge's relation type is FOLLOWS.
func (r Relationship) IsFollows() bool {
	relType, _, _ := strings.Cut(r.SortKey, "_")
	return relType == FollowsPrefix
}

// TimelineEntry is a denormalized feed row, keyed (user_id, post_id).
// DistributedFrom records which creator's post produced the row and is the
// provenance used to reverse fan-out.
type TimelineEntry struct {
	UserID          string    `json:"user_id"`
	PostID          string    `json:"post_id"`
	Timestamp       time.Time `json:"timestamp"`
	DistributedFrom string    `json:"distributed_from"`
	RepostOf        string    `json:"repost_of,omitempty"`
	ReplyToPostID   string    `json:"reply_to_post_id,omitempty"`
	ReplyToUserIDs  []string  `json:"reply_to_user_ids,omitempty"`
}

// Key returns the entry's composite key.
func (e TimelineEntry) Key() TimelineKey {
	return TimelineKey{UserID: e.UserID, PostID: e.PostID}
}

// TimelineKey addresses a single timeline row.
type TimelineKey struct {
	UserID string `json:"user_id"`
	PostID string `json:"post_id"`
}

// TimelineMutation is one upsert or delete against the timeline store.
// Exactly one of Put or Delete is set.
type TimelineMutation struct {
	Put    *TimelineEntry
	Delete *TimelineKey
}

// PutMutation wraps an entry as an upsert mutation.
func PutMutation(entry TimelineEntry) TimelineMutation {
	return TimelineMutation{Put: &entry}
}

// DeleteMutation wraps a key as a delete mutation.
func DeleteMutation(key TimelineKey) TimelineMutation {
	return TimelineMutation{Delete: &key}
}

package fanout

import (
	"feedworks/pkg/models"
)

// BuildEntry converts a post into the timeline row owned by ownerID. It is
// pure and deterministic: identical inputs always yield identical rows,
// which is what makes replayed fan-out converge. Linkage fields are copied
// only when present on the source post.
func BuildEntry(post models.Post, ownerID string) models.TimelineEntry {
	entry := models.TimelineEntry{
		UserID:          ownerID,
		PostID:          post.ID,
		Timestamp:       post.CreatedAt.UTC(),
		DistributedFrom: post.Creator,
		RepostOf:        post.RepostOf,
		ReplyToPostID:   post.ReplyToPostID,
	}

	if len(post.ReplyToUserIDs) > 0 {
		entry.ReplyToUserIDs = append([]string(nil), post.ReplyToUserIDs...)
	}

	return entry
}

package fanout

import (
	"context"
	"fmt"

	"feedworks/pkg/logging"
	"feedworks/pkg/models"
)

// DefaultMaxFanoutItems caps how many existing posts a new follow backfills.
const DefaultMaxFanoutItems = 100

// AudienceResolver enumerates the ids and rows a fan-out or reversal
// decision needs. Implementations paginate secondary indexes; a failed page
// fetch aborts the whole resolve.
type AudienceResolver interface {
	FollowerIDs(ctx context.Context, creatorID string) ([]string, error)
	RecentPosts(ctx context.Context, creatorID string, limit int) ([]models.Post, error)
	EntriesDistributedFrom(ctx context.Context, ownerID, creatorID string) ([]models.TimelineEntry, error)
	EntriesForPost(ctx context.Context, creatorID, postID string) ([]models.TimelineEntry, error)
}

// Config tunes the engine.
type Config struct {
	// MaxFanoutItems caps backfill volume per follow event.
	MaxFanoutItems int
	// BatchSize is the number of mutations per store batch call.
	BatchSize int
	// Workers bounds concurrent batch calls per event.
	Workers int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxFanoutItems: DefaultMaxFanoutItems,
		BatchSize:      DefaultBatchSize,
		Workers:        DefaultWorkers,
	}
}

// Engine materializes timeline rows in reaction to change events. It is
// stateless per event: each handler resolves the audience, builds rows and
// drives the executor, relying on idempotent convergence rather than
// per-event retries.
type Engine struct {
	audience AudienceResolver
	executor *Executor
	maxItems int
	logger   logging.Logger
}

// NewEngine creates an engine with injected collaborators.
func NewEngine(audience AudienceResolver, writer TimelineWriter, cfg Config, logger logging.Logger) *Engine {
	if cfg.MaxFanoutItems <= 0 {
		cfg.MaxFanoutItems = DefaultMaxFanoutItems
	}
	return &Engine{
		audience: audience,
		executor: NewExecutor(writer, cfg.BatchSize, cfg.Workers),
		maxItems: cfg.MaxFanoutItems,
		logger:   logger,
	}
}

// HandlePostCreated pushes the new post onto every follower's timeline.
// The creator's own timeline is never touched here; self-insertion belongs
// to the post CRUD path.
func (e *Engine) HandlePostCreated(ctx context.Context, post models.Post) error {
	followers, err := e.audience.FollowerIDs(ctx, post.Creator)
	if err != nil {
		return fmt.Errorf("resolve followers: %w", err)
	}

	muts := make([]models.TimelineMutation, 0, len(followers))
	for _, follower := range followers {
		if follower == post.Creator {
			continue
		}
		muts = append(muts, models.PutMutation(BuildEntry(post, follower)))
	}

	e.logger.WithFields(logging.Fields{
		"post_id":  post.ID,
		"creator":  post.Creator,
		"audience": len(muts),
	}).Debug("Distributing post to followers")

	return e.executor.Apply(ctx, muts)
}

// HandlePostRemoved deletes the rows the post's creation fanned out. The
// audience comes from the provenance index, not from the current follower
// set, so followers gained or lost since creation are handled correctly.
func (e *Engine) HandlePostRemoved(ctx context.Context, post models.Post) error {
	entries, err := e.audience.EntriesForPost(ctx, post.Creator, post.ID)
	if err != nil {
		return fmt.Errorf("resolve distributed entries: %w", err)
	}

	muts := make([]models.TimelineMutation, 0, len(entries))
	for _, entry := range entries {
		muts = append(muts, models.DeleteMutation(entry.Key()))
	}

	e.logger.WithFields(logging.Fields{
		"post_id":  post.ID,
		"creator":  post.Creator,
		"audience": len(muts),
	}).Debug("Removing post from timelines")

	return e.executor.Apply(ctx, muts)
}

// HandleFollowCreated backfills the new follower's timeline with the
// followee's most recent posts, capped at MaxFanoutItems. Non-FOLLOWS
// edges are a no-op.
func (e *Engine) HandleFollowCreated(ctx context.Context, rel models.Relationship) error {
	if !rel.IsFollows() {
		return nil
	}

	posts, err := e.audience.RecentPosts(ctx, rel.FolloweeID, e.maxItems)
	if err != nil {
		return fmt.Errorf("resolve recent posts: %w", err)
	}

	muts := make([]models.TimelineMutation, 0, len(posts))
	for _, post := range posts {
		if post.Creator == rel.FollowerID {
			continue
		}
		muts = append(muts, models.PutMutation(BuildEntry(post, rel.FollowerID)))
	}

	e.logger.WithFields(logging.Fields{
		"follower": rel.FollowerID,
		"followee": rel.FolloweeID,
		"backfill": len(muts),
	}).Debug("Backfilling timeline for new follow")

	return e.executor.Apply(ctx, muts)
}

// HandleFollowRemoved deletes every row of the follower's timeline that was
// distributed from the unfollowed creator, identified via the provenance
// index. Non-FOLLOWS edges are a no-op.
func (e *Engine) HandleFollowRemoved(ctx context.Context, rel models.Relationship) error {
	if !rel.IsFollows() {
		return nil
	}

	entries, err := e.audience.EntriesDistributedFrom(ctx, rel.FollowerID, rel.FolloweeID)
	if err != nil {
		return fmt.Errorf("resolve provenance entries: %w", err)
	}

	muts := make([]models.TimelineMutation, 0, len(entries))
	for _, entry := range entries {
		muts = append(muts, models.DeleteMutation(entry.Key()))
	}

	e.logger.WithFields(logging.Fields{
		"follower": rel.FollowerID,
		"followee": rel.FolloweeID,
		"removed":  len(muts),
	}).Debug("Reversing fan-out for unfollow")

	return e.executor.Apply(ctx, muts)
}

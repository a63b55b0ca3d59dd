// Package cache puts Redis in front of single post lookups
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"hotfeed/models"
	"hotfeed/query"
)

// Posts is a read-through cache for GetPost. Ranked pages and counts pass
// straight to the wrapped store; they depend on the query instant. Writes
// drop the cached entry. Redis failures are logged and the store answers.
type Posts struct {
	query.PostStore
	client *redis.Client
	ttl    time.Duration
}

func NewPosts(client *redis.Client, store query.PostStore, ttl time.Duration) *Posts {
	return &Posts{
		PostStore: store,
		client:    client,
		ttl:       ttl,
	}
}

// NewClient connects to Redis at addr and checks it answers
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (c *Posts) GetPost(ctx context.Context, id string) (*models.Post, error) {
	if post := c.load(ctx, id); post != nil {
		return post, nil
	}

	post, err := c.PostStore.GetPost(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, post)
	return post, nil
}

func (c *Posts) UpdatePost(ctx context.Context, id string, edit models.PostEdit, at time.Time) (*models.Post, error) {
	post, err := c.PostStore.UpdatePost(ctx, id, edit, at)
	c.evict(ctx, id)
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (c *Posts) DeletePost(ctx context.Context, id string) error {
	err := c.PostStore.DeletePost(ctx, id)
	c.evict(ctx, id)
	return err
}

func (c *Posts) AddComment(ctx context.Context, postId string, comment *models.Comment) error {
	err := c.PostStore.AddComment(ctx, postId, comment)
	c.evict(ctx, postId)
	return err
}

func (c *Posts) store(ctx context.Context, post *models.Post) {
	value, err := json.Marshal(post)
	if err != nil {
		log.WithFields(log.Fields{"id": post.Id, "error": err}).Warn("Error encoding post for cache")
		return
	}
	if err := c.client.Set(ctx, key(post.Id), value, c.ttl).Err(); err != nil {
		log.WithFields(log.Fields{"id": post.Id, "error": err}).Warn("Error storing post in cache")
	}
}

func (c *Posts) load(ctx context.Context, id string) *models.Post {
	result, err := c.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		log.WithFields(log.Fields{"id": id, "error": err}).Warn("Error reading post from cache")
		return nil
	}

	var post models.Post
	if err := json.Unmarshal(result, &post); err != nil {
		log.WithFields(log.Fields{"id": id, "error": err}).Warn("Error decoding cached post")
		return nil
	}
	return &post
}

func (c *Posts) evict(ctx context.Context, id string) {
	if err := c.client.Del(ctx, key(id)).Err(); err != nil {
		log.WithFields(log.Fields{"id": id, "error": err}).Warn("Error evicting post from cache")
	}
}

// Purge drops every cached post. Bulk deletes such as tidy bypass the
// wrapper and do not know which ids went away.
func Purge(ctx context.Context, client *redis.Client) (int64, error) {
	var purged int64
	iter := client.Scan(ctx, 0, keyPrefix+"*", 500).Iterator()
	batch := make([]string, 0, 500)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := client.Del(ctx, batch...).Result()
		if err != nil {
			return err
		}
		purged += n
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return purged, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return purged, err
	}
	if err := flush(); err != nil {
		return purged, err
	}

	log.WithFields(log.Fields{"purged": purged}).Info("Purged cached posts")
	return purged, nil
}

// keyPrefix keeps posts from colliding with other data in the same Redis
const keyPrefix = "hotfeed:post:"

func key(id string) string {
	return keyPrefix + id
}

var _ query.PostStore = (*Posts)(nil)

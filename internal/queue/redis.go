package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is a Redis stream client for blur jobs. It is safe for concurrent
// use.
type Client struct {
	client *redis.Client
}

// NewClient connects to addr and verifies the connection with PING.
func NewClient(ctx context.Context, addr string) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("queue: redis ping failed: %w", err)
	}
	return &Client{client: client}, nil
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnsureGroups creates the worker group and the jobs stream if missing.
func (c *Client) EnsureGroups(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, JobsStream, WorkerGroup, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("queue: create group %s: %w", WorkerGroup, err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// Submit validates job and appends it to the jobs stream. It returns the
// stream entry ID.
func (c *Client) Submit(ctx context.Context, job *Job) (string, error) {
	if err := job.Validate(); err != nil {
		return "", err
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}
	b, err := encode(job)
	if err != nil {
		return "", err
	}
	id, err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: JobsStream,
		Values: map[string]any{"data": b},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("queue: add job %s: %w", job.ID, err)
	}
	return id, nil
}

// Delivery is a job read from the stream. EntryID is passed to Ack.
type Delivery struct {
	EntryID string
	Job     *Job

	// Deliveries counts how often the entry has been handed to a consumer,
	// this delivery included.
	Deliveries int64

	// Err is set when the entry could not be decoded. The entry should be
	// acknowledged so it is not redelivered.
	Err error
}

// ReadJob blocks up to block for one new job. It returns nil, nil when
// nothing arrived.
func (c *Client) ReadJob(ctx context.Context, consumer string, block time.Duration) (*Delivery, error) {
	result, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    WorkerGroup,
		Consumer: consumer,
		Streams:  []string{JobsStream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: read jobs: %w", err)
	}
	if len(result) == 0 || len(result[0].Messages) == 0 {
		return nil, nil
	}
	return deliveryFrom(result[0].Messages[0], 1), nil
}

func deliveryFrom(msg redis.XMessage, deliveries int64) *Delivery {
	d := &Delivery{EntryID: msg.ID, Deliveries: deliveries}
	var job Job
	if err := decode(msg.Values["data"], &job); err != nil {
		d.Err = err
		return d
	}
	d.Job = &job
	return d
}

// Ack marks the entry as handled by the worker group.
func (c *Client) Ack(ctx context.Context, entryID string) error {
	if err := c.client.XAck(ctx, JobsStream, WorkerGroup, entryID).Err(); err != nil {
		return fmt.Errorf("queue: ack %s: %w", entryID, err)
	}
	return nil
}

// PublishResult appends res to the results stream.
func (c *Client) PublishResult(ctx context.Context, res *Result) (string, error) {
	b, err := encode(res)
	if err != nil {
		return "", err
	}
	id, err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: ResultsStream,
		Values: map[string]any{"data": b},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("queue: add result %s: %w", res.JobID, err)
	}
	return id, nil
}

// ClaimStale transfers up to count jobs that have been pending longer than
// minIdle to consumer and returns them.
func (c *Client) ClaimStale(ctx context.Context, consumer string, minIdle time.Duration, count int) ([]*Delivery, error) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: JobsStream,
		Group:  WorkerGroup,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  int64(count),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: list pending: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(pending))
	counts := make(map[string]int64, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
		counts[p.ID] = p.RetryCount
	}

	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   JobsStream,
		Group:    WorkerGroup,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: claim pending: %w", err)
	}

	out := make([]*Delivery, 0, len(claimed))
	for _, msg := range claimed {
		// XCLAIM counts itself as a delivery.
		out = append(out, deliveryFrom(msg, counts[msg.ID]+1))
	}
	return out, nil
}

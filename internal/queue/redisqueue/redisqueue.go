// Package redisqueue backs spec.md §4.5's TaskQueue with Redis, grounded on
// the broker-connection and consume-loop shape of the wider pack's workflow
// engine (dukex-operion's pkg/triggers/queue): a list for pending work,
// polled with BRPOP, plus a result key per task for terminal state.
package redisqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dteg/orchestrator/internal/domain"
	"github.com/dteg/orchestrator/internal/queue"
	"github.com/redis/go-redis/v9"
)

const (
	cancelTTL = time.Hour
	resultTTL = 7 * 24 * time.Hour
)

// envelope is the JSON payload pushed onto the broker list.
type envelope struct {
	ExecutionID string                 `json:"execution_id"`
	Pipeline    *domain.PipelineConfig `json:"pipeline"`
}

// Queue is a Redis-backed TaskQueue. The list holding pending work and the
// terminal result keys both live in the one Redis instance it connects to;
// wiring connects it via BROKER_URL, and RESULT_BACKEND_URL is not used to
// address a separate result store.
type Queue struct {
	client    *redis.Client
	queueName string
}

// New connects to addr and returns a Queue that pushes/pops from queueName.
func New(addr, password string, db int, queueName string) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis broker: %w", err)
	}

	return &Queue{client: client, queueName: queueName}, nil
}

func resultKey(handle queue.TaskHandle) string { return "results:" + string(handle) }
func cancelKey(handle queue.TaskHandle) string { return "cancel:" + string(handle) }
func pendingSetKey() string                    { return "pending-handles" }

// Submit pushes the pipeline envelope onto the broker list and returns
// immediately; a worker process picks it up via Consume.
func (q *Queue) Submit(ctx context.Context, pc *domain.PipelineConfig, executionID string) (queue.TaskHandle, error) {
	env := envelope{ExecutionID: executionID, Pipeline: pc}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode task envelope: %w", err)
	}

	handle := queue.TaskHandle(executionID)
	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, q.queueName, raw)
	pipe.SAdd(ctx, pendingSetKey(), string(handle))
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("submit task: %w", err)
	}
	return handle, nil
}

// Status reports whether a task's result has landed yet.
func (q *Queue) Status(ctx context.Context, handle queue.TaskHandle) (queue.TaskStatus, error) {
	raw, err := q.client.Get(ctx, resultKey(handle)).Result()
	if err == redis.Nil {
		isMember, serr := q.client.SIsMember(ctx, pendingSetKey(), string(handle)).Result()
		if serr != nil {
			return queue.TaskUnknown, fmt.Errorf("check pending handle: %w", serr)
		}
		if isMember {
			return queue.TaskRunning, nil
		}
		return queue.TaskUnknown, nil
	}
	if err != nil {
		return queue.TaskUnknown, fmt.Errorf("get task result: %w", err)
	}

	var rec domain.ExecutionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return queue.TaskUnknown, fmt.Errorf("decode task result: %w", err)
	}
	if rec.Status == domain.StatusSuccess {
		return queue.TaskSuccess, nil
	}
	return queue.TaskFailure, nil
}

// Result returns the terminal ExecutionRecord a worker published for
// handle via PublishResult.
func (q *Queue) Result(ctx context.Context, handle queue.TaskHandle) (*domain.ExecutionRecord, error) {
	raw, err := q.client.Get(ctx, resultKey(handle)).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("no result yet for task %s", handle)
	}
	if err != nil {
		return nil, fmt.Errorf("get task result: %w", err)
	}
	var rec domain.ExecutionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode task result: %w", err)
	}
	return &rec, nil
}

// Cancel sets a cancellation flag for handle, readable via IsCancelled.
// force has no additional effect. cmd/dtegworker does not consult the flag,
// so a task it has already consumed, or consumes later, runs to completion.
func (q *Queue) Cancel(ctx context.Context, handle queue.TaskHandle, force bool) (bool, error) {
	if err := q.client.Set(ctx, cancelKey(handle), "1", cancelTTL).Err(); err != nil {
		return false, fmt.Errorf("set cancel flag: %w", err)
	}
	return true, nil
}

// ActiveTasks lists handles that have not yet produced a result.
func (q *Queue) ActiveTasks(ctx context.Context) ([]queue.TaskHandle, error) {
	members, err := q.client.SMembers(ctx, pendingSetKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list active tasks: %w", err)
	}
	out := make([]queue.TaskHandle, 0, len(members))
	for _, m := range members {
		out = append(out, queue.TaskHandle(m))
	}
	return out, nil
}

// PublishResult is called by the worker process once a task reaches a
// terminal ExecutionRecord state, and removes the handle from the pending
// set so Status/ActiveTasks reflect completion.
func (q *Queue) PublishResult(ctx context.Context, handle queue.TaskHandle, rec *domain.ExecutionRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode task result: %w", err)
	}
	pipe := q.client.TxPipeline()
	pipe.Set(ctx, resultKey(handle), raw, resultTTL)
	pipe.SRem(ctx, pendingSetKey(), string(handle))
	_, err = pipe.Exec(ctx)
	return err
}

// IsCancelled reports whether handle's cancellation flag was set.
func (q *Queue) IsCancelled(ctx context.Context, handle queue.TaskHandle) (bool, error) {
	n, err := q.client.Exists(ctx, cancelKey(handle)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Consume blocks (with a timeout, so ctx cancellation is observed promptly)
// waiting for the next pending envelope, grounded on the BRPOP consume loop
// shape of the wider pack's queue trigger.
func (q *Queue) Consume(ctx context.Context, timeout time.Duration) (executionID string, pc *domain.PipelineConfig, ok bool, err error) {
	res, err := q.client.BRPop(ctx, timeout, q.queueName).Result()
	if err == redis.Nil {
		return "", nil, false, nil
	}
	if err != nil {
		return "", nil, false, fmt.Errorf("consume task: %w", err)
	}
	if len(res) < 2 {
		return "", nil, false, fmt.Errorf("malformed BRPOP reply")
	}

	var env envelope
	if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
		return "", nil, false, fmt.Errorf("decode task envelope: %w", err)
	}
	return env.ExecutionID, env.Pipeline, true, nil
}

// Close releases the underlying Redis connection.
func (q *Queue) Close() error { return q.client.Close() }

// Ping satisfies internal/health.Pinger.
func (q *Queue) Ping(ctx context.Context) error { return q.client.Ping(ctx).Err() }

package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/geocoder89/sevico/internal/jobs"
	"github.com/geocoder89/sevico/internal/observability"
)

const (
	defaultPrefix        = "{sevico}:jobs"
	defaultLease         = 30 * time.Second
	defaultDeadLetterCap = 1000
)

// claimScript returns expired leases to the schedule, then moves the earliest
// due job into processing under a fresh lease.
var claimScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, id in ipairs(expired) do
	redis.call('ZREM', KEYS[2], id)
	redis.call('ZADD', KEYS[1], ARGV[1], id)
end

local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
	return false
end

local id = ids[1]
redis.call('ZREM', KEYS[1], id)

local body = redis.call('GET', KEYS[3] .. id)
if not body then
	return false
end

redis.call('ZADD', KEYS[2], ARGV[2], id)
return body
`)

type Config struct {
	// Prefix namespaces every key. Keep the hash tag so all keys share a slot.
	Prefix string
	// Lease is how long a claimed job stays invisible before another worker may take it.
	Lease         time.Duration
	DeadLetterCap int64
}

// Queue is the notification retry queue. Jobs live as JSON strings, scheduled
// in a sorted set by run time; claimed jobs sit in a second sorted set scored
// by lease deadline; exhausted jobs are pushed onto a capped dead-letter list.
type Queue struct {
	rdb  redis.UniversalClient
	cfg  Config
	prom *observability.Prom
	now  func() time.Time
}

type Stats struct {
	Scheduled    int64 `json:"scheduled"`
	Processing   int64 `json:"processing"`
	DeadLettered int64 `json:"deadLettered"`
}

func New(rdb redis.UniversalClient, cfg Config, prom *observability.Prom) *Queue {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.Lease <= 0 {
		cfg.Lease = defaultLease
	}
	if cfg.DeadLetterCap <= 0 {
		cfg.DeadLetterCap = defaultDeadLetterCap
	}

	return &Queue{rdb: rdb, cfg: cfg, prom: prom, now: time.Now}
}

func (q *Queue) scheduledKey() string  { return q.cfg.Prefix + ":scheduled" }
func (q *Queue) processingKey() string { return q.cfg.Prefix + ":processing" }
func (q *Queue) deadKey() string       { return q.cfg.Prefix + ":dead" }
func (q *Queue) jobKeyPrefix() string  { return q.cfg.Prefix + ":job:" }
func (q *Queue) jobKey(id string) string {
	return q.jobKeyPrefix() + id
}

func (q *Queue) observe(op string, fn func() error) error {
	if q.prom != nil {
		return q.prom.ObserveStore(op, fn)
	}
	return fn()
}

func (q *Queue) Enqueue(ctx context.Context, j jobs.Job) error {
	j.Status = jobs.JobPending

	b, err := json.Marshal(j)
	if err != nil {
		return oops.Code("JOB_ENCODE_FAILED").With("job_id", j.ID).Wrap(err)
	}

	return q.observe("queue.enqueue", func() error {
		_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, q.jobKey(j.ID), b, 0)
			p.ZAdd(ctx, q.scheduledKey(), redis.Z{Score: score(j.RunAt), Member: j.ID})
			return nil
		})
		return err
	})
}

// ClaimNext leases the earliest due job. It returns jobs.ErrJobNotFound when
// nothing is due.
func (q *Queue) ClaimNext(ctx context.Context) (jobs.Job, error) {
	now := q.now()
	var body string

	err := q.observe("queue.claim_next", func() error {
		var err error
		body, err = claimScript.Run(ctx, q.rdb,
			[]string{q.scheduledKey(), q.processingKey(), q.jobKeyPrefix()},
			strconv.FormatInt(now.UnixMilli(), 10),
			strconv.FormatInt(now.Add(q.cfg.Lease).UnixMilli(), 10),
		).Text()
		return err
	})

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return jobs.Job{}, jobs.ErrJobNotFound
		}
		return jobs.Job{}, err
	}

	var j jobs.Job
	if err := json.Unmarshal([]byte(body), &j); err != nil {
		return jobs.Job{}, oops.Code("JOB_DECODE_FAILED").Wrap(err)
	}

	j.Status = jobs.JobProcessing
	return j, nil
}

func (q *Queue) MarkDone(ctx context.Context, id string) error {
	return q.observe("queue.mark_done", func() error {
		_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.ZRem(ctx, q.processingKey(), id)
			p.Del(ctx, q.jobKey(id))
			return nil
		})
		return err
	})
}

// Reschedule records a failed attempt and puts the job back on the schedule.
func (q *Queue) Reschedule(ctx context.Context, j jobs.Job, runAt time.Time, errMsg string) error {
	j.Attempts++
	j.Status = jobs.JobPending
	j.RunAt = runAt.UTC()
	j.LastError = &errMsg
	j.UpdatedAt = q.now().UTC()

	b, err := json.Marshal(j)
	if err != nil {
		return oops.Code("JOB_ENCODE_FAILED").With("job_id", j.ID).Wrap(err)
	}

	return q.observe("queue.reschedule", func() error {
		_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, q.jobKey(j.ID), b, 0)
			p.ZRem(ctx, q.processingKey(), j.ID)
			p.ZAdd(ctx, q.scheduledKey(), redis.Z{Score: score(j.RunAt), Member: j.ID})
			return nil
		})
		return err
	})
}

// MarkFailed records the final attempt and moves the job to the dead-letter list.
func (q *Queue) MarkFailed(ctx context.Context, j jobs.Job, errMsg string) error {
	j.Attempts++
	j.Status = jobs.JobFailed
	j.LastError = &errMsg
	j.UpdatedAt = q.now().UTC()

	b, err := json.Marshal(j)
	if err != nil {
		return oops.Code("JOB_ENCODE_FAILED").With("job_id", j.ID).Wrap(err)
	}

	return q.observe("queue.mark_failed", func() error {
		_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.LPush(ctx, q.deadKey(), b)
			p.LTrim(ctx, q.deadKey(), 0, q.cfg.DeadLetterCap-1)
			p.ZRem(ctx, q.processingKey(), j.ID)
			p.Del(ctx, q.jobKey(j.ID))
			return nil
		})
		return err
	})
}

// Drop forgets a claimed job without dead-lettering it.
func (q *Queue) Drop(ctx context.Context, id string) error {
	return q.observe("queue.drop", func() error {
		_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.ZRem(ctx, q.processingKey(), id)
			p.Del(ctx, q.jobKey(id))
			return nil
		})
		return err
	})
}

// DeadLetters returns up to limit dead-lettered jobs, newest first.
func (q *Queue) DeadLetters(ctx context.Context, limit int64) ([]jobs.Job, error) {
	var raw []string

	err := q.observe("queue.dead_letters", func() error {
		var err error
		raw, err = q.rdb.LRange(ctx, q.deadKey(), 0, limit-1).Result()
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]jobs.Job, 0, len(raw))
	for _, s := range raw {
		var j jobs.Job
		if err := json.Unmarshal([]byte(s), &j); err != nil {
			return nil, oops.Code("JOB_DECODE_FAILED").Wrap(err)
		}
		out = append(out, j)
	}

	return out, nil
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	var (
		scheduled, processing, dead *redis.IntCmd
	)

	err := q.observe("queue.stats", func() error {
		_, err := q.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
			scheduled = p.ZCard(ctx, q.scheduledKey())
			processing = p.ZCard(ctx, q.processingKey())
			dead = p.LLen(ctx, q.deadKey())
			return nil
		})
		return err
	})
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		Scheduled:    scheduled.Val(),
		Processing:   processing.Val(),
		DeadLettered: dead.Val(),
	}, nil
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

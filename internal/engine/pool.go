package engine

import (
	"context"
	"hash/fnv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tturner/wiredecode/internal/reassembly"
)

type jobKind int

const (
	jobFeed jobKind = iota
	jobClose
	jobExpire
)

type job struct {
	kind jobKind
	key  reassembly.SessionKey
	data []byte
	ts   time.Time
}

// Pool runs one Engine per shard goroutine. Every job for a session goes to
// the same shard, so per-session order is preserved and no PendingAssembly
// is shared between goroutines. Results must be drained while jobs are
// submitted.
type Pool struct {
	ctx     context.Context
	group   *errgroup.Group
	shards  []chan job
	results chan DecodedResult
}

// NewPool starts shards engines built by newEngine. Cancelling ctx stops
// the workers.
func NewPool(ctx context.Context, shards int, newEngine func() *Engine) *Pool {
	if shards < 1 {
		shards = 1
	}
	group, gctx := errgroup.WithContext(ctx)
	p := &Pool{
		ctx:     gctx,
		group:   group,
		shards:  make([]chan job, shards),
		results: make(chan DecodedResult, 64*shards),
	}
	for i := range p.shards {
		ch := make(chan job, 64)
		p.shards[i] = ch
		eng := newEngine()
		group.Go(func() error {
			return p.run(gctx, eng, ch)
		})
	}
	return p
}

func (p *Pool) run(ctx context.Context, eng *Engine, jobs <-chan job) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case j, ok := <-jobs:
			if !ok {
				return nil
			}
			var out []DecodedResult
			switch j.kind {
			case jobFeed:
				out = eng.FeedAt(j.key, j.data, j.ts)
			case jobClose:
				out = eng.Close(j.key)
			case jobExpire:
				out = eng.Expire(j.ts)
			}
			for _, r := range out {
				select {
				case p.results <- r:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// Shard returns the shard index for a session key (FNV-1a).
func (p *Pool) Shard(key reassembly.SessionKey) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.shards)))
}

func (p *Pool) submit(shard int, j job) error {
	select {
	case p.shards[shard] <- j:
		return nil
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

// Submit queues bytes for a session. data must not be modified afterwards.
func (p *Pool) Submit(key reassembly.SessionKey, data []byte, ts time.Time) error {
	return p.submit(p.Shard(key), job{kind: jobFeed, key: key, data: data, ts: ts})
}

// CloseSession queues a close for the session.
func (p *Pool) CloseSession(key reassembly.SessionKey) error {
	return p.submit(p.Shard(key), job{kind: jobClose, key: key})
}

// Expire queues an idle sweep on every shard.
func (p *Pool) Expire(now time.Time) error {
	for i := range p.shards {
		if err := p.submit(i, job{kind: jobExpire, ts: now}); err != nil {
			return err
		}
	}
	return nil
}

// Results delivers decoded results from every shard.
func (p *Pool) Results() <-chan DecodedResult {
	return p.results
}

// Wait stops accepting jobs, waits for the shards to drain, and closes the
// results channel.
func (p *Pool) Wait() error {
	for _, ch := range p.shards {
		close(ch)
	}
	err := p.group.Wait()
	close(p.results)
	return err
}

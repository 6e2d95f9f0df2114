package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LumeWeb/portal-legacy/internal/health"
	"github.com/LumeWeb/portal-legacy/internal/xerrors"
)

const (
	keyLatest  = "healthcheck:report:latest"
	keyHistory = "healthcheck:report:history"
)

type RedisOptions struct {
	// TTL expires the latest report; 0 keeps it until overwritten.
	TTL     time.Duration
	History int
}

// Redis stores the latest report under a single key and a capped history
// list next to it, so several instances can serve the same report.
type Redis struct {
	client  redis.Cmdable
	ttl     time.Duration
	history int
}

// NewRedis wraps an existing client, e.g. a redismock client in tests.
func NewRedis(client redis.Cmdable, opts RedisOptions) *Redis {
	if opts.History <= 0 {
		opts.History = DefaultHistory
	}
	return &Redis{client: client, ttl: opts.TTL, history: opts.History}
}

// DialRedis parses a redis:// URL and returns a store backed by a new client.
func DialRedis(url string, opts RedisOptions) (*Redis, *redis.Client, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, xerrors.Wrap(err, "parse redis url")
	}
	c := redis.NewClient(o)
	return NewRedis(c, opts), c, nil
}

func (s *Redis) Save(ctx context.Context, rep health.Report) error {
	b, err := json.Marshal(rep)
	if err != nil {
		return xerrors.Wrap(err, "encode report")
	}
	v := string(b)
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, keyLatest, v, s.ttl)
		p.LPush(ctx, keyHistory, v)
		p.LTrim(ctx, keyHistory, 0, int64(s.history-1))
		return nil
	})
	if err != nil {
		return xerrors.Wrap(err, "save report to redis")
	}
	return nil
}

func (s *Redis) Latest(ctx context.Context) (health.Report, error) {
	v, err := s.client.Get(ctx, keyLatest).Result()
	if errors.Is(err, redis.Nil) {
		return health.Report{}, ErrNotFound
	}
	if err != nil {
		return health.Report{}, xerrors.Wrap(err, "get latest report")
	}
	var rep health.Report
	if err := json.Unmarshal([]byte(v), &rep); err != nil {
		return health.Report{}, xerrors.Wrap(err, "decode latest report")
	}
	return rep, nil
}

func (s *Redis) History(ctx context.Context, n int) ([]health.Report, error) {
	if n <= 0 || n > s.history {
		n = s.history
	}
	vals, err := s.client.LRange(ctx, keyHistory, 0, int64(n-1)).Result()
	if err != nil {
		return nil, xerrors.Wrap(err, "list report history")
	}
	out := make([]health.Report, 0, len(vals))
	for _, v := range vals {
		var rep health.Report
		if err := json.Unmarshal([]byte(v), &rep); err != nil {
			return nil, xerrors.Wrap(err, "decode report history")
		}
		out = append(out, rep)
	}
	return out, nil
}

func (s *Redis) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

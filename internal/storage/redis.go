package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"city-atlas/internal/logger"
)

const (
	defaultRedisChannel = "cityatlas:kv:changes"
	defaultRedisPrefix  = "cityatlas:kv:"
)

// 值以普通字符串保存，每次写入都在 pub/sub 通道上广播；写值与广播在同一个 MULTI 中发出
type Redis struct {
	hub

	rdb     *redis.Client
	channel string
	prefix  string
	ps      *redis.PubSub
	cancel  context.CancelFunc
	g       *errgroup.Group
}

func OpenRedis(ctx context.Context, rdb *redis.Client, channel, prefix string) (*Redis, error) {
	if channel == "" {
		channel = defaultRedisChannel
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	ps := rdb.Subscribe(ctx, channel)
	// 等待订阅建立，避免遗漏 Open 之后的写入
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", channel, err)
	}
	wctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(wctx)
	r := &Redis{rdb: rdb, channel: channel, prefix: prefix, ps: ps, cancel: cancel, g: g}
	g.Go(func() error { return r.listen(gctx) })
	logger.L().Debug("kv_redis_open", "channel", channel, "prefix", prefix)
	return r, nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value, writer string) error {
	msg, err := json.Marshal(Event{Key: key, Writer: writer})
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.prefix+key, value, 0)
		p.Publish(ctx, r.channel, msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key, writer string) error {
	msg, err := json.Marshal(Event{Key: key, Writer: writer})
	if err != nil {
		return err
	}
	_, err = r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.prefix+key)
		p.Publish(ctx, r.channel, msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (r *Redis) listen(ctx context.Context) error {
	ch := r.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				logger.L().Debug("kv_redis_bad_message", "channel", m.Channel, "err", err)
				ev = Event{}
			}
			r.publish(ev)
		}
	}
}

func (r *Redis) Subscribe(ctx context.Context, fn func(Event)) (func(), error) {
	return r.subscribe(ctx, fn), nil
}

// 停止监听；客户端归调用方所有
func (r *Redis) Close() error {
	r.cancel()
	err := r.ps.Close()
	_ = r.g.Wait()
	return err
}

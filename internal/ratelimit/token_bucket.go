package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// The bucket is a hash {tokens, ts} refilled on read using Redis TIME, so
// every API process shares one clock. Tokens come back as a string because
// Redis truncates Lua numbers to integers.
var takeTokenScript = redis.NewScript(`
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])

local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now
if now > last then
  tokens = math.min(burst, tokens + (now - last) / 1000 * rate)
end

local granted = 0
if tokens >= 1 then
  granted = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", tostring(now))
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return {granted, tostring(tokens)}
`)

// Decision is the outcome of taking one token.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type TokenBucket struct {
	client *redis.Client
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client}
}

// Take removes one token from the bucket at key. The bucket holds at most
// burst tokens and refills at rate tokens per second.
func (t *TokenBucket) Take(ctx context.Context, key string, rate float64, burst int) (*Decision, error) {
	if t == nil || t.client == nil {
		return nil, errors.New("rate limiter not configured")
	}
	if key == "" {
		return nil, errors.New("rate limiter key is empty")
	}
	if rate <= 0 || burst <= 0 {
		return nil, errors.New("rate limiter rate and burst must be positive")
	}

	reply, err := takeTokenScript.Run(ctx, t.client, []string{key}, rate, burst, bucketTTL(rate, burst).Milliseconds()).Slice()
	if err != nil {
		return nil, err
	}
	if len(reply) != 2 {
		return nil, fmt.Errorf("token bucket script returned %d values", len(reply))
	}

	granted, _ := reply[0].(int64)
	tokensText, _ := reply[1].(string)
	tokens, err := strconv.ParseFloat(tokensText, 64)
	if err != nil {
		return nil, fmt.Errorf("token bucket script returned %q: %w", tokensText, err)
	}

	d := &Decision{
		Allowed:   granted == 1,
		Limit:     burst,
		Remaining: int(math.Floor(tokens)),
	}
	if !d.Allowed && tokens < 1 {
		d.RetryAfter = time.Duration((1 - tokens) / rate * float64(time.Second))
	}
	return d, nil
}

// bucketTTL keeps an idle bucket for twice the time it needs to refill.
func bucketTTL(rate float64, burst int) time.Duration {
	return time.Duration(math.Max(1, math.Ceil(float64(burst)/rate*2))) * time.Second
}

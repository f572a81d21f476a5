package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lua script for an atomic debounce claim. The compare and the swap are a
// single instruction from Redis's perspective, so two concurrent evaluation
// passes of the same rule cannot both claim the window.
//
// KEYS[1] = ledger key
// ARGV[1] = now (unix nanoseconds)
// ARGV[2] = window (nanoseconds)
//
// Returns {claimed, previous} where previous is "" on first claim.
const debounceClaimScript = `
local last = redis.call("GET", KEYS[1])
if not last or tonumber(ARGV[1]) - tonumber(last) >= tonumber(ARGV[2]) then
    redis.call("SET", KEYS[1], ARGV[1])
    if last then
        return {1, last}
    end
    return {1, ""}
end
return {0, last}
`

// Lua script for a conditional release: restores the previous claim only if
// our claim is still current. A newer claim is never overwritten.
//
// KEYS[1] = ledger key
// ARGV[1] = claim being released (unix nanoseconds)
// ARGV[2] = previous claim to restore, "" to delete
const debounceReleaseScript = `
local cur = redis.call("GET", KEYS[1])
if cur ~= ARGV[1] then
    return 0
end
if ARGV[2] == "" then
    redis.call("DEL", KEYS[1])
else
    redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`

// RedisLedger is a debounce ledger on Redis, for hosts that run several
// evaluator processes against one primary store and want claim traffic off
// it. Implements the same DebounceLedger contract as the full stores.
type RedisLedger struct {
	client     *redis.Client
	keyPrefix  string
	claimSHA   string
	releaseSHA string
}

// NewRedisLedger creates a ledger and preloads its scripts.
func NewRedisLedger(ctx context.Context, client *redis.Client, keyPrefix string) (*RedisLedger, error) {
	if keyPrefix == "" {
		keyPrefix = "shopcore:debounce:"
	}
	claimSHA, err := client.ScriptLoad(ctx, debounceClaimScript).Result()
	if err != nil {
		return nil, fmt.Errorf("load claim script: %w", err)
	}
	releaseSHA, err := client.ScriptLoad(ctx, debounceReleaseScript).Result()
	if err != nil {
		return nil, fmt.Errorf("load release script: %w", err)
	}
	return &RedisLedger{
		client:     client,
		keyPrefix:  keyPrefix,
		claimSHA:   claimSHA,
		releaseSHA: releaseSHA,
	}, nil
}

// ClaimDebounce atomically claims the debounce window for a ledger key.
func (l *RedisLedger) ClaimDebounce(ctx context.Context, key string, now time.Time, window time.Duration) (bool, *time.Time, error) {
	result, err := l.client.EvalSha(ctx, l.claimSHA,
		[]string{l.keyPrefix + key},
		now.UnixNano(),
		int64(window),
	).Result()
	if err != nil {
		return false, nil, fmt.Errorf("debounce claim: %w", err)
	}

	reply, ok := result.([]any)
	if !ok || len(reply) != 2 {
		return false, nil, fmt.Errorf("debounce claim: unexpected reply %v", result)
	}
	claimed, err := replyInt(reply[0])
	if err != nil {
		return false, nil, fmt.Errorf("debounce claim: %w", err)
	}

	var prev *time.Time
	if s, _ := reply[1].(string); s != "" {
		nanos, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return false, nil, fmt.Errorf("debounce claim: parse previous %q: %w", s, err)
		}
		t := time.Unix(0, nanos).UTC()
		prev = &t
	}
	return claimed == 1, prev, nil
}

// ReleaseDebounce hands back a claim after a failed firing.
func (l *RedisLedger) ReleaseDebounce(ctx context.Context, key string, claimedAt time.Time, prev *time.Time) error {
	prevArg := ""
	if prev != nil {
		prevArg = strconv.FormatInt(prev.UnixNano(), 10)
	}
	_, err := l.client.EvalSha(ctx, l.releaseSHA,
		[]string{l.keyPrefix + key},
		strconv.FormatInt(claimedAt.UnixNano(), 10),
		prevArg,
	).Result()
	if err != nil {
		return fmt.Errorf("debounce release: %w", err)
	}
	return nil
}

func replyInt(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected reply element %T", v)
	}
}

package redisstore

import "github.com/redis/go-redis/v9"

// insertScript stores a credential and consumes every other unconsumed
// credential in the user index, so concurrent issues leave one usable.
//
// KEYS[1] credential hash, KEYS[2] user index
// ARGV id, user_id, purpose, token_hash, expires_at, created_at,
// consumed_at ("" when unset), expire_at_ms, credential key prefix
var insertScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
for _, h in ipairs(redis.call('SMEMBERS', KEYS[2])) do
	local k = ARGV[9] .. h
	if redis.call('EXISTS', k) == 1 and redis.call('HEXISTS', k, 'consumed_at') == 0 then
		redis.call('HSET', k, 'consumed_at', ARGV[6])
	end
end
redis.call('DEL', KEYS[2])
redis.call('HSET', KEYS[1],
	'id', ARGV[1], 'user_id', ARGV[2], 'purpose', ARGV[3],
	'token_hash', ARGV[4], 'expires_at', ARGV[5], 'created_at', ARGV[6])
if ARGV[7] ~= '' then
	redis.call('HSET', KEYS[1], 'consumed_at', ARGV[7])
else
	redis.call('SADD', KEYS[2], ARGV[4])
	redis.call('PEXPIREAT', KEYS[2], ARGV[8])
end
redis.call('PEXPIREAT', KEYS[1], ARGV[8])
return 1
`)

// invalidateScript consumes every credential in the user index.
//
// KEYS[1] user index
// ARGV consumed_at, credential key prefix
var invalidateScript = redis.NewScript(`
local n = 0
for _, h in ipairs(redis.call('SMEMBERS', KEYS[1])) do
	local k = ARGV[2] .. h
	if redis.call('EXISTS', k) == 1 and redis.call('HEXISTS', k, 'consumed_at') == 0 then
		redis.call('HSET', k, 'consumed_at', ARGV[1])
		n = n + 1
	end
end
redis.call('DEL', KEYS[1])
return n
`)

// consumeScript sets consumed_at only if it is unset.
// Returns 1 on success, 0 when already consumed, -1 when missing.
//
// KEYS[1] credential hash, KEYS[2] user index
// ARGV id, consumed_at, token_hash
var consumeScript = redis.NewScript(`
local id = redis.call('HGET', KEYS[1], 'id')
if not id or id ~= ARGV[1] then
	return -1
end
if redis.call('HEXISTS', KEYS[1], 'consumed_at') == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'consumed_at', ARGV[2])
redis.call('SREM', KEYS[2], ARGV[3])
return 1
`)

package sessionstore

import "github.com/zeromicro/go-zero/core/stores/redis"

// 所有会话写操作都走 Lua 脚本，保证同一 file_id 上并发调用的原子性，
// 接收端可能跑在多个进程里，不能依赖进程内锁。
// 脚本返回值只用整数和字符串，避免 false/nil 截断数组。

// recordChunkScript 记录一个分片到达。
// KEYS[1] 会话 hash，KEYS[2] 已到分片集合
// ARGV[1] 分片序号，ARGV[2] 当前时间戳
// 返回 {-1,'',0} 会话不存在；{-2,'',total} 序号越界；
// 其余返回 {去重后的分片数, 当前状态, total}，首个分片会把 Initialized 推进到 InProgress。
var recordChunkScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
    return {-1, '', 0}
end
local total = tonumber(redis.call('HGET', KEYS[1], 'total_chunks')) or 0
local idx = tonumber(ARGV[1])
if idx == nil or idx < 0 or idx >= total then
    return {-2, '', total}
end
redis.call('SADD', KEYS[2], ARGV[1])
local count = redis.call('SCARD', KEYS[2])
local status = redis.call('HGET', KEYS[1], 'status')
if status == 'Initialized' then
    status = 'InProgress'
    redis.call('HSET', KEYS[1], 'status', status)
end
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
return {count, status, total}
`)

// setStatusScript 按状态机推进会话状态。
// KEYS[1] 会话 hash，KEYS[2] 已到分片集合
// ARGV[1] 目标状态，ARGV[2] 当前时间戳
// 返回 -1 会话不存在；0 流转不合法（含并发竞争中落败的一方）；1 成功。
// InProgress -> ReadyToMerge 额外要求分片已集齐，确保 ReadyToMerge 之后的
// 状态只在全部分片到位时出现。
var setStatusScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
    return -1
end
local current = redis.call('HGET', KEYS[1], 'status')
local target = ARGV[1]
local ok = false
if current == 'Initialized' and target == 'InProgress' then
    ok = true
elseif current == 'InProgress' and target == 'ReadyToMerge' then
    local total = tonumber(redis.call('HGET', KEYS[1], 'total_chunks')) or 0
    local count = redis.call('SCARD', KEYS[2])
    ok = total > 0 and count >= total
elseif current == 'ReadyToMerge' and (target == 'Completed' or target == 'Failed') then
    ok = true
end
if not ok then
    return 0
end
redis.call('HSET', KEYS[1], 'status', target)
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
return 1
`)

// getSessionScript 原子读取会话快照，hash 和分片集合一次取齐。
// KEYS[1] 会话 hash，KEYS[2] 已到分片集合
// 返回 {0} 会话不存在；否则 {1, total, status, created_at, updated_at, count}。
var getSessionScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
    return {0}
end
local vals = redis.call('HMGET', KEYS[1], 'total_chunks', 'status', 'created_at', 'updated_at')
local count = redis.call('SCARD', KEYS[2])
return {1, vals[1] or '0', vals[2] or '', vals[3] or '0', vals[4] or '0', count}
`)

package ledger

import (
	"hash/fnv"
	"sync"
)

const lockShards = 64

// keyLock serializes pipeline steps per ledger key with a fixed pool of
// sharded mutexes. Two workers observing the same transaction contend on the
// same shard, so neither can pass the processed check before the other's
// mark lands. Collisions across different keys only cost a short wait.
type keyLock struct {
	shards [lockShards]sync.Mutex
}

func (k *keyLock) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	shard := &k.shards[h.Sum32()%lockShards]
	shard.Lock()
	return shard.Unlock
}

package store

import (
	"hash/fnv"
	"strconv"

	"github.com/dgryski/go-rendezvous"
)

// ShardRing assigns keys (task IDs) to one of shardCount replicas using
// rendezvous hashing, so adding or removing a replica only reshuffles the
// keys that hashed to the changed slot instead of the whole keyspace.
type ShardRing struct {
	r *rendezvous.Rendezvous
}

// NewShardRing builds a ring with shardCount nodes named "0".."shardCount-1".
func NewShardRing(shardCount int) *ShardRing {
	if shardCount < 1 {
		shardCount = 1
	}
	nodes := make([]string, shardCount)
	for i := range nodes {
		nodes[i] = strconv.Itoa(i)
	}
	return &ShardRing{r: rendezvous.New(nodes, hashKey)}
}

// Owns reports whether shardIndex is the owner of key under this ring.
func (sr *ShardRing) Owns(key string, shardIndex int) bool {
	return sr.r.Lookup(key) == strconv.Itoa(shardIndex)
}

func hashKey(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

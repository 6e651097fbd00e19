// Package shard holds the unit-of-work types for the downloader: shard
// descriptors, deterministic sample keys, and the columnar shard reader.
package shard

import (
	"fmt"
	"math"
)

// Descriptor identifies one shard of work: its id and the storage key of
// its columnar source file.
type Descriptor struct {
	ID   int
	Path string
}

// Key computes the globally-unique sample key for a record: the decimal
// value shardID*10^oomSamplePerShard + index, zero-padded to
// oomSamplePerShard+oomShardCount digits. Inputs outside their digit width
// would silently collide with other shards' keys, so they are rejected.
func Key(index, shardID, oomSamplePerShard, oomShardCount int) (string, error) {
	if index < 0 || index >= pow10(oomSamplePerShard) {
		return "", fmt.Errorf("sample index %d out of range for width %d", index, oomSamplePerShard)
	}
	if shardID < 0 || shardID >= pow10(oomShardCount) {
		return "", fmt.Errorf("shard id %d out of range for width %d", shardID, oomShardCount)
	}

	trueKey := shardID*pow10(oomSamplePerShard) + index
	return fmt.Sprintf("%0*d", oomSamplePerShard+oomShardCount, trueKey), nil
}

// Name returns the zero-padded shard name used for output and stats files.
func Name(shardID, oomShardCount int) string {
	return fmt.Sprintf("%0*d", oomShardCount, shardID)
}

// OOMSamplePerShard derives the digit width needed to key n samples:
// ceil(log10(n)).
func OOMSamplePerShard(n int) int {
	if n <= 1 {
		return 0
	}
	return int(math.Ceil(math.Log10(float64(n))))
}

func pow10(n int) int {
	p := 1
	for i := 0; i < n; i++ {
		p *= 10
	}
	return p
}

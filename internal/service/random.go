package service

import (
	"math/rand/v2"
	"sync"
)

// RandomSource 抽题与打乱使用的随机源，需可并发调用
type RandomSource interface {
	IntN(n int) int
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// NewSeededSource 固定种子，测试用
func NewSeededSource(seed uint64) RandomSource {
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func NewRuntimeSource() RandomSource {
	return &lockedRand{r: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// sampleIDs 均匀无放回抽取 k 个，返回顺序即出题顺序（部分 Fisher-Yates）
func sampleIDs(rnd RandomSource, ids []uint, k int) []uint {
	pool := make([]uint, len(ids))
	copy(pool, ids)
	if k > len(pool) {
		k = len(pool)
	}
	for i := 0; i < k; i++ {
		j := i + rnd.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}

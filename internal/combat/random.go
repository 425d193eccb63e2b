package combat

import (
	"math/rand"
	"sync"
	"time"
)

// Source 战斗随机源，*rand.Rand 满足该接口
type Source interface {
	Float64() float64
	Intn(n int) int
}

// lockedSource 并发安全的随机源
type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSource 创建指定种子的并发安全随机源
func NewSource(seed int64) Source {
	return &lockedSource{rng: rand.New(rand.NewSource(seed))}
}

// NewTimeSource 以当前时间为种子
func NewTimeSource() Source {
	return NewSource(time.Now().UnixNano())
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *lockedSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

package classifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

var (
	ErrPoolClosed     = errors.New("session pool is closed")
	ErrAcquireTimeout = errors.New("timeout waiting for available session")
)

// ModelSession is one ONNX session with its pre-allocated tensors. A session is
// used by a single goroutine at a time.
type ModelSession struct {
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]
}

func (m *ModelSession) Destroy() {
	if m.Session != nil {
		m.Session.Destroy()
	}
	if m.Input != nil {
		m.Input.Destroy()
	}
	if m.Output != nil {
		m.Output.Destroy()
	}
}

type SessionFactory func() (*ModelSession, error)

type SessionPool struct {
	sessions       chan *ModelSession
	size           int
	newSession     SessionFactory
	acquireTimeout time.Duration
	logger         *zap.Logger

	mu         sync.Mutex
	closed     bool
	live       int
	lastErrors []error
	stop       chan struct{}

	inUse           atomic.Int64
	totalAcquired   atomic.Int64
	totalReleased   atomic.Int64
	acquireFailures atomic.Int64
	discarded       atomic.Int64
}

type PoolStats struct {
	Size            int
	Live            int
	InUse           int64
	TotalAcquired   int64
	TotalReleased   int64
	AcquireFailures int64
	Discarded       int64
}

func NewSessionPool(size int, acquireTimeout time.Duration, newSession SessionFactory, logger *zap.Logger) (*SessionPool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if acquireTimeout <= 0 {
		acquireTimeout = AcquireTimeout
	}

	pool := &SessionPool{
		sessions:       make(chan *ModelSession, size),
		size:           size,
		newSession:     newSession,
		acquireTimeout: acquireTimeout,
		logger:         logger.Named("pool"),
		stop:           make(chan struct{}),
	}

	for i := 0; i < size; i++ {
		session, err := newSession()
		if err != nil {
			pool.Destroy()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		pool.live++
		pool.sessions <- session
	}

	go pool.healthCheck()

	return pool, nil
}

func (p *SessionPool) Acquire(ctx context.Context) (*ModelSession, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case session, ok := <-p.sessions:
		if !ok {
			return nil, ErrPoolClosed
		}
		p.inUse.Add(1)
		p.totalAcquired.Add(1)
		return session, nil
	case <-timer.C:
		p.acquireFailures.Add(1)
		return nil, ErrAcquireTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *SessionPool) Release(session *ModelSession) {
	p.inUse.Add(-1)
	p.totalReleased.Add(1)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		session.Destroy()
		return
	}
	p.sessions <- session
}

// Discard destroys a session that failed mid-run. The health check replaces it.
func (p *SessionPool) Discard(session *ModelSession, cause error) {
	p.inUse.Add(-1)
	p.discarded.Add(1)
	session.Destroy()

	p.mu.Lock()
	p.live--
	p.mu.Unlock()

	p.recordError(cause)
}

func (p *SessionPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.stop)
	close(p.sessions)

	for session := range p.sessions {
		session.Destroy()
	}
}

func (p *SessionPool) healthCheck() {
	ticker := time.NewTicker(HealthCheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.replenish()
		}
	}
}

func (p *SessionPool) replenish() {
	p.mu.Lock()
	missing := p.size - p.live
	p.mu.Unlock()

	for i := 0; i < missing; i++ {
		session, err := p.newSession()
		if err != nil {
			p.recordError(err)
			continue
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			session.Destroy()
			return
		}
		p.live++
		p.sessions <- session
		p.mu.Unlock()
	}
}

func (p *SessionPool) recordError(err error) {
	if err == nil {
		return
	}
	p.logger.Warn("session error", zap.Error(err))

	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErrors = append(p.lastErrors, err)
	if len(p.lastErrors) > maxRecordedErrors {
		p.lastErrors = p.lastErrors[1:]
	}
}

func (p *SessionPool) Stats() PoolStats {
	p.mu.Lock()
	live := p.live
	p.mu.Unlock()

	return PoolStats{
		Size:            p.size,
		Live:            live,
		InUse:           p.inUse.Load(),
		TotalAcquired:   p.totalAcquired.Load(),
		TotalReleased:   p.totalReleased.Load(),
		AcquireFailures: p.acquireFailures.Load(),
		Discarded:       p.discarded.Load(),
	}
}

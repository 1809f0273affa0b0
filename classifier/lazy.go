package classifier

import (
	"context"
	"sync"

	"github.com/Tutortoise/rice-leaf-service/models"
)

// Lazy defers loading a classifier until first use. Concurrent first callers wait
// on a single load; its result, including a failure, is kept for the process lifetime.
type Lazy struct {
	load func() (Classifier, error)

	once sync.Once
	c    Classifier
	err  error
}

func NewLazy(load func() (Classifier, error)) *Lazy {
	return &Lazy{load: load}
}

func (l *Lazy) Get() (Classifier, error) {
	l.once.Do(func() {
		l.c, l.err = l.load()
		if l.err != nil && models.KindOf(l.err) != models.KindConfiguration {
			l.err = models.Configuration("failed to load classifier", l.err)
		}
	})
	return l.c, l.err
}

func (l *Lazy) Classify(ctx context.Context, t Tensor) (models.ProbabilityVector, error) {
	c, err := l.Get()
	if err != nil {
		return nil, err
	}
	return c.Classify(ctx, t)
}

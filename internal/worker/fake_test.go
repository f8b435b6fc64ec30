package worker

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

type FakeStore struct {
	mu    sync.Mutex
	calls []string

	FieldMaximaFunc func(ctx context.Context) (map[string]decimal.Decimal, error)
	ReplaceFunc     func(ctx context.Context, maxima map[string]decimal.Decimal) error
}

func (f *FakeStore) record(step string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, step)
}

func (f *FakeStore) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FakeStore) FieldMaxima(ctx context.Context) (map[string]decimal.Decimal, error) {
	f.record("FieldMaxima")
	if f.FieldMaximaFunc != nil {
		return f.FieldMaximaFunc(ctx)
	}
	return map[string]decimal.Decimal{}, nil
}

func (f *FakeStore) Replace(ctx context.Context, maxima map[string]decimal.Decimal) error {
	f.record("Replace")
	if f.ReplaceFunc != nil {
		return f.ReplaceFunc(ctx, maxima)
	}
	return nil
}

package api

import (
	"context"

	"misdash/pkg/commitment"
)

type mockCommitter struct {
	overlay    *commitment.Overlay
	LoadFunc   func(ctx context.Context) error
	SubmitFunc func(ctx context.Context) (commitment.Result, error)
}

func (m *mockCommitter) Overlay() *commitment.Overlay {
	if m.overlay == nil {
		m.overlay = commitment.NewOverlay()
	}
	return m.overlay
}

func (m *mockCommitter) Load(ctx context.Context) error {
	if m.LoadFunc == nil {
		return nil
	}
	return m.LoadFunc(ctx)
}

func (m *mockCommitter) Submit(ctx context.Context) (commitment.Result, error) {
	return m.SubmitFunc(ctx)
}

type mockImages struct {
	ResolveFunc  func(ctx context.Context, candidates []string) (string, error)
	AllowsFunc   func(u string) bool
	ResolveCalls [][]string
}

func (m *mockImages) Allows(u string) bool {
	if m.AllowsFunc == nil {
		return true
	}
	return m.AllowsFunc(u)
}

func (m *mockImages) Resolve(ctx context.Context, candidates []string) (string, error) {
	m.ResolveCalls = append(m.ResolveCalls, candidates)
	return m.ResolveFunc(ctx, candidates)
}

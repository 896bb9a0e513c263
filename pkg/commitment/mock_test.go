package commitment

import "context"

type mockStore struct {
	ListFunc    func(ctx context.Context) ([]Person, error)
	SubmitFunc  func(ctx context.Context, records []Record) error
	ListCalls   int
	SubmitCalls [][]Record
}

func (m *mockStore) List(ctx context.Context) ([]Person, error) {
	m.ListCalls++
	if m.ListFunc == nil {
		return nil, nil
	}
	return m.ListFunc(ctx)
}

func (m *mockStore) Submit(ctx context.Context, records []Record) error {
	m.SubmitCalls = append(m.SubmitCalls, records)
	if m.SubmitFunc == nil {
		return nil
	}
	return m.SubmitFunc(ctx, records)
}

package chat

import (
	"context"
)

type MockResponder struct {
	Response string
	Err      error
	// Gate, when set, blocks Chat until it is closed or receives.
	Gate    chan struct{}
	Started chan struct{}
	Calls   []string
}

func (m *MockResponder) Chat(ctx context.Context, message string) (string, error) {
	m.Calls = append(m.Calls, message)
	if m.Started != nil {
		m.Started <- struct{}{}
	}
	if m.Gate != nil {
		<-m.Gate
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

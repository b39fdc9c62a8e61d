package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

type stubSender struct {
	err  error
	sent []int64
}

func (s *stubSender) SendText(_ context.Context, chatID int64, _ string) error {
	s.sent = append(s.sent, chatID)
	return s.err
}

func TestDeliverSuccess(t *testing.T) {
	s := &stubSender{}

	got := Deliver(context.Background(), s, 42, "hello", slog.Default())
	if got != Delivered {
		t.Errorf("delivery = %v, want %v", got, Delivered)
	}
	if len(s.sent) != 1 || s.sent[0] != 42 {
		t.Errorf("sent = %v, want [42]", s.sent)
	}
}

func TestDeliverFailureSwallowed(t *testing.T) {
	s := &stubSender{err: errors.New("blocked by user")}

	got := Deliver(context.Background(), s, 42, "hello", slog.Default())
	if got != Failed {
		t.Errorf("delivery = %v, want %v", got, Failed)
	}
}

func TestDeliverNilSender(t *testing.T) {
	if got := Deliver(context.Background(), nil, 42, "hello", slog.Default()); got != Failed {
		t.Errorf("delivery = %v, want %v", got, Failed)
	}
}

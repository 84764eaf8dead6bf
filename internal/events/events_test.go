package events

import (
	"context"
	"errors"
	"testing"
)

type recordingPublisher struct {
	keys []string
	err  error
}

func (r *recordingPublisher) Publish(ctx context.Context, key string, payload any) error {
	r.keys = append(r.keys, key)
	return r.err
}

func TestMulti_PublishesToAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("broker down")
	a := &recordingPublisher{err: boom}
	b := &recordingPublisher{}

	err := Multi{a, nil, b}.Publish(context.Background(), MessageSent, MessageEvent{})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if len(a.keys) != 1 || len(b.keys) != 1 {
		t.Fatalf("publish counts = %d, %d, want 1, 1", len(a.keys), len(b.keys))
	}
	if b.keys[0] != MessageSent {
		t.Fatalf("key = %q, want %q", b.keys[0], MessageSent)
	}
}

func TestNop(t *testing.T) {
	if err := (Nop{}).Publish(context.Background(), AppointmentCreated, nil); err != nil {
		t.Fatalf("Nop.Publish error: %v", err)
	}
}

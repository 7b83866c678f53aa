package events

import (
	"sync"
	"testing"
)

func TestPublishReachesEverySubscriber(t *testing.T) {
	bus := NewBus[int]()
	a := bus.Subscribe(4)
	b := bus.Subscribe(4)
	defer a.Close()
	defer b.Close()

	bus.Publish(1)
	bus.Publish(2)

	for _, s := range []*Subscription[int]{a, b} {
		if got := <-s.C; got != 1 {
			t.Errorf("expected 1, got %d", got)
		}
		if got := <-s.C; got != 2 {
			t.Errorf("expected 2, got %d", got)
		}
	}
}

func TestFullSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus[string]()
	s := bus.Subscribe(1)
	defer s.Close()

	bus.Publish("a")
	bus.Publish("b") // buffer full

	if s.Dropped() != 1 {
		t.Errorf("expected 1 dropped value, got %d", s.Dropped())
	}
	if got := <-s.C; got != "a" {
		t.Errorf("expected first value to be kept, got %q", got)
	}
}

func TestCloseUnregisters(t *testing.T) {
	bus := NewBus[int]()
	s := bus.Subscribe(1)
	s.Close()
	s.Close()

	if bus.Len() != 0 {
		t.Errorf("expected no subscribers, got %d", bus.Len())
	}
	if _, ok := <-s.C; ok {
		t.Error("expected closed channel")
	}
	bus.Publish(1) // must not panic
}

func TestConcurrentPublishAndClose(t *testing.T) {
	bus := NewBus[int]()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		s := bus.Subscribe(16)
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(j)
			}
		}()
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()
	if bus.Len() != 0 {
		t.Errorf("expected all subscriptions closed, got %d", bus.Len())
	}
}

package dispatch

import (
	"sync"
	"testing"
	"time"
)

func TestSyncHandlerExactlyOnce(t *testing.T) {
	d := New[int]()
	var mu sync.Mutex
	var got []int
	d.Connect(func(v int) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, v)
	}, Sync)

	d.Emit(1)
	d.Emit(2)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("got %v, want [1 2]", got)
	}
}

func TestSyncHandlerPanicIsolated(t *testing.T) {
	d := New[int]()
	var called bool
	d.Connect(func(v int) { panic("boom") }, Sync)
	d.Connect(func(v int) { called = true }, Sync)

	d.Emit(1) // should not panic out of Emit

	if !called {
		t.Error("second handler should still run after the first panics")
	}
}

func TestDisconnectStopsDelivery(t *testing.T) {
	d := New[int]()
	var count int
	c := d.Connect(func(v int) { count++ }, Sync)

	d.Emit(1)
	d.Disconnect(c)
	d.Emit(2)

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestAsyncHandlerReceivesEvent(t *testing.T) {
	d := New[int]()
	ch := make(chan int, 1)
	d.Connect(func(v int) { ch <- v }, Async)

	d.Emit(42)

	select {
	case v := <-ch:
		if v != 42 {
			t.Errorf("got %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for async handler")
	}
}

func TestSyncHandlersRunInConnectionOrder(t *testing.T) {
	d := New[int]()
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		d.Connect(func(v int) { order = append(order, name) }, Sync)
	}

	d.Emit(1)

	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order = %v, want %v", order, want)
		}
	}
}

func TestDisconnectDuringEmission(t *testing.T) {
	d := New[int]()
	var mu sync.Mutex
	var conn Connection
	conn = d.Connect(func(v int) {
		mu.Lock()
		defer mu.Unlock()
		d.Disconnect(conn)
	}, Sync)
	d.Connect(func(v int) {}, Sync)

	d.Emit(1) // must not deadlock on the dispatcher's own mutex
	d.Emit(2)
}

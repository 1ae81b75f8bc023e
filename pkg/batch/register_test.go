package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/dkhp-proxy/pkg/portal"
)

type enrollResult struct {
	env *portal.Envelope
	err error
}

type fakeEnroller struct {
	results map[int64]enrollResult
	delay   time.Duration

	mu          sync.Mutex
	calls       map[int64]int
	inFlight    int
	maxInFlight int
}

func (f *fakeEnroller) Register(_ context.Context, _ string, classID int64) (*portal.Envelope, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[int64]int{}
	}
	f.calls[classID]++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	res, ok := f.results[classID]
	if !ok {
		return &portal.Envelope{Success: true}, nil
	}
	return res.env, res.err
}

func TestRegisterAll_Outcomes(t *testing.T) {
	enroller := &fakeEnroller{results: map[int64]enrollResult{
		1: {env: &portal.Envelope{Success: true, Message: "Đăng ký thành công"}},
		2: {env: &portal.Envelope{Success: false, Message: "Lớp đã đầy"}},
		3: {env: &portal.Envelope{Success: false}},
		4: {err: &portal.UpstreamError{StatusCode: 500, ErrorClass: portal.ErrorClassServer, Message: "HTTP error! status: 500"}},
		5: {err: errors.New("dial tcp: connection refused")},
		6: {env: &portal.Envelope{Success: true}},
	}}

	got := NewRegistrar(enroller, 0).RegisterAll(context.Background(), "T", []int64{1, 2, 3, 4, 5, 6})

	want := map[int64]Outcome{
		1: {Success: true, Message: "Đăng ký thành công"},
		2: {Success: false, Message: "Lớp đã đầy"},
		3: {Success: false, Message: "Registration failed"},
		4: {Success: false, Message: "HTTP error! status: 500"},
		5: {Success: false, Message: "Registration failed"},
		6: {Success: true, Message: "Registration successful"},
	}

	if len(got) != len(want) {
		t.Fatalf("outcomes = %d, want %d", len(got), len(want))
	}
	for id, w := range want {
		if got[id] != w {
			t.Errorf("outcome[%d] = %+v, want %+v", id, got[id], w)
		}
	}
}

func TestRegisterAll_DeduplicatesClassIDs(t *testing.T) {
	enroller := &fakeEnroller{}

	got := NewRegistrar(enroller, 0).RegisterAll(context.Background(), "T", []int64{9, 9, 8, 9})

	if len(got) != 2 {
		t.Errorf("outcomes = %v, want 2 entries", got)
	}
	if enroller.calls[9] != 1 || enroller.calls[8] != 1 {
		t.Errorf("calls = %v, want one per distinct id", enroller.calls)
	}
}

func TestRegisterAll_EmptyInput(t *testing.T) {
	enroller := &fakeEnroller{}

	got := NewRegistrar(enroller, 0).RegisterAll(context.Background(), "T", nil)

	if len(got) != 0 {
		t.Errorf("outcomes = %v, want none", got)
	}
	if len(enroller.calls) != 0 {
		t.Errorf("calls = %v, want none", enroller.calls)
	}
}

func TestRegisterAll_Concurrency(t *testing.T) {
	tests := []struct {
		name    string
		limit   int
		wantMax int
	}{
		{name: "bounded", limit: 2, wantMax: 2},
		{name: "serial", limit: 1, wantMax: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enroller := &fakeEnroller{delay: 10 * time.Millisecond}
			ids := []int64{1, 2, 3, 4, 5, 6}

			got := NewRegistrar(enroller, tt.limit).RegisterAll(context.Background(), "T", ids)

			if len(got) != len(ids) {
				t.Fatalf("outcomes = %d, want %d", len(got), len(ids))
			}
			if enroller.maxInFlight > tt.wantMax {
				t.Errorf("max in flight = %d, want <= %d", enroller.maxInFlight, tt.wantMax)
			}
		})
	}
}

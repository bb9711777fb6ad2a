package fleet

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func testState(id string, angle *int, sweeping bool, seen time.Time) DeviceState {
	return DeviceState{
		DeviceID:     id,
		Online:       true,
		LastSeen:     seen,
		CurrentAngle: angle,
		IsSweeping:   sweeping,
	}
}

func TestRegistryUpsertAndGet(t *testing.T) {
	r := NewRegistry()
	now := time.Now()

	if !r.Upsert(testState("dev1", IntPtr(90), false, now)) {
		t.Fatal("Upsert() = false for new device")
	}

	got, ok := r.Get("dev1")
	if !ok {
		t.Fatal("Get(dev1) ok = false")
	}
	if got.CurrentAngle == nil || *got.CurrentAngle != 90 {
		t.Errorf("CurrentAngle = %v, want 90", got.CurrentAngle)
	}
	if !got.Online {
		t.Error("Online = false, want true")
	}
	if !got.LastSeen.Equal(now) {
		t.Errorf("LastSeen = %v, want %v", got.LastSeen, now)
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}

func TestRegistryUpsertReplacesWholesale(t *testing.T) {
	r := NewRegistry()
	now := time.Now()

	r.Upsert(testState("dev1", IntPtr(90), true, now))
	r.Upsert(testState("dev1", nil, false, now.Add(time.Second)))

	got, _ := r.Get("dev1")
	if got.CurrentAngle != nil {
		t.Errorf("CurrentAngle = %d, want nil (no merge with previous telegram)", *got.CurrentAngle)
	}
	if got.IsSweeping {
		t.Error("IsSweeping = true, want false")
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}

func TestRegistryUpsertIgnoresStale(t *testing.T) {
	r := NewRegistry()
	now := time.Now()

	r.Upsert(testState("dev1", IntPtr(120), false, now))

	if r.Upsert(testState("dev1", IntPtr(10), false, now.Add(-time.Second))) {
		t.Error("Upsert() with older LastSeen = true, want false")
	}
	got, _ := r.Get("dev1")
	if *got.CurrentAngle != 120 {
		t.Errorf("CurrentAngle = %d, want 120", *got.CurrentAngle)
	}

	// Equal timestamps still apply; the later call wins.
	if !r.Upsert(testState("dev1", IntPtr(30), false, now)) {
		t.Error("Upsert() with equal LastSeen = false, want true")
	}
	got, _ = r.Get("dev1")
	if *got.CurrentAngle != 30 {
		t.Errorf("CurrentAngle = %d, want 30", *got.CurrentAngle)
	}
}

func TestRegistryUpsertInvalidID(t *testing.T) {
	r := NewRegistry()

	for _, id := range []string{"", "a/b", "dev+", "#"} {
		if r.Upsert(testState(id, nil, false, time.Now())) {
			t.Errorf("Upsert(%q) = true, want false", id)
		}
	}
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}

func TestRegistryReturnsCopies(t *testing.T) {
	r := NewRegistry()
	angle := 45
	r.Upsert(testState("dev1", &angle, false, time.Now()))

	// Mutating the caller's pointer must not reach the registry.
	angle = 170
	got, _ := r.Get("dev1")
	if *got.CurrentAngle != 45 {
		t.Fatalf("CurrentAngle = %d, want 45", *got.CurrentAngle)
	}

	// Mutating a returned copy must not reach the registry either.
	*got.CurrentAngle = 0
	all := r.GetAll()
	if *all[0].CurrentAngle != 45 {
		t.Errorf("CurrentAngle after mutating copy = %d, want 45", *all[0].CurrentAngle)
	}
}

func TestRegistryGetAllSorted(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	for _, id := range []string{"dev3", "dev1", "dev2"} {
		r.Upsert(testState(id, nil, false, now))
	}

	all := r.GetAll()
	if len(all) != 3 {
		t.Fatalf("GetAll() len = %d, want 3", len(all))
	}
	for i, want := range []string{"dev1", "dev2", "dev3"} {
		if all[i].DeviceID != want {
			t.Errorf("GetAll()[%d].DeviceID = %q, want %q", i, all[i].DeviceID, want)
		}
	}
}

func TestRegistryGetAllEmpty(t *testing.T) {
	all := NewRegistry().GetAll()
	if all == nil || len(all) != 0 {
		t.Errorf("GetAll() = %v, want empty non-nil slice", all)
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	r.Upsert(testState("dev1", nil, false, time.Now()))

	if _, err := r.Lookup("dev1"); err != nil {
		t.Errorf("Lookup(dev1) error = %v", err)
	}
	if _, err := r.Lookup("ghost"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Lookup(ghost) error = %v, want ErrDeviceNotFound", err)
	}
	if r.Contains("ghost") {
		t.Error("Contains(ghost) = true")
	}
}

func TestRegistryStats(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	r.Upsert(testState("dev1", nil, true, now))
	r.Upsert(testState("dev2", IntPtr(10), false, now))
	r.Upsert(DeviceState{DeviceID: "dev3", LastSeen: now})

	got := r.Stats()
	want := Stats{Total: 3, Online: 2, Sweeping: 1}
	if got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

func TestValidateDeviceID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"dev1", false},
		{"kitchen-servo_02", false},
		{"", true},
		{"a/b", true},
		{"+", true},
		{"dev#", true},
		{strings.Repeat("d", maxDeviceIDLength), false},
		{strings.Repeat("d", maxDeviceIDLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateDeviceID(tt.id)
			if tt.wantErr && !errors.Is(err, ErrInvalidDeviceID) {
				t.Errorf("ValidateDeviceID(%q) error = %v, want ErrInvalidDeviceID", tt.id, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateDeviceID(%q) error = %v", tt.id, err)
			}
		})
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	base := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("dev%d", i%10)
				r.Upsert(testState(id, IntPtr(i%181), i%2 == 0, base.Add(time.Duration(i)*time.Millisecond)))
			}
		}(w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = r.GetAll()
				_, _ = r.Get("dev1")
				_ = r.Stats()
			}
		}()
	}
	wg.Wait()

	if r.Count() != 10 {
		t.Errorf("Count() = %d, want 10", r.Count())
	}
}

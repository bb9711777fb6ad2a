package fleet

import (
	"fmt"
	"testing"
	"time"
)

func BenchmarkRegistryUpsert(b *testing.B) {
	r := NewRegistry()
	now := time.Now()
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = fmt.Sprintf("dev%d", i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Upsert(testState(ids[i%len(ids)], IntPtr(i%181), false, now))
	}
}

func BenchmarkRegistryGetAll(b *testing.B) {
	r := NewRegistry()
	now := time.Now()
	for i := 0; i < 100; i++ {
		r.Upsert(testState(fmt.Sprintf("dev%d", i), IntPtr(i), false, now))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.GetAll()
	}
}

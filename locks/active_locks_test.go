package locks

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/ebogdum/flystream/metrics"
)

// FLYSTREAM_TEST_REDIS points the redis case at a disposable server, e.g. redis://localhost:6379/15
func TestActiveLocksCountsHolds(t *testing.T) {
	tests := []struct {
		name string
		open func(t *testing.T) Manager
	}{
		{
			name: "memory",
			open: func(t *testing.T) Manager { return NewLocalManager(time.Minute) },
		},
		{
			name: "flock",
			open: func(t *testing.T) Manager {
				m, err := NewFileManager(t.TempDir(), zap.NewNop())
				if err != nil {
					t.Skipf("flock unavailable: %v", err)
				}
				return m
			},
		},
		{
			name: "redis",
			open: func(t *testing.T) Manager {
				url := os.Getenv("FLYSTREAM_TEST_REDIS")
				if url == "" {
					t.Skip("FLYSTREAM_TEST_REDIS not set")
				}
				m, err := NewRedisManager(url, time.Minute, zap.NewNop())
				if err != nil {
					t.Skipf("redis unavailable: %v", err)
				}
				return m
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.open(t)
			defer m.Close()
			ctx := context.Background()
			key := "flysystem://active-" + tt.name + "-" + time.Now().Format("150405.000000000")

			base := testutil.ToFloat64(metrics.ActiveLocks)
			steps := []struct {
				what string
				mode Mode
			}{
				{"first shared hold", Shared},
				{"shared again", Shared},
				{"upgrade", Exclusive},
				{"exclusive again", Exclusive},
				{"downgrade", Shared},
			}
			for _, step := range steps {
				ok, err := m.Acquire(ctx, key, "owner", step.mode)
				if err != nil || !ok {
					t.Fatalf("%s: ok=%v err=%v", step.what, ok, err)
				}
				if got := testutil.ToFloat64(metrics.ActiveLocks) - base; got != 1 {
					t.Errorf("%s: expected one active lock, gauge moved by %v", step.what, got)
				}
			}

			if err := m.Release(ctx, key, "owner"); err != nil {
				t.Fatal(err)
			}
			if got := testutil.ToFloat64(metrics.ActiveLocks) - base; got != 0 {
				t.Errorf("expected gauge back at its start after release, moved by %v", got)
			}
		})
	}
}

package liteservenv_test

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/giantswarm/liteservenv"
)

type panicTestCase struct {
	panics   bool
	panicMsg string
	fn       func()
}

// requirePanics calls fn and checks that it panics with wantMsg, or not at
// all when shouldPanic is false.
func requirePanics(t *testing.T, shouldPanic bool, wantMsg string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		switch {
		case shouldPanic && r == nil:
			t.Fatal("expected panic but didn't get one")
		case !shouldPanic && r != nil:
			t.Fatalf("unexpected panic: %v", r)
		case shouldPanic:
			if msg := fmt.Sprint(r); msg != wantMsg {
				t.Fatalf("expected panic message %q, got %q", wantMsg, msg)
			}
		}
	}()
	fn()
}

func runPanicTests(t *testing.T, tests map[string]panicTestCase) {
	t.Helper()
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			requirePanics(t, tc.panics, tc.panicMsg, tc.fn)
		})
	}
}

func TestDurationOptionsPanicOnInvalid(t *testing.T) {
	t.Parallel()

	options := map[string]func(time.Duration) liteservenv.ManagerOption{
		"acquire timeout":        liteservenv.WithAcquireTimeout,
		"seed cache timeout":     liteservenv.WithSeedCacheTimeout,
		"instance start timeout": liteservenv.WithInstanceStartTimeout,
		"instance stop timeout":  liteservenv.WithInstanceStopTimeout,
		"cleanup timeout":        liteservenv.WithCleanupTimeout,
		"shutdown drain timeout": liteservenv.WithShutdownDrainTimeout,
	}

	for name, opt := range options {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			runPanicTests(t, map[string]panicTestCase{
				"zero": {
					panics:   true,
					panicMsg: "liteservenv: " + name + " must be greater than 0, got 0s",
					fn:       func() { opt(0) },
				},
				"negative": {
					panics:   true,
					panicMsg: "liteservenv: " + name + " must be greater than 0, got -1s",
					fn:       func() { opt(-time.Second) },
				},
				"valid": {fn: func() { opt(time.Second) }},
			})
		})
	}
}

func TestWithPoolSizePanicsOnInvalid(t *testing.T) {
	t.Parallel()
	runPanicTests(t, map[string]panicTestCase{
		"negative": {
			panics:   true,
			panicMsg: "liteservenv: pool size must not be negative, got -1",
			fn:       func() { liteservenv.WithPoolSize(-1) },
		},
		"zero_unlimited": {fn: func() { liteservenv.WithPoolSize(0) }},
		"valid":          {fn: func() { liteservenv.WithPoolSize(5) }},
	})
}

func TestWithReleaseStrategyPanicsOnInvalid(t *testing.T) {
	t.Parallel()
	runPanicTests(t, map[string]panicTestCase{
		"negative": {
			panics:   true,
			panicMsg: "liteservenv: invalid release strategy: ReleaseStrategy(-1)",
			fn:       func() { liteservenv.WithReleaseStrategy(liteservenv.ReleaseStrategy(-1)) },
		},
		"out_of_range": {
			panics:   true,
			panicMsg: "liteservenv: invalid release strategy: ReleaseStrategy(99)",
			fn:       func() { liteservenv.WithReleaseStrategy(liteservenv.ReleaseStrategy(99)) },
		},
		"restart": {fn: func() { liteservenv.WithReleaseStrategy(liteservenv.ReleaseRestart) }},
		"clean":   {fn: func() { liteservenv.WithReleaseStrategy(liteservenv.ReleaseClean) }},
		"none":    {fn: func() { liteservenv.WithReleaseStrategy(liteservenv.ReleaseNone) }},
	})
}

func TestWithEmptyStringOptionsPanic(t *testing.T) {
	t.Parallel()
	runPanicTests(t, map[string]panicTestCase{
		"liteServBinary": {
			panics:   true,
			panicMsg: "liteservenv: liteserv binary path must not be empty",
			fn:       func() { liteservenv.WithLiteServBinary("") },
		},
		"seedDir": {
			panics:   true,
			panicMsg: "liteservenv: seed directory path must not be empty",
			fn:       func() { liteservenv.WithSeedDir("") },
		},
		"baseDataDir": {
			panics:   true,
			panicMsg: "liteservenv: base data directory must not be empty",
			fn:       func() { liteservenv.WithBaseDataDir("") },
		},
	})
}

func TestWithLiteServEnvPanicsOnMalformedEntry(t *testing.T) {
	t.Parallel()
	runPanicTests(t, map[string]panicTestCase{
		"no_equals": {
			panics:   true,
			panicMsg: `liteservenv: liteserv env entry "DEBUG" must have the form KEY=VALUE`,
			fn:       func() { liteservenv.WithLiteServEnv("A=1", "DEBUG") },
		},
		"empty_key": {
			panics:   true,
			panicMsg: `liteservenv: liteserv env entry "=1" must have the form KEY=VALUE`,
			fn:       func() { liteservenv.WithLiteServEnv("=1") },
		},
		"empty_value": {fn: func() { liteservenv.WithLiteServEnv("A=") }},
		"none":        {fn: func() { liteservenv.WithLiteServEnv() }},
	})
}

func TestOptionApplicationDefaults(t *testing.T) {
	t.Parallel()

	snap := liteservenv.ApplyOptionsForTesting()
	want := liteservenv.ConfigSnapshot{
		PoolSize:             liteservenv.DefaultPoolSize,
		ReleaseStrategy:      liteservenv.DefaultReleaseStrategy,
		LiteServBinary:       liteservenv.DefaultLiteServBinary,
		AcquireTimeout:       liteservenv.DefaultAcquireTimeout,
		BaseDataDir:          filepath.Join(os.TempDir(), liteservenv.DefaultBaseDataDirName),
		SeedCacheTimeout:     liteservenv.DefaultSeedCacheTimeout,
		InstanceStartTimeout: liteservenv.DefaultInstanceStartTimeout,
		InstanceStopTimeout:  liteservenv.DefaultInstanceStopTimeout,
		CleanupTimeout:       liteservenv.DefaultCleanupTimeout,
		ShutdownDrainTimeout: liteservenv.DefaultShutdownDrainTimeout,
	}

	// LiteServEnv is a slice, so compare it apart from the rest.
	if snap.LiteServEnv != nil {
		t.Errorf("LiteServEnv = %v, want nil", snap.LiteServEnv)
	}
	snap.LiteServEnv = nil
	if !snapshotsEqual(snap, want) {
		t.Errorf("defaults = %+v, want %+v", snap, want)
	}
}

func snapshotsEqual(a, b liteservenv.ConfigSnapshot) bool {
	return slices.Equal(a.LiteServEnv, b.LiteServEnv) &&
		a.PoolSize == b.PoolSize &&
		a.ReleaseStrategy == b.ReleaseStrategy &&
		a.LiteServBinary == b.LiteServBinary &&
		a.AcquireTimeout == b.AcquireTimeout &&
		a.SeedDir == b.SeedDir &&
		a.BaseDataDir == b.BaseDataDir &&
		a.SeedCacheTimeout == b.SeedCacheTimeout &&
		a.InstanceStartTimeout == b.InstanceStartTimeout &&
		a.InstanceStopTimeout == b.InstanceStopTimeout &&
		a.CleanupTimeout == b.CleanupTimeout &&
		a.ShutdownDrainTimeout == b.ShutdownDrainTimeout
}

func TestOptionApplicationOverrides(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		opt    liteservenv.ManagerOption
		verify func(t *testing.T, snap liteservenv.ConfigSnapshot)
	}{
		"WithPoolSize": {
			opt: liteservenv.WithPoolSize(8),
			verify: func(t *testing.T, snap liteservenv.ConfigSnapshot) {
				t.Helper()
				if snap.PoolSize != 8 {
					t.Errorf("PoolSize = %d, want 8", snap.PoolSize)
				}
			},
		},
		"WithPoolSize_zero_unlimited": {
			opt: liteservenv.WithPoolSize(0),
			verify: func(t *testing.T, snap liteservenv.ConfigSnapshot) {
				t.Helper()
				if snap.PoolSize != 0 {
					t.Errorf("PoolSize = %d, want 0", snap.PoolSize)
				}
			},
		},
		"WithReleaseStrategy_clean": {
			opt: liteservenv.WithReleaseStrategy(liteservenv.ReleaseClean),
			verify: func(t *testing.T, snap liteservenv.ConfigSnapshot) {
				t.Helper()
				if snap.ReleaseStrategy != liteservenv.ReleaseClean {
					t.Errorf("ReleaseStrategy = %v, want ReleaseClean", snap.ReleaseStrategy)
				}
			},
		},
		"WithLiteServBinary": {
			opt: liteservenv.WithLiteServBinary("/opt/couchbase/LiteServ"),
			verify: func(t *testing.T, snap liteservenv.ConfigSnapshot) {
				t.Helper()
				if snap.LiteServBinary != "/opt/couchbase/LiteServ" {
					t.Errorf("LiteServBinary = %q, want %q", snap.LiteServBinary, "/opt/couchbase/LiteServ")
				}
			},
		},
		"WithLiteServEnv": {
			opt: liteservenv.WithLiteServEnv("CBL_LOG=verbose", "TZ=UTC"),
			verify: func(t *testing.T, snap liteservenv.ConfigSnapshot) {
				t.Helper()
				if want := []string{"CBL_LOG=verbose", "TZ=UTC"}; !slices.Equal(snap.LiteServEnv, want) {
					t.Errorf("LiteServEnv = %v, want %v", snap.LiteServEnv, want)
				}
			},
		},
		"WithAcquireTimeout": {
			opt: liteservenv.WithAcquireTimeout(2 * time.Minute),
			verify: func(t *testing.T, snap liteservenv.ConfigSnapshot) {
				t.Helper()
				if snap.AcquireTimeout != 2*time.Minute {
					t.Errorf("AcquireTimeout = %v, want 2m", snap.AcquireTimeout)
				}
			},
		},
		"WithSeedDir": {
			opt: liteservenv.WithSeedDir("/testdata/seed"),
			verify: func(t *testing.T, snap liteservenv.ConfigSnapshot) {
				t.Helper()
				if snap.SeedDir != "/testdata/seed" {
					t.Errorf("SeedDir = %q, want %q", snap.SeedDir, "/testdata/seed")
				}
			},
		},
		"WithSeedCacheTimeout": {
			opt: liteservenv.WithSeedCacheTimeout(10 * time.Minute),
			verify: func(t *testing.T, snap liteservenv.ConfigSnapshot) {
				t.Helper()
				if snap.SeedCacheTimeout != 10*time.Minute {
					t.Errorf("SeedCacheTimeout = %v, want 10m", snap.SeedCacheTimeout)
				}
			},
		},
		"WithBaseDataDir": {
			opt: liteservenv.WithBaseDataDir("/custom/data"),
			verify: func(t *testing.T, snap liteservenv.ConfigSnapshot) {
				t.Helper()
				if snap.BaseDataDir != "/custom/data" {
					t.Errorf("BaseDataDir = %q, want %q", snap.BaseDataDir, "/custom/data")
				}
			},
		},
		"WithInstanceStartTimeout": {
			opt: liteservenv.WithInstanceStartTimeout(3 * time.Minute),
			verify: func(t *testing.T, snap liteservenv.ConfigSnapshot) {
				t.Helper()
				if snap.InstanceStartTimeout != 3*time.Minute {
					t.Errorf("InstanceStartTimeout = %v, want 3m", snap.InstanceStartTimeout)
				}
			},
		},
		"WithInstanceStopTimeout": {
			opt: liteservenv.WithInstanceStopTimeout(30 * time.Second),
			verify: func(t *testing.T, snap liteservenv.ConfigSnapshot) {
				t.Helper()
				if snap.InstanceStopTimeout != 30*time.Second {
					t.Errorf("InstanceStopTimeout = %v, want 30s", snap.InstanceStopTimeout)
				}
			},
		},
		"WithCleanupTimeout": {
			opt: liteservenv.WithCleanupTimeout(time.Minute),
			verify: func(t *testing.T, snap liteservenv.ConfigSnapshot) {
				t.Helper()
				if snap.CleanupTimeout != time.Minute {
					t.Errorf("CleanupTimeout = %v, want 1m", snap.CleanupTimeout)
				}
			},
		},
		"WithShutdownDrainTimeout": {
			opt: liteservenv.WithShutdownDrainTimeout(2 * time.Minute),
			verify: func(t *testing.T, snap liteservenv.ConfigSnapshot) {
				t.Helper()
				if snap.ShutdownDrainTimeout != 2*time.Minute {
					t.Errorf("ShutdownDrainTimeout = %v, want 2m", snap.ShutdownDrainTimeout)
				}
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			tc.verify(t, liteservenv.ApplyOptionsForTesting(tc.opt))
		})
	}
}

func TestOptionApplicationMultipleOptions(t *testing.T) {
	t.Parallel()

	snap := liteservenv.ApplyOptionsForTesting(
		liteservenv.WithPoolSize(2),
		liteservenv.WithReleaseStrategy(liteservenv.ReleaseClean),
		liteservenv.WithLiteServBinary("/opt/LiteServ"),
		liteservenv.WithAcquireTimeout(time.Minute),
		liteservenv.WithBaseDataDir("/tmp/custom-liteservenv"),
		liteservenv.WithCleanupTimeout(45*time.Second),
	)

	if snap.PoolSize != 2 {
		t.Errorf("PoolSize = %d, want 2", snap.PoolSize)
	}
	if snap.ReleaseStrategy != liteservenv.ReleaseClean {
		t.Errorf("ReleaseStrategy = %v, want ReleaseClean", snap.ReleaseStrategy)
	}
	if snap.LiteServBinary != "/opt/LiteServ" {
		t.Errorf("LiteServBinary = %q, want %q", snap.LiteServBinary, "/opt/LiteServ")
	}
	if snap.AcquireTimeout != time.Minute {
		t.Errorf("AcquireTimeout = %v, want 1m", snap.AcquireTimeout)
	}
	if snap.BaseDataDir != "/tmp/custom-liteservenv" {
		t.Errorf("BaseDataDir = %q, want %q", snap.BaseDataDir, "/tmp/custom-liteservenv")
	}
	if snap.CleanupTimeout != 45*time.Second {
		t.Errorf("CleanupTimeout = %v, want 45s", snap.CleanupTimeout)
	}
}

func TestOptionApplicationLastWriteWins(t *testing.T) {
	t.Parallel()

	snap := liteservenv.ApplyOptionsForTesting(
		liteservenv.WithPoolSize(2),
		liteservenv.WithPoolSize(8),
	)
	if snap.PoolSize != 8 {
		t.Errorf("PoolSize = %d, want 8 (last write wins)", snap.PoolSize)
	}
}

func TestWithLiteServEnvAccumulates(t *testing.T) {
	t.Parallel()

	snap := liteservenv.ApplyOptionsForTesting(
		liteservenv.WithLiteServEnv("A=1"),
		liteservenv.WithLiteServEnv("B=2", "C=3"),
	)
	if want := []string{"A=1", "B=2", "C=3"}; !slices.Equal(snap.LiteServEnv, want) {
		t.Errorf("LiteServEnv = %v, want %v", snap.LiteServEnv, want)
	}
}

func TestWithLiteServEnvCopiesInput(t *testing.T) {
	t.Parallel()

	env := []string{"A=1"}
	opt := liteservenv.WithLiteServEnv(env...)
	env[0] = "A=changed"

	snap := liteservenv.ApplyOptionsForTesting(opt)
	if want := []string{"A=1"}; !slices.Equal(snap.LiteServEnv, want) {
		t.Errorf("LiteServEnv = %v, want %v", snap.LiteServEnv, want)
	}
}

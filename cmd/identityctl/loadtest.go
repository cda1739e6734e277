package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/store/redisstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type loadtestOptions struct {
	identities  int
	concurrency int
	ops         int
	redisAddr   string
	prefix      string
}

type seeded struct {
	rec goIdentity.IdentityRecord
}

func newLoadtestCmd(opts *rootOptions) *cobra.Command {
	lt := loadtestOptions{}

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure auth-key validation and throttling against Redis",
		Long: `Seeds identities into Redis, then runs an auth-key validation phase and a
throttle phase with concurrent workers. Without --redis-addr (or REDIS_ADDR)
an embedded miniredis is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if lt.identities <= 0 || lt.concurrency <= 0 || lt.ops <= 0 {
				return errors.New("identities, concurrency, and ops must be > 0")
			}
			return runLoadtest(cmd.Context(), opts, lt, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&lt.identities, "identities", 1000, "number of identities to seed")
	cmd.Flags().IntVar(&lt.concurrency, "concurrency", 64, "number of concurrent workers")
	cmd.Flags().IntVar(&lt.ops, "ops", 50000, "operations per phase")
	cmd.Flags().StringVar(&lt.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	cmd.Flags().StringVar(&lt.prefix, "prefix", "gi-load", "redis key prefix")
	return cmd
}

func runLoadtest(ctx context.Context, opts *rootOptions, lt loadtestOptions, out io.Writer) error {
	addr := lt.redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var client redis.UniversalClient
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("failed to start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Fprintf(out, "using miniredis at %s\n", addr)
	} else {
		fmt.Fprintf(out, "using redis at %s\n", addr)
	}
	client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	// Seeding is dominated by password hashing; use the cheapest accepted cost.
	cfg := opts.cfg.Engine()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false

	engine, err := goIdentity.New().
		WithConfig(cfg).
		WithStore(redisstore.New(client, lt.prefix)).
		WithLogger(opts.logger).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	states := make([]seeded, lt.identities)
	fmt.Fprintf(out, "seeding %d identities...\n", lt.identities)
	startSeed := time.Now()
	for i := range states {
		rec, err := engine.Register(ctx, goIdentity.RegisterRequest{
			Username: fmt.Sprintf("load-%d", i),
			Password: fmt.Sprintf("load-password-%d", i),
		})
		if err != nil {
			return fmt.Errorf("register failed: %w", err)
		}
		states[i] = seeded{rec: rec}
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	authStats := runPhase(lt, func(r *rand.Rand) (bool, error) {
		s := &states[r.Intn(len(states))]
		_, err := engine.AuthenticateAuthKey(ctx, s.rec.ID, s.rec.AuthKey)
		return true, err
	})
	throttleStats := runPhase(lt, func(r *rand.Rand) (bool, error) {
		s := &states[r.Intn(len(states))]
		d, err := engine.Throttle(ctx, s.rec, "loadtest")
		if errors.Is(err, goIdentity.ErrThrottled) {
			return false, nil
		}
		return d.Allowed, err
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "auth_key", authStats)
	printStats(out, "throttle", throttleStats)

	snapshot := engine.MetricsSnapshot()
	fmt.Fprintf(out, "rate_limit: allowed=%d throttled=%d store_errors=%d\n",
		snapshot.Counters[goIdentity.MetricRateLimitAllowed],
		snapshot.Counters[goIdentity.MetricRateLimitThrottled],
		snapshot.Counters[goIdentity.MetricStoreError],
	)
	return nil
}

// runPhase spreads ops over concurrency workers. op reports whether the
// request was admitted; an error counts as a failure.
func runPhase(lt loadtestOptions, op func(r *rand.Rand) (bool, error)) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		rejected  int64
		latencies = make([]time.Duration, 0, lt.ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < lt.concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= lt.ops {
					return
				}
				t0 := time.Now()
				admitted, err := op(r)
				d := time.Since(t0)
				switch {
				case err != nil:
					atomic.AddInt64(&failures, 1)
				case !admitted:
					atomic.AddInt64(&rejected, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	stats := computeStats(time.Since(start), latencies, failures)
	stats.rejected = rejected
	return stats
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	rejected int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d rejected=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.rejected,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

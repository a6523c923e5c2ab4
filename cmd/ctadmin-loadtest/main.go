// Command ctadmin-loadtest drives many concurrent cookie-session clients
// against the fake backend and reports request latency and how many session
// renewals reached the backend after mass access-token expiry.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/ctadmin"
	"github.com/MrEthical07/ctadmin/api"
	"github.com/MrEthical07/ctadmin/internal/apitest"
)

func main() {
	var (
		clients      = flag.Int("clients", 16, "number of independently signed-in clients")
		concurrency  = flag.Int("concurrency", 8, "concurrent requests per client")
		ops          = flag.Int("ops", 2000, "requests per phase, across all clients")
		accounts     = flag.Int("accounts", 50, "accounts to seed")
		refreshDelay = flag.Duration("refresh-delay", 20*time.Millisecond, "backend delay on each session renewal")
		redisAddr    = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *clients <= 0 || *concurrency <= 0 || *ops <= 0 || *accounts < 0 {
		fmt.Fprintln(os.Stderr, "clients, concurrency and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		rdb     redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = rdb.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = rdb.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	backend, err := apitest.Start(apitest.Options{Redis: rdb})
	if err != nil {
		fmt.Fprintf(os.Stderr, "start backend: %v\n", err)
		os.Exit(1)
	}
	defer backend.Close()

	for i := 0; i < *accounts; i++ {
		backend.SeedAccount(api.AccountCreate{
			AccountNumber:   fmt.Sprintf("LT%06d", i),
			AccountPassword: "loadtest-pass",
			Server:          "Broker-Load",
			BuyerName:       fmt.Sprintf("Buyer %d", i),
			PurchaseDate:    api.DateOf(time.Now()),
		})
	}

	fmt.Printf("signing in %d clients...\n", *clients)
	startLogin := time.Now()
	pool := make([]*ctadmin.Client, *clients)
	for i := range pool {
		c, err := ctadmin.New().
			WithBaseURL(backend.URL()).
			WithHTTPClient(backend.Client()).
			Build()
		if err != nil {
			fmt.Fprintf(os.Stderr, "build client: %v\n", err)
			os.Exit(1)
		}
		defer c.Close()
		if _, err := c.Login(ctx, "admin", "admin123"); err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		pool[i] = c
	}
	fmt.Printf("signed in in %s\n", time.Since(startLogin).Round(time.Millisecond))

	steady := runPhase(ctx, pool, *ops, *concurrency)

	backend.SetRefreshDelay(*refreshDelay)
	renewalsBefore := totalRenewals(pool)
	backend.ExpireAccess()
	expiry := runPhase(ctx, pool, *ops, *concurrency)
	renewals := totalRenewals(pool) - renewalsBefore

	fmt.Println("---- results ----")
	printStats("steady", steady)
	printStats("expiry", expiry)
	fmt.Printf("renewals after expiry: %d for %d clients (backend saw %d)\n",
		renewals, len(pool), backend.Hits("POST", "/api/v2/auth/refresh"))
	if renewals > uint64(len(pool)) {
		fmt.Fprintln(os.Stderr, "renewals were not coalesced per client")
		os.Exit(1)
	}
}

func totalRenewals(pool []*ctadmin.Client) uint64 {
	var n uint64
	for _, c := range pool {
		n += c.RenewalCalls()
	}
	return n
}

// runPhase spreads ops account listings over every client, concurrency
// workers per client.
func runPhase(ctx context.Context, pool []*ctadmin.Client, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for _, c := range pool {
		for w := 0; w < concurrency; w++ {
			wg.Add(1)
			go func(c *ctadmin.Client) {
				defer wg.Done()
				for {
					if int(atomic.AddInt64(&cursor, 1)) > ops {
						return
					}
					t0 := time.Now()
					_, err := c.Accounts().List(ctx, api.ListOptions{Limit: 20})
					d := time.Since(t0)
					if err != nil {
						atomic.AddInt64(&failures, 1)
					}
					mu.Lock()
					latencies = append(latencies, d)
					mu.Unlock()
				}
			}(c)
		}
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
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
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

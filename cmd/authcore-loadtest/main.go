// Command authcore-loadtest drives concurrent sign-ins through an engine
// backed by Redis (or miniredis) and the in-memory identity store. The
// contention phase hammers one account with wrong passwords and checks
// that the persistent lockout counter never loses an increment.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/identity/memstore"
	"github.com/MrEthical07/authcore/internal/logging"
	"github.com/MrEthical07/authcore/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const loadPassword = "load-test-passphrase"

func main() {
	var (
		users       = flag.Int("users", 1000, "number of users to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "sign-ins in the success phase")
		attempts    = flag.Int("attempts", 200, "wrong-password sign-ins against the contended account")
		lockAt      = flag.Int("lock-at", 50, "failed attempts that trigger the temporary lock")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		logLevel    = flag.String("log-level", "warn", "engine log level")
	)
	flag.Parse()

	if *users <= 0 || *concurrency <= 0 || *ops <= 0 || *attempts <= 0 || *lockAt <= 0 {
		fmt.Fprintln(os.Stderr, "users, concurrency, ops, attempts and lock-at must be > 0")
		os.Exit(2)
	}

	logger, err := logging.New(logging.Config{Level: *logLevel, Format: "console"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	client, cleanup, err := openRedis(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	cfg := authcore.DefaultConfig()
	// Cheap hashing keeps the run bound by the store rather than Argon2.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	store := memstore.New()
	store.SetLockoutTiers([]identity.LockoutTier{
		{ID: "load", AttemptCount: *lockAt, LockDuration: time.Hour},
	})

	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithIdentityStore(store).
		WithLogger(logger).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d users...\n", *users)
	startSeed := time.Now()
	emails, err := seedUsers(store, cfg.Password, *users+1)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	ctx := context.Background()
	victim := emails[len(emails)-1]
	emails = emails[:len(emails)-1]

	successStats := runSuccessPhase(ctx, logger, engine, emails, *ops, *concurrency)
	contention := runContentionPhase(ctx, logger, engine, victim, *attempts, *concurrency)

	fmt.Println("---- results ----")
	printStats("sign-in", successStats)
	printStats("contention", contention.stats)

	if err := contention.check(ctx, engine, store, victim, *lockAt); err != nil {
		fmt.Fprintf(os.Stderr, "lockout check failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("lockout: mismatches=%d banned=%d counter consistent\n", contention.mismatches, contention.banned)
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func seedUsers(store *memstore.Store, pc authcore.PasswordConfig, n int) ([]string, error) {
	verifier, err := password.NewVerifier(password.Config{
		Memory:           pc.Memory,
		Time:             pc.Time,
		Parallelism:      pc.Parallelism,
		SaltLength:       pc.SaltLength,
		KeyLength:        pc.KeyLength,
		MaxPasswordBytes: pc.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}
	// One hash is shared by every seeded account.
	hash, err := verifier.Hash(loadPassword)
	if err != nil {
		return nil, err
	}

	emails := make([]string, n)
	for i := range emails {
		emails[i] = fmt.Sprintf("user-%d@load.test", i)
		u := store.AddUser(identity.User{Email: emails[i], Name: emails[i], Role: identity.RoleUser})
		store.AddCredentialAccount(identity.CredentialAccount{
			UserID:       u.ID,
			Provider:     identity.ProviderPassword,
			PasswordHash: hash,
		})
	}
	return emails, nil
}

func runSuccessPhase(ctx context.Context, logger *zap.Logger, engine *authcore.Engine, emails []string, ops, concurrency int) phaseStats {
	policy := authcore.DefaultPolicy()
	return runPhase(logger, ops, concurrency, func(r *rand.Rand) error {
		email := emails[r.Intn(len(emails))]
		out, err := engine.SignIn(ctx, policy, authcore.PasswordSignIn{Email: email, Password: loadPassword})
		if err != nil {
			return err
		}
		if out.Kind != authcore.OutcomeAuthenticated {
			return fmt.Errorf("unexpected outcome %v", out.Kind)
		}
		return nil
	})
}

type contentionResult struct {
	stats      phaseStats
	mismatches int64
	banned     int64
}

func runContentionPhase(ctx context.Context, logger *zap.Logger, engine *authcore.Engine, victim string, attempts, concurrency int) contentionResult {
	var res contentionResult
	policy := authcore.DefaultPolicy()
	res.stats = runPhase(logger, attempts, concurrency, func(*rand.Rand) error {
		_, err := engine.SignIn(ctx, policy, authcore.PasswordSignIn{Email: victim, Password: "wrong-" + loadPassword})
		var ban *authcore.BanError
		switch {
		case errors.Is(err, authcore.ErrInvalidCredentials):
			atomic.AddInt64(&res.mismatches, 1)
			return nil
		case errors.As(err, &ban):
			atomic.AddInt64(&res.banned, 1)
			return nil
		case err == nil:
			return errors.New("wrong password accepted")
		default:
			return err
		}
	})
	return res
}

// check verifies that every mismatch reached the persistent counter and that
// the lock tier fired exactly once.
func (c contentionResult) check(ctx context.Context, engine *authcore.Engine, store *memstore.Store, victim string, lockAt int) error {
	if c.stats.failures > 0 {
		return fmt.Errorf("%d unexpected errors", c.stats.failures)
	}
	user, err := store.GetUserByEmail(ctx, victim)
	if err != nil {
		return err
	}
	sec, err := store.GetSecurityConfig(ctx, user.ID)
	if err != nil {
		return err
	}
	if int64(sec.FailedAttemptsCount) != c.mismatches {
		return fmt.Errorf("counter %d, mismatches %d", sec.FailedAttemptsCount, c.mismatches)
	}

	locks := engine.MetricsSnapshot().Counters[authcore.MetricAccountLocked]
	switch {
	case c.mismatches >= int64(lockAt) && locks != 1:
		return fmt.Errorf("expected one lock, got %d", locks)
	case c.mismatches < int64(lockAt) && locks != 0:
		return fmt.Errorf("expected no lock below threshold, got %d", locks)
	case c.mismatches >= int64(lockAt) && !sec.IsBanned():
		return errors.New("account not locked after threshold")
	}
	return nil
}

func runPhase(logger *zap.Logger, ops, concurrency int, op func(*rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
					logger.Debug("operation failed", zap.Error(err))
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, atomic.LoadInt64(&failures))
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
		return phaseStats{total: total, failures: failures}
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

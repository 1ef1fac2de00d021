// README: Race checks against a running API plus optional Postgres/Redis environment checks.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"ridehail/internal/infra"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

var (
	pickup  = map[string]any{"lat": 40.0, "lng": -73.0, "address": "bench pickup"}
	dropoff = map[string]any{"lat": 40.05, "lng": -73.0, "address": "bench dropoff"}
)

type Runner struct {
	cfg    Config
	httpc  *http.Client
	db     *pgxpool.Pool
	redis  *redis.Client
	signer *infra.JWTVerifier

	// run scopes uids so repeated runs do not share riders or drivers.
	run     string
	drivers []string
	rideID  string
	winner  string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) (*Runner, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required (-jwt-secret or RIDEHAIL_AUTH_JWT_SECRET)")
	}
	return &Runner{
		cfg:    cfg,
		httpc:  &http.Client{Timeout: 10 * time.Second},
		signer: infra.NewJWTVerifier(cfg.JWTSecret),
		run:    uuid.NewString()[:8],
	}, nil
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		start := time.Now()
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		if res.Latency == 0 {
			res.Latency = time.Since(start)
		}
		results = append(results, res)
		fmt.Printf("%-5s %s (%s)", res.Status, tc.Name, res.Latency.Round(time.Millisecond))
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis presence index", Run: checkRedis},
		{Name: "Migration: apply (optional)", Run: applyMigration},
		{Name: "Migration: tables exist", Run: checkTables},
		{Name: "API: health", Run: checkHealth},
		{Name: "API: unauthenticated request rejected", Run: checkUnauthenticated},
		{Name: "Presence: drivers online near pickup", Run: bringDriversOnline},
		{Name: "Ride: rider requests ride", Run: requestRide},
		{Name: "Race: concurrent assign has one winner", Run: raceAssign},
		{Name: "Race: concurrent accept has one winner", Run: raceAccept},
		{Name: "Consistency: cancel after accept rejected", Run: cancelAfterAccept},
		{Name: "Perf: location heartbeat throughput", Run: perfHeartbeats},
	}
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "dsn not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusSkip, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	n, err := r.redis.ZCard(ctx, "presence:geo").Result()
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("located drivers=%d", n)}
}

func applyMigration(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: statusSkip, Note: "apply-migration=false"}
	}
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	sql, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, s := range splitSQL(string(sql)) {
		if _, err := r.db.Exec(ctx, s); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
	}
	return Result{Status: statusPass}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
			t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: statusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: statusPass, Note: strings.Join(tables, ",")}
}

func checkHealth(ctx context.Context, r *Runner) Result {
	code, _, err := r.call(ctx, http.MethodGet, "/health", "", nil)
	return expect(code, err, http.StatusOK)
}

func checkUnauthenticated(ctx context.Context, r *Runner) Result {
	code, _, err := r.call(ctx, http.MethodGet, "/api/rides/mine", "", nil)
	return expect(code, err, http.StatusUnauthorized)
}

func bringDriversOnline(ctx context.Context, r *Runner) Result {
	r.drivers = r.drivers[:0]
	for i := 0; i < r.cfg.Concurrency; i++ {
		uid := fmt.Sprintf("bench-%s-driver-%d", r.run, i)
		token, err := r.token(uid, "driver")
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		steps := []struct {
			path string
			body any
		}{
			{"/api/drivers/register", map[string]any{"capabilities": []string{"UBERX"}}},
			{"/api/drivers/presence", map[string]any{
				"status":   "ONLINE",
				"location": map[string]any{"lat": 40.0 + float64(i)*0.0005, "lng": -73.0},
			}},
		}
		for _, s := range steps {
			code, body, err := r.call(ctx, http.MethodPost, s.path, token, s.body)
			if res := expect(code, err, http.StatusOK); res.Status != statusPass {
				res.Note += " " + s.path + " " + string(body)
				return res
			}
		}
		r.drivers = append(r.drivers, uid)
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("drivers=%d", len(r.drivers))}
}

func requestRide(ctx context.Context, r *Runner) Result {
	token, err := r.token(r.rider(), "rider")
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	code, body, err := r.call(ctx, http.MethodPost, "/api/rides", token, map[string]any{
		"rideType": "UBERX",
		"pickup":   pickup,
		"dropoff":  dropoff,
	})
	if res := expect(code, err, http.StatusCreated); res.Status != statusPass {
		return res
	}
	var ride struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &ride); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if ride.Status != "REQUESTED" {
		return Result{Status: statusFail, Note: "status=" + ride.Status}
	}
	r.rideID = ride.ID
	return Result{Status: statusPass, Note: "ride=" + ride.ID}
}

// raceAssign fires concurrent assign calls at one ride; exactly one may win
// and every loser must see 409.
func raceAssign(ctx context.Context, r *Runner) Result {
	if r.rideID == "" {
		return Result{Status: statusSkip, Note: "no ride"}
	}
	token, err := r.token(r.rider(), "rider")
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}

	var mu sync.Mutex
	codes := map[int]int{}
	winner := ""
	race(r.cfg.Concurrency, func(int) {
		code, body, err := r.call(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/assign", token, nil)
		if err != nil {
			code = -1
		}
		mu.Lock()
		defer mu.Unlock()
		codes[code]++
		if code == http.StatusOK {
			var out struct {
				AssignedDriverID string `json:"assignedDriverId"`
			}
			_ = json.Unmarshal(body, &out)
			winner = out.AssignedDriverID
		}
	})

	note := fmt.Sprintf("codes=%v", codes)
	if codes[http.StatusOK] != 1 || codes[http.StatusConflict] != r.cfg.Concurrency-1 {
		return Result{Status: statusFail, Note: note}
	}
	r.winner = winner
	return Result{Status: statusPass, Note: note + " driver=" + winner}
}

// raceAccept has every bench driver, and the assigned driver several times
// over, accept the same ride at once.
func raceAccept(ctx context.Context, r *Runner) Result {
	if r.winner == "" {
		return Result{Status: statusSkip, Note: "no assignment"}
	}
	callers := append([]string{}, r.drivers...)
	for i := 0; i < 3; i++ {
		callers = append(callers, r.winner)
	}
	tokens := make([]string, len(callers))
	for i, uid := range callers {
		t, err := r.token(uid, "driver")
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		tokens[i] = t
	}

	var ok, conflict, other atomic.Int64
	race(len(tokens), func(i int) {
		code, _, err := r.call(ctx, http.MethodPost, "/api/drivers/rides/"+r.rideID+"/accept", tokens[i], nil)
		switch {
		case err != nil:
			other.Add(1)
		case code == http.StatusOK:
			ok.Add(1)
		case code == http.StatusConflict:
			conflict.Add(1)
		default:
			other.Add(1)
		}
	})

	note := fmt.Sprintf("accepted=%d conflict=%d other=%d", ok.Load(), conflict.Load(), other.Load())
	if ok.Load() != 1 || other.Load() != 0 {
		return Result{Status: statusFail, Note: note}
	}
	return Result{Status: statusPass, Note: note}
}

func cancelAfterAccept(ctx context.Context, r *Runner) Result {
	if r.rideID == "" || r.winner == "" {
		return Result{Status: statusSkip, Note: "no accepted ride"}
	}
	token, err := r.token(r.rider(), "rider")
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	code, _, err := r.call(ctx, http.MethodPost, "/api/rides/"+r.rideID+"/cancel", token, nil)
	return expect(code, err, http.StatusConflict)
}

func perfHeartbeats(ctx context.Context, r *Runner) Result {
	if len(r.drivers) == 0 {
		return Result{Status: statusSkip, Note: "no drivers"}
	}
	tokens := make([]string, len(r.drivers))
	for i, uid := range r.drivers {
		t, err := r.token(uid, "driver")
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		tokens[i] = t
	}

	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	race(len(tokens), func(i int) {
		for time.Now().Before(end) && ctx.Err() == nil {
			code, _, err := r.call(ctx, http.MethodPost, "/api/drivers/location", tokens[i], map[string]any{
				"lat": 40.0 + float64(i)*0.0005,
				"lng": -73.0,
			})
			if err != nil || code != http.StatusOK {
				errCount.Add(1)
				continue
			}
			count.Add(1)
		}
	})

	if count.Load() == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Latency: r.cfg.Duration, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

func (r *Runner) rider() string {
	return "bench-" + r.run + "-rider"
}

func (r *Runner) token(uid, role string) (string, error) {
	return r.signer.Issue(uid, role, 10*time.Minute)
}

func (r *Runner) call(ctx context.Context, method, path, token string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	return resp.StatusCode, out, err
}

// race starts n callers behind a shared gate and waits for all of them.
func race(n int, fn func(i int)) {
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			fn(i)
		}(i)
	}
	close(start)
	wg.Wait()
}

func expect(code int, err error, want int) Result {
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if code != want {
		return Result{Status: statusFail, Note: fmt.Sprintf("status=%d want=%d", code, want)}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("status=%d", code)}
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

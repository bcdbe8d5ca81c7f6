package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/caredesk/provider-scheduling/internal/config"
	"github.com/caredesk/provider-scheduling/internal/db"
)

// simulate fires a concurrent booking storm at the API and verifies
// afterwards that the ledger holds no overlapping active appointments.
// Workers deliberately crowd onto the first free slot of each provider
// so reservations contend.

type SimConfig struct {
	APIBaseURL  string
	Duration    time.Duration
	Workers     int
	SlotMinutes int
	PostgresDSN string
}

type DataPool struct {
	Providers []uuid.UUID
	Subjects  []uuid.UUID
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[len(latencies)*50/100]

	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]

	return avg, min, max, p50, p95
}

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "simulate").Logger()

	appCfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	simCfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_URL", "http://localhost:"+appCfg.HTTPPort),
		Duration:    getDurationEnv("SIM_DURATION", 30*time.Second),
		Workers:     getIntEnv("SIM_WORKERS", 20),
		SlotMinutes: getIntEnv("SIM_SLOT_MINUTES", 30),
		PostgresDSN: appCfg.PostgresDSN,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.ConnectPostgres(ctx, simCfg.PostgresDSN)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	data, err := loadDataPool(context.Background(), pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().
		Int("providers", len(data.Providers)).
		Int("subjects", len(data.Subjects)).
		Int("workers", simCfg.Workers).
		Dur("duration", simCfg.Duration).
		Msg("simulation starting")

	metrics := &OperationMetrics{}
	client := &http.Client{Timeout: 10 * time.Second}
	deadline := time.Now().Add(simCfg.Duration)
	targetDay := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")

	var wg sync.WaitGroup
	for w := 0; w < simCfg.Workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for time.Now().Before(deadline) {
				bookOnce(client, simCfg, data, rng, targetDay, metrics)
			}
		}(int64(w) + time.Now().UnixNano())
	}
	wg.Wait()

	avg, min, max, p50, p95 := metrics.Stats()
	fmt.Printf("bookings: total=%d success=%d conflict=%d error=%d\n",
		metrics.Total, metrics.Success, metrics.Conflict, metrics.Error)
	fmt.Printf("latency: avg=%s min=%s max=%s p50=%s p95=%s\n", avg, min, max, p50, p95)

	overlapping, err := countOverlaps(context.Background(), pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("verify ledger")
	}
	if overlapping > 0 {
		logger.Fatal().Int("pairs", overlapping).Msg("LEDGER VIOLATION: overlapping active appointments found")
	}
	logger.Info().Msg("ledger verified: no overlapping active appointments")
}

type slotsPayload struct {
	Slots []struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"slots"`
}

func bookOnce(client *http.Client, cfg SimConfig, data *DataPool, rng *rand.Rand, day string, metrics *OperationMetrics) {
	provider := data.Providers[rng.Intn(len(data.Providers))]
	subject := data.Subjects[rng.Intn(len(data.Subjects))]

	url := fmt.Sprintf("%s/providers/%s/slots?date=%s&duration=%d",
		cfg.APIBaseURL, provider, day, cfg.SlotMinutes)
	resp, err := client.Get(url)
	if err != nil {
		metrics.Record(0, false, false)
		return
	}
	var slots slotsPayload
	err = json.NewDecoder(resp.Body).Decode(&slots)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if err != nil || len(slots.Slots) == 0 {
		return
	}

	// Crowd onto the earliest slots to force contention.
	idx := 0
	if len(slots.Slots) > 1 && rng.Intn(4) == 0 {
		idx = rng.Intn(len(slots.Slots))
	}
	pick := slots.Slots[idx]

	body, _ := json.Marshal(map[string]any{
		"provider_id": provider.String(),
		"subject_id":  subject.String(),
		"date":        day,
		"start":       pick.Start,
		"end":         pick.End,
		"type":        "consultation",
	})

	start := time.Now()
	resp, err = client.Post(cfg.APIBaseURL+"/appointments", "application/json", bytes.NewReader(body))
	latency := time.Since(start)
	if err != nil {
		metrics.Record(latency, false, false)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		metrics.Record(latency, true, false)
	case http.StatusConflict:
		metrics.Record(latency, false, true)
	default:
		metrics.Record(latency, false, false)
	}
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool) (*DataPool, error) {
	data := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM providers LIMIT 20`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		data.Providers = append(data.Providers, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = pool.Query(ctx, `SELECT id FROM subjects LIMIT 500`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		data.Subjects = append(data.Subjects, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(data.Providers) == 0 || len(data.Subjects) == 0 {
		return nil, fmt.Errorf("no providers or subjects seeded; run cmd/seed first")
	}
	return data, nil
}

// countOverlaps is the simulation's ground truth: pairs of
// non-cancelled appointments sharing a provider timeline and
// intersecting intervals.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.provider_id = b.provider_id
		 AND a.day = b.day
		 AND a.id < b.id
		 AND a.status <> 'cancelled'
		 AND b.status <> 'cancelled'
		 AND a.start_min < b.end_min
		 AND b.start_min < a.end_min
	`).Scan(&n)
	return n, err
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

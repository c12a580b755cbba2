package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/clinic-slot-booking/internal/api"
	"github.com/hackgods/clinic-slot-booking/internal/appointment"
	"github.com/hackgods/clinic-slot-booking/internal/config"
	"github.com/hackgods/clinic-slot-booking/internal/db"
	"github.com/hackgods/clinic-slot-booking/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	RaceWorkers  int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	PatientLimit int
	SlotLimit    int
	PostgresDSN  string
	JWTSecret    string
}

type slotRef struct {
	ID       uuid.UUID
	DoctorID uuid.UUID
}

type booked struct {
	ID      uuid.UUID
	Patient uuid.UUID
}

type DataPool struct {
	Patients     []uuid.UUID
	Slots        []slotRef
	mu           sync.Mutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

// TakeAppointment removes and returns a random appointment so two workers
// rarely cancel the same one.
func (dp *DataPool) TakeAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	idx := rng.Intn(len(dp.appointments))
	b := dp.appointments[idx]
	dp.appointments[idx] = dp.appointments[len(dp.appointments)-1]
	dp.appointments = dp.appointments[:len(dp.appointments)-1]
	return b, true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0
	}

	latencies := append([]time.Duration(nil), om.Latencies...)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	pick := func(pct int) time.Duration {
		idx := len(latencies) * pct / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}

	return sum / time.Duration(len(latencies)), pick(50), pick(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Race      OperationMetrics
	Booking   OperationMetrics
	Cancel    OperationMetrics
	Upcoming  OperationMetrics
	OpenSlots OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	auth    *api.Authenticator
	log     zerolog.Logger
	metrics Metrics

	tokensMu sync.Mutex
	tokens   map[uuid.UUID]string
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		logging.Startup(os.Stderr).Fatal().Err(err).Msg("config load error")
	}
	log := logging.New(baseCfg.Env, baseCfg.LogLevel, os.Stdout).With().Str("service", "simulate").Logger()

	cfg := loadConfig(baseCfg)
	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Int("race_workers", cfg.RaceWorkers).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2, ApplicationName: "simulate"})
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("load data pool")
	}
	log.Info().Int("patients", len(dataPool.Patients)).Int("slots", len(dataPool.Slots)).Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		auth:   api.NewAuthenticator(cfg.JWTSecret),
		log:    log,
		tokens: make(map[uuid.UUID]string),
	}

	winners := sim.Race(context.Background())
	sim.Run()
	sim.PrintReport(winners)

	if winners != 1 {
		os.Exit(1)
	}
}

func loadConfig(base config.Config) SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		RaceWorkers:  getInt("SIM_RACE_WORKERS", 50),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 4000),
		SlotLimit:    getInt("SIM_SLOT_LIMIT", 2400),
		PostgresDSN:  base.PostgresDSN,
		JWTSecret:    base.JWTSecret,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required to mint requester tokens")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.RaceWorkers < 2 {
		return fmt.Errorf("SIM_RACE_WORKERS must be >= 2")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()

	rows, err = pool.Query(ctx, `
		SELECT id, doctor_id FROM time_slots
		WHERE is_available AND schedule_date >= current_date
		LIMIT $1
	`, cfg.SlotLimit)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	for rows.Next() {
		var s slotRef
		if err := rows.Scan(&s.ID, &s.DoctorID); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Slots = append(dataPool.Slots, s)
	}
	rows.Close()

	if len(dataPool.Patients) < cfg.RaceWorkers {
		return nil, fmt.Errorf("need at least %d patients, have %d", cfg.RaceWorkers, len(dataPool.Patients))
	}
	if len(dataPool.Slots) < 2 {
		return nil, fmt.Errorf("need at least 2 open slots, have %d", len(dataPool.Slots))
	}

	return dataPool, nil
}

func (s *Simulator) token(patientID uuid.UUID) string {
	s.tokensMu.Lock()
	defer s.tokensMu.Unlock()

	if tok, ok := s.tokens[patientID]; ok {
		return tok
	}
	tok, err := s.auth.NewToken(appointment.Requester{ID: patientID, Role: appointment.RolePatient}, 2*time.Hour)
	if err != nil {
		s.log.Fatal().Err(err).Msg("mint token")
	}
	s.tokens[patientID] = tok
	return tok
}

// Race fires RaceWorkers distinct patients at one slot at the same moment and
// returns how many of them got it.
func (s *Simulator) Race(ctx context.Context) int {
	target := s.pool.Slots[0]
	s.pool.Slots = s.pool.Slots[1:]
	s.log.Info().Str("slot_id", target.ID.String()).Int("contenders", s.config.RaceWorkers).Msg("racing one slot")

	start := make(chan struct{})
	var winners atomic.Int32

	var g errgroup.Group
	for i := 0; i < s.config.RaceWorkers; i++ {
		patient := s.pool.Patients[i]
		tok := s.token(patient)
		g.Go(func() error {
			<-start
			status, id := s.book(ctx, tok, target.ID, &s.metrics.Race)
			if status == http.StatusCreated {
				winners.Add(1)
				s.pool.AddAppointment(booked{ID: id, Patient: patient})
			}
			return nil
		})
	}
	close(start)
	_ = g.Wait()

	return int(winners.Load())
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting mixed load")

	var g errgroup.Group
	for i := 0; i < s.config.Workers; i++ {
		workerID := i
		g.Go(func() error {
			s.worker(ctx, workerID)
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		case rng.Intn(2) == 0:
			s.doUpcoming(ctx, rng)
		default:
			s.doOpenSlots(ctx, rng)
		}
	}
}

func (s *Simulator) book(ctx context.Context, tok string, slotID uuid.UUID, om *OperationMetrics) (int, uuid.UUID) {
	body, _ := json.Marshal(api.BookRequest{SlotID: slotID.String()})

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			om.Record(latency, 0)
		}
		return 0, uuid.Nil
	}
	defer resp.Body.Close()
	om.Record(latency, resp.StatusCode)

	var created api.AppointmentResponse
	if resp.StatusCode == http.StatusCreated {
		_ = json.NewDecoder(resp.Body).Decode(&created)
	}
	return resp.StatusCode, created.AppointmentID
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	status, id := s.book(ctx, s.token(patient), slot.ID, &s.metrics.Booking)
	if status == http.StatusCreated && id != uuid.Nil {
		s.pool.AddAppointment(booked{ID: id, Patient: patient})
	}
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	b, ok := s.pool.TakeAppointment(rng)
	if !ok {
		return
	}
	s.get(ctx, http.MethodPost, fmt.Sprintf("/appointments/%s/cancel", b.ID), s.token(b.Patient), &s.metrics.Cancel)
}

func (s *Simulator) doUpcoming(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	s.get(ctx, http.MethodGet, fmt.Sprintf("/patients/%s/appointments/upcoming", patient), s.token(patient), &s.metrics.Upcoming)
}

func (s *Simulator) doOpenSlots(ctx context.Context, rng *rand.Rand) {
	slot := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	s.get(ctx, http.MethodGet, fmt.Sprintf("/doctors/%s/slots", slot.DoctorID), s.token(patient), &s.metrics.OpenSlots)
}

func (s *Simulator) get(ctx context.Context, method, path, tok string, om *OperationMetrics) {
	req, _ := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, nil)
	req.Header.Set("Authorization", "Bearer "+tok)

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			om.Record(latency, 0)
		}
		return
	}
	resp.Body.Close()
	om.Record(latency, resp.StatusCode)
}

func (s *Simulator) PrintReport(raceWinners int) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	verdict := "OK"
	if raceWinners != 1 {
		verdict = "FAILED"
	}
	fmt.Printf("Single slot race: %d contenders, %d winner(s) [%s]\n\n", s.config.RaceWorkers, raceWinners, verdict)

	printOperationReport("Race", &s.metrics.Race)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Upcoming", &s.metrics.Upcoming)
	printOperationReport("Open slots", &s.metrics.OpenSlots)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	mongoadapter "github.com/bookgrid/availability-engine/internal/adapters/mongo"
	"github.com/bookgrid/availability-engine/internal/adapters/pg"
	redisadapter "github.com/bookgrid/availability-engine/internal/adapters/redis"
	"github.com/bookgrid/availability-engine/internal/config"
	"github.com/bookgrid/availability-engine/internal/domain"
	httphandler "github.com/bookgrid/availability-engine/internal/http"
	"github.com/bookgrid/availability-engine/internal/idempotency"
	"github.com/bookgrid/availability-engine/internal/observability"
	"github.com/bookgrid/availability-engine/internal/rateLimit"
	"github.com/bookgrid/availability-engine/internal/scheduling"
)

func TestIntegration_HoldConfirmCancel(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "avail",
				"POSTGRES_PASSWORD": "avail",
				"POSTGRES_DB":       "avail",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer pgContainer.Terminate(ctx)

	mongoContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForExec([]string{"mongosh", "--eval", "db.runCommand('ping').ok"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer mongoContainer.Terminate(ctx)

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer redisContainer.Terminate(ctx)

	pgHost, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatal(err)
	}
	mongoHost, err := mongoContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	mongoPort, err := mongoContainer.MappedPort(ctx, "27017")
	if err != nil {
		t.Fatal(err)
	}
	redisHost, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	redisPort, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		PostgresDSN: "postgres://avail:avail@" + pgHost + ":" + pgPort.Port() + "/avail?sslmode=disable",
		MongoURI:    "mongodb://" + mongoHost + ":" + mongoPort.Port(),
		RedisAddr:   redisHost + ":" + redisPort.Port(),
		HoldTTL:     5 * time.Minute,
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool); err != nil {
		t.Fatal(err)
	}
	repo := pg.NewRepository(pool)

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		t.Fatal(err)
	}
	defer mongoClient.Disconnect(ctx)
	mongoDB := mongoClient.Database("availability")
	logger := observability.NewLogger()
	catalog := mongoadapter.NewPropertyCatalog(mongoDB, logger)
	audit := mongoadapter.NewAuditLogger(mongoDB, logger)

	rdb := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cache := redisadapter.NewCache(rdb)
	cachedCatalog := redisadapter.NewCachedCatalog(catalog, cache, 5*time.Minute)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(rdb), time.Hour)
	rl := rateLimit.NewRateLimiter(cache)

	clock := scheduling.SystemClock()
	holds := scheduling.NewHoldManager(repo, cachedCatalog, clock, cfg.HoldTTL, logger)
	checker := scheduling.NewChecker(repo, cachedCatalog, clock, cfg.HoldTTL, logger)
	finder := scheduling.NewFinder(checker)
	sweeper := scheduling.NewSweeper(repo, cfg.HoldTTL, clock, logger)

	handlers := httphandler.NewHandlers(cfg, repo, holds, checker, finder, sweeper, cache, idemp, audit)
	srv := httptest.NewServer(httphandler.SetupRouter(handlers, logger, rl, idemp))
	defer srv.Close()

	resourceID := uuid.New()
	holderID := uuid.New()
	bookingRef := uuid.New()

	err = catalog.UpsertProperty(ctx, domain.Property{
		ID:           resourceID,
		Timezone:     "UTC",
		CheckInTime:  "15:00",
		CheckOutTime: "11:00",
		BufferHours:  2,
	})
	if err != nil {
		t.Fatal(err)
	}

	post := func(path string, body map[string]interface{}, idempotencyKey string) *http.Response {
		t.Helper()
		data, _ := json.Marshal(body)
		req, _ := http.NewRequest("POST", srv.URL+path, bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
		if idempotencyKey != "" {
			req.Header.Set("Idempotency-Key", idempotencyKey)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		return resp
	}

	// open the calendar
	resp := post("/v1/availability/days", map[string]interface{}{
		"resource_id": resourceID.String(),
		"dates":       []string{"2026-09-10", "2026-09-11", "2026-09-12"},
		"status":      "available",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upsert days: status %d", resp.StatusCode)
	}

	// acquire a hold on two nights
	holdKey := uuid.New().String()
	resp = post("/v1/holds", map[string]interface{}{
		"resource_id": resourceID.String(),
		"dates":       []string{"2026-09-10", "2026-09-11"},
		"holder_id":   holderID.String(),
	}, holdKey)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("acquire hold: status %d", resp.StatusCode)
	}

	// replaying the same idempotency key must not double-acquire
	resp = post("/v1/holds", map[string]interface{}{
		"resource_id": resourceID.String(),
		"dates":       []string{"2026-09-10", "2026-09-11"},
		"holder_id":   holderID.String(),
	}, holdKey)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("idempotent replay: status %d", resp.StatusCode)
	}

	// a rival cannot hold the same nights
	resp = post("/v1/holds", map[string]interface{}{
		"resource_id": resourceID.String(),
		"dates":       []string{"2026-09-11"},
		"holder_id":   uuid.New().String(),
	}, uuid.New().String())
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("rival hold: status %d, want 409", resp.StatusCode)
	}

	// the slot checker sees the hold as a conflict for anonymous callers
	resp, err = http.Get(srv.URL + "/v1/availability/check?resource_id=" + resourceID.String() +
		"&start=2026-09-10T15:00:00Z&end=2026-09-11T11:00:00Z")
	if err != nil {
		t.Fatal(err)
	}
	var check struct {
		Available bool `json:"available"`
	}
	json.NewDecoder(resp.Body).Decode(&check)
	if check.Available {
		t.Fatal("held nights must not check as available")
	}

	// confirm into a booking
	resp = post("/v1/holds/confirm", map[string]interface{}{
		"resource_id": resourceID.String(),
		"dates":       []string{"2026-09-10", "2026-09-11"},
		"holder_id":   holderID.String(),
		"booking_ref": bookingRef.String(),
	}, uuid.New().String())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirm hold: status %d", resp.StatusCode)
	}

	// the timeline now carries the reservation and maintenance pairs
	resp, err = http.Get(srv.URL + "/v1/availability/timeline?resource_id=" + resourceID.String() +
		"&from=2026-09-01T00:00:00Z&to=2026-10-01T00:00:00Z")
	if err != nil {
		t.Fatal(err)
	}
	var timeline struct {
		Events []struct {
			Type string `json:"type"`
		} `json:"events"`
	}
	json.NewDecoder(resp.Body).Decode(&timeline)
	if len(timeline.Events) != 4 {
		t.Fatalf("timeline has %d events, want 4", len(timeline.Events))
	}

	// the outbox got exactly one booked record for the publisher
	records, err := repo.GetUnpublishedOutbox(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].EventType != "availability.booked" {
		t.Fatalf("outbox = %+v, want one availability.booked record", records)
	}

	// cancel voids the booking, its events and the buffer
	resp = post("/v1/bookings/cancel", map[string]interface{}{
		"resource_id": resourceID.String(),
		"booking_ref": bookingRef.String(),
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel: status %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/v1/availability/check?resource_id=" + resourceID.String() +
		"&start=2026-09-10T15:00:00Z&end=2026-09-11T11:00:00Z")
	if err != nil {
		t.Fatal(err)
	}
	json.NewDecoder(resp.Body).Decode(&check)
	if !check.Available {
		t.Fatal("cancelled nights must check as available again")
	}

	// next-slot finder agrees with the checker
	resp, err = http.Get(srv.URL + "/v1/availability/next?resource_id=" + resourceID.String() +
		"&from=2026-09-10T00:00:00Z&duration_hours=12&horizon_days=5")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("find next: status %d", resp.StatusCode)
	}
}

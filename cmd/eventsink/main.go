// cmd/eventsink/main.go is an asynchronous sink service that pops room event
// records from the Redis queue and persists them to a PostgreSQL database for
// offline analytics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"

	"github.com/whostune/server/internal/cache"
	"github.com/whostune/server/internal/database"
)

// SinkService encapsulates the Redis + DB logic for capturing room events.
// Records are accumulated into a batch and flushed in a single transaction.
type SinkService struct {
	redisClient *redis.Client
	batchSize   int
	flushDelay  time.Duration

	batchMu  sync.Mutex
	batch    []cache.RoomEventRecord
	ctx      context.Context
	cancelFn context.CancelFunc
}

// NewSinkService constructs a SinkService instance from environment variables or defaults.
func NewSinkService() *SinkService {
	batchSize := getEnvInt("EVENT_SINK_BATCH_SIZE", 20)
	flushMs := getEnvInt("EVENT_SINK_FLUSH_MS", 500)

	redisAddr := getEnv("REDIS_ADDR", "localhost:6379")
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	return &SinkService{
		redisClient: rdb,
		batchSize:   batchSize,
		flushDelay:  time.Duration(flushMs) * time.Millisecond,
		batch:       make([]cache.RoomEventRecord, 0, batchSize),
		ctx:         ctx,
		cancelFn:    cancel,
	}
}

// Run connects to the database and starts the queue-draining loop.
func (s *SinkService) Run() {
	if err := database.Connect(s.ctx); err != nil {
		log.Fatalf("eventsink requires a database: %v", err)
	}
	if !database.Connected() {
		log.Fatal("eventsink requires DATABASE_URL to be set")
	}

	go s.readRedisLoop()

	log.Println("whostune-eventsink service started.")
	<-s.ctx.Done()
	log.Println("whostune-eventsink shutting down.")
}

// readRedisLoop continuously uses BLPop to retrieve records from the Redis queue.
func (s *SinkService) readRedisLoop() {
	ticker := time.NewTicker(s.flushDelay)
	defer ticker.Stop()

	queueName := getEnv("EVENT_QUEUE_NAME", cache.DefaultQueueName)

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-ticker.C:
			s.flushBatchToDB()

		default:
			// BLPop with a 3-second timeout so context cancellation is handled.
			res, err := s.redisClient.BLPop(s.ctx, 3*time.Second, queueName).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				log.Printf("[ERROR] BLPop: %v\n", err)
				continue
			}
			if len(res) < 2 {
				// No message popped.
				continue
			}

			// res[0] is the queue name and res[1] the payload.
			var record cache.RoomEventRecord
			if err := json.Unmarshal([]byte(res[1]), &record); err != nil {
				log.Printf("invalid room event record: %v\n", err)
				continue
			}
			s.appendToBatch(record)
		}
	}
}

// appendToBatch adds a record to the in-memory batch and flushes if the threshold is reached.
func (s *SinkService) appendToBatch(record cache.RoomEventRecord) {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()

	s.batch = append(s.batch, record)
	if len(s.batch) >= s.batchSize {
		s.flushBatchToDBUnsafe()
	}
}

// flushBatchToDB flushes the current batch to the database in a single transaction.
func (s *SinkService) flushBatchToDB() {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	s.flushBatchToDBUnsafe()
}

func (s *SinkService) flushBatchToDBUnsafe() {
	if len(s.batch) == 0 {
		return
	}
	batchCopy := make([]cache.RoomEventRecord, len(s.batch))
	copy(batchCopy, s.batch)
	s.batch = s.batch[:0]

	ctx := context.Background()
	err := beginTxFunc(ctx, database.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range batchCopy {
			if err := insertRoomEventTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertRoomEventTx: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[ERROR] flushBatchToDB: %v\n", err)
	} else {
		log.Printf("Flushed %d room events to DB.\n", len(batchCopy))
	}
}

// insertRoomEventTx inserts a single room event into the room_events table.
//
// Schema:
//
//	CREATE TABLE IF NOT EXISTS room_events (
//	    id BIGSERIAL PRIMARY KEY,
//	    room_code TEXT NOT NULL,
//	    event_type TEXT NOT NULL,
//	    payload JSONB,
//	    occurred_at TIMESTAMPTZ NOT NULL
//	);
func insertRoomEventTx(ctx context.Context, tx pgx.Tx, rec cache.RoomEventRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return err
	}
	q := `
		INSERT INTO room_events (room_code, event_type, payload, occurred_at)
		VALUES ($1, $2, $3, to_timestamp($4))
	`
	_, err = tx.Exec(ctx, q, rec.RoomCode, rec.EventType, payload, rec.Timestamp)
	return err
}

// beginTxFunc starts a transaction using the provided pool, calls f with the
// transaction, and commits or rollbacks as needed.
func beginTxFunc(ctx context.Context, pool *pgxpool.Pool, txOptions pgx.TxOptions, f func(tx pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, txOptions)
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx rollback error: %v; original error: %w", rbErr, err)
		}
		return err
	}
	return tx.Commit(ctx)
}

// Stop gracefully stops the sink service.
func (s *SinkService) Stop() {
	s.cancelFn()
}

func main() {
	s := NewSinkService()
	go s.Run()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	s.Stop()
	log.Println("Eventsink shutdown complete.")
}

// getEnv retrieves an environment variable's value or returns a default.
func getEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

// getEnvInt retrieves an integer value from an environment variable or returns a default value.
func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}

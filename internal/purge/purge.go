// Package purge retires completed negotiations. The engine enqueues a
// purge task when a handoff is confirmed; after the retention window the
// worker removes the negotiation record and its message log.
package purge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sudo-init-do/sharefood/internal/fault"
)

const TaskNegotiationPurge = "negotiation:purge"

type negotiationPurgePayload struct {
	NegotiationID string `json:"negotiation_id"`
}

// NegotiationPurger removes a negotiation record.
type NegotiationPurger interface {
	Purge(ctx context.Context, negotiationID string) error
}

// MessagePurger removes a negotiation's message log.
type MessagePurger interface {
	Purge(ctx context.Context, negotiationID string) error
}

var (
	client    *asynq.Client
	server    *asynq.Server
	retention time.Duration
)

// Init starts the Asynq server and initializes a shared client.
func Init(redisAddr string, keep time.Duration, negs NegotiationPurger, msgs MessagePurger) {
	retention = keep

	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client = asynq.NewClient(opts)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskNegotiationPurge, func(ctx context.Context, t *asynq.Task) error {
		var p negotiationPurgePayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return err
		}
		if err := msgs.Purge(ctx, p.NegotiationID); err != nil && !errors.Is(err, fault.ErrNotFound) {
			return err
		}
		if err := negs.Purge(ctx, p.NegotiationID); err != nil && !errors.Is(err, fault.ErrNotFound) {
			return err
		}
		log.Printf("purged negotiation %s", p.NegotiationID)
		return nil
	})

	server = asynq.NewServer(opts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			"maintenance": 5,
		},
	})
	go func() {
		if err := server.Run(mux); err != nil {
			log.Printf("Asynq server stopped: %v", err)
		}
	}()

	log.Printf("purge worker initialized (addr=%s, retention=%s)", redisAddr, keep)
}

// Close releases the client and stops the server.
func Close() {
	if client != nil {
		_ = client.Close()
	}
	if server != nil {
		server.Shutdown()
	}
}

// Enqueue schedules a purge after the retention window.
func Enqueue(negotiationID string) error {
	if client == nil {
		return fmt.Errorf("purge queue not initialized")
	}
	payload, err := json.Marshal(negotiationPurgePayload{NegotiationID: negotiationID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskNegotiationPurge, payload)
	_, err = client.Enqueue(task, asynq.Queue("maintenance"), asynq.ProcessIn(retention))
	return err
}

// Scheduler satisfies the negotiation engine's purge hook.
type Scheduler struct{}

func (Scheduler) SchedulePurge(negotiationID string) error {
	return Enqueue(negotiationID)
}

// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartSweeps runs the periodic maintenance jobs: SLA escalation for overdue
// review items and failing-out stale webhook events so partner redelivery
// can reprocess them.
func StartSweeps(queue *QueueService, webhooks *WebhookService) {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	// Every 15 minutes: escalate review items past their SLA deadline.
	_, _ = sched.NewJob(
		gocron.DurationJob(15*time.Minute),
		gocron.NewTask(func() {
			count, err := queue.EscalateOverdue()
			if err != nil {
				log.Printf("[Sweep] SLA escalation error: %v", err)
				return
			}
			if count > 0 {
				log.Printf("⏫ Escalated %d overdue review items", count)
			}
		}),
	)

	// Every hour: mark webhook events stuck in "received" as failed.
	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			count, err := webhooks.FailStaleEvents(1 * time.Hour)
			if err != nil {
				log.Printf("[Sweep] Stale event sweep error: %v", err)
				return
			}
			if count > 0 {
				log.Printf("🧹 Failed out %d stale webhook events", count)
			}
		}),
	)
}

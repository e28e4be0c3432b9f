package events

import (
	"context"
	"log"
	"sync"
	"time"

	"hubcore/store"
)

const drainBatchSize = 100

// Publisher is the broker side of the drainer.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

// Drainer moves pending outbox rows to the publisher on a fixed interval.
// A failed publish bumps the row's retry counter and leaves it pending
// for the next pass.
type Drainer struct {
	db        *store.DB
	publisher Publisher
	interval  time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func NewDrainer(db *store.DB, publisher Publisher, interval time.Duration) *Drainer {
	return &Drainer{
		db:        db,
		publisher: publisher,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

func (d *Drainer) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.DrainOnce()
			case <-d.stopCh:
				return
			}
		}
	}()
}

func (d *Drainer) Stop() {
	close(d.stopCh)
	d.wg.Wait()
}

func (d *Drainer) DrainOnce() {
	msgs, err := d.db.ListPendingOutbox(drainBatchSize)
	if err != nil {
		log.Printf("outbox: list pending: %v", err)
		return
	}
	if len(msgs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sent := 0
	for _, msg := range msgs {
		if err := d.publisher.Publish(ctx, msg.ClientID, msg.Payload); err != nil {
			log.Printf("outbox: publish %d (%s): %v", msg.ID, msg.MsgType, err)
			if err := d.db.IncrementOutboxRetries(msg.ID); err != nil {
				log.Printf("outbox: bump retries %d: %v", msg.ID, err)
			}
			continue
		}
		if err := d.db.AckOutbox(msg.ID); err != nil {
			log.Printf("outbox: ack %d: %v", msg.ID, err)
			continue
		}
		sent++
	}
	if sent > 0 {
		log.Printf("outbox: published %d event(s)", sent)
	}
}

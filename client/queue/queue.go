// Package queue is the device-local durable list of tip intents created while
// the network is unreachable. The whole list lives in one JSON file rewritten
// on every change, so a killed process picks up exactly where it stopped.
package queue

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mr-tron/base58"
)

type Status string

const (
	StatusQueued          Status = "queued"
	StatusSyncing         Status = "syncing"
	StatusFailedRetryable Status = "failed_retryable"
	StatusFailedPermanent Status = "failed_permanent"
)

var ErrNotFound = errors.New("intent not found")

// TipIntent is a tip the user confirmed while offline. ID doubles as the
// idempotency key sent to the server, so replaying an interrupted sync pass
// cannot double-charge.
type TipIntent struct {
	ID           string    `json:"id"`
	WorkerID     string    `json:"worker_id"`
	Amount       int64     `json:"amount"`
	PayerContact string    `json:"payer_contact"`
	CreatedAt    time.Time `json:"created_at"`

	Status      Status    `json:"status"`
	Attempts    int       `json:"attempts"`
	NextRetryAt time.Time `json:"next_retry_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

type Queue struct {
	path    string
	mu      sync.Mutex
	intents []TipIntent
}

// Open loads the queue file, creating an empty queue if it does not exist yet.
func Open(path string) (*Queue, error) {
	q := &Queue{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return q, nil
		}
		return nil, fmt.Errorf("failed to read queue file: %w", err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &q.intents); err != nil {
			return nil, fmt.Errorf("queue file is corrupt: %w", err)
		}
	}

	// A crash mid-submission leaves intents stuck in syncing. The id doubles
	// as the idempotency key, so putting them back in line is safe.
	recovered := false
	for i := range q.intents {
		if q.intents[i].Status == StatusSyncing {
			q.intents[i].Status = StatusQueued
			recovered = true
		}
	}
	if recovered {
		if err := q.persist(); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// newID makes a short locally-unique id, friendly enough to read out to
// support over the phone.
func newID() string {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("t%d", time.Now().UnixNano())
	}
	return base58.Encode(buf)
}

// Enqueue stores a new intent with status queued and returns its id. The
// intent is on disk before Enqueue returns.
func (q *Queue) Enqueue(workerID string, amount int64, payerContact string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	intent := TipIntent{
		ID:           newID(),
		WorkerID:     workerID,
		Amount:       amount,
		PayerContact: payerContact,
		CreatedAt:    time.Now(),
		Status:       StatusQueued,
	}
	q.intents = append(q.intents, intent)

	if err := q.persist(); err != nil {
		q.intents = q.intents[:len(q.intents)-1]
		return "", err
	}
	return intent.ID, nil
}

// List returns every stored intent regardless of status.
func (q *Queue) List() []TipIntent {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]TipIntent, len(q.intents))
	copy(out, q.intents)
	return out
}

// Get returns a single intent by id.
func (q *Queue) Get(id string) (TipIntent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, intent := range q.intents {
		if intent.ID == id {
			return intent, nil
		}
	}
	return TipIntent{}, ErrNotFound
}

// Update overwrites a stored intent and persists the change.
func (q *Queue) Update(intent TipIntent) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.intents {
		if q.intents[i].ID == intent.ID {
			q.intents[i] = intent
			return q.persist()
		}
	}
	return ErrNotFound
}

// Remove deletes an intent entirely (the success path).
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.intents {
		if q.intents[i].ID == id {
			q.intents = append(q.intents[:i], q.intents[i+1:]...)
			return q.persist()
		}
	}
	return ErrNotFound
}

// Requeue is the explicit user retry for a permanently failed intent.
func (q *Queue) Requeue(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.intents {
		if q.intents[i].ID == id {
			if q.intents[i].Status != StatusFailedPermanent {
				return fmt.Errorf("intent %s is %s, only permanently failed intents can be requeued", id, q.intents[i].Status)
			}
			q.intents[i].Status = StatusQueued
			q.intents[i].Attempts = 0
			q.intents[i].NextRetryAt = time.Time{}
			q.intents[i].LastError = ""
			return q.persist()
		}
	}
	return ErrNotFound
}

// persist writes the whole list atomically: temp file in the same directory,
// then rename over the old one. Caller holds the lock.
func (q *Queue) persist() error {
	data, err := json.MarshalIndent(q.intents, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(q.path), ".queue-*")
	if err != nil {
		return fmt.Errorf("failed to write queue file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write queue file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), q.path)
}

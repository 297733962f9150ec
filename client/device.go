// Package client assembles the device-side pieces: the durable offline queue,
// the backend API client, the sync engine and the connectivity monitor.
package client

import (
	"context"
	"log"

	"github.com/hachizeus/ttip-backend/client/api"
	"github.com/hachizeus/ttip-backend/client/config"
	"github.com/hachizeus/ttip-backend/client/connectivity"
	"github.com/hachizeus/ttip-backend/client/queue"
	"github.com/hachizeus/ttip-backend/client/sync"
)

type Device struct {
	Queue   *queue.Queue
	API     *api.Client
	Engine  *sync.Engine
	Monitor *connectivity.Monitor

	logger *log.Logger
}

// New wires the engine together. Nothing runs until Run is called.
func New(cfg config.Config, logger *log.Logger) (*Device, error) {
	q, err := queue.Open(cfg.QueuePath)
	if err != nil {
		return nil, err
	}

	apiClient := api.NewClient(cfg.ServerURL, cfg.HTTPTimeout)
	engine := sync.NewEngine(q, apiClient, sync.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.RetryBase,
		MaxDelay:    cfg.RetryMax,
	}, logger)

	d := &Device{
		Queue:  q,
		API:    apiClient,
		Engine: engine,
		logger: logger,
	}
	d.Monitor = connectivity.New(apiClient.Ping, cfg.PollInterval, func() {
		// One replay pass per offline-to-online transition; the engine's own
		// in-progress flag absorbs flapping.
		go engine.Replay(context.Background())
	}, logger)

	return d, nil
}

// Run blocks, polling connectivity until the context is cancelled.
func (d *Device) Run(ctx context.Context) {
	d.logger.Printf("Device engine running, %d intent(s) carried over", len(d.Queue.List()))
	d.Monitor.Run(ctx)
}

// Tip records a tip intent locally. If the device is online the sync engine
// is nudged right away; otherwise the intent waits for the next reconnect.
func (d *Device) Tip(workerID string, amount int64, payerContact string) (string, error) {
	id, err := d.Queue.Enqueue(workerID, amount, payerContact)
	if err != nil {
		return "", err
	}

	if d.Monitor.Online() {
		go d.Engine.Replay(context.Background())
	}
	return id, nil
}

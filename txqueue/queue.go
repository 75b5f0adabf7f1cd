package txqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	logger "github.com/sirupsen/logrus"
)

var (
	errNonceConflict = errors.New("nonce already consumed")
	errOutOfFunds    = errors.New("signer out of funds")
)

// Queue serializes all destination-chain submissions from one signing key.
// Jobs are appended by any goroutine and drained by exactly one worker, one
// job at a time: fetch the pending nonce, submit, wait for the receipt,
// then move on. Concurrent submission from a single key corrupts the nonce
// sequence, so this serialization is load-bearing, not an optimization.
//
// One Queue per (destination chain, signing key). Never share across
// destinations.
type Queue struct {
	cfg     *Config
	backend Backend
	builder TxBuilder

	mu     sync.Mutex
	jobs   []*Job
	notify chan struct{}

	paused atomic.Bool
}

func NewQueue(cfg *Config, backend Backend, builder TxBuilder) *Queue {
	return &Queue{
		cfg:     cfg.withDefaults(),
		backend: backend,
		builder: builder,
		notify:  make(chan struct{}, 1),
	}
}

// Enqueue appends a job. Never blocks; safe to call concurrently,
// including from a job's OnSuccess callback.
func (q *Queue) Enqueue(job *Job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	depth := len(q.jobs)
	q.mu.Unlock()

	logger.WithFields(logger.Fields{
		"job":   job.Label,
		"depth": depth,
	}).Debug("job enqueued")

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Depth returns the number of jobs waiting, including the one in flight.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Paused reports whether the queue is in an insufficient-funds cooldown.
func (q *Queue) Paused() bool {
	return q.paused.Load()
}

// PendingLabels returns the labels of all queued jobs, head first.
func (q *Queue) PendingLabels() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	labels := make([]string, len(q.jobs))
	for i, job := range q.jobs {
		labels[i] = job.Label
	}
	return labels
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeDropped
	outcomePause
	outcomeAbort
)

// Run drains the queue until ctx is cancelled. Cancellation takes effect
// between jobs and between attempts, never mid-submission: once a
// transaction is sent the worker waits for its outcome.
func (q *Queue) Run(ctx context.Context) error {
	logger.Debug("starting tx sequencer")
	defer logger.Debug("stopping tx sequencer")

	for {
		job, err := q.waitHead(ctx)
		if err != nil {
			return err
		}

		switch q.execute(ctx, job) {
		case outcomeDone, outcomeDropped:
			q.popHead()
		case outcomePause:
			q.paused.Store(true)
			logger.WithFields(logger.Fields{
				"job":      job.Label,
				"cooldown": q.cfg.FundsCooldown,
			}).Warn("queue paused until the signer is funded")
			select {
			case <-ctx.Done():
				q.paused.Store(false)
				return ctx.Err()
			case <-time.After(q.cfg.FundsCooldown):
			}
			q.paused.Store(false)
			// head untouched: the same job is retried, not skipped
		case outcomeAbort:
			return ctx.Err()
		}
	}
}

func (q *Queue) waitHead(ctx context.Context) (*Job, error) {
	for {
		q.mu.Lock()
		if len(q.jobs) > 0 {
			job := q.jobs[0]
			q.mu.Unlock()
			return job, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *Queue) popHead() {
	q.mu.Lock()
	if len(q.jobs) > 0 {
		q.jobs = q.jobs[1:]
	}
	q.mu.Unlock()
}

// execute runs one job to a terminal outcome. Generic failures (rpc flake,
// revert) retry with exponential backoff up to MaxSubmitAttempts; nonce
// conflicts drop the job as already-applied; insufficient funds pauses the
// whole queue.
func (q *Queue) execute(ctx context.Context, job *Job) outcome {
	var receipt *types.Receipt

	attempt := func() error {
		nonce, err := q.backend.PendingNonceAt(ctx, q.builder.SenderAddress())
		if err != nil {
			return fmt.Errorf("pending nonce: %w", err)
		}

		tx, err := q.builder.BuildSignedTx(ctx, nonce, job.To, job.Data)
		if err != nil {
			// an unfunded signer usually surfaces here already, at the gas
			// estimate, with the same node error message as a failed send
			if classifySubmitError(err) == failureOutOfFunds {
				return retry.Unrecoverable(fmt.Errorf("%w: %v", errOutOfFunds, err))
			}
			return fmt.Errorf("build tx: %w", err)
		}

		if err := q.backend.SendTransaction(ctx, tx); err != nil {
			switch classifySubmitError(err) {
			case failureNonceConflict:
				return retry.Unrecoverable(fmt.Errorf("%w: %v", errNonceConflict, err))
			case failureOutOfFunds:
				return retry.Unrecoverable(fmt.Errorf("%w: %v", errOutOfFunds, err))
			default:
				return fmt.Errorf("send tx: %w", err)
			}
		}

		logger.WithFields(logger.Fields{
			"job":   job.Label,
			"tx":    tx.Hash().Hex(),
			"nonce": nonce,
		}).Info("transaction submitted")

		r, err := q.waitMined(ctx, tx.Hash())
		if err != nil {
			return retry.Unrecoverable(err) // only fails on ctx cancellation
		}
		if r.Status != types.ReceiptStatusSuccessful {
			return fmt.Errorf("transaction reverted: %s", tx.Hash().Hex())
		}

		receipt = r
		return nil
	}

	err := retry.Do(
		attempt,
		retry.Context(ctx),
		retry.Attempts(q.cfg.MaxSubmitAttempts),
		retry.Delay(q.cfg.RetryBaseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.WithFields(logger.Fields{
				"job":     job.Label,
				"attempt": n + 1,
			}).Warnf("submission failed, retrying: %v", err)
		}),
	)

	if err == nil {
		logger.WithFields(logger.Fields{
			"job": job.Label,
			"tx":  receipt.TxHash.Hex(),
		}).Info("transaction confirmed")
		if job.OnSuccess != nil {
			job.OnSuccess(receipt)
		}
		return outcomeDone
	}

	if ctx.Err() != nil {
		return outcomeAbort
	}
	if errors.Is(err, errNonceConflict) {
		logger.WithField("job", job.Label).Warnf(
			"nonce conflict, assuming the job is already applied: %v", err)
		q.abandon(job)
		return outcomeDropped
	}
	if errors.Is(err, errOutOfFunds) {
		logger.WithField("job", job.Label).Errorf("%v", err)
		return outcomePause
	}

	logger.WithFields(logger.Fields{
		"job": job.Label,
		"to":  job.To.Hex(),
	}).Errorf("abandoning job after %d attempts: %v", q.cfg.MaxSubmitAttempts, err)
	q.abandon(job)
	return outcomeDropped
}

func (q *Queue) abandon(job *Job) {
	if job.OnAbandon != nil {
		job.OnAbandon()
	}
}

// waitMined polls for the receipt until it appears or ctx is cancelled.
// A submitted transaction is never given up on: its nonce is consumed, so
// proceeding without its outcome would corrupt the sequence.
func (q *Queue) waitMined(ctx context.Context, txHash ethcommon.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(q.cfg.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := q.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			logger.WithField("tx", txHash.Hex()).Debugf("receipt poll failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

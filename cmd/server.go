// Server = source chain pollers + destination-side queue/sequencer + db/state + http reporter.
// All components are configured via environment variables (strings!).

package cmd

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/crosslock/relay-go/chainpoller"
	"github.com/crosslock/relay-go/etherman"
	"github.com/crosslock/relay-go/relayer"
	"github.com/crosslock/relay-go/reporter"
	"github.com/crosslock/relay-go/scheduler"
	"github.com/crosslock/relay-go/state"
	"github.com/crosslock/relay-go/txqueue"
	ethcommon "github.com/ethereum/go-ethereum/common"

	_ "github.com/mattn/go-sqlite3"
)

// Default params for the server.
// More often we don't recommend users to tweak those.
// So we list them here.
const (
	// poll scheduler config
	defaultPollInterval = 30 * time.Second
	defaultPollTimeout  = 20 * time.Second

	// tx queue config
	defaultReceiptPollInterval = 2 * time.Second
	defaultFundsCooldown       = 30 * time.Second
	defaultMaxSubmitAttempts   = 5
	defaultRetryBaseDelay      = 2 * time.Second

	// destination chain config
	defaultGasLimitCap = uint64(1_000_000)
)

// SourceChainSpec is the text form of one source chain, as loaded from the
// environment.
type SourceChainSpec struct {
	ChainID          uint64
	Name             string
	RpcUrl           string
	LockContractAddr string
}

// Keep the configuration's fields as "text" as possible.
// Its easier to load it from env vars or a config file.
type RelayServerConfig struct {
	// source side
	SourceChains []SourceChainSpec

	// destination side
	DestRpcUrl       string // json rpc url
	DestSignerPriv   string // private key of the minter account
	WrappedTokenAddr string // wrapped asset contract address
	RewardTokenAddr  string // reward asset contract address

	// state side
	DbFilePath string // db file path

	// scheduler side
	PollInterval time.Duration // 0 = default

	// http side
	HttpIp   string // eg. 0.0.0.0
	HttpPort string // eg. 8080
}

// RelayServer holds the objects that consist of the relay server.
type RelayServer struct {
	MyEtherman    *etherman.Etherman
	MyStateDb     *state.StateDB
	MyQueue       *txqueue.Queue
	MyCoordinator *relayer.Coordinator
	MyPollers     []*chainpoller.Poller
	MyScheduler   *scheduler.Scheduler
	MyReporter    *reporter.HttpReporter
}

// NewRelayServer creates a new relay server.
// ctx is the parental context that cancels the scheduler and the queue.
// wg waits for the goroutines inside the server to finish.
func NewRelayServer(rsc *RelayServerConfig, ctx context.Context, wg *sync.WaitGroup) (*RelayServer, error) {
	// Destination side.

	// 1) Parse the signer key.
	privKey, err := etherman.StringToPrivateKey(rsc.DestSignerPriv)
	if err != nil {
		logger.Errorf("failed to parse destination signer key: %v", err)
		return nil, err
	}

	// 2) Create the Etherman instance (rpc client + token contracts + key).
	myEtherman, err := etherman.NewEtherman(&etherman.Config{
		URL:                 rsc.DestRpcUrl,
		WrappedTokenAddress: ethcommon.HexToAddress(rsc.WrappedTokenAddr),
		RewardTokenAddress:  ethcommon.HexToAddress(rsc.RewardTokenAddr),
		GasLimitCap:         defaultGasLimitCap,
	}, privKey)
	if err != nil {
		logger.Errorf("failed to create etherman: %v", err)
		return nil, err
	}
	logger.WithField("address", myEtherman.SenderAddress().Hex()).Info("destination signer")

	// 3) Create sql db and the state db (cursors + processed events).
	sqldb, err := sql.Open("sqlite3", rsc.DbFilePath)
	if err != nil {
		logger.Errorf("failed to open db file: %v", err)
		return nil, err
	}

	myStateDb, err := state.NewStateDB(sqldb)
	if err != nil {
		logger.Errorf("failed to create state db: %v", err)
		return nil, err
	}

	// 4) Create the tx queue over the signer. One queue per signer; all
	// mints and rewards flow through it in strict order.
	myQueue := txqueue.NewQueue(&txqueue.Config{
		ReceiptPollInterval: defaultReceiptPollInterval,
		FundsCooldown:       defaultFundsCooldown,
		MaxSubmitAttempts:   defaultMaxSubmitAttempts,
		RetryBaseDelay:      defaultRetryBaseDelay,
	}, myEtherman.Client(), myEtherman)

	// 5) Create the coordinator and replay events a previous run discovered
	// but never minted.
	myCoordinator := relayer.New(myEtherman, myQueue, myStateDb)
	myCoordinator.LogTokenInfo(ctx)
	if err := myCoordinator.ReplayPending(); err != nil {
		logger.Errorf("failed to replay journaled events: %v", err)
		return nil, err
	}

	// Source side.

	// 6) One poller per source chain, cursors backed by the state db.
	myPollers := make([]*chainpoller.Poller, 0, len(rsc.SourceChains))
	schedPollers := make([]scheduler.Poller, 0, len(rsc.SourceChains))
	for _, spec := range rsc.SourceChains {
		p, err := chainpoller.New(ctx, chainpoller.SourceChainConfig{
			ChainID:      spec.ChainID,
			Name:         spec.Name,
			URL:          spec.RpcUrl,
			LockContract: ethcommon.HexToAddress(spec.LockContractAddr),
			StartBlock:   -1,
		}, myStateDb)
		if err != nil {
			logger.Errorf("failed to create poller for %s: %v", spec.Name, err)
			return nil, err
		}
		myPollers = append(myPollers, p)
		schedPollers = append(schedPollers, p)
	}

	// 7) The scheduler fans polls out concurrently and feeds the coordinator.
	interval := rsc.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	myScheduler := scheduler.New(&scheduler.Config{
		Interval:    interval,
		PollTimeout: defaultPollTimeout,
	}, schedPollers, myCoordinator)
	myCoordinator.SetHealthSource(myScheduler.Health)

	// Important: turn on the destination-side queue and the scheduler!
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := myQueue.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorf("tx sequencer stopped: %v", err)
		}
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := myScheduler.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorf("poll scheduler stopped: %v", err)
		}
	}()
	// Don't forget to call wg.Wait() in the main routine.

	// 8) Http reporter (read-only status surface).
	myReporter := reporter.NewHttpReporter(rsc.HttpIp, rsc.HttpPort, myCoordinator)

	return &RelayServer{
		MyEtherman:    myEtherman,
		MyStateDb:     myStateDb,
		MyQueue:       myQueue,
		MyCoordinator: myCoordinator,
		MyPollers:     myPollers,
		MyScheduler:   myScheduler,
		MyReporter:    myReporter,
	}, nil
}

// StartRelayServerAndWait starts the server and blocks until SIGINT or
// SIGTERM. Shutdown is cooperative: the scheduler stops between rounds and
// the queue between jobs, never mid-submission.
func StartRelayServerAndWait(rsc *RelayServerConfig) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg := sync.WaitGroup{}

	server, err := NewRelayServer(rsc, ctx, &wg)
	if err != nil {
		logger.Errorf("failed to create relay server: %v", err)
		os.Exit(1)
	}

	// http reporter runs until the process exits
	go server.MyReporter.Run()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.WithField("signal", sig.String()).Info("shutting down")

	cancel()
	wg.Wait()
	server.MyStateDb.Close()
}

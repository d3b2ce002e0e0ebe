// Copyright 2024 The rafflekit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package node wires a development network together: the in-process chain
// and its JSON-RPC endpoint, the deployment scripts, the automation agents
// and the debug API.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hashicorp/go-multierror"
	"github.com/rafflekit/rafflekit/pkg/artifacts"
	"github.com/rafflekit/rafflekit/pkg/chain"
	"github.com/rafflekit/rafflekit/pkg/chain/rpcserver"
	"github.com/rafflekit/rafflekit/pkg/config"
	"github.com/rafflekit/rafflekit/pkg/debugapi"
	"github.com/rafflekit/rafflekit/pkg/deploy"
	"github.com/rafflekit/rafflekit/pkg/deployments"
	"github.com/rafflekit/rafflekit/pkg/keeper"
	"github.com/rafflekit/rafflekit/pkg/logging"
	"github.com/rafflekit/rafflekit/pkg/rafflecontract"
	"github.com/rafflekit/rafflekit/pkg/storage"
	"github.com/rafflekit/rafflekit/pkg/vrfcontract"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var ErrShutdownInProgress = errors.New("shutdown in progress")

// Options configure a development node.
type Options struct {
	DataDir            string
	RPCAddr            string
	DebugAPIAddr       string
	CORSAllowedOrigins []string
	ChainID            int64
	Accounts           int
	WallClock          bool
	// Deploy runs the scripts tagged with DeployTags on start.
	Deploy        bool
	DeployTags    []string
	DeployOptions deploy.Options
	Getenv        func(string) string
	// Automation runs the keeper agent and the coordinator responder
	// against every raffle and coordinator mock deployed on the chain.
	Automation        bool
	KeeperInterval    time.Duration
	ResponderInterval time.Duration
}

// Node is a running development network.
type Node struct {
	logger      logging.Logger
	metrics     nodeMetrics
	chain       *chain.Chain
	stateStore  storage.StateStorer
	deployments *deployments.Store
	deployer    *Connection
	automation  *Connection
	debugAPI    *debugapi.Service
	keeper      *keeper.Agent

	responderInterval time.Duration
	responderMu       sync.Mutex
	responder         *keeper.Responder

	rpcServer      *rpc.Server
	rpcHTTPServer  *http.Server
	rpcAddr        net.Addr
	debugAPIServer *http.Server
	errorLogWriter io.Writer

	creations event.Subscription
	ctxCancel context.CancelFunc
	eg        *errgroup.Group

	shutdownInProgress bool
	shutdownMutex      sync.Mutex
}

// New starts a development node. Deployment scripts run before New returns.
func New(logger logging.Logger, o Options) (n *Node, err error) {
	ctx, cancel := context.WithCancel(context.Background())
	eg, ctx := errgroup.WithContext(ctx)

	n = &Node{
		logger:            logger,
		metrics:           newMetrics(),
		responderInterval: o.ResponderInterval,
		errorLogWriter:    logger.WriterLevel(logrus.ErrorLevel),
		ctxCancel:         cancel,
		eg:                eg,
	}
	defer func() {
		if err != nil {
			if shutdownErr := n.Shutdown(); shutdownErr != nil {
				logger.Debugf("node: shutdown after failed start: %v", shutdownErr)
			}
		}
	}()

	n.stateStore, err = InitStateStore(logger, o.DataDir)
	if err != nil {
		return nil, fmt.Errorf("statestore: %w", err)
	}

	n.chain, err = NewDevChain(logger, DevChainOptions{
		ChainID:   o.ChainID,
		Accounts:  o.Accounts,
		WallClock: o.WallClock,
	})
	if err != nil {
		return nil, fmt.Errorf("chain: %w", err)
	}

	// set up basic debug api endpoints for debugging and /health endpoint
	if o.DebugAPIAddr != "" {
		n.debugAPI = debugapi.New(logger, o.CORSAllowedOrigins)
		n.debugAPI.MustRegisterMetrics(logger.Metrics()...)
		n.debugAPI.MustRegisterMetrics(n.chain.Metrics()...)
		n.debugAPI.MustRegisterMetrics(Metrics(n.metrics)...)

		n.debugAPIServer, _, err = n.serve("debug api", o.DebugAPIAddr, n.debugAPI)
		if err != nil {
			return nil, err
		}
	}

	if o.RPCAddr != "" {
		n.rpcServer, err = rpcserver.New(n.chain, logger)
		if err != nil {
			return nil, fmt.Errorf("rpc server: %w", err)
		}
		n.rpcHTTPServer, n.rpcAddr, err = n.serve("json-rpc", o.RPCAddr, rpcserver.NewHTTPHandler(n.rpcServer, o.CORSAllowedOrigins))
		if err != nil {
			return nil, err
		}
	}

	// The node records deployments under the localhost network so that
	// scripts reaching it over RPC see the same chain configuration.
	n.deployer, err = Connect(ctx, logger, ConnectOptions{
		Network:    config.HardhatNetwork,
		Chain:      n.chain,
		Account:    config.DeployerAccount,
		StateStore: n.stateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("deployer: %w", err)
	}
	network, _ := config.GetNetwork(config.LocalhostNetwork)
	n.deployer.Network = network
	n.deployments = deployments.NewStore(n.stateStore, network.Name)

	if o.Automation {
		n.automation, err = Connect(ctx, logger, ConnectOptions{
			Network:    config.HardhatNetwork,
			Chain:      n.chain,
			Account:    len(n.chain.Accounts()) - 1,
			StateStore: n.stateStore,
		})
		if err != nil {
			return nil, fmt.Errorf("automation account: %w", err)
		}
		n.keeper = keeper.New(logger, o.KeeperInterval)
		if n.debugAPI != nil {
			n.debugAPI.MustRegisterMetrics(n.keeper.Metrics()...)
		}

		creations := make(chan chain.Creation, 16)
		n.creations = n.chain.SubscribeCreations(creations)
		sub := n.creations
		eg.Go(func() error {
			for {
				select {
				case c := <-creations:
					n.handleCreation(c)
				case err := <-sub.Err():
					return err
				case <-ctx.Done():
					return nil
				}
			}
		})
	}

	if n.debugAPI != nil {
		dopts := debugapi.Options{
			Network:     network.Name,
			Backend:     n.chain,
			Deployments: n.deployments,
			Raffle:      &deployedRaffle{logger: logger, store: n.deployments, conn: n.deployer},
		}
		if n.keeper != nil {
			dopts.Automation = n.keeper
		}
		n.debugAPI.Configure(dopts)
	}

	if o.Deploy {
		start := time.Now()
		env := n.deployer.Env(logger, n.deployments, artifacts.Embedded(), o.Getenv)
		if err := deployments.Run(ctx, env, deploy.Scripts(o.DeployOptions), o.DeployTags...); err != nil {
			return nil, fmt.Errorf("deploy: %w", err)
		}
		n.metrics.DeployDuration.Observe(time.Since(start).Seconds())
	}

	logger.Infof("development chain %d with %d accounts", n.deployer.ChainID, len(n.chain.Accounts()))
	return n, nil
}

func (n *Node) serve(name, addr string, handler http.Handler) (*http.Server, net.Addr, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("%s listener: %w", name, err)
	}

	server := &http.Server{
		IdleTimeout:       30 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		Handler:           handler,
		ErrorLog:          log.New(n.errorLogWriter, "", 0),
	}

	n.eg.Go(func() error {
		n.logger.Infof("%s address: %s", name, listener.Addr())

		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.logger.Debugf("%s server: %v", name, err)
			n.logger.Errorf("unable to serve %s", name)
			return err
		}
		return nil
	})
	return server, listener.Addr(), nil
}

// handleCreation puts new raffles under automation and answers the
// randomness requests of the latest coordinator mock.
func (n *Node) handleCreation(c chain.Creation) {
	switch c.Name {
	case artifacts.RaffleName:
		n.keeper.AddRaffle(rafflecontract.New(n.logger, n.automation.Backend, n.automation.TxService, c.Address))
		n.metrics.Raffles.Inc()
	case artifacts.CoordinatorMockName:
		coordinator := vrfcontract.New(n.logger, n.automation.Backend, n.automation.TxService, c.Address)
		responder, err := keeper.NewResponder(n.logger, n.chain, coordinator, n.stateStore, n.responderInterval)
		if err != nil {
			n.logger.Errorf("node: responder for coordinator %s: %v", c.Address, err)
			return
		}
		n.metrics.Coordinators.Inc()

		n.responderMu.Lock()
		previous := n.responder
		n.responder = responder
		n.responderMu.Unlock()

		if previous != nil {
			if n.debugAPI != nil {
				n.debugAPI.UnregisterMetrics(previous.Metrics()...)
			}
			if err := previous.Close(); err != nil {
				n.logger.Debugf("node: close responder: %v", err)
			}
		}
		if n.debugAPI != nil {
			n.debugAPI.MustRegisterMetrics(responder.Metrics()...)
		}
	}
}

// Chain returns the development chain the node runs.
func (n *Node) Chain() *chain.Chain {
	return n.chain
}

// RPCEndpoint is the URL of the JSON-RPC server, empty when it is disabled.
func (n *Node) RPCEndpoint() string {
	if n.rpcAddr == nil {
		return ""
	}
	return "http://" + n.rpcAddr.String()
}

// Deployments returns the deployment records of the node.
func (n *Node) Deployments() *deployments.Store {
	return n.deployments
}

// Raffles returns the raffles under automation.
func (n *Node) Raffles() []common.Address {
	if n.keeper == nil {
		return nil
	}
	return n.keeper.Raffles()
}

// Responder returns the responder of the latest coordinator mock, if any.
func (n *Node) Responder() *keeper.Responder {
	n.responderMu.Lock()
	defer n.responderMu.Unlock()

	return n.responder
}

// Wait blocks until a server fails or the node shuts down.
func (n *Node) Wait() error {
	return n.eg.Wait()
}

func (n *Node) Shutdown() error {
	var mErr error

	// if a shutdown is already in process, return here
	n.shutdownMutex.Lock()
	if n.shutdownInProgress {
		n.shutdownMutex.Unlock()
		return ErrShutdownInProgress
	}
	n.shutdownInProgress = true
	n.shutdownMutex.Unlock()

	// tryClose is a convenient closure which decrease
	// repetitive io.Closer tryClose procedure.
	tryClose := func(c io.Closer, errMsg string) {
		if c == nil {
			return
		}
		if err := c.Close(); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("%s: %w", errMsg, err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var eg errgroup.Group
	for name, server := range map[string]*http.Server{
		"debug api": n.debugAPIServer,
		"json-rpc":  n.rpcHTTPServer,
	} {
		if server == nil {
			continue
		}
		name, server := name, server
		eg.Go(func() error {
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("%s server: %w", name, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		mErr = multierror.Append(mErr, err)
	}
	if n.rpcServer != nil {
		n.rpcServer.Stop()
	}

	if n.creations != nil {
		n.creations.Unsubscribe()
	}
	n.ctxCancel()
	if err := n.eg.Wait(); err != nil {
		mErr = multierror.Append(mErr, err)
	}

	if n.keeper != nil {
		tryClose(n.keeper, "keeper")
	}
	if r := n.Responder(); r != nil {
		tryClose(r, "responder")
	}
	if n.automation != nil {
		tryClose(n.automation, "automation transactions")
	}
	if n.deployer != nil {
		tryClose(n.deployer, "deployer transactions")
	}
	tryClose(n.stateStore, "statestore")
	if c, ok := n.errorLogWriter.(io.Closer); ok {
		tryClose(c, "error log writer")
	}

	return mErr
}

// deployedRaffle reads the raffle recorded under its artifact name.
type deployedRaffle struct {
	logger logging.Logger
	store  *deployments.Store
	conn   *Connection
}

func (d *deployedRaffle) Status(ctx context.Context) (*rafflecontract.Status, error) {
	deployment, err := d.store.Get(artifacts.RaffleName)
	if err != nil {
		return nil, err
	}
	return rafflecontract.New(d.logger, d.conn.Backend, d.conn.TxService, deployment.Address).Status(ctx)
}

package main

import (
	"LiqWatch/internal/chain"
	"LiqWatch/internal/config"
	"LiqWatch/internal/monitor"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
)

// chainSources holds the on-chain readers behind one RPC connection.
type chainSources struct {
	client   *ethclient.Client
	prices   *chain.PriceFeed
	pool     *chain.PoolReader
	reserves *chain.ReserveReader // nil when per-reserve reads are off
}

func dialChain(cfg config.Config, detailed bool) (*chainSources, error) {
	client, err := chain.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	caller := chain.NewCaller(client, cfg.RPCRateLimit, cfg.RPCBurst)

	// Addresses were checked by config.Validate.
	pool, _ := chain.ParseAddress(cfg.PoolAddress)
	feed, _ := chain.ParseAddress(cfg.PriceFeedAddress)

	src := &chainSources{
		client: client,
		prices: chain.NewPriceFeed(caller, feed, cfg.PriceMaxAge),
		pool:   chain.NewPoolReader(caller, pool, cfg.RPCConcurrency),
	}

	if detailed {
		dp, _ := chain.ParseAddress(cfg.DataProviderAddress)
		oracle, _ := chain.ParseAddress(cfg.OracleAddress)
		src.reserves, err = chain.NewReserveReader(caller, dp, oracle, cfg.Reserves)
		if err != nil {
			client.Close()
			return nil, err
		}
	}
	return src, nil
}

// options fills the data sources of a monitor.Options.
func (s *chainSources) options() monitor.Options {
	opts := monitor.Options{
		Prices:   s.prices,
		Accounts: s.pool,
	}
	if s.reserves != nil {
		opts.Legs = s.reserves
	}
	return opts
}

func (s *chainSources) Close() {
	s.client.Close()
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"smartcoin.dev/node/consensus"
	"smartcoin.dev/node/crypto"
	"smartcoin.dev/node/node"
	"smartcoin.dev/node/node/rpc"
	"smartcoin.dev/node/puzzle"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	defaults := node.DefaultConfig()
	if path := configArg(args); path != "" {
		fileCfg, err := node.LoadConfigFile(path, defaults)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "invalid config file: %v\n", err)
			return 2
		}
		defaults = fileCfg
	}
	cfg := defaults

	fs := flag.NewFlagSet("coinsim", flag.ContinueOnError)
	fs.String("config", "", "JSON config file; flags override its values")
	fs.StringVar(&cfg.Network, "network", defaults.Network, "network name")
	fs.StringVar(&cfg.DataDir, "datadir", defaults.DataDir, "chain data directory")
	fs.StringVar(&cfg.BindAddr, "bind", defaults.BindAddr, "rpc bind address host:port")
	fs.StringVar(&cfg.LogLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	fs.DurationVar(&cfg.BlockInterval, "block-interval", defaults.BlockInterval, "simulated time between blocks")
	fs.Uint64Var(&cfg.MaxBlockCost, "max-block-cost", defaults.MaxBlockCost, "cost budget per bundle")
	fs.DurationVar(&cfg.ValidateTimeout, "validate-timeout", defaults.ValidateTimeout, "deadline for validating one bundle")
	fs.BoolVar(&cfg.AutoFarm, "auto-farm", defaults.AutoFarm, "farm a block for every accepted bundle")
	fs.BoolVar(&cfg.Persist, "persist", defaults.Persist, "keep the chain on disk under datadir")
	fs.IntVar(&cfg.MaxBundlesPerBlock, "max-bundles", defaults.MaxBundlesPerBlock, "bundles per farmed block")
	rewardHex := fs.String("reward-puzzle-hash", "", "hex puzzle hash paid by blocks farmed without a recipient")
	farmEvery := fs.Duration("farm-every", 0, "farm a block at this wall-clock interval (0 disables)")
	farmBlocks := fs.Int("farm-blocks", 0, "farm N blocks after startup")
	dryRun := fs.Bool("dry-run", false, "print effective config and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if *rewardHex != "" {
		ph, err := consensus.ParseHash(*rewardHex)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "invalid reward-puzzle-hash: %v\n", err)
			return 2
		}
		cfg.RewardPuzzleHash = ph
	}
	if err := node.ValidateConfig(cfg); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return 2
	}
	if err := printConfig(cfg); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config encode failed: %v\n", err)
		return 1
	}
	if *dryRun {
		return 0
	}

	logger, err := node.NewLogger(cfg.LogLevel)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()

	chain, err := node.NewChain(cfg, crypto.StdProvider{}, puzzle.NewExecutor(), logger)
	if err != nil {
		logger.Error("chain init failed", zap.Error(err))
		return 2
	}
	defer func() { _ = chain.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *farmBlocks > 0 {
		blocks, err := chain.Advance(ctx, *farmBlocks, cfg.RewardPuzzleHash)
		if err != nil {
			logger.Error("farming failed", zap.Error(err))
			return 2
		}
		for _, b := range blocks {
			_, _ = fmt.Fprintf(os.Stdout, "farmed: height=%d hash=%s timestamp=%d bundles=%d\n", b.Height, b.HeaderHash, b.Timestamp, len(b.BundleIDs))
		}
	}
	if *farmEvery > 0 {
		go func() {
			if err := chain.FarmLoop(ctx, *farmEvery); err != nil {
				logger.Warn("farm loop stopped", zap.Error(err))
			}
		}()
	}

	srv := rpc.NewServer(chain, logger)
	if err := srv.ListenAndServe(ctx, cfg.BindAddr); err != nil {
		logger.Error("rpc server failed", zap.Error(err))
		return 1
	}
	logger.Info("coinsim stopped", zap.Uint64("height", chain.CurrentHeight()))
	return 0
}

// configArg finds -config before flag parsing so the file can seed flag defaults.
func configArg(args []string) string {
	for i, a := range args {
		if a == "--" {
			return ""
		}
		name := strings.TrimLeft(a, "-")
		if name == a {
			continue
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func printConfig(cfg node.Config) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

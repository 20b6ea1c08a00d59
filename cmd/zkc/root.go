package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zk-carbon/contract-runner/internal/chain"
	"zk-carbon/contract-runner/internal/config"
	"zk-carbon/contract-runner/internal/contract"
	"zk-carbon/contract-runner/pkg/storage"
)

// app carries what every subcommand needs once the config is loaded
type app struct {
	configPath string
	out        io.Writer

	cfg     *config.Config
	logger  *zap.Logger
	builder *chain.Builder
	service *contract.Service

	newExecutor func(cfg *config.Config, logger *zap.Logger) contract.Executor
}

func defaultExecutor(cfg *config.Config, logger *zap.Logger) contract.Executor {
	return chain.NewExecutor(chain.NewOSRunner(), chain.ExecutorConfig{
		WorkDir:       cfg.Chain.WorkDir,
		Passphrase:    cfg.Chain.KeyringPassphrase,
		AllowStderr:   cfg.Chain.AllowStderr,
		Timeout:       cfg.Chain.CommandTimeout.Std(),
		MaxConcurrent: 1,
	}, logger)
}

func newRootCmd(out io.Writer) *cobra.Command {
	return newApp(out, defaultExecutor).rootCmd()
}

func newApp(out io.Writer, newExecutor func(*config.Config, *zap.Logger) contract.Executor) *app {
	return &app{out: out, newExecutor: newExecutor}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "zkc",
		Short:         "Run zk-carbon contract calls through injectived",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.SetOut(a.out)
	root.PersistentFlags().StringVar(&a.configPath, "config", "config.yaml", "path to a JSON or YAML config file")

	root.AddCommand(
		a.buildCmd(),
		a.runCmd(),
		a.organizationsCmd(),
		a.claimsCmd(),
		a.configCmd(),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	// CLI output goes to stdout, keep the logger on warnings only
	cfg.Logging.Level = "warn"
	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.builder = chain.NewBuilder(chain.Network{
		Binary:      cfg.Chain.Binary,
		FromAddress: cfg.Chain.FromAddress,
		ChainID:     cfg.Chain.ChainID,
		NodeURL:     cfg.Chain.NodeURL,
		Fees:        cfg.Chain.Fees,
		Gas:         cfg.Chain.Gas,
	})
	a.service = contract.NewService(a.builder, a.newExecutor(cfg, logger), contract.ServiceConfig{
		ContractAddress: cfg.Contract.Address,
		ListLimit:       uint32(cfg.Contract.ListLimit),
		Gateway:         storage.NewIPFSGateway(cfg.Contract.IPFSGateway),
	}, logger)
	return nil
}

func (a *app) printJSON(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

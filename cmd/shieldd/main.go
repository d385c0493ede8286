// main.go - Shield daemon and administrative CLI
//
// shieldd runs the background services of a shielded wallet: the note
// discovery scanner and a status HTTP server. The subcommands expose the
// wallet operations explicitly instead of ambient global mutation.
package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/noctura/shield/internal/chain"
	"github.com/noctura/shield/internal/delivery"
	"github.com/noctura/shield/internal/engine"
	"github.com/noctura/shield/internal/fees"
	"github.com/noctura/shield/internal/prover"
	"github.com/noctura/shield/internal/relay"
	"github.com/noctura/shield/internal/wallet"
)

const version = "0.3.0"

// app bundles the daemon's collaborators, built once per invocation.
type app struct {
	cfg     *Config
	logger  *Logger
	metrics *MetricsCollector
	health  *HealthChecker
	wallet  *wallet.Wallet
	reader  *chain.Client
	relayer *relay.Client
	engine  *engine.Engine
	scanner *delivery.Scanner
}

func buildApp(cmd *cli.Command) (*app, error) {
	cfg, err := LoadConfig(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.LogLevel, cfg.LogFile, auditPath(cfg))
	if err != nil {
		return nil, err
	}

	w, err := wallet.Load(cfg.WalletPath)
	if os.IsNotExist(err) {
		logger.Info("no wallet at %s, creating a fresh one", cfg.WalletPath)
		w, err = wallet.New("default")
		if err == nil {
			err = w.Save(cfg.WalletPath)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("opening wallet: %w", err)
	}
	w.RegisterToken(cfg.FeeToken)

	reader := chain.NewClient(cfg.ChainURL, 15*time.Second)
	relayer := relay.NewClient(cfg.RelayURL, reader, 30*time.Second)
	acct := fees.NewAccountant(cfg.FeeToken, big.NewInt(cfg.FlatFee), cfg.ShieldFeeBps, cfg.PriorityFeeBps)
	prv := prover.NewLocal(cfg.KeyDir)
	eng := engine.New(w, prv, relayer, reader, acct, cfg.TreeHeight)

	interval := time.Duration(cfg.ScanIntervalSeconds) * time.Second
	scanner := delivery.NewScanner(w.Keys(), reader, w, interval)

	health := NewHealthChecker(version)
	health.RegisterComponent("chain", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := reader.Leaves(ctx)
		return err
	})
	health.RegisterComponent("wallet", func() error {
		_, err := os.Stat(cfg.WalletPath)
		return err
	})

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: NewMetricsCollector(),
		health:  health,
		wallet:  w,
		reader:  reader,
		relayer: relayer,
		engine:  eng,
		scanner: scanner,
	}, nil
}

func (a *app) saveWallet() {
	if err := a.wallet.Save(a.cfg.WalletPath); err != nil {
		a.logger.Error("saving wallet: %v", err)
	}
}

func auditPath(cfg *Config) string {
	if !cfg.EnableAudit {
		return ""
	}
	return cfg.AuditLogPath
}

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file",
		Value:   "shieldd.yaml",
		Sources: cli.EnvVars("SHIELDD_CONFIG"),
	}
}

func main() {
	cmd := &cli.Command{
		Name:  "shieldd",
		Usage: "Shielded note wallet daemon",
		Flags: []cli.Flag{configFlag()},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the discovery scanner and status server",
				Action: runDaemon,
			},
			{
				Name:   "balance",
				Usage:  "Print the unspent balance of a token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "token", Required: true},
				},
				Action: runBalance,
			},
			{
				Name:   "deposit",
				Usage:  "Shield a public amount into a fresh note",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "token", Required: true},
					&cli.IntFlag{Name: "amount", Required: true},
					&cli.BoolFlag{Name: "priority", Usage: "pay the priority shield fee for earlier inclusion"},
				},
				Action: runDeposit,
			},
			{
				Name:   "transfer",
				Usage:  "Send value to another shielded wallet",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "token", Required: true},
					&cli.IntFlag{Name: "amount", Required: true},
					&cli.StringFlag{Name: "to", Usage: "recipient delivery public key (hex); empty sends to self", Value: ""},
				},
				Action: runTransfer,
			},
			{
				Name:   "withdraw",
				Usage:  "Pay shielded value out to a public address",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "token", Required: true},
					&cli.IntFlag{Name: "amount", Required: true},
					&cli.StringFlag{Name: "to", Required: true, Usage: "public payout address"},
				},
				Action: runWithdraw,
			},
			{
				Name:   "consolidate",
				Usage:  "Fold fragmented notes back under the input cap",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "token", Required: true},
				},
				Action: runConsolidate,
			},
			{
				Name:   "export-note",
				Usage:  "Export a note's opening material for offline sharing",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "commitment", Required: true, Usage: "commitment of the note (hex)"},
				},
				Action: runExportNote,
			},
			{
				Name:   "import-note",
				Usage:  "Import a note exported by another wallet",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "encoded", Required: true},
					&cli.StringFlag{Name: "token", Usage: "token symbol label for the imported note"},
				},
				Action: runImportNote,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "shieldd: %v\n", err)
		os.Exit(1)
	}
}

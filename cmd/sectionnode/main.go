// Command sectionnode boots a single section node core process: chunk
// storage, reward accounting and the event loop that drives them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sectioncore/core"
	"sectioncore/internal/localnet"
	"sectioncore/pkg/config"
)

var cfgEnv string

func main() {
	root := &cobra.Command{
		Use:   "sectionnode",
		Short: "run a section node core process",
	}
	root.PersistentFlags().StringVar(&cfgEnv, "env", "", "environment overlay to merge onto the default config")

	root.AddCommand(serveCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "load config and run the event loop until interrupted",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgEnv)
	if err != nil {
		return err
	}

	lg := logrus.New()
	if lv, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		lg.SetLevel(lv)
	}

	store, err := core.NewChunkStore(cfg.Section.ChunkDir, cfg.Section.MaxBytes, lg)
	if err != nil {
		return err
	}
	chunks := core.NewChunkStorageService(store, lg)

	farming := core.NewFarmingSystem()
	ledger := core.NewRewardLedger(farming, lg)

	name, addr, err := loadOrCreateIdentity(cfg.Section.RewardKeypairPath, lg)
	if err != nil {
		return fmt.Errorf("sectionnode: reward identity: %w", err)
	}
	ledger.AddNewAccount(core.AccountID(addr.Hex()), name)
	lg.Infof("sectionnode: reward identity %s bound to account %s", name.Short(), addr.Short())

	zlg, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer zlg.Sync()

	engine := &loggingTransferEngine{logger: zlg.Sugar()}
	funds := core.NewSectionFundsDispatcher(engine, zlg)

	net := localnet.New()
	loop := core.NewNodeEventLoop(net, chunks, ledger, funds, cfg.Section.SectionID, name, lg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lg.Infof("sectionnode: serving section %s from %s (max %d bytes)", cfg.Section.SectionID, cfg.Section.ChunkDir, cfg.Section.MaxBytes)
	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	lg.Info("sectionnode: shutting down")
	return nil
}

// loggingTransferEngine stands in for the external cryptographic transfer
// engine (spec §1) so the process can boot; it only logs debits, it never
// actually moves funds. A real deployment wires core.TransferEngine to that
// engine's client instead.
type loggingTransferEngine struct {
	logger *zap.SugaredLogger
}

func (e *loggingTransferEngine) Debit(ctx context.Context, amount core.Token, account core.AccountID) error {
	e.logger.Infow("transfer engine stub: debit", "amount", amount, "account", account)
	return nil
}

// loadOrCreateIdentity reads the mnemonic stored at path, or generates one
// and persists it on first boot, then derives this node's account-0/index-0
// reward identity from it.
func loadOrCreateIdentity(path string, lg *logrus.Logger) (core.NodeName, core.Address, error) {
	raw, err := os.ReadFile(path)
	var mnemonic string
	switch {
	case err == nil:
		mnemonic = strings.TrimSpace(string(raw))
	case os.IsNotExist(err):
		_, m, genErr := core.NewRandomWallet(256)
		if genErr != nil {
			return core.NodeName{}, core.Address{}, genErr
		}
		if writeErr := os.WriteFile(path, []byte(m+"\n"), 0o600); writeErr != nil {
			return core.NodeName{}, core.Address{}, writeErr
		}
		lg.Warnf("sectionnode: generated a new reward keypair at %s; back it up", path)
		mnemonic = m
	default:
		return core.NodeName{}, core.Address{}, err
	}

	wallet, err := core.WalletFromMnemonic(mnemonic, "")
	if err != nil {
		return core.NodeName{}, core.Address{}, err
	}
	name, err := wallet.NodeName(0, 0)
	if err != nil {
		return core.NodeName{}, core.Address{}, err
	}
	addr, err := wallet.NewAddress(0, 0)
	if err != nil {
		return core.NodeName{}, core.Address{}, err
	}
	return name, addr, nil
}

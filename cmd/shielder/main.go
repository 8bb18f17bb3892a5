// main.go - Command line client of the shielder protocol.
//
// Usage:
//
//	shielder init
//	shielder shield native 1000
//	shielder withdraw native 400 0x...
//	shielder history
//
// Without rpc_url in the config every command runs against a local ledger persisted
// in ledger_path, relayed by an in-process relayer.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/spf13/cobra"

	"shielder/internal/shielder"
)

var (
	Version = "dev"
	Commit  = "none"
)

type options struct {
	configPath  string
	logLevel    string
	showMetrics bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "shielder",
		Short:         "Shielded balance client",
		Version:       fmt.Sprintf("%s (%s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "shielder.json", "Path of the JSON config file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")
	rootCmd.PersistentFlags().BoolVar(&opts.showMetrics, "metrics", false, "Print collected metrics on exit")

	rootCmd.AddCommand(
		initCmd(opts),
		balanceCmd(opts),
		syncCmd(opts),
		historyCmd(opts),
		shieldCmd(opts),
		withdrawCmd(opts),
		withdrawManualCmd(opts),
		feesCmd(opts),
		accountsCmd(opts),
		healthCmd(opts),
	)
	return rootCmd
}

// withApp runs fn with a wired app and prints metrics when asked to.
func withApp(cmd *cobra.Command, opts *options, fn func(ctx context.Context, a *app) error) error {
	cfg, err := LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	logger, err := NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.TimeoutSeconds)*time.Second)
	defer cancel()

	metrics := NewMetricsCollector()
	a, err := openApp(ctx, cfg, logger.Logger, metrics)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	if err := a.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if opts.showMetrics {
		if err := printJSON(cmd, metrics.GetMetricsSummary()); err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := math.ParseBig256(s)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

type accountView struct {
	Token     shielder.Token `json:"token"`
	Nonce     uint64         `json:"nonce"`
	Balance   string         `json:"balance"`
	NoteIndex *big.Int       `json:"note_index,omitempty"`
}

func viewOf(st *shielder.AccountState) accountView {
	return accountView{Token: st.Token, Nonce: st.Nonce, Balance: st.Balance.String(), NoteIndex: st.CurrentNoteIndex}
}

func initCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config and generate a key if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			key, err := loadOrCreateKey(cfg.KeyFile)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config: %s\naddress: %s\n", opts.configPath, addressOf(key).Hex())
			return nil
		},
	}
}

func balanceCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "balance [token]",
		Short: "Sync and show the account of a token",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := shielder.NativeToken()
			if len(args) == 1 {
				var err error
				if token, err = shielder.ParseToken(args[0]); err != nil {
					return err
				}
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.client.SyncToken(ctx, token); err != nil {
					return err
				}
				st, err := a.client.AccountState(ctx, token)
				if err != nil {
					return err
				}
				return printJSON(cmd, viewOf(st))
			})
		},
	}
}

func syncCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Sync every account of the key with the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.client.SyncShielder(ctx); err != nil {
					return err
				}
				return printAccounts(ctx, cmd, a)
			})
		},
	}
}

func accountsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List locally stored accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return printAccounts(ctx, cmd, a)
			})
		},
	}
}

func printAccounts(ctx context.Context, cmd *cobra.Command, a *app) error {
	states, err := a.client.AccountStatesList(ctx)
	if err != nil {
		return err
	}
	views := make([]accountView, 0, len(states))
	for _, st := range states {
		views = append(views, viewOf(st))
	}
	return printJSON(cmd, views)
}

func historyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history [token]",
		Short: "Replay the transaction history from the ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				var (
					txs []shielder.ShielderTransaction
					err error
				)
				if len(args) == 1 {
					token, perr := shielder.ParseToken(args[0])
					if perr != nil {
						return perr
					}
					txs, err = a.client.TokenTransactionHistory(ctx, token)
				} else {
					txs, err = a.client.TransactionHistory(ctx)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd, txs)
			})
		},
	}
}

func shieldCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "shield <token> <amount>",
		Short: "Move funds into the shielded account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := shielder.ParseToken(args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				hash, err := a.client.Shield(ctx, token, amount, a.send, a.from)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), hash.Hex())
				return nil
			})
		},
	}
}

func withdrawCmd(opts *options) *cobra.Command {
	var fee string
	cmd := &cobra.Command{
		Use:   "withdraw <token> <amount> <recipient>",
		Short: "Withdraw through the relayer; amount includes the relay fee",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := shielder.ParseToken(args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			recipient, err := parseAddress(args[2])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if a.relayer == nil {
					return fmt.Errorf("no relayer configured; use withdraw-manual")
				}
				totalFee, ok := math.ParseBig256(fee)
				if fee == "" {
					quote, err := a.client.WithdrawFees(ctx)
					if err != nil {
						return err
					}
					totalFee, ok = quote.TotalFee, true
				}
				if !ok {
					return fmt.Errorf("invalid fee %q", fee)
				}
				hash, err := a.client.Withdraw(ctx, token, amount, totalFee, recipient)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), hash.Hex())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&fee, "fee", "", "Relay fee; quoted from the relayer when empty")
	return cmd
}

func withdrawManualCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw-manual <token> <amount> <recipient>",
		Short: "Withdraw by sending the transaction from the configured key",
		Long: `Withdraw by sending the transaction from the configured key.
The withdrawal is linkable to the key's address.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := shielder.ParseToken(args[0])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			recipient, err := parseAddress(args[2])
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				hash, err := a.client.WithdrawManual(ctx, token, amount, recipient, a.send, a.from)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), hash.Hex())
				return nil
			})
		},
	}
}

type feesView struct {
	DepositFeeBps  *big.Int             `json:"deposit_fee_bps"`
	WithdrawFeeBps *big.Int             `json:"withdraw_fee_bps"`
	Relay          *shielder.QuotedFees `json:"relay,omitempty"`
}

func feesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "fees",
		Short: "Show protocol and relay fees",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				var (
					view feesView
					err  error
				)
				if view.DepositFeeBps, err = a.ledger.DepositFeeBps(ctx); err != nil {
					return err
				}
				if view.WithdrawFeeBps, err = a.ledger.WithdrawFeeBps(ctx); err != nil {
					return err
				}
				if a.relayer != nil {
					quote, err := a.client.WithdrawFees(ctx)
					if err != nil {
						return err
					}
					view.Relay = &quote
				}
				return printJSON(cmd, view)
			})
		},
	}
}

func healthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the ledger, relayer and storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				health := a.healthChecker().CheckHealth(ctx)
				if err := printJSON(cmd, health); err != nil {
					return err
				}
				if health.OverallStatus != Healthy {
					return fmt.Errorf("unhealthy")
				}
				return nil
			})
		},
	}
}

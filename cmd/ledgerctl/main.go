package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/opolis/payledger/internal/auth"
	"github.com/opolis/payledger/pkg/client"
	"github.com/opolis/payledger/pkg/units"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	token     string
	cfgFile   string
	decimals  int32
	asJSON    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "payledger CLI",
	Long: `ledgerctl is the command-line interface for a payledger server.

Members submit payrolls and stakes; the admin withdraws them to the
destination, manages the asset whitelist, and rotates roles.

Amounts are given in whole units (e.g. 12.5) and scaled by --decimals.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.ledgerctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("ledgerctl")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if token == "" {
			token = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.ledgerctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "payledger server URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "caller bearer token (or LEDGERCTL_TOKEN)")
	rootCmd.PersistentFlags().Int32Var(&decimals, "decimals", units.DefaultDecimals, "Decimal places of the asset")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print raw JSON")

	rootCmd.AddCommand(tokenCmd, payCmd, stakeCmd, withdrawPayrollsCmd, withdrawStakesCmd,
		clearBalanceCmd, addAssetsCmd, setRoleCmd("admin"), setRoleCmd("helper"), setRoleCmd("destination"),
		payrollCmd, stakeInfoCmd, configCmd, journalCmd, mintCmd, approveCmd, versionCmd)
}

func newClient() (*client.Client, error) {
	var opts []client.Option
	if token != "" {
		opts = append(opts, client.WithBearerToken(token))
	}
	return client.New(serverURL, opts...)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ── token ────────────────────────────────────────────────────────────────────

var (
	tokenSecret string
	tokenIssuer string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <address>",
	Short: "Mint a caller token with the server's shared secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		secret := tokenSecret
		if secret == "" {
			secret = viper.GetString("jwt_secret")
		}
		issuer, err := auth.NewTokenIssuer([]byte(secret), tokenIssuer, tokenTTL)
		if err != nil {
			return err
		}
		tok, err := issuer.Issue(addr)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", "", "HMAC secret (or LEDGERCTL_JWT_SECRET)")
	tokenCmd.Flags().StringVar(&tokenIssuer, "issuer", "payledger", "Token issuer; must match the server's auth.issuer")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "Token lifetime")
}

// ── pay / stake ──────────────────────────────────────────────────────────────

var payCmd = &cobra.Command{
	Use:   "pay <payroll-id> <asset> <amount>",
	Short: "Submit a payroll",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid payroll id %q: %w", args[0], err)
		}
		asset, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		amount, err := units.ParseUnits(args[2], decimals)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[2], err)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		p, err := c.SubmitPayroll(context.Background(), asset, amount, id)
		if err != nil {
			return fmt.Errorf("submit payroll: %w", err)
		}
		if asJSON {
			return printJSON(p)
		}
		fmt.Printf("✓ Payroll %d recorded: %s of %s\n", p.PayrollID, units.Format(p.Remaining, decimals), p.Asset.Hex())
		return nil
	},
}

var stakeValue string

var stakeCmd = &cobra.Command{
	Use:   "stake <member-id> <asset|native> <amount>",
	Short: "Submit a stake",
	Long: `Submit a stake for a member.

For native stakes pass --value equal to the amount; the value is forwarded
to the destination immediately.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		member, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid member id %q: %w", args[0], err)
		}
		asset, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		amount, err := units.ParseUnits(args[2], decimals)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[2], err)
		}
		value, err := units.ParseUnits(stakeValue, decimals)
		if err != nil {
			return fmt.Errorf("invalid value %q: %w", stakeValue, err)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		s, err := c.SubmitStake(context.Background(), asset, amount, member, value)
		if err != nil {
			return fmt.Errorf("submit stake: %w", err)
		}
		if asJSON {
			return printJSON(s)
		}
		fmt.Printf("✓ Stake %d/%d recorded: %s\n", s.MemberID, s.Sequence, units.Format(s.Remaining, decimals))
		return nil
	},
}

func init() {
	stakeCmd.Flags().StringVar(&stakeValue, "value", "0", "Native value attached to the call")
}

// ── withdraw ─────────────────────────────────────────────────────────────────

var withdrawPayrollsCmd = &cobra.Command{
	Use:   "withdraw-payrolls <id:asset[:amount]>...",
	Short: "Withdraw payrolls to the destination (admin)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries := make([]client.PayrollWithdrawal, 0, len(args))
		for _, a := range args {
			e, err := parsePayrollEntry(a, decimals)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		events, err := c.WithdrawPayrolls(context.Background(), entries)
		if err != nil {
			return withdrawError(err, args)
		}
		return printEvents(events)
	},
}

var withdrawStakesCmd = &cobra.Command{
	Use:   "withdraw-stakes <member:seq:asset[:amount]>...",
	Short: "Withdraw stakes to the destination (admin)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries := make([]client.StakeWithdrawal, 0, len(args))
		for _, a := range args {
			e, err := parseStakeEntry(a, decimals)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		events, err := c.WithdrawStakes(context.Background(), entries)
		if err != nil {
			return withdrawError(err, args)
		}
		return printEvents(events)
	},
}

// withdrawError names the rejected batch entry when the server reports one.
func withdrawError(err error, args []string) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Index != nil && *apiErr.Index < len(args) {
		return fmt.Errorf("withdraw rejected at entry %d (%s): %w", *apiErr.Index, args[*apiErr.Index], err)
	}
	return fmt.Errorf("withdraw: %w", err)
}

func printEvents(events []client.Event) error {
	if asJSON {
		return printJSON(events)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tRECORD\tASSET\tAMOUNT")
	for _, ev := range events {
		record := strconv.FormatUint(ev.PayrollID, 10)
		if ev.MemberID != 0 {
			record = fmt.Sprintf("%d/%d", ev.MemberID, ev.Sequence)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ev.Kind, record, ev.Asset.Hex(), units.Format(ev.Amount, decimals))
	}
	return w.Flush()
}

var clearBalanceCmd = &cobra.Command{
	Use:   "clear-balance",
	Short: "Sweep the primary asset's custody balance to the destination (admin)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ev, err := c.ClearBalance(context.Background())
		if err != nil {
			return fmt.Errorf("clear balance: %w", err)
		}
		if ev == nil {
			fmt.Println("No asset is whitelisted; nothing to clear.")
			return nil
		}
		if asJSON {
			return printJSON(ev)
		}
		fmt.Printf("✓ Swept %s of %s\n", units.Format(ev.Amount, decimals), ev.Asset.Hex())
		return nil
	},
}

// ── admin config ─────────────────────────────────────────────────────────────

var addAssetsCmd = &cobra.Command{
	Use:   "add-assets <asset>...",
	Short: "Whitelist assets (admin)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		assets := make([]common.Address, 0, len(args))
		for _, a := range args {
			addr, err := parseAddress(a)
			if err != nil {
				return err
			}
			assets = append(assets, addr)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		listed, err := c.AddAssets(context.Background(), assets)
		if err != nil {
			return fmt.Errorf("add assets: %w", err)
		}
		fmt.Printf("✓ %d asset(s) whitelisted\n", len(listed))
		return nil
	},
}

func setRoleCmd(role string) *cobra.Command {
	return &cobra.Command{
		Use:   "set-" + role + " <address>",
		Short: "Replace the " + role + " (admin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			update := map[string]func(context.Context, common.Address) (*client.Config, error){
				"admin":       c.UpdateAdmin,
				"helper":      c.UpdateHelper,
				"destination": c.UpdateDestination,
			}[role]
			cfg, err := update(context.Background(), addr)
			if err != nil {
				return fmt.Errorf("set %s: %w", role, err)
			}
			return printConfig(cfg)
		},
	}
}

// ── reads ────────────────────────────────────────────────────────────────────

var payrollCmd = &cobra.Command{
	Use:   "payroll <id>",
	Short: "Show a payroll record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid payroll id %q: %w", args[0], err)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		p, err := c.Payroll(context.Background(), id)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(p)
		}
		fmt.Printf("Payroll:   %d\n", p.PayrollID)
		fmt.Printf("Asset:     %s\n", p.Asset.Hex())
		fmt.Printf("Remaining: %s\n", units.Format(p.Remaining, decimals))
		fmt.Printf("Settled:   %t\n", p.Settled)
		return nil
	},
}

var stakeInfoCmd = &cobra.Command{
	Use:   "stake-info <member-id> [sequence]",
	Short: "Show a member's stake count, or one stake record",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		member, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid member id %q: %w", args[0], err)
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx := context.Background()
		if len(args) == 1 {
			n, err := c.StakeCount(ctx, member)
			if err != nil {
				return err
			}
			fmt.Printf("Member %d has %d stake(s)\n", member, n)
			return nil
		}
		seq, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid sequence %q: %w", args[1], err)
		}
		s, err := c.Stake(ctx, member, seq)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(s)
		}
		fmt.Printf("Stake:     %d/%d\n", s.MemberID, s.Sequence)
		fmt.Printf("Asset:     %s\n", s.Asset.Hex())
		fmt.Printf("Remaining: %s\n", units.Format(s.Remaining, decimals))
		fmt.Printf("Settled:   %t\n", s.Settled)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the ledger configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		cfg, err := c.Config(context.Background())
		if err != nil {
			return err
		}
		return printConfig(cfg)
	},
}

func printConfig(cfg *client.Config) error {
	if asJSON {
		return printJSON(cfg)
	}
	fmt.Printf("Destination: %s\n", cfg.Destination.Hex())
	fmt.Printf("Admin:       %s\n", cfg.Admin.Hex())
	fmt.Printf("Helper:      %s\n", cfg.Helper.Hex())
	fmt.Printf("Custody:     %s\n", cfg.Custody.Hex())
	for i, a := range cfg.Assets {
		label := "Assets:"
		if i > 0 {
			label = ""
		}
		fmt.Printf("%-12s %s\n", label, a.Hex())
	}
	return nil
}

var (
	journalFrom   int
	journalLimit  int
	journalVerify bool
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "List journal entries or verify the hash chain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx := context.Background()
		if journalVerify {
			ok, reason, err := c.VerifyJournal(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("journal chain broken: %s", reason)
			}
			fmt.Println("✓ Journal chain intact")
			return nil
		}
		entries, err := c.JournalEntries(ctx, journalFrom, journalLimit)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(entries)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "INDEX\tTIME\tACTION\tACTOR\tHASH")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.Index, e.Timestamp.Format(time.RFC3339), e.Action, e.Actor, shortHash(e.Hash))
		}
		return w.Flush()
	},
}

func init() {
	journalCmd.Flags().IntVar(&journalFrom, "from", 0, "First entry index")
	journalCmd.Flags().IntVar(&journalLimit, "limit", 50, "Maximum entries to list")
	journalCmd.Flags().BoolVar(&journalVerify, "verify", false, "Verify the hash chain instead of listing")
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// ── dev faucet ───────────────────────────────────────────────────────────────

var mintTo string

var mintCmd = &cobra.Command{
	Use:   "mint <asset> <amount>",
	Short: "Credit test funds (dev faucet servers only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		asset, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		amount, err := units.ParseUnits(args[1], decimals)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[1], err)
		}
		var to common.Address
		if mintTo != "" {
			if to, err = parseAddress(mintTo); err != nil {
				return err
			}
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.Mint(context.Background(), asset, to, amount); err != nil {
			return fmt.Errorf("mint: %w", err)
		}
		fmt.Printf("✓ Minted %s\n", units.Format(amount, decimals))
		return nil
	},
}

var approveSpender string

var approveCmd = &cobra.Command{
	Use:   "approve <asset> <amount>",
	Short: "Approve the ledger custody to pull funds (dev faucet servers only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		asset, err := parseAddress(args[0])
		if err != nil {
			return err
		}
		amount, err := units.ParseUnits(args[1], decimals)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", args[1], err)
		}
		var spender common.Address
		if approveSpender != "" {
			if spender, err = parseAddress(approveSpender); err != nil {
				return err
			}
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		if err := c.Approve(context.Background(), asset, spender, amount); err != nil {
			return fmt.Errorf("approve: %w", err)
		}
		fmt.Printf("✓ Approved %s\n", units.Format(amount, decimals))
		return nil
	},
}

func init() {
	mintCmd.Flags().StringVar(&mintTo, "to", "", "Recipient (default: the caller)")
	approveCmd.Flags().StringVar(&approveSpender, "spender", "", "Spender (default: the ledger custody)")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ledgerctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("ledgerctl", strings.TrimSpace(version))
	},
}

// Package main provides the zectransfer CLI tool for sending ZEC and reading
// wallet state through a zcashd node.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/complex-gh/zectransfer"
	"github.com/decred/slog"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-tty"
	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	maxWidth = 72
)

var (
	baseStyle  = lipgloss.NewStyle().Margin(0, 0, 1, 2) //nolint:mnd
	red        = lipgloss.Color(completeColor("#FF4444", "196", "9"))
	errorStyle = baseStyle.
			Foreground(red).
			Background(lipgloss.AdaptiveColor{Light: completeColor("#FFEBEB", "255", "7"), Dark: completeColor("#2B1A1A", "235", "8")}).
			Padding(1, 2) //nolint:mnd
)

// errReported means the failure has already been printed and only the exit
// code is left to set.
var errReported = errors.New("reported")

// opener builds the wallet opener for one invocation. Tests replace it.
type opener func(getenv func(string) string, log slog.Logger) zectransfer.OpenFunc

func rpcOpener(getenv func(string) string, log slog.Logger) zectransfer.OpenFunc {
	return zectransfer.RPCOpener(getenv, zectransfer.WithLogger(log))
}

type app struct {
	stdout io.Writer
	stderr io.Writer
	open   opener

	walletPath  string
	recipient   string
	amount      float64
	memo        string
	addressType string
	transparent bool
	limit       int
	debug       bool
	askPassword bool
}

func main() {
	// A .env file is optional; the real environment is used without one.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, rpcOpener)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, open opener) int {
	a := &app{stdout: stdout, stderr: stderr, open: open}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func (a *app) rootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zectransfer <command>",
		Short: "Send ZEC and inspect a Zcash wallet",
		Long: `Send ZEC and inspect a Zcash wallet through a running zcashd node.

The node is found through its zcash.conf (rpcuser, rpcpassword, rpcbind,
rpcport, testnet, regtest). Without --wallet the default data directory is
used. Credentials can also come from ZCASH_RPCUSER, ZCASH_RPCPASSWORD and
ZCASH_RPCHOST, from a .env file in the working directory, or from the node's
.cookie file.

Balance and transaction history are printed as JSON. A transfer prints its
result as JSON followed by a one-line summary.`,
		Example: `  zectransfer balance
  zectransfer address --address-type transparent
  zectransfer transfer --recipient zs1... --amount 1.5 --memo "thanks"
  zectransfer transfer --recipient t1... --amount 0.1 --transparent
  zectransfer transactions --limit 20 --wallet ~/.zcash/zcash.conf`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(*cobra.Command, []string) error {
			return errors.New("a command is required: transfer, balance, address or transactions")
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.walletPath, "wallet", "", "Path to the node's zcash.conf (default: "+zectransfer.DefaultConfigPath()+")")
	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Log RPC calls to stderr")
	rootCmd.PersistentFlags().BoolVar(&a.askPassword, "ask-password", false, "Prompt for the RPC password")

	transferCmd := &cobra.Command{
		Use:   "transfer",
		Short: "Send ZEC to an address",
		Long: `Send ZEC to an address.

Transfers are shielded by default: funds are spent from the wallet's unified
address. Use --transparent to spend from transparent funds instead. Memos can
only be delivered to shielded recipients.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         a.runTransfer,
	}
	transferCmd.Flags().StringVar(&a.recipient, "recipient", "", "Recipient ZEC address (required)")
	transferCmd.Flags().Float64Var(&a.amount, "amount", 0, "Amount in ZEC to transfer (required)")
	transferCmd.Flags().StringVar(&a.memo, "memo", "", "Optional memo for the transaction")
	transferCmd.Flags().BoolVar(&a.transparent, "transparent", false, "Use a transparent transaction (default: shielded)")

	balanceCmd := &cobra.Command{
		Use:          "balance",
		Short:        "Show transparent, shielded and total balance",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         a.runBalance,
	}

	addressCmd := &cobra.Command{
		Use:          "address",
		Short:        "Show the wallet's shielded or transparent address",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         a.runAddress,
	}
	addressCmd.Flags().StringVar(&a.addressType, "address-type", zectransfer.AddressShielded, "Address type: shielded or transparent")
	_ = addressCmd.RegisterFlagCompletionFunc("address-type", cobra.FixedCompletions(
		[]string{zectransfer.AddressShielded, zectransfer.AddressTransparent}, cobra.ShellCompDirectiveNoFileComp))

	transactionsCmd := &cobra.Command{
		Use:          "transactions",
		Short:        "List recent transactions",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         a.runTransactions,
	}
	transactionsCmd.Flags().IntVar(&a.limit, "limit", zectransfer.DefaultTransactionLimit, "Maximum number of transactions to list")

	rootCmd.AddCommand(transferCmd, balanceCmd, addressCmd, transactionsCmd)
	rootCmd.AddCommand(manCmd(rootCmd), completionCmd(rootCmd))
	return rootCmd
}

func manCmd(rootCmd *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:          "man",
		Args:         cobra.NoArgs,
		Short:        "generate man pages",
		Hidden:       true,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			manPage, err := mcobra.NewManPage(1, rootCmd)
			if err != nil {
				//nolint: wrapcheck
				return err
			}
			manPage = manPage.WithSection("Copyright", "(C) 2025-2026 complex.\n"+
				"Released under MIT license.")
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), manPage.Build(roff.NewDocument()))
			return nil
		},
	}
}

// completionCmd generates shell completion scripts for bash, zsh, fish, and powershell.
func completionCmd(rootCmd *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion script",
		Long: `Generate shell completion script for zectransfer.

To load completions:

Bash:
  $ source <(zectransfer completion bash)

Zsh:
  $ zectransfer completion zsh > "${fpath[1]}/_zectransfer"

Fish:
  $ zectransfer completion fish | source

PowerShell:
  PS> zectransfer completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		SilenceUsage:          true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return rootCmd.GenBashCompletion(out)
			case "zsh":
				return rootCmd.GenZshCompletion(out)
			case "fish":
				return rootCmd.GenFishCompletion(out, true)
			case "powershell":
				return rootCmd.GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unknown shell: %s", args[0])
			}
		},
	}
}

// logger returns the ZEC subsystem logger writing to stderr.
func (a *app) logger() slog.Logger {
	log := slog.NewBackend(a.stderr).Logger("ZEC")
	if a.debug {
		log.SetLevel(slog.LevelDebug)
	} else {
		log.SetLevel(slog.LevelInfo)
	}
	return log
}

// getenv returns the environment lookup for credentials, with the RPC
// password taken from the terminal when --ask-password is set.
func (a *app) getenv() (func(string) string, error) {
	if !a.askPassword {
		return os.Getenv, nil
	}
	pass, err := readPassword("Enter the zcashd RPC password: ")
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return func(key string) string {
		if key == zectransfer.EnvRPCPassword {
			return string(pass)
		}
		return os.Getenv(key)
	}, nil
}

// initialize opens the wallet. Nothing can run without it, so a failure is
// reported and ends the command.
func (a *app) initialize(cmd *cobra.Command) (*zectransfer.Manager, error) {
	getenv, err := a.getenv()
	if err != nil {
		return nil, err
	}
	m, err := zectransfer.Initialize(cmd.Context(), a.open(getenv, a.logger()), a.walletPath, a.stdout)
	if err != nil {
		return nil, errReported
	}
	return m, nil
}

func (a *app) runTransfer(cmd *cobra.Command, _ []string) error {
	m, err := a.initialize(cmd)
	if err != nil {
		return err
	}
	defer m.Close() //nolint:errcheck

	if a.recipient == "" || !cmd.Flags().Changed("amount") {
		_, _ = fmt.Fprintln(a.stdout, "✗ Error: --recipient and --amount are required for transfer")
		return errReported
	}

	res := m.Transfer(cmd.Context(), zectransfer.TransferRequest{
		Recipient: a.recipient,
		Amount:    a.amount,
		Memo:      a.memo,
		Shielded:  !a.transparent,
	})

	_, _ = fmt.Fprintln(a.stdout, "\nTransfer Result:")
	if err := a.printJSON(res); err != nil {
		return err
	}

	if !res.Success {
		a.printFailure(res.Error)
		return errReported
	}
	_, _ = fmt.Fprintf(a.stdout, "✓ Transaction sent! TXID: %s\n", res.TxID)
	return nil
}

func (a *app) runBalance(cmd *cobra.Command, _ []string) error {
	m, err := a.initialize(cmd)
	if err != nil {
		return err
	}
	defer m.Close() //nolint:errcheck

	bal := m.Balance(cmd.Context())
	_, _ = fmt.Fprintln(a.stdout, "\nWallet Balance:")
	return a.printJSON(bal)
}

func (a *app) runAddress(cmd *cobra.Command, _ []string) error {
	m, err := a.initialize(cmd)
	if err != nil {
		return err
	}
	defer m.Close() //nolint:errcheck

	addr, err := m.Address(cmd.Context(), a.addressType)
	if err != nil {
		return errReported
	}
	label := cases.Title(language.English).String(a.addressType)
	_, _ = fmt.Fprintf(a.stdout, "\n%s Address:\n%s\n", label, addr)
	return nil
}

func (a *app) runTransactions(cmd *cobra.Command, _ []string) error {
	m, err := a.initialize(cmd)
	if err != nil {
		return err
	}
	defer m.Close() //nolint:errcheck

	txs := m.Transactions(cmd.Context(), a.limit)
	_, _ = fmt.Fprintln(a.stdout, "\nRecent Transactions:")
	return a.printJSON(txs)
}

func (a *app) printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode result: %w", err)
	}
	_, _ = fmt.Fprintln(a.stdout, string(b))
	return nil
}

// printFailure prints the final failure line, inside the styled error block
// when stdout is a terminal.
func (a *app) printFailure(msg string) {
	line := "✗ " + msg
	if f, ok := a.stdout.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		b := strings.Builder{}
		renderBlock(&b, errorStyle, getWidth(maxWidth), line)
		_, _ = io.WriteString(a.stdout, b.String())
		return
	}
	_, _ = fmt.Fprintln(a.stdout, line)
}

func getWidth(maxw int) int {
	w, _, err := term.GetSize(int(os.Stdout.Fd())) //nolint: gosec
	if err != nil || w > maxw {
		return maxWidth
	}
	return w
}

func renderBlock(w io.Writer, s lipgloss.Style, width int, str string) {
	_, _ = io.WriteString(w, s.Width(width).Render(str))
	_, _ = io.WriteString(w, "\n")
}

func completeColor(truecolor, ansi256, ansi string) string {
	//nolint: exhaustive
	switch lipgloss.ColorProfile() {
	case termenv.TrueColor:
		return truecolor
	case termenv.ANSI256:
		return ansi256
	}
	return ansi
}

func readPassword(msg string) ([]byte, error) {
	_, _ = fmt.Fprint(os.Stderr, msg)
	t, err := tty.Open()
	if err != nil {
		return nil, fmt.Errorf("could not open tty: %w", err)
	}
	defer t.Close()                                     //nolint: errcheck
	pass, err := term.ReadPassword(int(t.Input().Fd())) //nolint: gosec
	if err != nil {
		return nil, fmt.Errorf("could not read passphrase: %w", err)
	}
	return pass, nil
}

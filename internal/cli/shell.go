// Package cli is the interactive command loop. Each input line is parsed
// into a subcommand with its own flag set and executed against the session.
package cli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/valutatrade/internal/domain"
	"github.com/vadiminshakov/valutatrade/internal/identity"
	"github.com/vadiminshakov/valutatrade/internal/services/rates"
	"github.com/vadiminshakov/valutatrade/internal/session"
)

const appName = "valutatrade"

// Users registers and authenticates users.
type Users interface {
	Register(username, password string) (identity.User, error)
	Login(username, password string) (identity.User, error)
}

// Trader executes trades and prices portfolios.
type Trader interface {
	Buy(userID, currency string, amount decimal.Decimal) (domain.TradeResult, error)
	Sell(userID, currency string, amount decimal.Decimal) (domain.TradeResult, error)
	Valuate(userID, base string) (domain.PortfolioValuation, error)
}

// Rates reads the rate cache.
type Rates interface {
	Quote(from, to string) (rates.Quote, bool)
	GetRates() domain.RateSnapshot
	IsStale() bool
	ShowRates(currency string, top int) []domain.RateRecord
}

// Updater refreshes the rate cache from sources.
type Updater interface {
	Update(ctx context.Context, filter string) ([]domain.RateRecord, error)
	Sources() []string
}

// Catalog lists supported currencies and formats amounts in them.
type Catalog interface {
	Fiats() []domain.CurrencyInfo
	Cryptos() []domain.CurrencyInfo
	Format(code string, amount decimal.Decimal) string
}

// PasswordPrompt asks for a secret that was not passed as a flag.
type PasswordPrompt func(title string) (string, error)

// Shell runs the read-eval-print loop.
type Shell struct {
	users   Users
	trader  Trader
	rates   Rates
	updater Updater
	catalog Catalog
	session *session.Session
	logger  *zap.Logger

	in       io.Reader
	out      io.Writer
	errOut   io.Writer
	prompt   PasswordPrompt
	base     string
	styles   styles
	markdown markdownRenderer

	flags     *flag.FlagSet
	commander *subcommands.Commander
	commands  map[string]bool
	done      bool
}

// Option configures a Shell.
type Option func(*Shell)

// WithIO replaces stdin, stdout and stderr.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(s *Shell) {
		s.in = in
		s.out = out
		s.errOut = errOut
	}
}

// WithPasswordPrompt overrides the interactive password prompt.
func WithPasswordPrompt(p PasswordPrompt) Option {
	return func(s *Shell) { s.prompt = p }
}

// WithBaseCurrency sets the default valuation currency for show-portfolio.
func WithBaseCurrency(code string) Option {
	return func(s *Shell) {
		if code != "" {
			s.base = domain.NormalizeCode(code)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Shell) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a shell bound to sess.
func New(users Users, trader Trader, rateSvc Rates, updater Updater, catalog Catalog, sess *session.Session, opts ...Option) *Shell {
	s := &Shell{
		users:   users,
		trader:  trader,
		rates:   rateSvc,
		updater: updater,
		catalog: catalog,
		session: sess,
		logger:  zap.NewNop(),
		in:      os.Stdin,
		out:     os.Stdout,
		errOut:  os.Stderr,
		prompt:  huhPassword,
		base:    "USD",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.session == nil {
		s.session = session.New()
	}

	s.styles = newStyles(lipgloss.NewRenderer(s.out))
	s.markdown = newMarkdownRenderer()

	s.flags = flag.NewFlagSet(appName, flag.ContinueOnError)
	s.flags.SetOutput(s.errOut)
	s.commander = subcommands.NewCommander(s.flags, appName)
	s.commander.Output = s.out
	s.commander.Error = s.errOut

	s.commands = make(map[string]bool)
	exit := &exitCmd{shell: s}
	for _, c := range []subcommands.Command{
		&registerCmd{shell: s},
		&loginCmd{shell: s},
		&logoutCmd{shell: s},
		&showPortfolioCmd{shell: s},
		&buyCmd{shell: s},
		&sellCmd{shell: s},
		&getRateCmd{shell: s},
		&updateRatesCmd{shell: s},
		&showRatesCmd{shell: s},
		&listCurrenciesCmd{shell: s},
		&helpCmd{shell: s},
		exit,
		subcommands.Alias("quit", exit),
	} {
		s.commander.Register(c, "")
		s.commands[c.Name()] = true
	}

	return s
}

// Run reads commands until exit, EOF or ctx cancellation.
func (s *Shell) Run(ctx context.Context) error {
	s.println(s.styles.banner.Render("=== ValutaTrade Hub ==="))
	s.println("Type 'help' for available commands, 'exit' to quit")

	scanner := bufio.NewScanner(s.in)
	for !s.done {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprintf(s.out, "\n%s ", s.styles.prompt.Render(s.promptText()))
		if !scanner.Scan() {
			s.println("\nGoodbye!")
			return scanner.Err()
		}

		s.Exec(ctx, scanner.Text())
	}

	return nil
}

// Exec runs a single command line.
func (s *Shell) Exec(ctx context.Context, line string) subcommands.ExitStatus {
	args, err := splitArgs(line)
	if err != nil {
		s.printf("Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	if len(args) == 0 {
		return subcommands.ExitSuccess
	}
	args[0] = strings.ToLower(args[0])

	if !s.commands[args[0]] {
		s.printf("Unknown command or invalid arguments: %s\n", line)
		s.println("Type 'help' for available commands")
		return subcommands.ExitUsageError
	}

	if err := s.flags.Parse(args); err != nil {
		s.printf("Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	status := s.commander.Execute(ctx)
	if status == subcommands.ExitUsageError {
		s.printf("Invalid arguments for %s. Type 'help' for available commands\n", args[0])
	}
	s.logger.Debug("command executed", zap.String("command", args[0]), zap.Int("status", int(status)))

	return status
}

// Done reports whether exit was requested.
func (s *Shell) Done() bool {
	return s.done
}

func (s *Shell) promptText() string {
	if name := s.session.Username(); name != "" {
		return fmt.Sprintf("%s[%s]>", appName, name)
	}
	return appName + ">"
}

func (s *Shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func (s *Shell) println(args ...any) {
	fmt.Fprintln(s.out, args...)
}

// fail prints err in the user-facing "Error: ..." form.
func (s *Shell) fail(err error) subcommands.ExitStatus {
	s.printf("Error: %s\n", message(err))
	return subcommands.ExitFailure
}

// password returns value or prompts for it.
func (s *Shell) password(value, title string) (string, error) {
	if value != "" {
		return value, nil
	}
	if s.prompt == nil {
		return "", fmt.Errorf("--password is required")
	}
	return s.prompt(title)
}

func huhPassword(title string) (string, error) {
	var pw string
	err := huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Value(&pw).
		Run()
	return pw, err
}

// splitArgs splits a line on whitespace honouring single and double quotes.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		quote   rune
		inArg   bool
	)

	for _, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			inArg = true
		case r == ' ' || r == '\t':
			if inArg {
				args = append(args, current.String())
				current.Reset()
				inArg = false
			}
		default:
			current.WriteRune(r)
			inArg = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote")
	}
	if inArg {
		args = append(args, current.String())
	}

	return args, nil
}

// message drops the sentinel suffix pkg/errors appends to wrapped validation errors.
func message(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{domain.ErrInvalidInput, domain.ErrUserNotFound} {
		msg = strings.TrimSuffix(msg, ": "+sentinel.Error())
	}
	return msg
}

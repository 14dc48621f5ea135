package cli

import (
	"context"
	"flag"
	"strings"

	"github.com/google/subcommands"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/valutatrade/internal/domain"
	"github.com/vadiminshakov/valutatrade/internal/services/rates"
)

type registerCmd struct {
	shell    *Shell
	username string
	password string
}

func (*registerCmd) Name() string     { return "register" }
func (*registerCmd) Synopsis() string { return "create a new user" }
func (*registerCmd) Usage() string {
	return "register --username <username> --password <password>\n"
}

func (c *registerCmd) SetFlags(f *flag.FlagSet) {
	f.SetOutput(c.shell.errOut)
	c.username, c.password = "", ""
	f.StringVar(&c.username, "username", "", "unique username")
	f.StringVar(&c.password, "password", "", "password, at least 4 characters")
}

func (c *registerCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.username == "" {
		return c.shell.fail(errors.Wrap(domain.ErrInvalidInput, "--username is required"))
	}
	password, err := c.shell.password(c.password, "Password")
	if err != nil {
		return c.shell.fail(err)
	}

	user, err := c.shell.users.Register(c.username, password)
	if err != nil {
		return c.shell.fail(err)
	}

	c.shell.printf("User '%s' registered (id=%s). Login: login --username %s --password ****\n",
		user.Username, user.ID, user.Username)
	return subcommands.ExitSuccess
}

type loginCmd struct {
	shell    *Shell
	username string
	password string
}

func (*loginCmd) Name() string     { return "login" }
func (*loginCmd) Synopsis() string { return "log in" }
func (*loginCmd) Usage() string {
	return "login --username <username> --password <password>\n"
}

func (c *loginCmd) SetFlags(f *flag.FlagSet) {
	f.SetOutput(c.shell.errOut)
	c.username, c.password = "", ""
	f.StringVar(&c.username, "username", "", "username")
	f.StringVar(&c.password, "password", "", "password")
}

func (c *loginCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.username == "" {
		return c.shell.fail(errors.Wrap(domain.ErrInvalidInput, "--username is required"))
	}
	password, err := c.shell.password(c.password, "Password")
	if err != nil {
		return c.shell.fail(err)
	}

	user, err := c.shell.users.Login(c.username, password)
	if err != nil {
		return c.shell.fail(err)
	}

	c.shell.session.Login(user)
	c.shell.printf("Logged in as '%s'\n", user.Username)
	return subcommands.ExitSuccess
}

type logoutCmd struct {
	shell *Shell
}

func (*logoutCmd) Name() string               { return "logout" }
func (*logoutCmd) Synopsis() string           { return "end the session" }
func (*logoutCmd) Usage() string              { return "logout\n" }
func (c *logoutCmd) SetFlags(f *flag.FlagSet) { f.SetOutput(c.shell.errOut) }

func (c *logoutCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	name := c.shell.session.Username()
	if name == "" {
		return c.shell.fail(domain.ErrNotLoggedIn)
	}
	c.shell.session.Logout()
	c.shell.printf("Logged out '%s'\n", name)
	return subcommands.ExitSuccess
}

type showPortfolioCmd struct {
	shell *Shell
	base  string
}

func (*showPortfolioCmd) Name() string     { return "show-portfolio" }
func (*showPortfolioCmd) Synopsis() string { return "show wallets valued in a base currency" }
func (*showPortfolioCmd) Usage() string    { return "show-portfolio [--base <currency>]\n" }

func (c *showPortfolioCmd) SetFlags(f *flag.FlagSet) {
	f.SetOutput(c.shell.errOut)
	c.base = ""
	f.StringVar(&c.base, "base", "", "valuation currency")
}

func (c *showPortfolioCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	user, err := c.shell.session.User()
	if err != nil {
		return c.shell.fail(err)
	}

	base := c.shell.base
	if c.base != "" {
		base = domain.NormalizeCode(c.base)
	}

	v, err := c.shell.trader.Valuate(user.ID, base)
	if err != nil {
		return c.shell.fail(err)
	}

	c.shell.printf("Portfolio of user '%s' (base: %s):\n", user.Username, v.Base)
	if len(v.Items) == 0 {
		c.shell.println("  Portfolio is empty")
		return subcommands.ExitSuccess
	}

	for _, item := range v.Items {
		switch {
		case item.Currency == v.Base:
			c.shell.printf("  - %s: %s → %s\n", item.Currency, fixed(item.Balance, 2), c.shell.catalog.Format(v.Base, item.Value))
		case item.Rate != nil:
			c.shell.printf("  - %s: %s → %s (rate: %s)\n",
				item.Currency, fixed(item.Balance, 4), c.shell.catalog.Format(v.Base, item.Value), fixed(*item.Rate, 4))
		default:
			c.shell.printf("  - %s: %s → rate unavailable\n", item.Currency, fixed(item.Balance, 4))
		}
	}
	c.shell.printf("TOTAL: %s\n", c.shell.catalog.Format(v.Base, v.Total))

	return subcommands.ExitSuccess
}

// tradeFlags are shared by buy and sell.
type tradeFlags struct {
	currency string
	amount   string
}

func (t *tradeFlags) set(f *flag.FlagSet) {
	t.currency, t.amount = "", ""
	f.StringVar(&t.currency, "currency", "", "currency code, e.g. BTC")
	f.StringVar(&t.amount, "amount", "", "positive amount")
}

func (t *tradeFlags) parse() (string, decimal.Decimal, error) {
	if t.currency == "" {
		return "", decimal.Zero, errors.Wrap(domain.ErrInvalidInput, "--currency is required")
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(t.amount))
	if err != nil || !amount.IsPositive() {
		return "", decimal.Zero, errors.Wrap(domain.ErrInvalidInput, "'amount' must be a positive number")
	}
	return t.currency, amount, nil
}

type buyCmd struct {
	shell *Shell
	tradeFlags
}

func (*buyCmd) Name() string     { return "buy" }
func (*buyCmd) Synopsis() string { return "buy currency" }
func (*buyCmd) Usage() string    { return "buy --currency <code> --amount <amount>\n" }

func (c *buyCmd) SetFlags(f *flag.FlagSet) {
	f.SetOutput(c.shell.errOut)
	c.set(f)
}

func (c *buyCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.shell.trade(domain.TradeSideBuy, &c.tradeFlags)
}

type sellCmd struct {
	shell *Shell
	tradeFlags
}

func (*sellCmd) Name() string     { return "sell" }
func (*sellCmd) Synopsis() string { return "sell currency" }
func (*sellCmd) Usage() string    { return "sell --currency <code> --amount <amount>\n" }

func (c *sellCmd) SetFlags(f *flag.FlagSet) {
	f.SetOutput(c.shell.errOut)
	c.set(f)
}

func (c *sellCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.shell.trade(domain.TradeSideSell, &c.tradeFlags)
}

func (s *Shell) trade(side domain.TradeSide, flags *tradeFlags) subcommands.ExitStatus {
	user, err := s.session.User()
	if err != nil {
		return s.fail(err)
	}
	currency, amount, err := flags.parse()
	if err != nil {
		return s.fail(err)
	}

	var res domain.TradeResult
	if side == domain.TradeSideBuy {
		res, err = s.trader.Buy(user.ID, currency, amount)
	} else {
		res, err = s.trader.Sell(user.ID, currency, amount)
	}
	if err != nil {
		return s.fail(err)
	}

	verb, estimate := "Purchase", "Estimated cost"
	if side == domain.TradeSideSell {
		verb, estimate = "Sale", "Estimated revenue"
	}

	s.printf("%s completed: %s %s\n", verb, fixed(res.Amount, 4), res.Currency)
	if res.HasRate() {
		s.printf("At rate: %s %s/%s\n", fixed(*res.Rate, 2), res.Quote, res.Currency)
		s.printf("%s: %s\n", estimate, s.catalog.Format(res.Quote, *res.Value))
	} else {
		s.printf("Rate %s→%s unavailable, value not estimated\n", res.Currency, res.Quote)
	}
	s.println("Portfolio changes:")
	s.printf("  - %s: was %s → now %s\n", res.Currency, fixed(res.OldBalance, 4), fixed(res.NewBalance, 4))

	return subcommands.ExitSuccess
}

type getRateCmd struct {
	shell *Shell
	from  string
	to    string
}

func (*getRateCmd) Name() string     { return "get-rate" }
func (*getRateCmd) Synopsis() string { return "show the rate for a currency pair" }
func (*getRateCmd) Usage() string    { return "get-rate --from <currency> --to <currency>\n" }

func (c *getRateCmd) SetFlags(f *flag.FlagSet) {
	f.SetOutput(c.shell.errOut)
	c.from, c.to = "", ""
	f.StringVar(&c.from, "from", "", "base currency")
	f.StringVar(&c.to, "to", "", "quote currency")
}

func (c *getRateCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.from == "" || c.to == "" {
		return c.shell.fail(errors.Wrap(domain.ErrInvalidInput, "--from and --to are required"))
	}
	from, to := domain.NormalizeCode(c.from), domain.NormalizeCode(c.to)

	q, ok := c.shell.rates.Quote(from, to)
	if !ok {
		c.shell.printf("Rate %s→%s unavailable. Try again later.\n", from, to)
		return subcommands.ExitFailure
	}

	updated := c.shell.rates.GetRates().LastRefresh
	c.shell.printf("Rate %s→%s: %s (updated: %s)\n", from, to, fixed(q.Rate, 6), timestamp(updated))
	if q.Rate.IsPositive() {
		c.shell.printf("Reverse rate %s→%s: %s\n", to, from, fixed(rates.Invert(q.Rate), 6))
	}
	if q.Source != "" {
		c.shell.println(c.shell.styles.muted.Render(
			"source: " + q.Source + " (" + string(q.Resolution) + "), fetched " + timestamp(q.FetchedAt)))
	}
	if c.shell.rates.IsStale() {
		c.shell.println("Warning: rates cache is stale. Run 'update-rates' to refresh.")
	}

	return subcommands.ExitSuccess
}

type updateRatesCmd struct {
	shell  *Shell
	source string
}

func (*updateRatesCmd) Name() string     { return "update-rates" }
func (*updateRatesCmd) Synopsis() string { return "refresh the rate cache from sources" }
func (*updateRatesCmd) Usage() string    { return "update-rates [--source <name>]\n" }

func (c *updateRatesCmd) SetFlags(f *flag.FlagSet) {
	f.SetOutput(c.shell.errOut)
	c.source = ""
	f.StringVar(&c.source, "source", "", "only query this source")
}

func (c *updateRatesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	applied, err := c.shell.updater.Update(ctx, c.source)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return c.shell.fail(err)
		}
		c.shell.printf("Update failed: %v\n", err)
		return subcommands.ExitFailure
	}

	if len(applied) == 0 {
		c.shell.println("No rates were updated. Check logs for details.")
		return subcommands.ExitSuccess
	}

	c.shell.printf("Update successful. Total rates updated: %d\n", len(applied))
	c.shell.printf("Last refresh: %s\n", timestamp(c.shell.rates.GetRates().LastRefresh))
	return subcommands.ExitSuccess
}

type showRatesCmd struct {
	shell    *Shell
	currency string
	top      int
}

func (*showRatesCmd) Name() string     { return "show-rates" }
func (*showRatesCmd) Synopsis() string { return "list cached rates" }
func (*showRatesCmd) Usage() string    { return "show-rates [--currency <code>] [--top <N>]\n" }

func (c *showRatesCmd) SetFlags(f *flag.FlagSet) {
	f.SetOutput(c.shell.errOut)
	c.currency, c.top = "", 0
	f.StringVar(&c.currency, "currency", "", "only pairs containing this currency")
	f.IntVar(&c.top, "top", 0, "show the N highest rates")
}

func (c *showRatesCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.top < 0 {
		return c.shell.fail(errors.Wrap(domain.ErrInvalidInput, "--top must not be negative"))
	}

	snap := c.shell.rates.GetRates()
	if snap.IsEmpty() {
		c.shell.println("Local rates cache is empty. Run 'update-rates' to load data.")
		return subcommands.ExitSuccess
	}

	records := c.shell.rates.ShowRates(c.currency, c.top)
	if len(records) == 0 {
		c.shell.printf("No cached rates for '%s'.\n", domain.NormalizeCode(c.currency))
		return subcommands.ExitSuccess
	}

	c.shell.printf("Rates from cache (updated at %s):\n", timestamp(snap.LastRefresh))
	for _, rec := range records {
		c.shell.printf("- %s: %s (source: %s)\n", rec.Pair, rec.Rate.String(), rec.Source)
	}
	return subcommands.ExitSuccess
}

type listCurrenciesCmd struct {
	shell *Shell
}

func (*listCurrenciesCmd) Name() string               { return "list-currencies" }
func (*listCurrenciesCmd) Synopsis() string           { return "list supported currencies" }
func (*listCurrenciesCmd) Usage() string              { return "list-currencies\n" }
func (c *listCurrenciesCmd) SetFlags(f *flag.FlagSet) { f.SetOutput(c.shell.errOut) }

func (c *listCurrenciesCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	c.shell.println(c.shell.styles.header.Render("Supported currencies:"))
	c.shell.println(strings.Repeat("-", 80))

	if fiats := c.shell.catalog.Fiats(); len(fiats) > 0 {
		c.shell.println("\nFiat currencies:")
		for _, info := range fiats {
			c.shell.printf("  %s\n", info.DisplayInfo())
		}
	}
	if cryptos := c.shell.catalog.Cryptos(); len(cryptos) > 0 {
		c.shell.println("\nCryptocurrencies:")
		for _, info := range cryptos {
			c.shell.printf("  %s\n", info.DisplayInfo())
		}
	}
	return subcommands.ExitSuccess
}

type helpCmd struct {
	shell *Shell
}

func (*helpCmd) Name() string               { return "help" }
func (*helpCmd) Synopsis() string           { return "describe commands" }
func (*helpCmd) Usage() string              { return "help\n" }
func (c *helpCmd) SetFlags(f *flag.FlagSet) { f.SetOutput(c.shell.errOut) }

func (c *helpCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	c.shell.printf("%s", c.shell.markdown(helpText(c.shell.updater.Sources())))
	return subcommands.ExitSuccess
}

type exitCmd struct {
	shell *Shell
}

func (*exitCmd) Name() string               { return "exit" }
func (*exitCmd) Synopsis() string           { return "quit" }
func (*exitCmd) Usage() string              { return "exit\n" }
func (c *exitCmd) SetFlags(f *flag.FlagSet) { f.SetOutput(c.shell.errOut) }

func (c *exitCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	c.shell.done = true
	c.shell.println("Goodbye!")
	return subcommands.ExitSuccess
}

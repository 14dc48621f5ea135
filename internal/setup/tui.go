package setup

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/vadiminshakov/valutatrade/config"
	"github.com/vadiminshakov/valutatrade/internal/catalog"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// answers collects wizard input as strings until Apply.
type answers struct {
	dataDir      string
	sources      []string
	ratesTTL     string
	fetchTimeout string
	fetchRetries string
	baseCurrency string
	metricsAddr  string
	logLevel     string
}

func defaultAnswers(cfg config.Config) answers {
	a := answers{
		dataDir:      cfg.DataDir,
		ratesTTL:     cfg.RatesTTL.String(),
		fetchTimeout: cfg.FetchTimeout.String(),
		fetchRetries: strconv.Itoa(cfg.FetchRetries),
		baseCurrency: cfg.BaseCurrency,
		metricsAddr:  cfg.MetricsAddr,
		logLevel:     cfg.LogLevel,
	}
	for _, s := range cfg.Sources {
		if s.Enabled {
			a.sources = append(a.sources, s.Name)
		}
	}
	return a
}

// apply writes validated answers onto cfg.
func (a answers) apply(cfg config.Config) (config.Config, error) {
	ttl, err := time.ParseDuration(a.ratesTTL)
	if err != nil {
		return cfg, fmt.Errorf("rates ttl: %w", err)
	}
	timeout, err := time.ParseDuration(a.fetchTimeout)
	if err != nil {
		return cfg, fmt.Errorf("fetch timeout: %w", err)
	}
	retries, err := strconv.Atoi(a.fetchRetries)
	if err != nil {
		return cfg, fmt.Errorf("fetch retries: %w", err)
	}

	cfg.DataDir = a.dataDir
	cfg.RatesTTL = ttl
	cfg.FetchTimeout = timeout
	cfg.FetchRetries = retries
	cfg.BaseCurrency = strings.ToUpper(a.baseCurrency)
	cfg.MetricsAddr = a.metricsAddr
	cfg.LogLevel = a.logLevel

	cfg.Sources = append([]config.SourceConfig(nil), cfg.Sources...)
	enabled := make(map[string]bool, len(a.sources))
	for _, name := range a.sources {
		enabled[name] = true
	}
	for i := range cfg.Sources {
		cfg.Sources[i].Enabled = enabled[cfg.Sources[i].Name]
	}

	return cfg, cfg.Validate()
}

func header(step string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("VALUTATRADE CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI launches the terminal configuration wizard and writes the result to path.
func RunTUI(path string, base config.Config) error {
	a := defaultAnswers(base)
	var confirm bool

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("VALUTATRADE CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Configure rate sources and local storage.\n"))

	fmt.Println(stepStyle.Render("STEP 1: STORAGE"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Data directory").
				Description("Holds rates.json, users.json and the journal").
				Value(&a.dataDir).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("data directory cannot be empty")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	header("STEP 2: RATE SOURCES")
	sourceOptions := make([]huh.Option[string], 0, len(base.Sources))
	for _, s := range base.Sources {
		label := fmt.Sprintf("%s (%s vs %s)", s.Name, strings.Join(s.Symbols, ", "), s.Quote)
		sourceOptions = append(sourceOptions, huh.NewOption(label, s.Name))
	}
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Enabled sources").
				Description("hyperliquid also needs HYPERLIQUID_PRIVATE_KEY in the environment").
				Options(sourceOptions...).
				Value(&a.sources).
				Validate(func(s []string) error {
					if len(s) == 0 {
						return fmt.Errorf("select at least one source")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	header("STEP 3: TIMING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Rates TTL").
				Description("Cache older than this is reported stale (e.g. 5m)").
				Value(&a.ratesTTL).
				Validate(validateDuration),
			huh.NewInput().
				Title("Fetch timeout").
				Description("Per source request bound (e.g. 10s)").
				Value(&a.fetchTimeout).
				Validate(validatePositiveDuration),
			huh.NewInput().
				Title("Fetch retries").
				Description("Retries for transient source errors").
				Value(&a.fetchRetries).
				Validate(validateRetries),
		),
	).Run()
	if err != nil {
		return err
	}

	header("STEP 4: DISPLAY AND MONITORING")
	baseOptions := make([]huh.Option[string], 0)
	for _, info := range catalog.Default().Fiats() {
		baseOptions = append(baseOptions, huh.NewOption(info.Code+" "+info.Name, info.Code))
	}
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Base currency").
				Options(baseOptions...).
				Value(&a.baseCurrency),
			huh.NewInput().
				Title("Metrics address").
				Description("host:port for /metrics, empty disables").
				Value(&a.metricsAddr).
				Validate(validateAddr),
			huh.NewSelect[string]().
				Title("Log level").
				Options(
					huh.NewOption("debug", "debug"),
					huh.NewOption("info", "info"),
					huh.NewOption("warn", "warn"),
					huh.NewOption("error", "error"),
				).
				Value(&a.logLevel),
		),
	).Run()
	if err != nil {
		return err
	}

	header("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Data dir: %s\nSources: %s\nRates TTL: %s\nFetch: %s, %s retries\nBase: %s\n",
		a.dataDir, strings.Join(a.sources, ", "), a.ratesTTL, a.fetchTimeout, a.fetchRetries, a.baseCurrency,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	cfg, err := a.apply(base)
	if err != nil {
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", path)))
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("must be a duration like 30s or 5m")
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validatePositiveDuration(s string) error {
	if err := validateDuration(s); err != nil {
		return err
	}
	if d, _ := time.ParseDuration(s); d == 0 {
		return fmt.Errorf("must be greater than zero")
	}
	return nil
}

func validateRetries(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a whole number")
	}
	if n < 0 || n > 10 {
		return fmt.Errorf("must be between 0 and 10")
	}
	return nil
}

func validateAddr(s string) error {
	if s == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(s); err != nil {
		return fmt.Errorf("must be host:port, e.g. :9090")
	}
	return nil
}

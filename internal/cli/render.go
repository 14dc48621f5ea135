package cli

import (
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

type styles struct {
	banner lipgloss.Style
	prompt lipgloss.Style
	header lipgloss.Style
	muted  lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		banner: r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}),
		prompt: r.NewStyle().Foreground(lipgloss.Color("205")),
		header: r.NewStyle().Bold(true),
		muted:  r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}),
	}
}

type markdownRenderer func(md string) string

func newMarkdownRenderer() markdownRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	return func(md string) string {
		if err != nil {
			return md
		}
		out, rerr := r.Render(md)
		if rerr != nil {
			return md
		}
		return out
	}
}

func fixed(amount decimal.Decimal, places int32) string {
	return amount.StringFixed(places)
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(time.RFC3339)
}

const helpMarkdown = `# ValutaTrade Hub

| Command | Description |
| --- | --- |
| ` + "`register --username <name> --password <password>`" + ` | create a user |
| ` + "`login --username <name> --password <password>`" + ` | start a session |
| ` + "`logout`" + ` | end the session |
| ` + "`show-portfolio [--base <currency>]`" + ` | wallets valued in a base currency |
| ` + "`buy --currency <code> --amount <amount>`" + ` | buy currency |
| ` + "`sell --currency <code> --amount <amount>`" + ` | sell currency |
| ` + "`get-rate --from <currency> --to <currency>`" + ` | rate for a pair |
| ` + "`update-rates [--source <SOURCES>]`" + ` | refresh the rate cache |
| ` + "`show-rates [--currency <code>] [--top <N>]`" + ` | cached rates |
| ` + "`list-currencies`" + ` | supported currencies |
| ` + "`help`" + ` | this help |
| ` + "`exit`" + ` | quit |

## Examples

    register --username alice --password 1234
    buy --currency BTC --amount 0.05
    get-rate --from USD --to BTC
    update-rates --source coingecko
    show-rates --top 3
`

func helpText(sources []string) string {
	names := "all"
	if len(sources) > 0 {
		names = strings.Join(sources, "|")
	}
	return strings.Replace(helpMarkdown, "<SOURCES>", names, 1)
}

// Package digest renders news items as a Telegram Markdown message.
//
// Upstream text is embedded as-is. A title containing '*' or '[' can break
// the Markdown parse on the Telegram side.
package digest

import (
	"strconv"
	"strings"
	"time"

	"newsbot/internal/locale"
	"newsbot/internal/newsapi"
)

const DefaultTitle = "أهم أخبار المغرب"

type Options struct {
	Title string
	// Footer appends the generation time after the last block.
	Footer        bool
	SummaryBudget int
}

type Formatter struct {
	title  string
	footer bool
	budget int
}

func New(opt Options) *Formatter {
	if strings.TrimSpace(opt.Title) == "" {
		opt.Title = DefaultTitle
	}
	if opt.SummaryBudget <= 0 {
		opt.SummaryBudget = 180
	}
	return &Formatter{title: opt.Title, footer: opt.Footer, budget: opt.SummaryBudget}
}

// Render returns the digest for items, or the no-news message when there
// are none.
func (f *Formatter) Render(items []newsapi.Item, generatedAt time.Time) string {
	if len(items) == 0 {
		return locale.NoNews
	}

	var b strings.Builder
	b.WriteString("📰 *")
	b.WriteString(f.title)
	b.WriteString("*\n")
	b.WriteString(generatedAt.Format(locale.DateLayout))
	b.WriteString("\n\n")

	for i, it := range items {
		writeBlock(&b, i+1, it, f.budget)
	}
	if f.footer {
		b.WriteString("🕐 ")
		b.WriteString(generatedAt.Format(locale.FooterLayout))
	}
	return strings.TrimSpace(b.String())
}

func writeBlock(b *strings.Builder, n int, it newsapi.Item, budget int) {
	source := it.Source
	if strings.TrimSpace(source) == "" {
		source = locale.DefaultSrc
	}
	url := it.URL
	if strings.TrimSpace(url) == "" {
		url = newsapi.DefaultFallbackURL
	}

	b.WriteString("*")
	b.WriteString(strconv.Itoa(n))
	b.WriteString(". ")
	b.WriteString(it.Title)
	b.WriteString("*\n📝 ")
	b.WriteString(newsapi.TruncateSummary(it.Summary, budget))
	b.WriteString("\n🔗 [")
	b.WriteString(locale.ReadLabel)
	b.WriteString("](")
	b.WriteString(url)
	b.WriteString(")\n📍 ")
	b.WriteString(source)
	b.WriteString("\n\n")
}

// BlockCount returns the number of item blocks in a rendered digest.
func BlockCount(msg string) int {
	return strings.Count(msg, "\n🔗 [")
}

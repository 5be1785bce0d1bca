package digest

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"newsbot/internal/locale"
	"newsbot/internal/newsapi"
)

var at = time.Date(2026, 10, 14, 8, 5, 0, 0, time.UTC)

func TestRenderEmpty(t *testing.T) {
	f := New(Options{})
	if got := f.Render(nil, at); got != locale.NoNews {
		t.Fatalf("Render(nil) = %q", got)
	}
	if got := f.Render([]newsapi.Item{}, at); got != "📰 لا توجد أخبار مهمة." {
		t.Fatalf("Render([]) = %q", got)
	}
}

func TestRenderExactLayout(t *testing.T) {
	f := New(Options{})
	items := []newsapi.Item{
		{Title: "Morocco A", Summary: "first", URL: "https://a", Source: "Hespress"},
		{Title: "Morocco B", Summary: "second", URL: "https://b", Source: "Le360"},
	}
	want := "📰 *أهم أخبار المغرب*\n2026-10-14\n\n" +
		"*1. Morocco A*\n📝 first\n🔗 [اقرأ](https://a)\n📍 Hespress\n\n" +
		"*2. Morocco B*\n📝 second\n🔗 [اقرأ](https://b)\n📍 Le360"
	if got := f.Render(items, at); got != want {
		t.Fatalf("Render =\n%q\nwant\n%q", got, want)
	}
}

func TestRenderOneBlockPerItemInOrder(t *testing.T) {
	f := New(Options{Footer: true, Title: "Custom"})
	var items []newsapi.Item
	for _, title := range []string{"c", "a", "b"} {
		items = append(items, newsapi.Item{Title: title, Summary: strings.Repeat("x", 300)})
	}
	got := f.Render(items, at)

	if n := BlockCount(got); n != len(items) {
		t.Fatalf("blocks = %d, want %d", n, len(items))
	}
	if !(strings.Index(got, "*1. c*") < strings.Index(got, "*2. a*") && strings.Index(got, "*2. a*") < strings.Index(got, "*3. b*")) {
		t.Fatalf("blocks out of order:\n%s", got)
	}
	if !strings.HasPrefix(got, "📰 *Custom*\n") {
		t.Fatalf("custom title missing: %q", got[:40])
	}
	if !strings.HasSuffix(got, "🕐 08:05") {
		t.Fatalf("footer missing: %q", got)
	}
	if !strings.Contains(got, "📍 مصادر") || !strings.Contains(got, "(https://you.com)") {
		t.Fatal("defaults for source and url not rendered")
	}

	for _, line := range strings.Split(got, "\n") {
		if !strings.HasPrefix(line, "📝 ") {
			continue
		}
		summary := strings.TrimSuffix(strings.TrimPrefix(line, "📝 "), newsapi.Ellipsis)
		if n := utf8.RuneCountInString(summary); n > 180 {
			t.Fatalf("summary has %d runes", n)
		}
	}
}

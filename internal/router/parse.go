package router

import "strings"

// Command is a parsed "/name@bot arg..." line.
type Command struct {
	Name    string // lower-cased, without slash or mention
	Mention string // bot username after '@', if any
	Args    []string
}

// Parse reads a slash command. ok is false for plain text.
func Parse(text string) (cmd Command, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return Command{}, false
	}
	parts := tokenize(text)
	if len(parts) == 0 {
		return Command{}, false
	}
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		cmd.Mention = word[i+1:]
		word = word[:i]
	}
	if word == "" {
		return Command{}, false
	}
	cmd.Name = strings.ToLower(word)
	if len(parts) > 1 {
		cmd.Args = parts[1:]
	}
	return cmd, true
}

// tokenize splits on whitespace, honoring single/double quotes and
// backslash escapes:
//
//	/status "123 456" a\ b  ->  [/status, 123 456, a b]
func tokenize(s string) []string {
	var (
		out    []string
		buf    strings.Builder
		quote  rune
		escape bool
	)
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, buf.String())
			buf.Reset()
		}
	}
	for _, r := range s {
		switch {
		case escape:
			buf.WriteRune(r)
			escape = false
		case r == '\\':
			escape = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				buf.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			flush()
		default:
			buf.WriteRune(r)
		}
	}
	flush()
	return out
}

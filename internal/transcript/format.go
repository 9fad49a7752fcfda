package transcript

import "strings"

// Separator terminates every block in the output file.
var Separator = strings.Repeat("=", 80)

// Header is written once when the output file is created.
var Header = "transcript monitor output\n" + Separator + "\n\n"

// Markers of the collapsible "Thinking..." wrapper the upstream generator
// puts around its reasoning.
const (
	ThinkingOpen  = `<details style="color:gray;background-color: #f8f8f8;padding: 8px;border-radius: 4px;" open> <summary> Thinking... </summary>`
	ThinkingClose = `</details>`
)

// Sanitizer strips exact boilerplate markers from answer text. It does not
// parse markup: anything that is not byte-for-byte a marker is kept.
type Sanitizer struct {
	Open  string
	Close string
}

// DefaultSanitizer strips the "Thinking..." wrapper.
func DefaultSanitizer() Sanitizer {
	return Sanitizer{Open: ThinkingOpen, Close: ThinkingClose}
}

// Sanitize removes markers until none remain, then trims whitespace. Removing
// to a fixed point keeps the result stable under repeated application even
// when a removal splices a new marker together.
func (s Sanitizer) Sanitize(text string) string {
	for {
		next := text
		if s.Open != "" {
			next = strings.ReplaceAll(next, s.Open, "")
		}
		if s.Close != "" {
			next = strings.ReplaceAll(next, s.Close, "")
		}
		if next == text {
			break
		}
		text = next
	}
	return strings.TrimSpace(text)
}

// Formatter renders message records as transcript blocks.
type Formatter struct {
	IncludeUser bool
	Sanitizer   Sanitizer
}

func NewFormatter(includeUser bool) Formatter {
	return Formatter{IncludeUser: includeUser, Sanitizer: DefaultSanitizer()}
}

// Format returns the block for rec. The block ends with the separator line
// followed by one blank line.
func (f Formatter) Format(rec MessageRecord) string {
	lines := make([]string, 0, 7)
	if f.IncludeUser {
		lines = append(lines, "user: "+rec.FromAccountID)
	}
	lines = append(lines,
		"time: "+rec.CreatedAt.String(),
		"question: "+rec.Query,
		"answer:",
		f.Sanitizer.Sanitize(rec.Answer),
		Separator,
		"",
	)
	return strings.Join(lines, "\n") + "\n"
}

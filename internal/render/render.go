// Package render turns estimations, history records and analyses into
// terminal text.
package render

import (
	"github.com/yildizm/go-termfmt"

	"github.com/yildizm/contractis/internal/emoji"
)

// Options configures a Renderer
type Options struct {
	Color           bool
	WordWrap        int    // glamour wrap width, default 100
	TimestampFormat string // default "2006-01-02 15:04"
}

// Renderer formats domain values for the terminal
type Renderer struct {
	opts Options
	term *termfmt.TerminalOptions
}

// New creates a renderer. Emoji follow the emoji package setting.
func New(opts Options) *Renderer {
	if opts.WordWrap <= 0 {
		opts.WordWrap = 100
	}
	if opts.TimestampFormat == "" {
		opts.TimestampFormat = "2006-01-02 15:04"
	}

	term := termfmt.DefaultOptions()
	term.Color = opts.Color
	term.Emoji = !emoji.IsEmojiDisabled()

	return &Renderer{opts: opts, term: term}
}

// WithWordWrap returns a copy that wraps analyses at width
func (r *Renderer) WithWordWrap(width int) *Renderer {
	opts := r.opts
	opts.WordWrap = width
	return New(opts)
}

func (r *Renderer) tree(items []termfmt.TreeItem) string {
	if len(items) > 0 {
		items[len(items)-1].Last = true
	}
	return termfmt.TreeViewWithOptions(items, r.term)
}

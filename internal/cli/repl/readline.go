package repl

import (
	"github.com/chzyer/readline"
)

// NewReadline opens a line editor with command completion. historyFile may be empty.
func NewReadline(historyFile string) (*readline.Instance, error) {
	completer := readline.NewPrefixCompleter(
		readline.PcItem(":run"),
		readline.PcItem(":show"),
		readline.PcItem(":clear"),
		readline.PcItem(":undo"),
		readline.PcItem(":load"),
		readline.PcItem(":status"),
		readline.PcItem(":reload"),
		readline.PcItem(":help"),
		readline.PcItem(":quit"),
	)
	return readline.NewEx(&readline.Config{
		Prompt:          Prompt,
		HistoryFile:     historyFile,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       ":quit",
	})
}

package console

import (
	"errors"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// Shell reads lines from the terminal until handle returns false, the input
// ends or the user interrupts.
func Shell(prompt string, completer []string, handle func(line string) bool) error {
	items := make([]readline.PrefixCompleterInterface, 0, len(completer))
	for _, c := range completer {
		items = append(items, readline.PcItem(c))
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !handle(line) {
			return nil
		}
	}
}

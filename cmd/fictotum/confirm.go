package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/rotisserie/eris"

	"github.com/Ramsey-B/fictotum/pkg/resolution"
)

const confirmPhrase = "CONFIRM"

var errNotConfirmed = errors.New("aborted: execution was not confirmed")

// confirmExecute asks the operator to type CONFIRM before anything is written
func confirmExecute(action string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
	})
	if err != nil {
		return eris.Wrap(err, "open confirmation prompt")
	}
	defer rl.Close()
	return askConfirmation(rl, rl.Stdout(), action)
}

func askConfirmation(reader resolution.LineReader, out io.Writer, action string) error {
	fmt.Fprintf(out, "%s %s\n", color.New(color.FgRed, color.Bold).Sprint("About to write:"), action)
	fmt.Fprintf(out, "Type %s to continue: ", confirmPhrase)
	line, err := reader.Readline()
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, readline.ErrInterrupt) {
		return eris.Wrap(err, "read confirmation")
	}
	if strings.TrimSpace(line) != confirmPhrase {
		return errNotConfirmed
	}
	return nil
}

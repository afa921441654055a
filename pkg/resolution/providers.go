package resolution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/Ramsey-B/fictotum/pkg/models"
)

// Answer is a provider's choice for one pair
type Answer struct {
	Action models.ResolutionAction
	Source models.DecisionSource
	Note   string
}

// DecisionProvider answers pairs the resolver cannot decide on its own.
// It returns ErrNoDecision when it has no answer.
type DecisionProvider interface {
	Decide(ctx context.Context, req models.DecisionRequest) (Answer, error)
}

// PolicyProvider applies a fixed action per tier
type PolicyProvider struct {
	Actions map[models.MatchTier]models.ResolutionAction
}

func (p PolicyProvider) Decide(_ context.Context, req models.DecisionRequest) (Answer, error) {
	action, ok := p.Actions[req.Tier]
	if !ok {
		return Answer{}, ErrNoDecision
	}
	return Answer{
		Action: action,
		Source: models.DecisionSourcePolicy,
		Note:   fmt.Sprintf("policy for %s", req.Tier),
	}, nil
}

// AnswerFileProvider answers from a pre-filled map of pair key to action
type AnswerFileProvider struct {
	answers map[string]models.ResolutionAction
}

// NewAnswerFileProvider validates answers up front
func NewAnswerFileProvider(answers map[string]string) (*AnswerFileProvider, error) {
	parsed := make(map[string]models.ResolutionAction, len(answers))
	var errs models.ValidationErrors
	for _, key := range models.SortedKeys(answers) {
		action, ok := models.ParseResolutionAction(answers[key])
		if !ok {
			errs = append(errs, models.ValidationError{Field: key, Message: fmt.Sprintf("unknown action %q", answers[key])})
			continue
		}
		parsed[key] = action
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return &AnswerFileProvider{answers: parsed}, nil
}

// LoadAnswerFile reads a YAML answer file
func LoadAnswerFile(path string) (*AnswerFileProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read answer file: %w", err)
	}
	answers, err := decodeAnswers(data)
	if err != nil {
		return nil, err
	}
	return NewAnswerFileProvider(answers)
}

func (p *AnswerFileProvider) Decide(_ context.Context, req models.DecisionRequest) (Answer, error) {
	action, ok := p.answers[req.Key]
	if !ok {
		return Answer{}, ErrNoDecision
	}
	return Answer{Action: action, Source: models.DecisionSourceAnswerFile}, nil
}

// ChainProvider asks each provider in turn and returns the first answer
type ChainProvider []DecisionProvider

func (c ChainProvider) Decide(ctx context.Context, req models.DecisionRequest) (Answer, error) {
	for _, p := range c {
		if p == nil {
			continue
		}
		answer, err := p.Decide(ctx, req)
		if errors.Is(err, ErrNoDecision) {
			continue
		}
		return answer, err
	}
	return Answer{}, ErrNoDecision
}

// LineReader is the part of a readline instance the prompt uses
type LineReader interface {
	Readline() (string, error)
}

// PromptProvider asks a curator at the terminal
type PromptProvider struct {
	reader LineReader
	out    io.Writer
}

// NewPromptProvider creates a prompt over an existing line reader
func NewPromptProvider(reader LineReader, out io.Writer) *PromptProvider {
	return &PromptProvider{reader: reader, out: out}
}

// NewTerminalPrompt opens a readline session on the terminal. Call the returned func to close it.
func NewTerminalPrompt() (*PromptProvider, func() error, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "resolution> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open terminal prompt: %w", err)
	}
	return NewPromptProvider(rl, rl.Stdout()), rl.Close, nil
}

func (p *PromptProvider) Decide(ctx context.Context, req models.DecisionRequest) (Answer, error) {
	p.printSummary(req)

	for {
		if err := ctx.Err(); err != nil {
			return Answer{}, err
		}
		line, err := p.reader.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return Answer{}, ErrNoDecision
		}
		if err != nil {
			return Answer{}, fmt.Errorf("failed to read answer: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "1", "u", "use", string(models.ActionUseExisting):
			return Answer{Action: models.ActionUseExisting, Source: models.DecisionSourcePrompt}, nil
		case "2", "c", "create", string(models.ActionCreateNew):
			return Answer{Action: models.ActionCreateNew, Source: models.DecisionSourcePrompt}, nil
		case "3", "s", string(models.ActionSkip):
			return Answer{Action: models.ActionSkip, Source: models.DecisionSourcePrompt}, nil
		case "q", "quit", "":
			return Answer{}, ErrNoDecision
		}
		fmt.Fprintln(p.out, color.RedString("Please answer 1 (use existing), 2 (create new), 3 (skip) or q"))
	}
}

func (p *PromptProvider) printSummary(req models.DecisionRequest) {
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(p.out, "\n%s %s (score %.3f)\n", yellow("Possible duplicate:"), req.Tier, req.Score)
	if req.Degraded {
		fmt.Fprintln(p.out, color.YellowString("  similarity ran in degraded mode, scores are less precise"))
	}
	fmt.Fprintf(p.out, "  %s %s\n", bold("incoming:"), describe(req.Incoming))
	fmt.Fprintf(p.out, "  %s %s\n", bold("existing:"), describe(req.Existing))
	for _, alt := range req.Alternate {
		fmt.Fprintf(p.out, "  %s %s\n", cyan("also:"), describe(alt))
	}
	fmt.Fprintln(p.out, "  1) use existing  2) create new  3) skip  q) decide later")
}

func describe(e models.Entity) string {
	parts := []string{fmt.Sprintf("%q", e.Name)}
	if e.LocalID != "" {
		parts = append(parts, "id="+e.LocalID)
	}
	if e.AuthoritativeID != "" {
		parts = append(parts, "qid="+e.AuthoritativeID)
	}
	if e.Year != nil {
		span := fmt.Sprintf("%d", *e.Year)
		if e.EndYear != nil {
			span += fmt.Sprintf("-%d", *e.EndYear)
		}
		parts = append(parts, span)
	}
	if e.Category != "" {
		parts = append(parts, e.Category)
	}
	return strings.Join(parts, " ")
}

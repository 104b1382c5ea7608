// Package command classifies an inbound message as a create, cancel or
// reschedule request.
package command

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/pathakanu/nhacnho/internal/model"
	"github.com/pathakanu/nhacnho/internal/parser"
)

// ErrNoInstant is returned when a create request, or the new-time half of a
// reschedule request, does not name a resolvable time.
var ErrNoInstant = errors.New("command: no time could be resolved")

// InstantError reports which kind of request lacked a time. It matches
// ErrNoInstant with errors.Is.
type InstantError struct {
	Kind Kind
}

func (e *InstantError) Error() string {
	return string(e.Kind) + ": " + ErrNoInstant.Error()
}

func (e *InstantError) Unwrap() error { return ErrNoInstant }

// Kind names a command variant.
type Kind string

const (
	KindCreate     Kind = "create"
	KindCancel     Kind = "cancel"
	KindReschedule Kind = "reschedule"
)

// Command is one of Create, Cancel or Reschedule.
type Command interface {
	Kind() Kind
	isCommand()
}

// Create schedules a new reminder.
type Create struct {
	Label        string
	DueAt        time.Time
	Recurrence   model.Recurrence
	Participants []string
}

// Cancel deletes the reminder matching (sender, Label, DueAt).
type Cancel struct {
	Label string
	DueAt parser.Instant
}

// Reschedule moves the reminder matching (sender, OldLabel, OldDueAt) to NewDueAt.
type Reschedule struct {
	OldLabel string
	OldDueAt parser.Instant
	NewDueAt time.Time
}

func (Create) Kind() Kind     { return KindCreate }
func (Cancel) Kind() Kind     { return KindCancel }
func (Reschedule) Kind() Kind { return KindReschedule }

func (Create) isCommand()     {}
func (Cancel) isCommand()     {}
func (Reschedule) isCommand() {}

// Keywords match whole words only, so "thủy" is not a cancel request. Any
// non-letter counts as a word edge, including quotes and brackets.
var (
	cancelRe    = keyword("hủy")
	editRe      = keyword("đổi")
	separatorRe = keyword("thành")
)

func keyword(word string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{M}])` + word + `(?:$|[^\p{L}\p{M}])`)
}

// Resolver finds the instant named by a piece of text.
type Resolver interface {
	Resolve(ctx context.Context, text string, ref time.Time) parser.Instant
}

// Interpreter routes messages to commands.
type Interpreter struct {
	resolver Resolver
}

// NewInterpreter returns an Interpreter resolving times with r.
func NewInterpreter(r Resolver) *Interpreter {
	return &Interpreter{resolver: r}
}

// Interpret classifies text. Keyword containment decides the route: cancel
// ("Hủy") wins over reschedule ("Đổi" together with "thành"), which wins over
// create.
func (i *Interpreter) Interpret(ctx context.Context, text string, ref time.Time) (Command, error) {
	text = parser.Normalize(text)

	switch {
	case cancelRe.MatchString(text):
		return i.cancel(ctx, text, ref), nil
	case editRe.MatchString(text) && separatorRe.MatchString(text):
		return i.reschedule(ctx, text, ref)
	default:
		return i.create(ctx, text, ref)
	}
}

func (i *Interpreter) create(ctx context.Context, text string, ref time.Time) (Command, error) {
	due := i.resolver.Resolve(ctx, text, ref)
	if !due.Valid {
		return nil, &InstantError{Kind: KindCreate}
	}
	return Create{
		Label:        parser.ExtractLabel(text),
		DueAt:        due.Time,
		Recurrence:   parser.ExtractRecurrence(text),
		Participants: parser.ExtractParticipants(text),
	}, nil
}

func (i *Interpreter) cancel(ctx context.Context, text string, ref time.Time) Command {
	rest := stripFirst(cancelRe, text)
	return Cancel{
		Label: parser.ExtractLabel(rest),
		DueAt: i.resolver.Resolve(ctx, rest, ref),
	}
}

func (i *Interpreter) reschedule(ctx context.Context, text string, ref time.Time) (Command, error) {
	loc := separatorRe.FindStringIndex(text)
	before := stripFirst(editRe, text[:loc[0]])
	after := strings.TrimSpace(text[loc[1]:])

	newDue := i.resolver.Resolve(ctx, after, ref)
	if !newDue.Valid {
		return nil, &InstantError{Kind: KindReschedule}
	}
	return Reschedule{
		OldLabel: parser.ExtractLabel(before),
		OldDueAt: i.resolver.Resolve(ctx, before, ref),
		NewDueAt: newDue.Time,
	}, nil
}

func stripFirst(re *regexp.Regexp, s string) string {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(s[:loc[0]] + " " + s[loc[1]:])
}

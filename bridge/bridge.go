// Package bridge executes cookie directives embedded in generated chat replies.
//
// Generated text is untrusted. A directive such as [[COOKIE:GIVE:bob:15]] runs against
// the ledger before the text is returned, and its span is replaced by a receipt like
// "(+15 🍪 @bob)". Directives that fail validation are removed without a receipt.
package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leojscalabrin/glorpinia-AI/ledger"
	"github.com/leojscalabrin/glorpinia-AI/telemetry"
)

// DefaultMaxAmount caps a single directive when Options.MaxAmount is unset.
const DefaultMaxAmount int64 = 500

const outcomeNoop = "noop"

// Ledger is what the bridge mutates. *ledger.Ledger satisfies it.
type Ledger interface {
	AddCookies(ctx context.Context, principal string, amount int64) bool
	RemoveCookies(ctx context.Context, principal string, amount int64) int64
}

// Options configures a Bridge.
type Options struct {
	MaxAmount int64
	// House is never a valid TAKE target.
	House     string
	Validator *ledger.Validator
	Logger    *slog.Logger
}

// Bridge runs directives found in generated text.
type Bridge struct {
	ledger    Ledger
	validator *ledger.Validator
	house     string
	maxAmount int64
	log       *slog.Logger
}

// New returns a Bridge over l.
func New(l Ledger, opts Options) *Bridge {
	b := &Bridge{
		ledger:    l,
		validator: opts.Validator,
		house:     ledger.Normalize(opts.House),
		maxAmount: opts.MaxAmount,
		log:       opts.Logger,
	}
	if b.validator == nil {
		b.validator = ledger.NewValidator()
	}
	if b.maxAmount <= 0 {
		b.maxAmount = DefaultMaxAmount
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	b.log = b.log.With(slog.String("component", "bridge"))
	return b
}

// ProcessGeneratedText executes every directive in text exactly once, in order, and
// returns the text with each directive replaced by its receipt or removed.
// Text without directives is returned unchanged.
func (b *Bridge) ProcessGeneratedText(ctx context.Context, text, current string) string {
	matches := Parse(text)
	if len(matches) == 0 {
		return text
	}
	ctx, span := telemetry.StartSpan(ctx, "bridge", "bridge.ProcessGeneratedText", telemetry.PrincipalAttr(ledger.Normalize(current)))
	defer span.End()

	current = ledger.Normalize(current)
	out := make([]byte, 0, len(text))
	prev := 0
	for _, m := range matches {
		out = append(out, text[prev:m.Start]...)
		receipt := b.execute(ctx, m.Directive, current)
		out = append(out, receipt...)
		prev = m.End
		// Removing a span between two spaces would leave a double space.
		if receipt == "" && len(out) > 0 && out[len(out)-1] == ' ' && prev < len(text) && text[prev] == ' ' {
			prev++
		}
	}
	out = append(out, text[prev:]...)
	return strings.TrimSpace(string(out))
}

// execute applies one directive and returns its receipt, or "" when nothing happened.
func (b *Bridge) execute(ctx context.Context, d Directive, current string) string {
	log := telemetry.WithCorr(ctx, b.log)
	switch d := d.(type) {
	case Give:
		target, ok := b.admit(ctx, "give", d.Target, d.Amount)
		if !ok {
			return ""
		}
		if !b.ledger.AddCookies(ledger.WithReason(ctx, ledger.ReasonDirectiveGive), target, d.Amount) {
			telemetry.RecordDirective("give", outcomeNoop)
			log.Warn("give directive not applied", slog.String("target", target), slog.Int64("amount", d.Amount))
			return ""
		}
		telemetry.RecordDirective("give", telemetry.OutcomeApplied)
		log.Info("give directive applied", slog.String("target", target), slog.Int64("amount", d.Amount))
		return receipt("+", d.Amount, target, current)

	case Take:
		target, ok := b.admit(ctx, "take", d.Target, d.Amount)
		if !ok {
			return ""
		}
		if target == b.house {
			telemetry.RecordDirective("take", telemetry.OutcomeRejected)
			log.Warn("take directive targets the house", slog.String("target", target))
			return ""
		}
		moved := b.ledger.RemoveCookies(ledger.WithReason(ctx, ledger.ReasonDirectiveTake), target, d.Amount)
		if moved <= 0 {
			telemetry.RecordDirective("take", outcomeNoop)
			log.Info("take directive moved nothing", slog.String("target", target), slog.Int64("requested", d.Amount))
			return ""
		}
		telemetry.RecordDirective("take", telemetry.OutcomeApplied)
		log.Info("take directive applied", slog.String("target", target),
			slog.Int64("requested", d.Amount), slog.Int64("moved", moved))
		return receipt("-", moved, target, current)
	}
	return ""
}

// admit validates the target and the amount cap.
func (b *Bridge) admit(ctx context.Context, action, rawTarget string, amount int64) (string, bool) {
	target, err := b.validator.Validate(rawTarget)
	if err != nil {
		telemetry.RecordDirective(action, telemetry.OutcomeRejected)
		telemetry.WithCorr(ctx, b.log).Warn("directive rejected",
			slog.String("action", action), slog.String("target", rawTarget), slog.Any("err", err))
		return "", false
	}
	if amount > b.maxAmount {
		telemetry.RecordDirective(action, telemetry.OutcomeRejected)
		telemetry.WithCorr(ctx, b.log).Warn("directive over cap",
			slog.String("action", action), slog.String("target", target),
			slog.Int64("amount", amount), slog.Int64("max", b.maxAmount))
		return "", false
	}
	return target, true
}

func receipt(sign string, amount int64, target, current string) string {
	if target == current {
		return fmt.Sprintf("(%s%d 🍪)", sign, amount)
	}
	return fmt.Sprintf("(%s%d 🍪 @%s)", sign, amount, target)
}

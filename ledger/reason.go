package ledger

import "context"

// Reason labels a transaction log row.
type Reason string

const (
	ReasonInteraction   Reason = "interaction"
	ReasonCredit        Reason = "credit"
	ReasonTransfer      Reason = "transfer"
	ReasonDailyBonus    Reason = "daily_bonus"
	ReasonSlotsStake    Reason = "slots_stake"
	ReasonSlotsPayout   Reason = "slots_payout"
	ReasonDirectiveGive Reason = "directive_give"
	ReasonDirectiveTake Reason = "directive_take"
	ReasonAdminGrant    Reason = "admin_grant"
	ReasonAdminTake     Reason = "admin_take"
)

type reasonKey struct{}

// WithReason attaches the reason recorded for ledger mutations made with ctx.
func WithReason(ctx context.Context, r Reason) context.Context {
	return context.WithValue(ctx, reasonKey{}, r)
}

func reasonFrom(ctx context.Context, def Reason) Reason {
	if r, ok := ctx.Value(reasonKey{}).(Reason); ok && r != "" {
		return r
	}
	return def
}

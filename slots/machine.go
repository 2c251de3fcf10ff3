package slots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/leojscalabrin/glorpinia-AI/ledger"
	"github.com/leojscalabrin/glorpinia-AI/telemetry"
)

const (
	// DefaultMinBet is the smallest stake accepted when Options.MinBet is unset.
	DefaultMinBet int64 = 10
	// DefaultCooldown is the per-player pause between spins when Options.Cooldown is unset.
	DefaultCooldown = 30 * time.Second
)

// Bank is the slice of the ledger a slot machine needs.
type Bank interface {
	GetBalance(ctx context.Context, principal string) int64
	Charge(ctx context.Context, principal string, amount int64) error
	AddCookies(ctx context.Context, principal string, amount int64) bool
}

// LiveChecker reports whether a channel is currently streaming.
type LiveChecker interface {
	IsLive(channel string) bool
}

// Options configures a Machine. Zero values pick the defaults.
type Options struct {
	MinBet int64
	// Cooldown between spins per player; negative disables it.
	Cooldown time.Duration
	Table    *Table
	Spinner  Spinner
	Live     LiveChecker
	// Validator gates players; nil uses the built-in forbidden list.
	Validator *ledger.Validator
	Now       func() time.Time
	Logger    *slog.Logger
}

// Result is the outcome of one spin.
type Result struct {
	Player     string
	Reels      [3]Symbol
	Stake      int64
	Multiplier int64
	Payout     int64
	// Paid is false when a winning payout could not be credited.
	Paid bool
}

// Won reports whether the spin paid anything.
func (r Result) Won() bool { return r.Multiplier > 0 }

// Machine runs slot rounds against a Bank. Cooldowns live in memory only.
type Machine struct {
	bank     Bank
	table    Table
	spinner  Spinner
	live     LiveChecker
	valid    *ledger.Validator
	minBet   int64
	cooldown time.Duration
	now      func() time.Time
	log      *slog.Logger

	mu       sync.Mutex
	lastSpin map[string]time.Time
	inFlight map[string]struct{}
}

// NewMachine builds a machine. Without a Spinner it seeds a RandomSpinner from crypto/rand.
func NewMachine(bank Bank, opts Options) (*Machine, error) {
	m := &Machine{
		bank:     bank,
		table:    DefaultTable(),
		spinner:  opts.Spinner,
		live:     opts.Live,
		valid:    opts.Validator,
		minBet:   opts.MinBet,
		cooldown: opts.Cooldown,
		now:      opts.Now,
		log:      opts.Logger,
		lastSpin: make(map[string]time.Time),
		inFlight: make(map[string]struct{}),
	}
	if opts.Table != nil {
		m.table = *opts.Table
	}
	if m.minBet <= 0 {
		m.minBet = DefaultMinBet
	}
	if m.cooldown < 0 {
		m.cooldown = 0
	} else if m.cooldown == 0 {
		m.cooldown = DefaultCooldown
	}
	if m.valid == nil {
		m.valid = ledger.NewValidator()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	m.log = m.log.With(slog.String("component", "slots"))
	if m.spinner == nil {
		seed, err := NewSeed()
		if err != nil {
			return nil, err
		}
		m.spinner = NewRandomSpinner(seed)
	}
	return m, nil
}

// MinBet returns the smallest accepted stake.
func (m *Machine) MinBet() int64 { return m.minBet }

// Spin plays one round. Preconditions are checked in order (channel offline, player not
// cooling down, stake parses and meets the minimum, player is valid, balance covers it)
// and any failure returns before the ledger is touched. The stake is charged into the house, three
// symbols are drawn, and a win is credited back as stake*multiplier.
func (m *Machine) Spin(ctx context.Context, channel, player, stakeText string) (Result, error) {
	p := ledger.Normalize(player)
	res := Result{Player: p}

	if m.live != nil && m.live.IsLive(channel) {
		return res, ErrChannelLive
	}
	if err := m.reserve(p); err != nil {
		return res, err
	}
	spun := false
	defer func() { m.release(p, spun) }()

	stake, err := parseStake(stakeText)
	if err != nil {
		return res, err
	}
	if stake < m.minBet {
		return res, ErrBelowMinimum
	}
	res.Stake = stake
	if _, err := m.valid.Validate(p); err != nil {
		return res, err
	}
	if m.bank.GetBalance(ctx, p) < stake {
		return res, ledger.ErrInsufficientFunds
	}
	if err := m.bank.Charge(ledger.WithReason(ctx, ledger.ReasonSlotsStake), p, stake); err != nil {
		return res, err
	}

	spun = true
	res.Reels = m.spinner.Spin(m.table)
	res.Multiplier = m.table.Resolve(res.Reels)
	if res.Multiplier > 0 {
		res.Payout = stake * res.Multiplier
		res.Paid = m.bank.AddCookies(ledger.WithReason(ctx, ledger.ReasonSlotsPayout), p, res.Payout)
		if !res.Paid {
			telemetry.WithCorr(ctx, m.log).Error("slot payout was not credited",
				slog.String("player", p), slog.Int64("stake", stake), slog.Int64("payout", res.Payout))
		}
	}

	result := "loss"
	if res.Won() {
		result = "win"
	}
	telemetry.RecordSpin(result, stake, res.Payout)
	telemetry.WithCorr(ctx, m.log).Info("slot spin",
		slog.String("channel", channel), slog.String("player", p), slog.Int64("stake", stake),
		slog.String("reels", reelNames(res.Reels)), slog.Int64("multiplier", res.Multiplier))
	return res, nil
}

// Play runs Spin and renders the outcome as a chat reply.
func (m *Machine) Play(ctx context.Context, channel, player, stakeText string) string {
	res, err := m.Spin(ctx, channel, player, stakeText)
	user := res.Player
	if user == "" {
		user = strings.TrimSpace(player)
	}

	var cd *CooldownError
	switch {
	case err == nil:
	case errors.Is(err, ErrChannelLive):
		return fmt.Sprintf("@%s, o cassino fecha enquanto a live está on! Volta depois do stream. glorp", user)
	case errors.As(err, &cd):
		return fmt.Sprintf("@%s, calma! Espera %ds pra girar de novo. Tssk", user, int(cd.Remaining.Round(time.Second)/time.Second))
	case errors.Is(err, ErrInvalidStake):
		return fmt.Sprintf("@%s, valor de aposta inválido! Use: !glorp slots [valor]", user)
	case errors.Is(err, ErrBelowMinimum):
		return fmt.Sprintf("@%s, a aposta mínima é %d cookies! glorp", user, m.minBet)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fmt.Sprintf("@%s, você não tem cookies suficientes! Saldo: %d 🍪. Sadge", user, m.bank.GetBalance(ctx, user))
	case errors.Is(err, ledger.ErrInvalidPrincipal), errors.Is(err, ledger.ErrHouseAccount):
		return fmt.Sprintf("@%s, você não pode jogar. glorp", user)
	default:
		return "O sistema de cookies está offline. Sadge"
	}

	board := fmt.Sprintf("[ %s | %s | %s ]", res.Reels[0].Name, res.Reels[1].Name, res.Reels[2].Name)
	switch {
	case !res.Won():
		return fmt.Sprintf("%s @%s perdeu %d cookies. Mais fundos para o império EZ Clap", board, user, res.Stake)
	case !res.Paid:
		return fmt.Sprintf("%s @%s ganhou, mas o cofre travou. Chama um mod! Sadge", board, user)
	case res.Multiplier >= 100:
		return fmt.Sprintf("%s JACKPOT!! @%s GANHOU %d 🍪 (%dx)!!! NOWAYING", board, user, res.Payout, res.Multiplier)
	case res.Multiplier >= 50:
		return fmt.Sprintf("%s DING! @%s ganhou %d 🍪 (%dx)! Pog", board, user, res.Payout, res.Multiplier)
	default:
		return fmt.Sprintf("%s @%s ganhou %d 🍪! EZ", board, user, res.Payout)
	}
}

// reserve marks p as spinning, or reports the remaining cooldown.
func (m *Machine) reserve(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inFlight[p]; busy {
		return &CooldownError{Remaining: m.cooldown}
	}
	now := m.now()
	if last, ok := m.lastSpin[p]; ok {
		if wait := m.cooldown - now.Sub(last); wait > 0 {
			return &CooldownError{Remaining: wait}
		}
	}
	m.inFlight[p] = struct{}{}
	if len(m.lastSpin) > 4096 {
		for name, at := range m.lastSpin {
			if now.Sub(at) >= m.cooldown {
				delete(m.lastSpin, name)
			}
		}
	}
	return nil
}

// release clears the in-flight mark and starts the cooldown if the reels turned.
func (m *Machine) release(p string, spun bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, p)
	if spun {
		m.lastSpin[p] = m.now()
	}
}

func parseStake(text string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrInvalidStake
	}
	// Keeps stake*multiplier far from int64 overflow.
	if n > 1_000_000_000_000 {
		return 0, ErrInvalidStake
	}
	return n, nil
}

func reelNames(r [3]Symbol) string {
	return r[0].Name + "," + r[1].Name + "," + r[2].Name
}

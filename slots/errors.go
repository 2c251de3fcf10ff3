package slots

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrChannelLive is returned while the hosting channel is streaming.
	ErrChannelLive = errors.New("slots: channel is live")
	// ErrCooldown is matched by *CooldownError.
	ErrCooldown = errors.New("slots: player is cooling down")
	// ErrInvalidStake is returned when the stake is not a positive integer.
	ErrInvalidStake = errors.New("slots: invalid stake")
	// ErrBelowMinimum is returned when the stake is under the configured minimum.
	ErrBelowMinimum = errors.New("slots: stake below minimum")
)

// CooldownError reports how long a player must wait before the next spin.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s (%s remaining)", ErrCooldown, e.Remaining.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool { return target == ErrCooldown }

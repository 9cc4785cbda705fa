package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/wanpark/access-server-go/internal/model"
)

const defaultStrikeOpenFor = 5 * time.Second

// Pin is a GPIO output wired to a door strike.
type Pin interface {
	Out(gpio.Level) error
}

// LogicLevel maps "unlocked" to the level that drives the strike open.
type LogicLevel map[bool]gpio.Level

var (
	ActiveHigh = LogicLevel{true: gpio.High, false: gpio.Low}
	ActiveLow  = LogicLevel{true: gpio.Low, false: gpio.High}
)

// Strike holds a door strike open for OpenFor and then re-locks it. Actuating
// an open strike extends the hold.
type Strike struct {
	openFor time.Duration
	logic   LogicLevel
	pin     Pin

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

func NewStrike(pin Pin, openFor time.Duration, logic LogicLevel) *Strike {
	if openFor <= 0 {
		openFor = defaultStrikeOpenFor
	}
	if logic == nil {
		logic = ActiveHigh
	}
	return &Strike{openFor: openFor, logic: logic, pin: pin}
}

var hostInit = sync.OnceValue(func() error {
	_, err := host.Init()
	return err
})

// OpenStrike initialises the host GPIO drivers and binds a strike to the
// named pin, for example "GPIO22".
func OpenStrike(pinName string, openFor time.Duration, activeLow bool) (*Strike, error) {
	if err := hostInit(); err != nil {
		return nil, fmt.Errorf("init gpio host: %w", err)
	}
	p := gpioreg.ByName(pinName)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %s not found", pinName)
	}
	logic := ActiveHigh
	if activeLow {
		logic = ActiveLow
	}
	s := NewStrike(p, openFor, logic)
	if err := p.Out(logic[false]); err != nil {
		return nil, fmt.Errorf("lock strike on %s: %w", pinName, err)
	}
	return s, nil
}

func (s *Strike) Actuate(ctx context.Context, lockID string, purpose model.Purpose) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.pin.Out(s.logic[true]); err != nil {
		// Try to lock the door even though I/O apparently failed
		errS := s.pin.Out(s.logic[false])
		return fmt.Errorf("unlock strike: %w (safety lock: %v)", err, errS)
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.openFor, func() { s.relock(gen) })
	return nil
}

func (s *Strike) relock(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return
	}
	s.timer = nil
	if err := s.pin.Out(s.logic[false]); err != nil {
		log.Error().Err(err).Msg("failed to re-lock strike")
	}
}

// Close re-locks the strike immediately.
func (s *Strike) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	return s.pin.Out(s.logic[false])
}

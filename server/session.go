package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "gridchase/grid_world"

	"github.com/charmbracelet/log"
	channerics "github.com/niceyeti/channerics/channels"
)

// KeyEvent is a key press sent by the browser.
type KeyEvent struct {
	Key string `json:"key"`
}

// Session is one player's game: a simulator drawn on a canvas, driven either
// by key events or, when a source is set, by the source on every tick. Key
// events still work while a source drives, so a QUIT key ends autoplay.
type Session struct {
	sim    *Simulator
	canvas *Canvas
	keys   KeyMap
	logger *log.Logger

	source   ActionSource
	tick     time.Duration
	maxSteps int

	episodes int
	attempts int
}

func NewSession(sim *Simulator, canvas *Canvas, keys KeyMap, logger *log.Logger) *Session {
	return &Session{
		sim:    sim,
		canvas: canvas,
		keys:   keys,
		logger: logger,
	}
}

// WithSource makes the session play itself, taking one action from source per
// tick. Episodes with more than maxSteps attempts are abandoned; zero means no cap.
func (s *Session) WithSource(source ActionSource, tick time.Duration, maxSteps int) *Session {
	s.source = source
	s.tick = tick
	s.maxSteps = maxSteps
	return s
}

// Run plays episodes until QUIT, the input chan closes, ctx is done, or every
// route has been played. It returns the session's route ledger.
func (s *Session) Run(ctx context.Context, input <-chan KeyEvent) (Ledger, error) {
	if err := s.nextEpisode(); err != nil {
		if errors.Is(err, ErrLedgerExhausted) {
			return s.sim.Routes(), nil
		}
		return nil, err
	}

	var ticks <-chan time.Time
	if s.source != nil {
		ticks = channerics.NewTicker(ctx.Done(), s.tick)
	}

	for {
		var action Action
		select {
		case <-ctx.Done():
			return s.sim.Routes(), nil
		case ev, ok := <-input:
			if !ok {
				return s.sim.Routes(), nil
			}
			resolved, err := s.keys.Resolve(ev.Key)
			if err != nil {
				s.logger.Debug("ignoring key", "err", err)
				continue
			}
			action = resolved
		case <-ticks:
			action = s.source(s.sim.Player(), s.sim.Goal())
		}

		if action == QUIT {
			s.logger.Info("session quit", "episodes", s.episodes)
			return s.sim.Routes(), nil
		}

		done, err := s.step(action)
		if err != nil {
			return s.sim.Routes(), err
		}
		if done {
			if err := s.nextEpisode(); err != nil {
				if errors.Is(err, ErrLedgerExhausted) {
					s.logger.Info("every route played", "episodes", s.episodes)
					return s.sim.Routes(), nil
				}
				return s.sim.Routes(), err
			}
		}
	}
}

// step moves the player and reports whether the episode is over.
func (s *Session) step(action Action) (done bool, err error) {
	if err = s.sim.Move(action); err != nil {
		return
	}
	s.attempts++
	s.status()
	s.canvas.Present()

	key := s.sim.Key()
	switch {
	case s.sim.IsDone():
		taken, _ := s.sim.Counts(key)
		s.logger.Info("goal reached",
			"player", key.Player,
			"goal", key.Goal,
			"taken", taken,
			"best", s.sim.BestRoute(key.Player, key.Goal))
		done = true
	case s.maxSteps > 0 && s.attempts >= s.maxSteps:
		s.logger.Info("episode abandoned", "player", key.Player, "goal", key.Goal, "attempts", s.attempts)
		done = true
	}
	return
}

func (s *Session) nextEpisode() error {
	if err := s.sim.Reset(); err != nil {
		return err
	}
	s.episodes++
	s.attempts = 0
	s.status()
	// Reset drew before the status changed.
	s.canvas.Present()
	return nil
}

func (s *Session) status() {
	s.canvas.SetStatus(fmt.Sprintf(
		"episode %d, %d moves, %d to go",
		s.episodes, s.attempts, s.sim.Distance()))
}

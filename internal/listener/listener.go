// Package listener implements the accept loop out-of-scope collaborator
// described by spec.md §6: bind, accept, spawn one Connection per
// socket. It is grounded on gosuda-portal's SNI router (net.Listen,
// wg-tracked acceptLoop, stop channel closed to unblock Accept) adapted
// from TLS passthrough routing to the receptionist's own framed
// protocol.
package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/coregx/receptionist/internal/conn"
	"github.com/coregx/receptionist/internal/config"
	"github.com/coregx/receptionist/internal/transfer"
)

// Listener accepts TCP connections on cfg.ListenAddr and drives one
// conn.Connection per accepted socket, sharing handler and an online
// player counter across all of them.
type Listener struct {
	cfg     *config.Config
	handler transfer.Handler
	log     zerolog.Logger

	online atomic.Int32

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// New builds a Listener. It does not bind until Run is called.
func New(cfg *config.Config, handler transfer.Handler, log zerolog.Logger) *Listener {
	return &Listener{cfg: cfg, handler: handler, log: log}
}

// Run binds cfg.ListenAddr and accepts connections until ctx is
// cancelled, at which point it closes the listener (unblocking
// Accept), waits for in-flight connections to return (each one closes
// its own socket on the same cancellation), and returns.
func (l *Listener) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", l.cfg.ListenAddr, err)
	}

	l.mu.Lock()
	l.listener = ln
	l.mu.Unlock()

	l.log.Info().Str("addr", l.cfg.ListenAddr).Msg("receptionist listening")

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		l.listener.Close()
		l.mu.Unlock()
	}()

	for {
		c, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				l.wg.Wait()
				return nil
			default:
				l.log.Error().Err(err).Msg("accept error")
				if errors.Is(err, net.ErrClosed) {
					l.wg.Wait()
					return nil
				}
				continue
			}
		}

		l.log.Info().Str("peer", c.RemoteAddr().String()).Msg("accepted connection")

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			connection := conn.New(c, l.cfg, l.handler, &l.online, l.log)
			if err := connection.Run(ctx); err != nil {
				l.log.Warn().Err(err).Str("peer", c.RemoteAddr().String()).Msg("connection ended with error")
			}
		}()
	}
}

// Addr returns the listener's bound address, or nil if Run has not
// been called yet.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

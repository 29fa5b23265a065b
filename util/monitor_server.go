package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

var ErrAlreadyRunning = errors.New("monitor server already running")

type MonitorServer struct {
	running *sync.Mutex
	mux     *http.ServeMux
	srv     *http.Server
	srvMu   sync.RWMutex // protects srv field
}

func NewMonitorServer() *MonitorServer {
	var s MonitorServer
	s.running = &sync.Mutex{}
	s.mux = http.NewServeMux()
	s.srv = &http.Server{}
	return &s
}

func (s *MonitorServer) addr() string {
	return fmt.Sprintf(":%d", Config.GetInt("details_port"))
}

// Start begins listening in the background. The running lock is held for as long
// as the listener is up.
func (s *MonitorServer) Start() error {
	if !s.running.TryLock() {
		return ErrAlreadyRunning
	}

	newSrv := &http.Server{
		Addr:              s.addr(),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.srvMu.Lock()
	s.srv = newSrv
	s.srvMu.Unlock()

	go func() {
		defer s.running.Unlock()
		Logger.Info().Msgf("monitor server listening on %v", newSrv.Addr)
		if err := newSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			Logger.Warn().Msgf("Problem loading monitor server: %v", err)
		}
		Logger.Debug().Msg("monitor server shutdown")
	}()
	return nil
}

func (s *MonitorServer) AddHandler(path string, handler func(http.ResponseWriter, *http.Request)) {
	s.mux.HandleFunc(path, handler)
}

func (s *MonitorServer) AddRawHandler(path string, handler http.Handler) {
	s.mux.Handle(path, handler)
}

// Handler exposes the routes without listening, used by tests.
func (s *MonitorServer) Handler() http.Handler {
	return s.mux
}

// Shutdown stops a running server and waits until the listener has returned.
func (s *MonitorServer) Shutdown(ctx context.Context) error {
	if s.running.TryLock() {
		s.running.Unlock()
		return nil
	}
	s.srvMu.RLock()
	currentSrv := s.srv
	s.srvMu.RUnlock()
	if err := currentSrv.Shutdown(ctx); err != nil {
		return err
	}
	s.running.Lock() // released by the listener goroutine
	s.running.Unlock()
	return nil
}

// Restart picks up a changed details_port. It is a no-op when the address is
// unchanged and the server is up.
func (s *MonitorServer) Restart() {
	s.srvMu.RLock()
	current := s.srv.Addr
	s.srvMu.RUnlock()
	if !s.running.TryLock() {
		if current == s.addr() {
			return
		}
	} else {
		s.running.Unlock()
	}
	Logger.Debug().Msg("restarting monitor server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		Logger.Error().Msgf("Error shutting down monitor server: %v", err)
	}
	if err := s.Start(); err != nil {
		Logger.Error().Msgf("Error starting monitor server: %v", err)
	}
}

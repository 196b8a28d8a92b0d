package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	awspkg "github.com/caffeinepub/openframe-education/backend/pkg/aws"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// LoaderState is the lifecycle of the gateway checkout script.
type LoaderState int32

const (
	StateUninitialized LoaderState = iota
	StateLoading
	StateReady
	StateFailed
)

func (s LoaderState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "uninitialized"
	}
}

const (
	maxScriptSize     = 2 << 20
	scriptLoadTimeout = 15 * time.Second
)

// ScriptLoader fetches the gateway's checkout.js once and keeps it resident.
// Concurrent callers share a single in-flight fetch. Ready is terminal; after
// a failure the next EnsureReady starts a fresh load.
type ScriptLoader struct {
	url     string
	client  *http.Client
	logger  *zap.Logger
	metrics awspkg.MetricsRecorder

	state  atomic.Int32
	mu     sync.RWMutex
	script []byte
	group  singleflight.Group
}

func NewScriptLoader(scriptURL string, client *http.Client, logger *zap.Logger) *ScriptLoader {
	if client == nil {
		client = &http.Client{Timeout: scriptLoadTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScriptLoader{url: scriptURL, client: client, logger: logger}
}

// SetMetrics attaches a recorder for load failures. nil disables metrics.
func (l *ScriptLoader) SetMetrics(m awspkg.MetricsRecorder) {
	l.metrics = m
}

func (l *ScriptLoader) State() LoaderState {
	return LoaderState(l.state.Load())
}

// EnsureReady reports whether the script is resident, loading it first if
// needed. It never returns an error: false means checkout cannot proceed.
// If ctx ends while a load is in flight the load keeps going for the other
// waiters and this caller gets false.
func (l *ScriptLoader) EnsureReady(ctx context.Context) bool {
	if l.State() == StateReady {
		return true
	}

	ch := l.group.DoChan("script", func() (interface{}, error) {
		if l.State() == StateReady {
			return nil, nil
		}
		l.state.Store(int32(StateLoading))
		if err := l.load(); err != nil {
			l.state.Store(int32(StateFailed))
			l.logger.Error("Checkout script load failed", zap.String("url", l.url), zap.Error(err))
			l.recordFailure()
			return nil, err
		}
		l.state.Store(int32(StateReady))
		l.logger.Info("Checkout script loaded", zap.String("url", l.url))
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err == nil
	case <-ctx.Done():
		return false
	}
}

// Script returns the resident script, or false when it is not loaded.
func (l *ScriptLoader) Script() ([]byte, bool) {
	if l.State() != StateReady {
		return nil, false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.script, true
}

func (l *ScriptLoader) load() error {
	if l.url == "" {
		return errors.New("checkout script URL not configured")
	}
	ctx, cancel := context.WithTimeout(context.Background(), scriptLoadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptSize+1))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("empty script")
	}
	if len(body) > maxScriptSize {
		return fmt.Errorf("script exceeds %d bytes", maxScriptSize)
	}

	l.mu.Lock()
	l.script = body
	l.mu.Unlock()
	return nil
}

func (l *ScriptLoader) recordFailure() {
	if l.metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = l.metrics.RecordCount(ctx, awspkg.MetricCheckoutScriptFails, map[string]string{"Service": "bff-service"})
}

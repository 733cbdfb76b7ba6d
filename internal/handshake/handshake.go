// Package handshake sequences the deterministic initialize/attach/
// validate/configurationDone/prime-context steps that bring a DAP
// client from "socket connected" to "ready for operations".
package handshake

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/debugbridge/server/internal/dap"
)

// Result is what a successful handshake leaves the caller with: the
// capabilities reported by initialize, and primed thread/frame context
// if the program had already produced a stop by the time priming ran.
type Result struct {
	Capabilities    dap.Capabilities
	CurrentThreadID int
	CurrentFrameID  int
	HasThread       bool
	HasFrame        bool
}

// connectBackoff is the shared exponential shape used by both the
// initialize and configurationDone retry loops: 1s, 2s, 4s, capped at 5s.
func connectBackoff(attempt int) time.Duration {
	d := time.Second << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

// DialOwned polls the port with 1-second connect attempts spaced 500ms
// apart until a 10-second overall budget elapses, for a supervisor-spawned
// adapter that is still starting up.
func DialOwned(ctx context.Context, address string) (net.Conn, error) {
	return dialWithBudget(ctx, address, 10*time.Second, 500*time.Millisecond)
}

// DialAttach connects once with a 5-second deadline and no retry, for a
// user-controlled process that is expected to already be listening.
func DialAttach(ctx context.Context, address string) (net.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var d net.Dialer
	return d.DialContext(dialCtx, "tcp", address)
}

func dialWithBudget(ctx context.Context, address string, budget, spacing time.Duration) (net.Conn, error) {
	deadline := time.Now().Add(budget)
	var lastErr error
	for {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("handshake: connect to %s did not succeed within %s: %w", address, budget, lastErr)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, time.Second)
		var d net.Dialer
		conn, err := d.DialContext(attemptCtx, "tcp", address)
		cancel()
		if err == nil {
			return conn, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(spacing):
		}
	}
}

// Client is the subset of *dap.Client the orchestrator drives. Declared
// as an interface so tests can substitute a fake without a real socket.
type Client interface {
	Initialize(dap.InitializeRequestArguments) (dap.Capabilities, error)
	Attach(dap.AttachArguments) error
	ConfigurationDone() error
	Threads() ([]dap.Thread, error)
	StackTrace(threadID int) ([]dap.StackFrame, error)
	Router() *dap.Router
}

// defaultRetryAttempts is used whenever Options.RetryAttempts is unset
// (zero or negative), matching the behavior before the attempt count
// became configurable.
const defaultRetryAttempts = 3

// Options configures one run of the handshake.
type Options struct {
	ClientID      string
	ClientName    string
	AdapterID     string
	AttachArgs    dap.AttachArguments
	RetryAttempts int
}

func (o Options) retryAttempts() int {
	if o.RetryAttempts <= 0 {
		return defaultRetryAttempts
	}
	return o.RetryAttempts
}

// Run executes the five-step sequence against an already-connected
// client: initialize and the attach/initialized-event rendezvous, each
// tried up to opts.RetryAttempts times; a single threads() validation
// probe (not retried); configurationDone, tried up to opts.RetryAttempts
// times; then thread/frame context priming.
func Run(ctx context.Context, client Client, opts Options) (Result, error) {
	attempts := opts.retryAttempts()

	caps, err := retryInitialize(client, opts, attempts)
	if err != nil {
		return Result{}, err
	}

	if err := attachWithRendezvous(ctx, client, opts, attempts); err != nil {
		return Result{}, err
	}

	if _, err := client.Threads(); err != nil {
		return Result{}, fmt.Errorf("handshake: validation probe failed: %w", err)
	}

	if err := retryConfigurationDone(client, attempts); err != nil {
		return Result{}, err
	}

	result := Result{Capabilities: caps}
	primeThreadContext(client, &result)
	return result, nil
}

func retryInitialize(client Client, opts Options, attempts int) (dap.Capabilities, error) {
	args := dap.InitializeRequestArguments{
		ClientID:               opts.ClientID,
		ClientName:             opts.ClientName,
		AdapterID:              opts.AdapterID,
		LinesStartAt1:          true,
		ColumnsStartAt1:        true,
		PathFormat:             "path",
		SupportsVariableType:   true,
		SupportsVariablePaging: true,
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(connectBackoff(attempt - 1))
		}
		caps, err := client.Initialize(args)
		if err == nil {
			return caps, nil
		}
		lastErr = err
	}
	return dap.Capabilities{}, fmt.Errorf("handshake: initialize failed after %d attempts: %w", attempts, lastErr)
}

func attachWithRendezvous(ctx context.Context, client Client, opts Options, attempts int) error {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(2 * time.Second)
		}

		initialized := make(chan struct{}, 1)
		client.Router().OnInitialized(func() {
			select {
			case initialized <- struct{}{}:
			default:
			}
		})

		attachErrCh := make(chan error, 1)
		go func() {
			attachErrCh <- client.Attach(opts.AttachArgs)
		}()

		timer := time.NewTimer(15 * time.Second)
		succeeded := false

		select {
		case <-initialized:
			succeeded = true
		case err := <-attachErrCh:
			// The attach response may reject even though the adapter still
			// fires initialized afterward; keep waiting for the event.
			lastErr = err
			select {
			case <-initialized:
				succeeded = true
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		case <-timer.C:
		}
		timer.Stop()

		if succeeded {
			return nil
		}
	}
	return fmt.Errorf("handshake: attach/initialized rendezvous failed after %d attempts: %w", attempts, lastErr)
}

func retryConfigurationDone(client Client, attempts int) error {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			time.Sleep(connectBackoff(attempt - 1))
		}
		if err := client.ConfigurationDone(); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("handshake: configurationDone failed after %d attempts: %w", attempts, lastErr)
}

func primeThreadContext(client Client, result *Result) {
	threads, err := client.Threads()
	if err != nil || len(threads) == 0 {
		return
	}
	result.CurrentThreadID = threads[0].ID
	result.HasThread = true

	frames, err := client.StackTrace(result.CurrentThreadID)
	if err != nil || len(frames) == 0 {
		// No frames yet is expected: the program has not hit a stop.
		return
	}
	result.CurrentFrameID = frames[0].ID
	result.HasFrame = true
}

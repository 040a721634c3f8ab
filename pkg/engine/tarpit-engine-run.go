package engine

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tarpit/pkg/dispatcher"
	"tarpit/pkg/utils/fs"

	"github.com/valyala/fasthttp"
	"go.uber.org/multierr"
)

// Run listens on the configured address and serves until SIGINT or SIGTERM.
// A bind failure is returned before anything is served.
func (engine *TarpitEngine) Run() error {
	addr := engine.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return multierr.Append(fmt.Errorf("unable to listen on %s: %w", addr, err), engine.Shutdown())
	}

	var metricsLn net.Listener
	if engine.metricsServer != nil {
		metricsLn, err = net.Listen("tcp", engine.config.Metrics.Address)
		if err != nil {
			ln.Close()
			return multierr.Append(fmt.Errorf("unable to listen on %s for metrics: %w", engine.config.Metrics.Address, err), engine.Shutdown())
		}
	}

	if err := engine.storePid(); err != nil {
		engine.logger.Warn(fmt.Sprintf("Continuing without a pid file: %v", err))
	}

	engine.printBanner(ln.Addr().String())

	serveErr := make(chan error, 2)
	go func() {
		serveErr <- engine.Serve(ln)
	}()
	if metricsLn != nil {
		engine.logger.Info(fmt.Sprintf("Metrics available at http://%s/metrics", metricsLn.Addr()))
		go func() {
			serveErr <- engine.metricsServer.Serve(metricsLn)
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case sig := <-stop:
		engine.logger.Info(fmt.Sprintf("Received %s, shutting down...", sig))
	case err := <-serveErr:
		engine.logger.Error(fmt.Sprintf("Fatal server error: %v", err))
		return multierr.Append(fmt.Errorf("server stopped: %w", err), engine.Shutdown())
	}

	return engine.Shutdown()
}

// Serve answers fixture requests on ln until Shutdown is called.
func (engine *TarpitEngine) Serve(ln net.Listener) error {
	return engine.server.Serve(ln)
}

// Shutdown abandons stalled downloads, stops both listeners and releases
// the limiter, pid file and log file. Calls after the first return the first
// result.
func (engine *TarpitEngine) Shutdown() error {
	engine.stopOnce.Do(func() {
		close(engine.stopping)

		err := engine.server.Shutdown()
		if engine.metricsServer != nil {
			err = multierr.Append(err, engine.metricsServer.Shutdown())
		}
		err = multierr.Append(err, engine.cleanup())

		engine.logger.Info("Tarpit stopped")
		engine.shutdownErr = multierr.Append(err, engine.logger.Close())
	})
	return engine.shutdownErr
}

func (engine *TarpitEngine) printBanner(addr string) {
	base := "http://" + addr
	engine.logger.Info(fmt.Sprintf("Tarpit fixture server listening on %s", base))
	engine.logger.Info(fmt.Sprintf("1. No ext1 field:   %s%s", base, engine.config.Scenarios.Missing[0]))
	engine.logger.Info(fmt.Sprintf("2. ext1=true block: %s%s", base, engine.config.Scenarios.Block[0]))
	engine.logger.Info(fmt.Sprintf("3. Slow PDF (%s): %s/any-other-path", engine.config.SlowDownload.Delay, base))
}

// requestPath is the request target exactly as sent, query excluded. ctx.URI()
// is avoided since it reads a leading "//host" as an authority.
func requestPath(ctx *fasthttp.RequestCtx) string {
	target := ctx.Request.Header.RequestURI()
	if i := bytes.IndexByte(target, '?'); i >= 0 {
		target = target[:i]
	}
	return string(target)
}

func (engine *TarpitEngine) handleRequest(ctx *fasthttp.RequestCtx) {
	method := string(ctx.Method())
	path := requestPath(ctx)
	engine.logger.Info(fmt.Sprintf("Incoming request - Method: %s, Path: %s", method, path))

	if !ctx.IsGet() && !ctx.IsHead() {
		engine.logger.Warn(fmt.Sprintf("Unsupported method %s for %s", method, path))
		ctx.Error(fmt.Sprintf("Unsupported method ('%s')", method), fasthttp.StatusNotImplemented)
		return
	}

	scenario := engine.dispatcher.Select(path)

	limit := engine.rateLimitManager.Check(ctx)
	if !limit.Allowed {
		engine.logger.Warn(fmt.Sprintf("Client %s throttled; answering %s instead of %s", limit.Key, dispatcher.Blocked, scenario))
		engine.metrics.ObserveThrottled()
		scenario = dispatcher.Blocked
	}

	if scenario == dispatcher.SlowDownload && !engine.stall(ctx, path) {
		return
	}

	engine.dispatcher.ResponseFor(scenario).Apply(&ctx.Response)
	engine.rateLimitManager.SetHeaders(ctx, limit)
	engine.metrics.ObserveRequest(scenario.String(), method)

	engine.logger.Info(fmt.Sprintf("Sent %d (%s) for %s %s", ctx.Response.StatusCode(), scenario, method, path))
}

// stall holds a slow download for the configured delay. A client hanging up
// is not noticed here; the later write fails inside fasthttp and is logged by
// its error logger. Returns false when the server is shutting down.
func (engine *TarpitEngine) stall(ctx *fasthttp.RequestCtx, path string) bool {
	delay := engine.config.SlowDownload.Delay
	engine.logger.Info(fmt.Sprintf("Stalling %s for %s", path, delay))

	start := time.Now()
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		engine.metrics.ObserveStall(time.Since(start))
		return true
	case <-engine.stopping:
		engine.logger.Info(fmt.Sprintf("Abandoning stalled download of %s after %s: shutting down", path, time.Since(start).Round(time.Millisecond)))
		ctx.SetConnectionClose()
		ctx.Error("Server shutting down", fasthttp.StatusServiceUnavailable)
		return false
	}
}

func (engine *TarpitEngine) storePid() error {
	storageDir := engine.config.Storage.Path
	path := filepath.Join(storageDir, PID_FILE)

	if err := fs.EnsureDir(storageDir); err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("unable to store program id: %w", err)
	}

	engine.pidWritten = true
	engine.logger.Info(fmt.Sprintf("Stored program id information at %s", path))
	return nil
}

func (engine *TarpitEngine) cleanup() error {
	var err error

	if engine.rateLimitManager != nil {
		if closeErr := engine.rateLimitManager.Close(); closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("failed to close rate limit manager: %w", closeErr))
		}
	}

	if engine.pidWritten {
		pidFile := filepath.Join(engine.config.Storage.Path, PID_FILE)
		if rmErr := os.Remove(pidFile); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = multierr.Append(err, fmt.Errorf("failed to remove pid file: %w", rmErr))
		}
		engine.pidWritten = false
	}

	return err
}

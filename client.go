/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/redis/go-redis/v9"

	"github.com/Seednode/golmi/control"
	"github.com/Seednode/golmi/discover"
	"github.com/Seednode/golmi/link"
	"github.com/Seednode/golmi/loop"
	"github.com/Seednode/golmi/session"
	"github.com/Seednode/golmi/tui"
)

const (
	playLogFile  = "golmi.log"
	flushTimeout = 10 * time.Second
)

// modelAddr is one --model value: where the model is and which gripper to
// ask for ("" lets the server choose).
type modelAddr struct {
	target  string
	gripper string
}

// parseModel splits url[=gripper]. The last '=' is a gripper separator
// unless it belongs to a query parameter of the url itself.
func parseModel(s string) modelAddr {
	i := strings.LastIndex(s, "=")
	if i < 0 || strings.ContainsAny(s[i+1:], "/?&") {
		return modelAddr{target: s}
	}

	target := s[:i]
	if q := strings.LastIndexAny(target, "?&"); q >= 0 && !strings.Contains(target[q:], "=") {
		return modelAddr{target: s}
	}
	return modelAddr{target: target, gripper: s[i+1:]}
}

type modelLink struct {
	link    link.Link
	gripper string
	close   func() error
}

func resolveModels(ctx context.Context, cfg *Config, logger *slog.Logger) ([]modelAddr, error) {
	addrs := make([]modelAddr, 0, len(cfg.models))
	for _, m := range cfg.models {
		addrs = append(addrs, parseModel(m))
	}

	if cfg.discover > 0 {
		browseCtx, cancel := context.WithTimeout(ctx, cfg.discover)
		defer cancel()

		found, err := discover.Browse(browseCtx, discover.ModelService, discover.Domain)
		if err != nil {
			return nil, err
		}
		for _, s := range found {
			logger.Info("discovered model server", "instance", s.Instance, "url", s.URL("ws"))
			addrs = append(addrs, modelAddr{target: s.URL("ws")})
		}
	}

	if len(addrs) == 0 {
		return nil, errors.New("no model servers found")
	}
	return addrs, nil
}

func dialModels(ctx context.Context, cfg *Config, addrs []modelAddr, dispatch link.Dispatch, logger *slog.Logger) ([]modelLink, error) {
	opts := []link.Option{link.WithDispatch(dispatch), link.WithLogger(logger)}

	var (
		links  []modelLink
		client *redis.Client
	)
	fail := func(err error) ([]modelLink, error) {
		closeModels(links)
		if client != nil {
			_ = client.Close()
		}
		return nil, err
	}

	for _, addr := range addrs {
		switch cfg.transport {
		case "redis":
			if client == nil {
				client = redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
				if err := client.Ping(ctx).Err(); err != nil {
					return fail(fmt.Errorf("connect to redis at %s: %w", cfg.redisAddr, err))
				}
			}
			r, err := link.NewRedis(ctx, client, addr.target, opts...)
			if err != nil {
				return fail(err)
			}
			links = append(links, modelLink{link: r, gripper: addr.gripper, close: r.Close})

		default:
			ws, err := link.Dial(ctx, addr.target, opts...)
			if err != nil {
				return fail(err)
			}
			links = append(links, modelLink{link: ws, gripper: addr.gripper, close: ws.Close})
		}
		logger.Info("connected to model server", "target", addr.target, "transport", cfg.transport)
	}

	if client != nil {
		last := len(links) - 1
		closeLast := links[last].close
		links[last].close = func() error {
			err := closeLast()
			return errors.Join(err, client.Close())
		}
	}
	return links, nil
}

func closeModels(links []modelLink) {
	for _, l := range links {
		_ = l.close()
	}
}

// sinkBase derives the log sink from the first websocket model server, which
// usually serves both.
func sinkBase(cfg *Config, addrs []modelAddr) string {
	if cfg.transport != "ws" || len(addrs) == 0 {
		return ""
	}
	u, err := url.Parse(addrs[0].target)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path, u.RawQuery, u.Fragment = "/", "", ""
	return u.String()
}

func newSession(cfg *Config, addrs []modelAddr, logger *slog.Logger) *session.Logger {
	return session.New(
		session.WithFullState(cfg.logFullState),
		session.WithGripper(cfg.logGripper),
		session.WithBaseURL(sinkBase(cfg, addrs)),
		session.WithCompression(cfg.logCompress),
		session.WithLogger(logger),
	)
}

// Play runs the terminal client until the user quits.
func Play(ctx context.Context, cfg *Config) error {
	out := io.Discard
	if cfg.verbose {
		f, err := os.OpenFile(playLogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	logger := newLogger(&Config{verbose: true}, out)
	// the terminal belongs to the board; library log output goes to the file
	slog.SetDefault(logger)

	addrs, err := resolveModels(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var program *tea.Program

	keys := control.DefaultKeyMap()
	if cfg.holdKeys {
		keys = control.HeldMoveKeyMap()
	}
	dispatcher := control.New(
		control.WithKeyMap(keys),
		control.WithLogger(logger),
		control.WithAttachTimeout(cfg.attachTimeout, func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, func() { program.Send(tui.RunMsg(f)) }).Stop
		}),
	)

	layers := tui.NewLayers(cfg.canvasWidth, cfg.canvasHeight)
	renderer := layers.View(logger)
	sess := newSession(cfg, addrs, logger)

	var links []modelLink
	model := tui.New(dispatcher, layers,
		tui.WithSession(sess, cfg.logEndpoint),
		tui.WithStartup(func() {
			for _, l := range links {
				dispatcher.AttachModel(l.link, l.gripper)
			}
		}),
	)
	program = tea.NewProgram(model, tea.WithAltScreen(), tea.WithReportFocus(), tea.WithContext(ctx))

	links, err = dialModels(ctx, cfg, addrs, tui.Dispatch(program), logger)
	if err != nil {
		return err
	}
	defer closeModels(links)

	// one board: the renderer and the log follow the first model server
	renderer.Subscribe(links[0].link)
	sess.Subscribe(links[0].link)

	_, err = program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Record logs the first model server's traffic until ctx ends, then uploads
// the log.
func Record(ctx context.Context, cfg *Config) error {
	logger := slog.Default()

	addrs, err := resolveModels(ctx, cfg, logger)
	if err != nil {
		return err
	}

	lp := loop.New(256)

	links, err := dialModels(ctx, cfg, addrs, lp.Dispatch, logger)
	if err != nil {
		return err
	}
	defer closeModels(links)

	sess := newSession(cfg, addrs, logger)
	sess.Subscribe(links[0].link)

	logger.Info("recording", "session", sess.ID(), "target", addrs[0].target)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if ws, ok := links[0].link.(*link.WebSocket); ok {
		go func() {
			select {
			case <-ws.Done():
				logger.Warn("model server closed the connection", "err", ws.Err())
				cancel()
			case <-runCtx.Done():
			}
		}()
	}

	_ = lp.Run(runCtx)

	// the loop has stopped, so nothing else touches the session now
	flushCtx, flushCancel := context.WithTimeout(context.Background(), flushTimeout)
	defer flushCancel()
	return sess.SendData(flushCtx, cfg.logEndpoint)
}

// Discover prints the model servers and log sinks found on the network.
func Discover(ctx context.Context, cfg *Config, w io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.browseFor)
	defer cancel()

	type result struct {
		kind     string
		scheme   string
		services []discover.Service
		err      error
	}
	results := make(chan result, 2)
	browse := func(kind, service, scheme string) {
		services, err := discover.Browse(ctx, service, discover.Domain)
		results <- result{kind: kind, scheme: scheme, services: services, err: err}
	}
	go browse("model", discover.ModelService, "ws")
	go browse("sink", discover.SinkService, "http")

	var errs []error
	found := 0
	for range 2 {
		r := <-results
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		for _, s := range r.services {
			found++
			fmt.Fprintf(w, "%-6s %-24s %s\n", r.kind, s.Instance, s.URL(r.scheme))
		}
	}
	if found == 0 && len(errs) == 0 {
		fmt.Fprintln(w, "nothing found")
	}
	return errors.Join(errs...)
}

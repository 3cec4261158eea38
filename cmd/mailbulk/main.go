// mailbulk serves bulk Gmail cleanup actions through Model Context Protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/mailbulk/internal/auth"
	"github.com/hal9000y/mailbulk/internal/bulk"
	"github.com/hal9000y/mailbulk/internal/config"
	"github.com/hal9000y/mailbulk/internal/gservice"
	"github.com/hal9000y/mailbulk/internal/session"
	"github.com/hal9000y/mailbulk/internal/tool"
)

func main() {
	httpAddr := flag.String("http-addr", "localhost:0", "HTTP SERVER listen addr")
	configFile := flag.String("config", "", "Path to YAML config file")
	oauthTokenFile := flag.String("oauth-token-file", "", "Path to cache google oauth token, overrides config")
	oauthURLParam := flag.String("oauth-url", "", "OAuth URL")
	envFileParam := flag.String("env-file", "", "Path to env file")
	enableStdio := flag.Bool("stdio", false, "Enable stdio transport for MCP (disables stdout logging)")
	logFile := flag.String("log-file", "", "Path to log file (only used with stdio transport, otherwise logs to stdout)")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	log, persistLogs := setupLogger(*enableStdio, *logFile, *debug)
	defer persistLogs()

	cfg, err := config.Load(*configFile, *envFileParam)
	if err != nil {
		panic(fmt.Errorf("config.Load failed: %w", err))
	}
	if err := cfg.RequireOAuth(); err != nil {
		panic(err)
	}
	if *oauthTokenFile != "" {
		cfg.OAuth.TokenFile = *oauthTokenFile
	}
	if *oauthURLParam != "" {
		cfg.OAuth.RedirectURL = *oauthURLParam
	}

	policy, err := cfg.Policy()
	if err != nil {
		panic(err)
	}

	ln := mustListen(*httpAddr)
	oauthCfg := newOauthCfg(ln.Addr().String(), cfg.OAuth)

	tok, err := auth.NewToken(oauthCfg, cfg.OAuth.TokenFile, log)
	if err != nil {
		panic(fmt.Errorf("auth.NewToken failed: %w", err))
	}

	defer func() {
		log.Info("persisting token if exists")
		if err := tok.Persist(); err != nil {
			log.Error("tok.Persist failed", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/oauth", auth.NewHTTPHandler(tok, log))

	gmailSvc := gservice.NewGmail(tok, log)
	gmailSvc.SetFetchConcurrency(cfg.Mailbox.FetchConcurrency)

	orchestrator := bulk.New(gmailSvc, log,
		bulk.WithMaxInFlight(cfg.Bulk.MaxInFlight),
		bulk.WithRate(cfg.Bulk.RatePerSec, cfg.Bulk.Burst),
	)

	sess := session.New(gmailSvc, orchestrator, session.Config{
		MaxResults: cfg.Mailbox.MaxResults,
		Query:      cfg.Mailbox.Query,
		Policy:     policy,
	}, log)

	mailT := tool.NewServer(sess, time.Local)
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server { return mailT }, nil))

	srv := &http.Server{
		Handler: mux,
	}

	shutdown := make(chan os.Signal, 1)

	signal.Notify(shutdown, syscall.SIGTERM, syscall.SIGINT)

	if _, err := tok.State(); errors.Is(err, auth.ErrTokenNotSet) {
		openBrowser(log, oauthCfg.RedirectURL)
	}

	stopHTTP, errHTTPCh := serveHTTP(log, srv, ln)
	defer stopHTTP()

	var errStdioCh <-chan error
	if *enableStdio {
		var stopStdio func()
		stopStdio, errStdioCh = serveStdio(log, mailT)
		defer stopStdio()
	}

	select {
	case err := <-errHTTPCh:
		log.Error("http server failed", "error", err)
	case err := <-errStdioCh:
		log.Error("stdio failed", "error", err)
	case <-shutdown:
		log.Info("shutdown signal received")
	}

	sess.Wait()
}

func serveStdio(log *slog.Logger, srv *mcp.Server) (func(), <-chan error) {
	errStdioCh := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(errStdioCh)
		log.Info("starting stdio transport")

		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
			err = fmt.Errorf("srv.Run failed: %w", err)
			errStdioCh <- err
		}
	}()

	return func() {
		cancel()

		<-errStdioCh
		log.Info("stdio transport stopped")
	}, errStdioCh
}

func serveHTTP(log *slog.Logger, srv *http.Server, ln net.Listener) (func(), <-chan error) {
	errHTTPCh := make(chan error, 1)
	go func() {
		defer close(errHTTPCh)

		log.Info("starting http server", "addr", ln.Addr().String())

		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			err = fmt.Errorf("srv.Serve failed: %w", err)
			errHTTPCh <- err
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("srv.Shutdown failed", "error", err)
		}

		<-errHTTPCh
		log.Info("http server stopped")
	}, errHTTPCh
}

func mustListen(httpAddr string) net.Listener {
	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		panic(fmt.Errorf("net.Listen failed: %w", err))
	}

	return ln
}

func newOauthCfg(lnAddr string, c config.OAuthConfig) *oauth2.Config {
	oauthURL := fmt.Sprintf("http://%s/oauth", lnAddr)
	if c.RedirectURL != "" {
		oauthURL = c.RedirectURL
	}

	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  oauthURL,
		Scopes:       []string{gmail.GmailModifyScope},
		Endpoint:     google.Endpoint,
	}
}

func setupLogger(enableStdio bool, logFile string, debug bool) (*slog.Logger, func()) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
	}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			panic(fmt.Errorf("failed to open log file: %w", err))
		}
		log := slog.New(slog.NewJSONHandler(f, opts))
		slog.SetDefault(log)

		return log, func() {
			if err := f.Close(); err != nil {
				fmt.Fprintln(os.Stderr, fmt.Errorf("f.Close failed: %w", err))
			}
		}
	}

	var out io.Writer = os.Stdout
	if enableStdio {
		out = io.Discard
	}
	log := slog.New(slog.NewTextHandler(out, opts))
	slog.SetDefault(log)

	return log, func() {}
}

func openBrowser(log *slog.Logger, url string) {
	url = fmt.Sprintf("%s?redirect=1", url)
	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.Command("open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform")
	}

	if err != nil {
		log.Warn("could not open browser automatically, please open the link manually", "error", err, "url", url)
	}
}

// Command eventwatch prints the event list from a running server and logs
// every change pushed to it until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lorrc/event-attendance-backend/internal/infrastructure/logging"
	"github.com/lorrc/event-attendance-backend/pkg/eventclient"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "API server base URL")
	category := flag.String("category", "", "only watch events in this category")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	logger := logging.NewLogger(logging.Config{
		Level:       *logLevel,
		Format:      "text",
		Output:      os.Stderr,
		ServiceName: "eventwatch",
		Environment: "cli",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, logger, eventclient.Config{
		ServerURL:  *server,
		Token:      os.Getenv("EVENTWATCH_TOKEN"),
		Filter:     eventclient.Filter{Category: *category},
		Logger:     logger,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}); err != nil {
		logger.Error("eventwatch failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, logger *slog.Logger, cfg eventclient.Config) error {
	// The session lives until ctx is cancelled.
	session, err := eventclient.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("session closed with error", "error", err)
		}
	}()

	changes, unsubscribe := session.Subscribe()
	defer unsubscribe()

	printEvents(out, session.Events())
	logger.Info("watching for changes", "server", cfg.ServerURL, "category", cfg.Filter.Category)

	for {
		select {
		case <-ctx.Done():
			logger.Info("interrupted, closing session")
			return nil

		case <-session.Done():
			err := session.Err()
			if errors.Is(err, eventclient.ErrServerClosed) {
				logger.Info("server closed the connection")
				return nil
			}
			return err

		case c := <-changes:
			logChange(logger, session.Store(), c)
		}
	}
}

func logChange(logger *slog.Logger, store *eventclient.Store, c eventclient.Change) {
	if c.EventID == "" {
		logger.Info("event list reloaded", "kind", c.Kind, "events", len(store.Events()))
		return
	}

	event, ok := store.Event(c.EventID)
	if !ok {
		return
	}
	logger.Info("event changed",
		"kind", c.Kind,
		"event_id", event.ID,
		"title", event.Title,
		"attendees", attendeeNames(event.Attendees),
		"version", event.AttendanceVersion,
	)
}

func printEvents(out io.Writer, events []eventclient.Event) {
	if len(events) == 0 {
		fmt.Fprintln(out, "no events")
		return
	}
	for _, e := range events {
		fmt.Fprintf(out, "%s  %-12s  %-40s  %d attending  (%s)\n",
			e.Date.Format("2006-01-02 15:04"), e.Category, e.Title, len(e.Attendees), e.ID)
	}
}

func attendeeNames(users []eventclient.User) string {
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, u.Name)
	}
	return strings.Join(names, ", ")
}

// Command client is a terminal participant in a shared snippet: it joins
// (or creates) a snippet, streams peer edits to stdout, and sends each
// stdin line as an appended edit.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Manojseetaram/code-share-clone/internal/apperror"
	"github.com/Manojseetaram/code-share-clone/internal/client"
	"github.com/Manojseetaram/code-share-clone/internal/model"
)

func main() {
	if err := run(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "127.0.0.1:8080", "server host:port")
	slugFlag := flag.String("slug", "", "snippet to join; empty asks the server for one")
	language := flag.String("language", model.DefaultLanguage, "language tag when creating a snippet")
	flag.Parse()

	// Status lines go to stderr; stdout carries the document itself.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	api := client.New("http://" + *addr)
	snip, err := joinOrCreate(context.Background(), api, *slugFlag, *language)
	if err != nil {
		return err
	}

	fmt.Printf("sharing %q until %s\n", snip.Slug, snip.ExpiresAt.Local().Format(time.RFC1123))
	if snip.Content != "" {
		fmt.Println(snip.Content)
	}

	session := client.NewSession(client.SessionConfig{
		URL:    "ws://" + *addr + "/ws/" + snip.Slug,
		Logger: logger,
	})
	defer session.Close()

	ed := &editor{
		session:  session,
		logger:   logger,
		content:  snip.Content,
		language: snip.Language,
	}

	go ed.watch()
	go ed.readInput(os.Stdin)

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exit
	logger.Info("leaving", slog.String("signal", sig.String()))
	return nil
}

// joinOrCreate resolves the slug to a live snippet, creating one when
// needed. Losing a create race to another client just means the snippet
// now exists; join it.
func joinOrCreate(ctx context.Context, api *client.Client, slug, language string) (*model.Snippet, error) {
	if slug == "" {
		return api.Create(ctx, "", "", language, nil)
	}

	snip, err := api.Get(ctx, slug)
	if err == nil {
		return snip, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	snip, err = api.Create(ctx, slug, "", language, nil)
	if errors.Is(err, apperror.ErrSlugTaken) {
		return api.Get(ctx, slug)
	}
	return snip, err
}

// editor mirrors the shared document for one terminal. Local lines append
// to the mirror; remote edits replace it.
type editor struct {
	session *client.Session
	logger  *slog.Logger

	mu       sync.Mutex
	content  string
	language string
}

// readInput appends each stdin line to the document. EOF only stops the
// editing side; the session keeps following the snippet until interrupted.
func (e *editor) readInput(in *os.File) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		e.mu.Lock()
		if e.content == "" {
			e.content = scanner.Text()
		} else {
			e.content += "\n" + scanner.Text()
		}
		content, language := e.content, e.language
		e.mu.Unlock()

		e.session.SetDocument(content, language)
	}
	e.logger.Info("input finished, watching only")
}

func (e *editor) watch() {
	for ev := range e.session.Events() {
		switch ev.Kind {
		case client.EventState:
			e.logger.Info("connection", slog.String("state", ev.State.String()))

		case client.EventConnected:
			e.logger.Info("joined", slog.String("slug", ev.Slug), slog.Int("viewers", ev.Viewers))

		case client.EventViewers:
			e.logger.Info("viewers changed", slog.Int("viewers", ev.Viewers))

		case client.EventEdit:
			if ev.Origin != client.OriginRemote {
				continue
			}
			e.mu.Lock()
			e.content = ev.Content
			e.language = ev.Language
			e.mu.Unlock()
			fmt.Printf("\n--- peer edit (%s) ---\n%s\n", ev.Language, ev.Content)

		case client.EventImageAdded:
			if ev.Origin == client.OriginRemote {
				fmt.Printf("\n--- peer attached image %s (%dx%d) ---\n",
					ev.Image.ID, ev.Image.Width, ev.Image.Height)
			}

		case client.EventImageRemoved:
			if ev.Origin == client.OriginRemote {
				fmt.Printf("\n--- peer removed image %s ---\n", ev.ImageID)
			}
		}
	}
}

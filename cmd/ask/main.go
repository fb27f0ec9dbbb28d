// Command ask sends inquiries to the backend from a terminal and prints the answers as they
// stream in. Without a query argument it reads one query per line from stdin and keeps the
// conversation going until EOF.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/cloudband/ignis-admin/internal/inquiry"
	"github.com/cloudband/ignis-admin/internal/logger"
	"github.com/cloudband/ignis-admin/internal/models"
	"github.com/cloudband/ignis-admin/internal/services"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var (
	promptColor = color.New(color.FgCyan, color.Bold)
	errorColor  = color.New(color.FgRed)
	faintColor  = color.New(color.Faint)
)

// publicLister is the part of the backend used to discover what can be asked about.
type publicLister interface {
	ListPublicDocumentTypes(ctx context.Context) ([]string, error)
	ListPublicDocuments(ctx context.Context, params models.DocumentListParams) (models.DocumentPage, error)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	baseURL := flag.String("url", os.Getenv("IGNIS_API_BASE_URL"), "backend API base URL")
	token := flag.String("token", os.Getenv("IGNIS_TOKEN"), "bearer token")
	types := flag.String("types", "", "comma separated document types, all public types when empty")
	k := flag.Int("k", 0, "result-count hint, zero leaves it to the backend")
	list := flag.Bool("list", false, "list public documents and exit")
	debug := flag.Bool("debug", false, "log backend calls to stderr")
	flag.Parse()

	if err := run(*baseURL, *token, *types, *k, *list, *debug, flag.Args()); err != nil {
		errorColor.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(baseURL, token, types string, k int, list, debug bool, args []string) error {
	zl := zap.NewNop()
	if debug {
		l, err := logger.New(logger.Config{Level: "debug"})
		if err != nil {
			return err
		}
		zl = l
		defer func() { _ = zl.Sync() }()
	}

	backend, err := services.NewBackend(baseURL, nil, zl)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if token != "" {
		ctx = services.ContextWithToken(ctx, token)
	}

	if list {
		return listDocuments(ctx, backend, os.Stdout)
	}

	selected, err := documentTypes(ctx, backend, types)
	if err != nil {
		return err
	}

	p := &printer{out: os.Stdout}
	consumer := inquiry.NewConsumer(backend,
		inquiry.WithLogger(zl),
		inquiry.WithDefaultK(k),
		inquiry.WithOnChange(p.update))
	defer consumer.Close()

	if len(args) > 0 {
		return ask(ctx, consumer, p, strings.Join(args, " "), selected)
	}
	return repl(ctx, consumer, p, os.Stdin, selected)
}

// documentTypes parses the -types flag, falling back to every public type.
func documentTypes(ctx context.Context, lister publicLister, flagValue string) ([]string, error) {
	var types []string
	for _, t := range strings.Split(flagValue, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	if len(types) > 0 {
		return types, nil
	}

	types, err := lister.ListPublicDocumentTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing document types: %w", err)
	}
	return types, nil
}

// listDocuments prints every page of the public listing. It stops at the last page the backend
// reports, or as soon as the backend answers with a page other than the one requested.
func listDocuments(ctx context.Context, lister publicLister, out io.Writer) error {
	for page := 1; ; page++ {
		res, err := lister.ListPublicDocuments(ctx, models.DocumentListParams{Page: page})
		if err != nil {
			return fmt.Errorf("error listing documents: %w", err)
		}
		if res.CurrentPage != 0 && res.CurrentPage != page {
			return nil
		}
		for _, d := range res.Records {
			fmt.Fprintf(out, "%s\t%s\t%s\n", d.Name, models.DocumentTypeLabel(d.DocumentType), d.EmbeddingStatus)
		}
		if len(res.Records) == 0 || page >= res.TotalPages {
			return nil
		}
	}
}

func repl(ctx context.Context, consumer *inquiry.Consumer, p *printer, in io.Reader, types []string) error {
	scanner := bufio.NewScanner(in)
	for {
		promptColor.Fprint(p.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(p.out)
			return scanner.Err()
		}
		query := scanner.Text()
		if strings.TrimSpace(query) == "" {
			continue
		}

		if err := ask(ctx, consumer, p, query, types); err != nil {
			var ierr *inquiry.Error
			if !errors.As(err, &ierr) {
				return err
			}
			errorColor.Fprintln(p.out, ierr.Message)
		}
	}
}

// ask runs one inquiry and waits for its answer to finish printing.
func ask(ctx context.Context, consumer *inquiry.Consumer, p *printer, query string, types []string) error {
	p.reset()
	done, err := consumer.Submit(ctx, query, types, 0)
	if err != nil {
		return err
	}

	select {
	case err = <-done:
	case <-ctx.Done():
		consumer.Close()
		return ctx.Err()
	}

	if err == nil && p.empty() {
		faintColor.Fprint(p.out, "No answer returned.")
	}
	fmt.Fprintln(p.out)
	return err
}

// printer writes the part of the assistant answer that has not been printed yet.
type printer struct {
	out io.Writer

	mu      sync.Mutex
	printed int
}

func (p *printer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printed = 0
}

func (p *printer) empty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.printed == 0
}

func (p *printer) update(snap inquiry.Snapshot) {
	if len(snap.Messages) == 0 {
		return
	}
	last := snap.Messages[len(snap.Messages)-1]
	if last.Role != models.RoleAssistant {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(last.Content) > p.printed {
		fmt.Fprint(p.out, last.Content[p.printed:])
		p.printed = len(last.Content)
	}
}

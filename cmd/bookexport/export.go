package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/simp-lee/bookexport"
	"github.com/simp-lee/bookexport/internal/logging"
)

const exportDesc = `
Export one book as an ePub file.

The book is identified by its vendor and the vendor's book ID, as listed by
'bookexport detect' or shown in the reader URL. The archive is written to the
output directory and named after the book title.
`

type exportOptions struct {
	source string
	id     string
	title  string
}

func newExportCmd(s *settings, out io.Writer) *cobra.Command {
	o := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "export a book as an ePub file",
		Long:  exportDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd, s, out)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.source, "source", string(bookexport.SourceBooks), "vendor of the book: readmoo or books")
	f.StringVar(&o.id, "id", "", "vendor book ID")
	f.StringVar(&o.title, "title", "", "title used for the file name instead of the book's own")
	cmd.MarkFlagRequired("id")

	return cmd
}

func (o *exportOptions) run(cmd *cobra.Command, s *settings, out io.Writer) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	timeout, _ := s.cfg.TimeoutDuration()
	jar, err := s.cfg.CookieJar()
	if err != nil {
		return err
	}

	topts := []bookexport.TransportOption{
		bookexport.WithCookieJar(jar),
		bookexport.WithTimeout(timeout),
	}
	if s.cfg.UserAgent != "" {
		topts = append(topts, bookexport.WithUserAgent(s.cfg.UserAgent))
	}

	log := s.logger(cmd.ErrOrStderr())
	e := bookexport.New(
		bookexport.WithTransport(bookexport.NewHTTPTransport(topts...)),
		bookexport.WithLogger(log),
		bookexport.WithStatusSink(&logging.StatusLogger{Log: log}),
	)

	book := bookexport.Book{ID: o.id, Title: o.title, Source: bookexport.Source(o.source)}

	var buf bytes.Buffer
	res, err := e.ExportArchive(cmd.Context(), book, &buf)
	if err != nil {
		return err
	}

	name := o.title
	if name == "" {
		name = res.Metadata.Title
	}
	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return err
	}
	dest := filepath.Join(s.cfg.OutputDir, archiveName(name, book.ID))
	if err := os.WriteFile(dest, buf.Bytes(), 0o644); err != nil {
		return err
	}

	fmt.Fprintf(out, "Saved %s (%d files)\n", dest, res.Files.Len())
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "WARNING: %s\n", w)
	}
	if res.Skipped != nil {
		log.WithError(res.Skipped).Debug("skipped optional resources")
	}
	return nil
}

// archiveName returns a file name for the book, falling back to its ID when
// the title is empty.
func archiveName(title, id string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, strings.TrimSpace(title))
	name = strings.Trim(name, ". ")
	if name == "" {
		name = id
	}
	return name + ".epub"
}

package bookexport

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// Result is the outcome of one export.
type Result struct {
	Book Book

	// RootManifestPath is the package document declared by the container.
	RootManifestPath string

	// Files holds every fetched resource, including the container and
	// package documents.
	Files *ResourceStore

	// Metadata is extracted from the package document.
	Metadata Metadata

	// Warnings lists non-fatal observations such as declared font
	// obfuscation.
	Warnings []string

	// Skipped aggregates the failures of tolerated paths. It is nil when
	// every path was fetched.
	Skipped error

	Progress Progress
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithTransport sets the transport used for every request. Defaults to an
// HTTPTransport without cookies.
func WithTransport(t Transport) Option {
	return func(e *Exporter) {
		e.transport = t
	}
}

// WithStatusSink sets the receiver of status updates.
func WithStatusSink(s StatusSink) Option {
	return func(e *Exporter) {
		e.sink = s
	}
}

// WithLogger sets the logger. Defaults to a logger that discards output.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Exporter) {
		e.logger = l
	}
}

// WithProtocol registers p for p.Source(), replacing the built-in protocol of
// that source.
func WithProtocol(p Protocol) Option {
	return func(e *Exporter) {
		e.protocols[p.Source()] = p
	}
}

// WithArchiveWriter sets the writer used by ExportArchive. Defaults to
// ZipWriter.
func WithArchiveWriter(w ArchiveWriter) Option {
	return func(e *Exporter) {
		e.archive = w
	}
}

// Exporter retrieves books from vendor web readers. Its configuration is
// read-only after New, so one Exporter may run several exports concurrently.
type Exporter struct {
	transport Transport
	sink      StatusSink
	logger    logrus.FieldLogger
	protocols map[Source]Protocol
	archive   ArchiveWriter
}

// New returns an Exporter with the built-in Readmoo and Books protocols.
func New(opts ...Option) *Exporter {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	e := &Exporter{
		sink:      discardSink{},
		logger:    discard,
		protocols: defaultProtocols(),
		archive:   ZipWriter{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.transport == nil {
		e.transport = NewHTTPTransport()
	}
	return e
}

// Export fetches every resource of book. The vendor protocol is chosen by
// book.Source; an unknown source fails with ErrUndefinedVendor before any
// request is made.
//
// A failure of a required resource aborts the export and is returned
// unmodified, together with a Result holding what was fetched before it.
func (e *Exporter) Export(ctx context.Context, book Book) (*Result, error) {
	protocol, ok := e.protocols[book.Source]
	if !ok {
		return nil, fmt.Errorf("bookexport: source %q of book %s: %w", book.Source, book.ID, ErrUndefinedVendor)
	}

	r := e.newRun(ctx, book)
	err := r.export(protocol)
	if err != nil {
		r.fail(err)
	}
	return r.result(), err
}

// ExportArchive exports book and writes the archive to w.
func (e *Exporter) ExportArchive(ctx context.Context, book Book, w io.Writer) (*Result, error) {
	res, err := e.Export(ctx, book)
	if err != nil {
		return res, err
	}
	if err := e.archive.WriteArchive(w, res.Files.Files()); err != nil {
		return res, fmt.Errorf("bookexport: write archive of book %s: %w", book.ID, err)
	}
	return res, nil
}

// run is the mutable state of one export.
type run struct {
	ctx       context.Context
	book      Book
	transport Transport
	sink      StatusSink
	log       logrus.FieldLogger

	state    State
	message  string
	progress Progress

	session  Session
	store    *ResourceStore
	rootPath string
	metadata Metadata
	warnings []string
	skipped  *multierror.Error
}

func (e *Exporter) newRun(ctx context.Context, book Book) *run {
	return &run{
		ctx:       ctx,
		book:      book,
		transport: e.transport,
		sink:      e.sink,
		log: e.logger.WithFields(logrus.Fields{
			"export_id": uuid.NewString(),
			"book_id":   book.ID,
			"source":    book.Source,
		}),
		state: StateIdle,
		store: NewResourceStore(),
	}
}

func (r *run) export(protocol Protocol) error {
	r.log.Info("export started")

	r.setState(StateFetchingSession)
	session, err := protocol.Bootstrap(r.ctx, r.transport, r.book, r)
	if err != nil {
		return err
	}
	r.session = session

	r.setState(StateFetchingContainer)
	err = r.batchFetch([]string{containerPath, encryptionPath}, map[string]bool{encryptionPath: true})
	if err != nil {
		return err
	}
	container, _ := r.store.Get(containerPath)
	r.rootPath, err = RootManifestPath(container)
	if err != nil {
		return err
	}

	r.setState(StateFetchingManifest)
	if err := r.batchFetch([]string{r.rootPath}, nil); err != nil {
		return err
	}
	manifest, _ := r.store.Get(r.rootPath)
	pkg, err := parseOPF(manifest)
	if err != nil {
		return err
	}
	r.metadata = extractMetadata(pkg)

	r.setState(StateFetchingResources)
	if err := r.batchFetch(manifestPaths(r.rootPath, pkg.Manifest), nil); err != nil {
		return err
	}

	if descriptor, ok := r.store.Get(encryptionPath); ok {
		r.warnings = inspectEncryption(descriptor)
		for _, w := range r.warnings {
			r.log.Warn(w)
		}
	}

	r.state = StateComplete
	r.message = ""
	r.emit()
	r.log.WithField("files", r.store.Len()).Info("export complete")
	return nil
}

// Step implements Stepper.
func (r *run) Step(message string, fn func() error) error {
	r.progress.Total++
	r.message = message
	r.emit()
	if err := fn(); err != nil {
		return err
	}
	r.progress.Completed++
	r.emit()
	return nil
}

// batchFetch fetches paths in order. A failure of a path in tolerated is
// recorded and skipped; any other failure ends the batch.
func (r *run) batchFetch(paths []string, tolerated map[string]bool) error {
	r.progress.Total += len(paths)
	r.emit()

	for _, p := range paths {
		r.message = "Fetching " + p
		r.emit()

		if !r.store.Has(p) {
			err := r.fetch(p)
			if err != nil {
				if !tolerated[p] || r.ctx.Err() != nil {
					return err
				}
				r.log.WithError(err).WithField("path", p).Warn("tolerated fetch failure")
				r.skipped = multierror.Append(r.skipped, err)
				r.message = "Fetching " + p + "... failed (ignorable)"
			}
		}

		r.progress.Completed++
		r.emit()
	}
	return nil
}

// fetch retrieves one resource, decodes it when its class requires, and
// stores it.
func (r *run) fetch(p string) error {
	class := r.session.Classify(p)
	absolute := r.session.ResolveAbsolute(p)

	data, err := r.transport.Get(r.ctx, absolute, r.session.Query(class), r.session.Header())
	if err != nil {
		return err
	}

	if class == ClassStreamEncrypted {
		key, err := DeriveKey(absolute, r.session.KeyToken())
		if err != nil {
			return err
		}
		data = DecodeStream(key, data)
	}

	r.store.Put(p, data)
	r.log.WithFields(logrus.Fields{
		"path":  p,
		"class": class,
		"bytes": len(data),
	}).Debug("fetched resource")
	return nil
}

func (r *run) setState(s State) {
	r.state = s
	r.log.WithField("state", s).Debug("state changed")
	r.emit()
}

// fail moves the run to StateFailed, keeping the last message so it still
// names the resource being fetched.
func (r *run) fail(err error) {
	r.state = StateFailed
	r.emit()
	r.log.WithError(err).WithField("message", r.message).Error("export failed")
}

func (r *run) emit() {
	r.sink.Update(StatusUpdate{
		BookID:              r.book.ID,
		State:               r.state,
		Message:             r.message,
		ItemsCount:          r.progress.Total,
		ItemsCountCompleted: r.progress.Completed,
	})
}

func (r *run) result() *Result {
	res := &Result{
		Book:             r.book,
		RootManifestPath: r.rootPath,
		Files:            r.store,
		Metadata:         r.metadata,
		Warnings:         r.warnings,
		Progress:         r.progress,
	}
	if r.skipped != nil {
		res.Skipped = r.skipped.ErrorOrNil()
	}
	return res
}

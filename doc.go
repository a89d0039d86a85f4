// Package bookexport retrieves purchased books from the Readmoo and
// Books.com.tw web readers and reassembles them as ePub archives.
//
// Both readers serve a book as the individual files of its ePub container.
// Books.com.tw additionally scrambles most of them with a repeating XOR key
// derived from each file's URL and the session's download token; this
// package reverses that transform before handing the files to an
// [ArchiveWriter].
//
// # Exporting a book
//
// An [Exporter] runs one export per call. The [Transport] must carry the
// user's vendor session cookies:
//
//	jar, _ := cookiejar.New(nil)
//	// ... add the reader's session cookies to jar ...
//	e := bookexport.New(bookexport.WithTransport(
//	    bookexport.NewHTTPTransport(bookexport.WithCookieJar(jar)),
//	))
//	f, _ := os.Create("book.epub")
//	defer f.Close()
//	res, err := e.ExportArchive(ctx, bookexport.Book{
//	    ID:     "E050033363_reflowable_normal",
//	    Source: bookexport.SourceBooks,
//	}, f)
//
// Progress is reported to a [StatusSink] as immutable [StatusUpdate]
// snapshots. A missing META-INF/encryption.xml is tolerated and recorded in
// [Result.Skipped]; any other failed fetch aborts the export.
//
// # Building blocks
//
// [DeriveKey] and [DecodeStream] implement the Books.com.tw stream cipher.
// [RootManifestPath] and [ResourcePaths] locate a book's files from its
// container and package documents. [DetectBooks] lists the books on a saved
// library page.
package bookexport

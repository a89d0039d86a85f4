package main

import (
	"fmt"
	"io"
	"os"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/simp-lee/bookexport"
)

const detectDesc = `
List the books on a saved Books.com.tw library page.

Save the library page from the browser and pass the file, or '-' to read it
from standard input. Each listed ID can be passed to 'bookexport export'.
`

type detectOptions struct {
	pageURL string
}

func newDetectCmd(out io.Writer) *cobra.Command {
	o := &detectOptions{}

	cmd := &cobra.Command{
		Use:   "detect FILE",
		Short: "list the books on a saved library page",
		Long:  detectDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(out, cmd.InOrStdin(), args[0])
		},
	}

	cmd.Flags().StringVar(&o.pageURL, "url", "", "address the page was saved from; rejected unless it is a library page")
	return cmd
}

func (o *detectOptions) run(out io.Writer, stdin io.Reader, name string) error {
	if o.pageURL != "" && !bookexport.IsExportable(o.pageURL) {
		return fmt.Errorf("%s is not a supported library page", o.pageURL)
	}

	r := stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	books, err := bookexport.DetectBooks(r)
	if err != nil {
		return err
	}
	if len(books) == 0 {
		fmt.Fprintln(out, "No books found")
		return nil
	}

	table := uitable.New()
	table.MaxColWidth = 60
	table.AddRow("ID", "TITLE", "SOURCE")
	for _, b := range books {
		table.AddRow(b.ID, b.Title, b.Source)
	}
	fmt.Fprintln(out, table)
	return nil
}

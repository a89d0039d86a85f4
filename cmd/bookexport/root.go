package main

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/simp-lee/bookexport/internal/config"
	"github.com/simp-lee/bookexport/internal/logging"
)

var globalUsage = `Export purchased books from the Readmoo and Books.com.tw web readers as ePub files.

Vendor sessions are taken from cookies listed in the configuration file:

    cookies:
      - domain: .books.com.tw
        name: <cookie name>
        value: <cookie value>

Environment variables:

+--------------------+---------------------------------------------+
| Name               | Description                                 |
+--------------------+---------------------------------------------+
| $BOOKEXPORT_CONFIG | path to the configuration file              |
| $BOOKEXPORT_DEBUG  | enable verbose output when set to "true"    |
+--------------------+---------------------------------------------+
`

// settings are shared by every subcommand.
type settings struct {
	cfg        *config.Config
	configPath string
}

func (s *settings) logger(out io.Writer) *logrus.Logger {
	return logging.New(out, s.cfg.Debug)
}

func newRootCmd(out io.Writer, args []string) (*cobra.Command, error) {
	s := &settings{configPath: config.Path()}

	// Load the configuration file before binding flags; flags override it.
	pre := pflag.NewFlagSet("config", pflag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.Usage = func() {}
	pre.SetOutput(io.Discard)
	pre.StringVar(&s.configPath, "config", s.configPath, "")
	_ = pre.Parse(args)

	s.cfg = config.Default()
	if s.configPath != "" {
		cfg, err := config.Load(s.configPath)
		if err != nil {
			return nil, err
		}
		s.cfg = cfg
	}

	cmd := &cobra.Command{
		Use:          "bookexport",
		Short:        "Export purchased books from web readers.",
		Long:         globalUsage,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
	}
	cmd.SetOut(out)

	flags := cmd.PersistentFlags()
	flags.StringVar(&s.configPath, "config", s.configPath, "path to the configuration file")
	s.cfg.AddFlags(flags)

	cmd.AddCommand(
		newExportCmd(s, out),
		newDetectCmd(out),
	)
	return cmd, nil
}

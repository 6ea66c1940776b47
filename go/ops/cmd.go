package ops

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
)

// Must logs a fatal error and exits if err is non-nil. Extra arguments
// are key/value pairs added as log fields.
func Must(err error, msg string, extra ...interface{}) {
	if err == nil {
		return
	}
	var fields = log.Fields{"err": err}
	for i := 0; i+1 < len(extra); i += 2 {
		fields[extra[i].(string)] = extra[i+1]
	}
	log.WithFields(fields).Fatal(msg)
}

// MustParseConfig parses the combination of an optional INI file named
// configName, environment variable bindings, and explicit flags, and runs
// the selected command. The INI file is searched for in the current
// directory and in $HOME/.config/queue-vision; explicit flags win over
// file values.
func MustParseConfig(parser *flags.Parser, configName string) {
	var iniParser = flags.NewIniParser(parser)
	iniParser.ParseAsDefaults = true

	var prefixes = []string{
		".",
		filepath.Join(os.Getenv("HOME"), ".config", "queue-vision"),
	}
	for _, prefix := range prefixes {
		var path = filepath.Join(prefix, configName)

		if err := iniParser.ParseFile(path); err == nil {
			break
		} else if os.IsNotExist(err) {
			// Pass.
		} else {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	MustParseArgs(parser)
}

// MustParseArgs parses flags and runs the selected command, exiting on
// failure. The parser is expected to carry flags.PrintErrors, which
// writes help and error text before Parse returns.
func MustParseArgs(parser *flags.Parser) {
	if _, err := parser.Parse(); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

type commandFunc func([]string) error

func (f commandFunc) Execute(args []string) error { return f(args) }

// AddPrintConfigCmd registers a print-config command which writes the
// fully-merged configuration to stdout as INI and exits.
func AddPrintConfigCmd(parser *flags.Parser, configName string) {
	var _, err = parser.AddCommand("print-config", "Print combined configuration and exit", fmt.Sprintf(
		"Print the configuration combined from flags, environment variables, and %s.", configName),
		commandFunc(func([]string) error {
			var ini = flags.NewIniParser(parser)
			ini.Write(os.Stdout, flags.IniIncludeDefaults|flags.IniCommentDefaults|flags.IniIncludeComments)
			return nil
		}))
	Must(err, "failed to add print-config command")
}

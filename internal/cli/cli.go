// Package cli parses msbridge command-line arguments.
package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Command string

const (
	CommandServe   Command = "serve"
	CommandAttach  Command = "attach"
	CommandDetach  Command = "detach"
	CommandExecute Command = "execute"
	CommandSetting Command = "setting"
	CommandAlive   Command = "alive"
	CommandStatus  Command = "status"
	CommandScan    Command = "scan"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

// commandArity is the number of positional arguments each command takes.
var commandArity = map[Command]int{
	CommandServe:   0,
	CommandAttach:  0,
	CommandDetach:  0,
	CommandExecute: 1,
	CommandSetting: 2,
	CommandAlive:   0,
	CommandStatus:  0,
	CommandScan:    0,
	CommandDoctor:  0,
	CommandVersion: 0,
	CommandHelp:    0,
}

// StdinPath selects standard input as the script source for execute.
const StdinPath = "-"

type Parsed struct {
	Command    Command
	ConfigPath string
	// Port is 0 when --port was not given.
	Port         int
	ScriptPath   string
	SettingKey   string
	SettingValue bool
	ShowHelp     bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		case "--port":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--port requires a number")
			}
			port, err := strconv.Atoi(args[i])
			if err != nil || port < 1 || port > 65535 {
				return Parsed{}, fmt.Errorf("--port must be within 1-65535, got %q", args[i])
			}
			parsed.Port = port
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			arity, ok := commandArity[cmd]
			if !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			rest := args[i+1:]
			if len(rest) > arity {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
			if len(rest) < arity {
				return Parsed{}, fmt.Errorf("command %q requires %d argument(s)", arg, arity)
			}
			if err := bindPositional(&parsed, cmd, rest); err != nil {
				return Parsed{}, err
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			return parsed, nil
		}
	}

	return parsed, nil
}

func bindPositional(parsed *Parsed, cmd Command, rest []string) error {
	switch cmd {
	case CommandExecute:
		if strings.TrimSpace(rest[0]) == "" {
			return errors.New("execute requires a script path or -")
		}
		parsed.ScriptPath = rest[0]
	case CommandSetting:
		value, err := strconv.ParseBool(rest[1])
		if err != nil {
			return fmt.Errorf("setting value must be true or false, got %q", rest[1])
		}
		parsed.SettingKey = rest[0]
		parsed.SettingValue = value
	}
	return nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] [--port N] <command> [args]

Commands:
  serve                     Run the owner: control socket, auto-attach, event stream
  attach                    Attach to --port, or the first live port in range
  detach                    Close the active connection
  execute <path|->          Send a script file (or stdin) for execution
  setting <key> <true|false>
                            Update one boolean setting on the injection host
  alive                     Ping the attached injection host
  status                    Print connection state
  scan                      List ports in range with a live injection host
  doctor                    Run configuration and environment checks
  version                   Print version information
  help                      Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/msbridge/config.jsonc)
  --port N        Port for attach, or the single port for scan
  -h, --help      Show help
  --version       Show version
`, binaryName)
}

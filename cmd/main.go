package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"tarpit/pkg/engine"
	"tarpit/pkg/models"
	"tarpit/pkg/utils/fs"
)

const defaultConfigPath = "tarpit.config.yaml"

func printRootHelp() {
	fmt.Println(`tarpit - local fixture server for download-client error and timeout testing

Usage:
  tarpit <command> [options]

Available Commands:
  up        Start the tarpit (127.0.0.1:8765 unless configured otherwise)
  down      Stop a running tarpit
  init      Write a default config file
  help      Show help for a command

Run 'tarpit help <command>' for details on a specific command.`)
}

func printUpHelp() {
	fmt.Println(`Usage:
  tarpit up [--config <path>]

Options:
  --config   Path to tarpit config YAML file (default: ./tarpit.config.yaml,
             built-in defaults are used when it does not exist)`)
}

func printDownHelp() {
	fmt.Println(`Usage:
  tarpit down [--config <path>]

Options:
  --config   Path to the config YAML file the tarpit was started with (default: ./tarpit.config.yaml)`)
}

func printInitHelp() {
	fmt.Println(`Usage:
  tarpit init [--config <path>]

Options:
  --config   Where to write the config YAML file (default: ./tarpit.config.yaml)`)
}

// parseConfigFlag parses the --config flag of a subcommand. explicit reports
// whether the user named a file.
func parseConfigFlag(name string, args []string) (absPath string, explicit bool) {
	cmd := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := cmd.String("config", defaultConfigPath, "Path to configuration YAML file")

	if err := cmd.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		os.Exit(1)
	}

	cmd.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})

	absPath, err := filepath.Abs(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to resolve config path: %v\n", err)
		os.Exit(1)
	}
	return absPath, explicit
}

func loadConfig(absPath string, explicit bool) *models.TarpitConfig {
	if !fs.Exists(absPath) {
		if explicit {
			fmt.Fprintf(os.Stderr, "Config file not found: %s\n", absPath)
			os.Exit(1)
		}
		return engine.DefaultConfig()
	}

	config, err := engine.LoadConfig(absPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	return config
}

func main() {
	if len(os.Args) < 2 {
		printRootHelp()
		os.Exit(1)
	}

	switch os.Args[1] {

	case "up":
		absPath, explicit := parseConfigFlag("up", os.Args[2:])
		config := loadConfig(absPath, explicit)

		tarpit, err := engine.InstantiateTarpitEngine(config, absPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Unable to start tarpit: %v\n", err)
			os.Exit(1)
		}

		if err := tarpit.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}

	case "down":
		absPath, _ := parseConfigFlag("down", os.Args[2:])

		if err := engine.KillTarpit(absPath); err != nil {
			fmt.Fprintf(os.Stderr, "Unable to stop the tarpit started with %s: %v\n", absPath, err)
			os.Exit(1)
		}
		fmt.Printf("Shut down tarpit started with %s\n", absPath)

	case "init":
		absPath, _ := parseConfigFlag("init", os.Args[2:])

		if fs.Exists(absPath) {
			fmt.Fprintf(os.Stderr, "Config file already exists: %s\n", absPath)
			os.Exit(1)
		}
		if err := engine.InitConfig(absPath); err != nil {
			fmt.Fprintf(os.Stderr, "Unable to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote default config to %s\n", absPath)

	case "help":
		if len(os.Args) == 2 {
			printRootHelp()
		} else {
			switch os.Args[2] {
			case "up":
				printUpHelp()
			case "down":
				printDownHelp()
			case "init":
				printInitHelp()
			default:
				fmt.Printf("Unknown help topic: %s\n", os.Args[2])
				printRootHelp()
				os.Exit(1)
			}
		}

	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		printRootHelp()
		os.Exit(1)
	}
}

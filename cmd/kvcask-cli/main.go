// Command kvcask-cli is an interactive driver for a kvcask store. It opens
// the named store and accepts create/read/delete/optimize commands on stdin.
//
//	$ kvcask-cli -name users -dir /var/data
//	> create alice {"visits": 1} 30s
//	ok
//	> read alice
//	{"visits": 1}
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/phuslu/log"
	"github.com/spf13/viper"
	"github.com/tidwall/pretty"

	"github.com/kvcask/kvcask/store"
)

func main() {
	name := flag.String("name", "kvcask.db", "store file name")
	dir := flag.String("dir", "", "store directory (overrides config file)")
	configFile := flag.String("config", "", "optional config file (yaml)")
	verbose := flag.Bool("v", false, "log store activity to stderr")
	flag.Parse()

	opts, err := optionsFromConfig(*configFile, *dir, *verbose)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	s, err := store.Open(*name, opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open error:", err)
		os.Exit(1)
	}
	defer s.Close()

	fmt.Printf("Opened store %q. Type 'help' for commands, 'exit' to quit.\n", *name)
	repl(s)
}

// optionsFromConfig layers store options from an optional viper config file
// and environment (KVCASK_* variables) under the command-line flags.
func optionsFromConfig(configFile, dir string, verbose bool) ([]store.Option, error) {
	v := viper.New()
	v.SetEnvPrefix("kvcask")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var opts []store.Option
	if dir != "" {
		opts = append(opts, store.WithDirectory(dir))
	} else if d := v.GetString("directory"); d != "" {
		opts = append(opts, store.WithDirectory(d))
	}
	if n := v.GetInt64("max_file_size"); n > 0 {
		opts = append(opts, store.WithMaxFileSize(n))
	}
	if n := v.GetInt("max_key_size"); n > 0 {
		opts = append(opts, store.WithMaxKeySize(n))
	}
	if n := v.GetInt("max_value_size"); n > 0 {
		opts = append(opts, store.WithMaxValueSize(n))
	}
	if n := v.GetInt("max_pending_ops"); n > 0 {
		opts = append(opts, store.WithMaxPendingOps(n))
	}
	if n := v.GetInt64("max_pending_bytes"); n > 0 {
		opts = append(opts, store.WithMaxPendingBytes(n))
	}
	if d := v.GetDuration("commit_interval"); d > 0 {
		opts = append(opts, store.WithCommitInterval(d))
	}
	if d := v.GetDuration("reap_interval"); d > 0 {
		opts = append(opts, store.WithReapInterval(d))
	}
	if v.GetBool("compression") {
		opts = append(opts, store.WithCompression(true))
	}

	if verbose {
		opts = append(opts, store.WithLogger(log.Logger{
			Level:  log.DebugLevel,
			Writer: &log.ConsoleWriter{Writer: os.Stderr},
		}))
	}
	return opts, nil
}

func repl(s *store.Store) {
	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print("> ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" {
			return
		}

		args, err := shellquote.Split(line)
		if err != nil {
			fmt.Println("parse error:", err)
			continue
		}
		runCommand(s, args)
	}
}

func runCommand(s *store.Store, args []string) {
	switch strings.ToLower(args[0]) {
	case "create":
		if len(args) < 3 || len(args) > 4 {
			fmt.Println("usage: create <key> <json-value> [ttl]")
			return
		}
		var ttl time.Duration
		if len(args) == 4 {
			var err error
			if ttl, err = time.ParseDuration(args[3]); err != nil {
				fmt.Println("bad ttl:", err)
				return
			}
		}
		if err := s.Create(args[1], rawValue(args[2]), ttl); err != nil {
			fmt.Println(err)
			return
		}
		fmt.Println("ok")

	case "read":
		if len(args) != 2 {
			fmt.Println("usage: read <key>")
			return
		}
		value, err := s.Read(args[1])
		if err != nil {
			fmt.Println(err)
			return
		}
		os.Stdout.Write(pretty.Pretty(value))

	case "delete":
		if len(args) != 2 {
			fmt.Println("usage: delete <key>")
			return
		}
		if err := s.Delete(args[1]); err != nil {
			fmt.Println(err)
			return
		}
		fmt.Println("ok")

	case "keys":
		keys, err := s.Keys()
		if err != nil {
			fmt.Println(err)
			return
		}
		for _, k := range keys {
			fmt.Println(k)
		}

	case "count":
		n, err := s.Len()
		if err != nil {
			fmt.Println(err)
			return
		}
		fmt.Println(n)

	case "optimize":
		if err := s.Optimize(); err != nil {
			fmt.Println(err)
			return
		}
		fmt.Println("ok")

	case "help":
		fmt.Print(helpText)

	default:
		fmt.Println("unknown command; type 'help'")
	}
}

// rawValue passes well-formed JSON through untouched and treats anything else
// as a plain string value, so `create k hello` works without quoting.
func rawValue(arg string) any {
	if json.Valid([]byte(arg)) {
		return json.RawMessage(arg)
	}
	return arg
}

const helpText = `Available commands:

create <key> <json-value> [ttl]
  Store a JSON value under key. ttl is a Go duration ("30s", "5m");
  omit it for no expiry.

read <key>
  Print the value stored under key.

delete <key>
  Remove the key.

keys
  List all live keys.

count
  Print the number of live keys.

optimize
  Compact the store file, reclaiming space from deleted and expired keys.

exit
  Flush and close the store.
`

// Command loadwatchctl triggers jobs and checks health on a running
// loadwatch instance.
//
//	loadwatchctl [flags] health
//	loadwatchctl [flags] run <reminder|missing|summary|acwr>
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aussiebroadwan/loadwatch/pkg/loadwatchsdk"
	"github.com/spf13/pflag"
)

func main() {
	server := pflag.StringP("server", "s", envOr("LOADWATCH_URL", "http://localhost:8080"), "loadwatch base URL")
	token := pflag.StringP("token", "t", os.Getenv("JOBS_TOKEN"), "jobs bearer token")
	at := pflag.String("at", "", "RFC 3339 reference time for run (default now)")
	timeout := pflag.Duration("timeout", time.Minute, "request timeout")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: loadwatchctl [flags] health | run <job>\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := loadwatchsdk.NewClient(*server, *token)

	var (
		out any
		err error
	)
	switch args := pflag.Args(); {
	case len(args) == 1 && args[0] == "health":
		out, err = client.GetReadiness(ctx)
	case len(args) == 2 && args[0] == "run":
		var ref time.Time
		if *at != "" {
			ref, err = time.Parse(time.RFC3339, *at)
			if err != nil {
				fatalf("invalid --at: %v", err)
			}
		}
		out, err = client.RunJob(ctx, args[1], ref)
	default:
		pflag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fatalf("%v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "loadwatchctl: "+format+"\n", args...)
	os.Exit(1)
}

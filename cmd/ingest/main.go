// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Command ingest manages tenant key material and runs the upload
// pipeline from the command line. Run "ingest" without arguments for
// a list of subcommands.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/ingest/cmd/ingest/cmd"
	"github.com/grailbio/ingest/log"
	"github.com/grailbio/ingest/must"

	// Register the keycrypt schemes usable in -keys.
	_ "github.com/grailbio/ingest/security/keycrypt/file"
	_ "github.com/grailbio/ingest/security/keycrypt/kms"
)

func main() {
	log.AddFlags()
	var (
		configPath = flag.String("config", "", "YAML configuration file")
		keys       = flag.String("keys", "", "keycrypt URL template of tenant key bundles; overrides the configuration")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] subcommand [args]\n", os.Args[0])
		flag.PrintDefaults()
		cmd.PrintHelp()
	}
	flag.Parse()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)

	config := cmd.DefaultConfig()
	if *configPath != "" {
		var err error
		config, err = cmd.LoadConfig(*configPath)
		must.Nil(err)
	}
	if *keys != "" {
		config.Keys = *keys
	}
	must.Truef(config.Keys != "", "no key URL template configured")
	if err := cmd.Run(context.Background(), cmd.NewEnv(config), flag.Args()); err != nil {
		log.Fatal(err)
	}
}

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/abelbrown/collective/internal/config"
)

func runConfig() {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Config file (default ~/.collective/config.json)")
	write := fs.Bool("write", false, "Save the effective configuration back to the file")
	fs.Parse(os.Args[1:])

	cfg := loadConfig(*cfgPath)
	if *write {
		path := *cfgPath
		if path == "" {
			path = config.ConfigPath()
		}
		if err := cfg.Save(path); err != nil {
			fatalf("save config: %v", err)
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", path)
	}

	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		fatalf("encode: %v", err)
	}
	fmt.Println(string(b))
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/wolfman30/telecom-lead-agent/internal/app/bootstrap"
	appconfig "github.com/wolfman30/telecom-lead-agent/internal/config"
	"github.com/wolfman30/telecom-lead-agent/internal/importer"
	"github.com/wolfman30/telecom-lead-agent/internal/leads"
	"github.com/wolfman30/telecom-lead-agent/pkg/logging"
)

func main() {
	var (
		file     string
		operator string
	)
	flag.StringVar(&file, "file", "", "CSV file with phone_number,name,email,current_operator,target_operator,notes")
	flag.StringVar(&operator, "operator", "CLARO", "target operator for rows that do not set one (CLARO, WOW, WIN)")
	flag.Parse()

	if strings.TrimSpace(file) == "" && flag.NArg() > 0 {
		file = flag.Arg(0)
	}
	if strings.TrimSpace(file) == "" {
		fmt.Fprintln(os.Stderr, "usage: import-leads -file leads.csv [-operator CLARO]")
		os.Exit(2)
	}

	target, err := leads.ParseOperator(operator)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid operator: %v\n", err)
		os.Exit(2)
	}

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	f, err := os.Open(file)
	if err != nil {
		logger.Error("open csv", "file", file, "error", err)
		os.Exit(1)
	}
	defer f.Close()

	res, err := importer.New(leads.NewPostgresRepository(pool), logger).Import(ctx, f, target)
	if err != nil {
		logger.Error("import aborted", "error", err, "imported", res.Imported)
		os.Exit(1)
	}
	fmt.Printf("imported=%d skipped=%d errors=%d total=%d\n", res.Imported, res.Skipped, res.Errors, res.Total())
}

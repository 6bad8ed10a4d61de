// Command crawler runs crawls, migrations and token minting from the shell,
// without the HTTP server in front.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"regcrawl/internal/app"
	"regcrawl/internal/config"
	"regcrawl/internal/crawler"
	"regcrawl/internal/database/migration"
	"regcrawl/internal/keywords"
	"regcrawl/internal/pkg/jwt"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "crawler",
		Short:         "Regulatory data crawler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(crawlCmd(), migrateCmd(), tokenCmd())

	if err := root.Execute(); err != nil {
		log.Fatalf("crawler: %v", err)
	}
}

func crawlCmd() *cobra.Command {
	var (
		kws        []string
		dateFrom   string
		dateTo     string
		maxRecords int
		batchSize  int
		maxPages   int
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run all crawler types over the keyword list and wait",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c, err := app.NewContainer(cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			if len(kws) == 0 {
				kws = keywords.Load(cfg.Crawl.KeywordsFile, c.Logger)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			base := crawler.JobSpec{
				SearchTerm: "",
				DateFrom:   dateFrom,
				DateTo:     dateTo,
				MaxRecords: maxRecords,
				BatchSize:  batchSize,
				MaxPages:   maxPages,
			}

			started := time.Now()
			results := c.Orch.RunAll(ctx, kws, base)

			var saved, skipped, errs int
			for typ, res := range results {
				saved += res.Saved
				skipped += res.Skipped
				errs += len(res.Errors)
				fmt.Fprintf(os.Stdout, "%-20s saved=%-6d skipped=%-6d pages=%-5d keywords=%-3d errors=%d timed_out=%t\n",
					typ, res.Saved, res.Skipped, res.Pages, res.KeywordsProcessed, len(res.Errors), res.TimedOut)
			}
			fmt.Fprintf(os.Stdout, "total saved=%d skipped=%d errors=%d elapsed=%s\n",
				saved, skipped, errs, time.Since(started).Round(time.Second))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&kws, "keyword", nil, "search keyword (repeatable; defaults to the keyword file)")
	cmd.Flags().StringVar(&dateFrom, "date-from", "", "lower date bound (YYYY-MM-DD)")
	cmd.Flags().StringVar(&dateTo, "date-to", "", "upper date bound (YYYY-MM-DD)")
	cmd.Flags().IntVar(&maxRecords, "max-records", -1, "record cap per search, -1 for all")
	cmd.Flags().IntVar(&batchSize, "batch-size", 50, "requested page size")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "page cap per search, 0 for unbounded")
	return cmd
}

func migrateCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c, err := app.NewContainer(cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			runner := migration.Runner{Dir: dir}
			if err := runner.Run(ctx, c.DB.SQLDB()); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "migrations applied")
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "migrations", "migration directory")
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the crawl API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, err := jwt.NewHMACService(cfg.Auth.JWTSecret).GenerateToken(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", jwt.DefaultTTL, "token lifetime")
	return cmd
}

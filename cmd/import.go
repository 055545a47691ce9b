package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/brasserie-group/cost-cli/internal/fetcher"
	"github.com/brasserie-group/cost-cli/internal/importer"
)

var (
	importDelimiter string
	importEncoding  string
	importSheet     string
	importNoHeader  bool
	importColumns   []int
)

var importCmd = &cobra.Command{
	Use:   "import <path-or-url>",
	Short: "Import a supplier purchase extract (csv, xlsx, or zip)",
	Long: `Imports a purchase extract into the raw purchase store. Local paths are
read directly; http(s):// and ftp:// URLs are downloaded first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		source := args[0]

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		path := source
		if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") || strings.HasPrefix(source, "ftp://") {
			path, err = downloadExtract(cmd, source)
			if err != nil {
				return err
			}
		}

		opts := importer.Options{
			Delimiter:        cfg.Import.DelimiterRune(),
			Encoding:         cfg.Import.Encoding,
			HasHeader:        cfg.Import.HasHeader,
			SheetName:        cfg.Import.SheetName,
			MaxMalformedRate: cfg.Import.MaxMalformedRate,
		}
		if importDelimiter != "" {
			opts.Delimiter = []rune(importDelimiter)[0]
		}
		if importEncoding != "" {
			opts.Encoding = importEncoding
		}
		if importSheet != "" {
			opts.SheetName = importSheet
		}
		if importNoHeader {
			opts.HasHeader = false
		}
		if len(importColumns) > 0 {
			if len(importColumns) != 5 {
				return eris.New("--columns needs exactly 5 indexes: name,date,quantity,unit,total")
			}
			opts.Columns = importer.ColumnMap{
				Name:      importColumns[0],
				Date:      importColumns[1],
				Quantity:  importColumns[2],
				Unit:      importColumns[3],
				TotalCost: importColumns[4],
			}
		}

		result, err := importer.New(st).ImportFile(ctx, path, opts)
		if err != nil {
			return err
		}

		fmt.Printf("Batch %s: %d rows, %d imported, %d malformed (%.1f%%)\n",
			result.BatchID, result.Total, result.Imported, result.Malformed,
			result.MalformedRate()*100)
		return nil
	},
}

// downloadExtract pulls a remote extract into a temp file and returns its path.
func downloadExtract(cmd *cobra.Command, source string) (string, error) {
	dir, err := os.MkdirTemp("", "cost-import-*")
	if err != nil {
		return "", eris.Wrap(err, "create temp dir")
	}
	dest := filepath.Join(dir, filepath.Base(source))

	var f fetcher.Fetcher
	if strings.HasPrefix(source, "ftp://") {
		f = fetcher.NewFTPFetcher(fetcher.FTPOptions{
			Timeout:  time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			User:     cfg.Fetch.FTPUser,
			Password: cfg.Fetch.FTPPassword,
		})
	} else {
		f = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			Timeout:     time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			MaxRetries:  cfg.Fetch.MaxRetries,
			PerHostRate: rate.Limit(cfg.Fetch.PerHostRate),
		})
	}
	if _, err := f.DownloadToFile(cmd.Context(), source, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func init() {
	importCmd.Flags().StringVar(&importDelimiter, "delimiter", "", "CSV field delimiter (default from config)")
	importCmd.Flags().StringVar(&importEncoding, "encoding", "", "CSV encoding: utf-8, latin1, windows-1252")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "XLSX sheet name")
	importCmd.Flags().BoolVar(&importNoHeader, "no-header", false, "extract has no header row")
	importCmd.Flags().IntSliceVar(&importColumns, "columns", nil, "column indexes: name,date,quantity,unit,total")
	rootCmd.AddCommand(importCmd)
}

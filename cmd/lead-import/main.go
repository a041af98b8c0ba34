// Command lead-import uploads a CSV or XLSX file to the lead import API in
// sequential batches.
//
//	lead-import -file leads.xlsx -list "Spring Expo" -map "Cell #=phone"
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/huffhealth/crm/internal/datanorm"
	"github.com/huffhealth/crm/internal/domain"
	"github.com/huffhealth/crm/internal/pkg/httpretry"
	"github.com/joho/godotenv"
)

type multiFlag []string

func (m *multiFlag) String() string     { return strings.Join(*m, ",") }
func (m *multiFlag) Set(v string) error { *m = append(*m, v); return nil }

func main() {
	_ = godotenv.Load()

	var overrides multiFlag
	var (
		file      = flag.String("file", "", "CSV or XLSX file to import (required)")
		listName  = flag.String("list", "", "lead list name (defaults to the file name)")
		apiURL    = flag.String("api", envOr("CRM_API_URL", "http://localhost:8080"), "import API base URL")
		owner     = flag.String("owner", os.Getenv("CRM_USER_ID"), "user id sent as X-User-Id")
		source    = flag.String("source", "", "source label for rows without a mapped source")
		status    = flag.String("status", "", "initial lead status")
		batchSize = flag.Int("batch-size", 500, "rows per request")
		dryRun    = flag.Bool("dry-run", false, "print the detected mapping and exit")
	)
	flag.Var(&overrides, "map", "override a column mapping as Header=field (repeatable)")
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("read %s: %v", *file, err)
	}
	fileName := filepath.Base(*file)

	table, format, err := datanorm.DecodeFile(fileName, data)
	if err != nil {
		log.Fatalf("decode %s: %v", fileName, err)
	}
	mapping, err := parseOverrides(datanorm.NewMapper(nil).AutoDetect(table.Headers), overrides)
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("[LeadImport] %s: %s, %d columns, %d rows", fileName, format, len(table.Headers), len(table.Rows))
	for _, m := range mapping {
		fmt.Printf("  %-30s -> %s\n", m.SourceColumn, m.TargetField)
	}
	if *dryRun {
		return
	}

	name := *listName
	if name == "" {
		name = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Minute}
	up := NewUploader(*apiURL, *owner, client, httpretry.NewRetryClient(client, 3))
	up.Progress = func(batch, total int, res *domain.ImportResult) {
		log.Printf("[LeadImport] Batch %d/%d: %d ok, %d failed", batch, total, res.SuccessCount, res.FailedCount)
	}

	sum, err := up.Run(ctx, Upload{
		Rows:          table.Rows,
		Mapping:       mapping,
		ListName:      name,
		FileName:      fileName,
		Source:        *source,
		InitialStatus: *status,
		BatchSize:     *batchSize,
	})
	if err != nil {
		log.Fatalf("[LeadImport] Import stopped: %v (list %s, %d batches sent)", err, sum.ListID, sum.Batches)
	}

	log.Printf("[LeadImport] Done: list %s, %d processed, %d imported, %d failed",
		sum.ListID, sum.Processed, sum.Succeeded, sum.Failed)
	for i, e := range sum.Errors {
		if i == 20 {
			fmt.Printf("  ... %d more\n", len(sum.Errors)-i)
			break
		}
		fmt.Printf("  row %d: %s\n", e.Row, e.Error)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/atlas-ingest/internal/app"
	types "github.com/yungbote/atlas-ingest/internal/domain"
	"github.com/yungbote/atlas-ingest/internal/platform/dbctx"
	"github.com/yungbote/atlas-ingest/internal/services"
)

type idList []string

func (l *idList) String() string { return strings.Join(*l, ",") }
func (l *idList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

func main() {
	var archive idList
	var unarchive bool
	var dryRun bool
	var includeArchived bool
	var limit int
	flag.Var(&archive, "archive", "file id to archive instead of revalidating (repeatable, comma separated)")
	flag.BoolVar(&unarchive, "unarchive", false, "with -archive, clear the archive flag instead")
	flag.BoolVar(&dryRun, "dry-run", false, "print planned submissions without dispatching")
	flag.BoolVar(&includeArchived, "include-archived", false, "also retry archived files")
	flag.IntVar(&limit, "limit", 0, "limit number of files processed")
	flag.Parse()

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx := context.Background()

	if len(archive) > 0 {
		ids := make([]uuid.UUID, 0, len(archive))
		for _, s := range archive {
			id, err := uuid.Parse(s)
			if err != nil || id == uuid.Nil {
				fmt.Printf("skipping invalid file id %q\n", s)
				continue
			}
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			fmt.Println("no valid file ids provided")
			return
		}
		n, err := application.Services.Notifications.SetFilesArchived(ctx, ids, !unarchive)
		if err != nil {
			fmt.Printf("set archived: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("updated %d file(s) archived=%t\n", n, !unarchive)
		return
	}

	rows, err := application.Repos.File.ListLatestByValidationStatus(
		dbctx.Context{Ctx: ctx},
		[]types.ValidationStatus{types.ValidationStatusRequestFailed},
		includeArchived,
		limit,
	)
	if err != nil {
		fmt.Printf("load files: %v\n", err)
		os.Exit(1)
	}

	submitted, failed := 0, 0
	for _, f := range rows {
		if f == nil || f.ID == uuid.Nil {
			continue
		}
		if dryRun {
			fmt.Printf("[dry-run] file_id=%s s3://%s/%s\n", f.ID, f.Bucket, f.Key)
			continue
		}
		err := application.Services.Dispatcher.DispatchNow(ctx, services.ValidationTarget{
			FileID: f.ID,
			Bucket: f.Bucket,
			Key:    f.Key,
		})
		if err != nil {
			failed++
			fmt.Printf("file_id=%s failed: %v\n", f.ID, err)
			continue
		}
		submitted++
	}
	fmt.Printf("done: candidates=%d submitted=%d failed=%d dry_run=%t\n", len(rows), submitted, failed, dryRun)
	if failed > 0 {
		application.Close()
		os.Exit(2)
	}
}

package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/IshaanNene/kitmanual/internal/crawler"
	"github.com/IshaanNene/kitmanual/internal/media"
	"github.com/IshaanNene/kitmanual/internal/upload"
)

func printCrawlSummary(res *crawler.Result, err error) {
	if res == nil {
		return
	}
	if err != nil {
		color.Red("\n❌ Crawl stopped after %s: %v", res.Duration.Round(time.Millisecond), err)
	} else {
		color.Green("\n✅ Crawl complete in %s (%s)", res.Duration.Round(time.Millisecond), res.StopReason)
	}
	fmt.Printf("   Pages:     %d visited, %d skipped, last with items: %d\n", res.PagesVisited, res.PagesSkipped, res.LastPage)
	fmt.Printf("   Manuals:   %d extracted, %d upserted, %d duplicates\n", res.ItemsExtracted, res.Upserted, res.Duplicates)
}

func printDownloadSummary(s media.Summary, err error) {
	if err != nil {
		color.Red("\n❌ Download aborted: %v", err)
	} else if s.Failed > 0 {
		color.Yellow("\n⚠️  Download finished with %d failures in %s", s.Failed, s.Duration.Round(time.Millisecond))
	} else {
		color.Green("\n✅ Download complete in %s", s.Duration.Round(time.Millisecond))
	}
	fmt.Printf("   Manuals:   %d downloaded, %d skipped, %d failed, %d paths healed\n", s.Downloaded, s.Skipped, s.Failed, s.Healed)
	fmt.Printf("   Data:      %d bytes\n", s.Bytes)
	if s.Failed > 0 {
		fmt.Println("   Failed manuals stay eligible; re-run download to retry them.")
	}
}

func printUploadSummary(s upload.Summary, err error) {
	if err != nil {
		color.Red("\n❌ Upload aborted: %v", err)
	} else if s.Failed > 0 {
		color.Yellow("\n⚠️  Upload finished with %d failures", s.Failed)
	} else {
		color.Green("\n✅ Upload complete in %s", s.Duration.Round(time.Millisecond))
	}
	fmt.Printf("   Manuals:   %d uploaded, %d failed, %d bytes\n", s.Uploaded, s.Failed, s.Bytes)
}

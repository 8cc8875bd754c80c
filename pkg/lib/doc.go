// Package lib provides a Go SDK to drive a tuberip backend programmatically.
//
// It runs the same client session as the tuberip CLI: resolving URLs, browsing
// playlist and channel pages, dispatching downloads and retrieving the produced
// files once the backend finishes them.
//
// # Quick Start
//
//	client, err := lib.New(ctx, lib.Config{
//	    Endpoint:  "http://localhost:5000",
//	    OutputDir: "downloads",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Connects to the backend event stream in the background.
//	client.Start(ctx)
//
//	page, _ := client.Page(ctx, "https://www.youtube.com/@someone", 1, lib.TabVideos)
//	ids, _ := client.DownloadItems(ctx, page, []string{page.Items[0].ID}, "720")
//	tasks, _ := client.Wait(ctx, ids)
//
// # Single items
//
// Resolve a video to list its formats and download one of them:
//
//	res, _ := client.Resolve(ctx, "https://www.youtube.com/watch?v=xyz")
//	id, _ := client.Download(ctx, res.Single, res.Single.Formats[0].FormatID)
//
// # Error Handling
//
// All methods return errors that can be inspected with [errors.Is]:
//
//   - [ErrNotFound]: Item or task does not exist.
//   - [ErrNotValid]: Invalid input (URL, tab, page, quality...).
//   - [ErrEmptySelection]: No item to download.
//   - [ErrNotStarted]: The client session is not running.
//
// # Thread Safety
//
// A [Client] is safe for concurrent use, although browse operations share a
// single browse session: the latest page request wins.
package lib

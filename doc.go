// Package media provides the client-side media submission pipeline for the
// Two Truths & a Lie backend. It uploads recorded video clips over unreliable
// mobile networks and coordinates the server-side merge of the three
// statement clips into a single challenge video.
//
// The pipeline adapts to network conditions instead of assuming a stable
// link: chunk sizes and retry budgets follow the reported network quality,
// transient failures back off exponentially with jitter, and uploads started
// while the device is offline can either wait for connectivity or park in a
// durable queue that replays when the network returns.
//
// Key features:
//   - Chunked uploads with per-chunk retry, sized by network quality
//   - Offline handling: bounded connectivity wait or durable queue with
//     automatic replay on reconnect
//   - Merge submission: bounded-parallel upload of the input clips, merge
//     initiation, and a polling state machine tracking the merge to a
//     terminal state
//   - Progress as channels: incremental events never block the pipeline,
//     the terminal event is always delivered exactly once
//
// Example usage:
//
//	client, err := media.New(
//	    media.WithBaseURL("https://api.example.com/api/v1"),
//	    media.WithTokenProvider(tokens),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	// Upload a single clip.
//	result, err := client.Upload(ctx, "/videos/statement0.mp4")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(result.MediaID)
//
//	// Submit all three statements for merging.
//	merged, err := client.Merge(ctx, []mediatypes.MergeFile{
//	    {Path: "/videos/statement0.mp4", StatementIndex: 0, Duration: 4 * time.Second},
//	    {Path: "/videos/statement1.mp4", StatementIndex: 1, Duration: 5 * time.Second},
//	    {Path: "/videos/statement2.mp4", StatementIndex: 2, Duration: 3 * time.Second},
//	})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(merged.MergedVideoURL)
package media

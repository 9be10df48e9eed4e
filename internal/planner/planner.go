// Package planner sizes upload chunks from the current network quality and
// builds the chunk list covering a source file.
package planner

import (
	"github.com/kingkw1/2Truths-1Lie-sub004/mediatypes"
)

// Chunk size ceilings per network quality tier. Worse links get smaller
// chunks so a single failed transfer wastes less and more retries so brief
// drops are survivable.
const (
	poorChunkSize      = 256 * 1024
	fairChunkSize      = 512 * 1024
	goodChunkSize      = 1024 * 1024
	excellentChunkSize = 2 * 1024 * 1024
)

// Retry budgets per network quality tier.
const (
	poorRetries      = 5
	fairRetries      = 4
	goodRetries      = 3
	excellentRetries = 2
)

// PlanFor returns the chunk sizing and retry budget for the given network
// quality tier. An unknown tier gets the "good" values.
func PlanFor(quality mediatypes.NetworkQuality) mediatypes.ChunkPlan {
	switch quality {
	case mediatypes.QualityPoor:
		return mediatypes.ChunkPlan{ChunkSize: poorChunkSize, RetriesPerChunk: poorRetries}
	case mediatypes.QualityFair:
		return mediatypes.ChunkPlan{ChunkSize: fairChunkSize, RetriesPerChunk: fairRetries}
	case mediatypes.QualityExcellent:
		return mediatypes.ChunkPlan{ChunkSize: excellentChunkSize, RetriesPerChunk: excellentRetries}
	case mediatypes.QualityGood:
		return mediatypes.ChunkPlan{ChunkSize: goodChunkSize, RetriesPerChunk: goodRetries}
	default:
		return mediatypes.ChunkPlan{ChunkSize: goodChunkSize, RetriesPerChunk: goodRetries}
	}
}

// CountChunks calculates the number of chunks needed for the given size and
// chunk size.
func CountChunks(totalSize, chunkSize int64) int {
	if totalSize <= chunkSize {
		return 1
	}
	return int((totalSize + chunkSize - 1) / chunkSize) // Ceiling division
}

// Chunks builds the ordered chunk list for a file of totalSize bytes. The
// ranges are contiguous, cover [0, totalSize) exactly, and every chunk except
// the last spans chunkSize bytes. A file no larger than one chunk yields a
// single chunk covering the whole file. totalSize and chunkSize must be
// positive; callers validate before planning.
func Chunks(totalSize, chunkSize int64) []mediatypes.UploadChunk {
	count := CountChunks(totalSize, chunkSize)
	chunks := make([]mediatypes.UploadChunk, 0, count)
	for i := 0; i < count; i++ {
		start := int64(i) * chunkSize
		end := start + chunkSize - 1
		if end > totalSize-1 {
			end = totalSize - 1
		}
		chunks = append(chunks, mediatypes.UploadChunk{
			Index: i,
			Start: start,
			End:   end,
		})
	}
	return chunks
}

package downloader

import "fmt"

// ChunkRange is the byte range [Start, End) assigned to one worker.
type ChunkRange struct {
	Index int
	Start int64
	End   int64
}

func (r ChunkRange) Len() int64 { return r.End - r.Start }

// PlanChunks splits size bytes into count contiguous ranges of size/count
// bytes; the last range absorbs the remainder. Ranges may be empty when
// count exceeds size.
func PlanChunks(size int64, count int) ([]ChunkRange, error) {
	if size < 1 {
		return nil, fmt.Errorf("invalid file size %d", size)
	}
	if count < 1 {
		return nil, fmt.Errorf("invalid chunk count %d", count)
	}
	chunkSize := size / int64(count)
	plan := make([]ChunkRange, count)
	for i := range count {
		start := int64(i) * chunkSize
		end := start + chunkSize
		if i == count-1 {
			end = size
		}
		plan[i] = ChunkRange{Index: i, Start: start, End: end}
	}
	return plan, nil
}

// Package backfill fills daily price history for a token, fetching missing
// days from the external source in paced, concurrent chunks.
package backfill

import "price-history/internal/domain"

// enumerateDays lists the day-start timestamps to backfill: every UTC day
// boundary from the day containing start through the day containing now,
// inclusive, strictly increasing. Returns nil when start is after now.
func enumerateDays(start, now int64) []int64 {
	first := domain.DayStart(start)
	last := domain.DayStart(now)
	if first > last {
		return nil
	}

	days := make([]int64, 0, (last-first)/domain.DaySeconds+1)
	for ts := first; ts <= last; ts += domain.DaySeconds {
		days = append(days, ts)
	}
	return days
}

// chunkDays splits days into consecutive chunks of at most size elements.
func chunkDays(days []int64, size int) [][]int64 {
	if size <= 0 || len(days) == 0 {
		return nil
	}

	chunks := make([][]int64, 0, (len(days)+size-1)/size)
	for start := 0; start < len(days); start += size {
		end := start + size
		if end > len(days) {
			end = len(days)
		}
		chunks = append(chunks, days[start:end])
	}
	return chunks
}

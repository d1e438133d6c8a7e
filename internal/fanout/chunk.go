package fanout

// DefaultBatchSize matches the timeline store's batch write limit.
const DefaultBatchSize = 10

// Chunk partitions items into fixed-size groups, preserving order. The last
// group may be smaller. For N items and size s it yields ceil(N/s) groups
// whose concatenation equals the input.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for size < len(items) {
		chunks = append(chunks, items[:size:size])
		items = items[size:]
	}
	if len(items) > 0 {
		chunks = append(chunks, items)
	}
	return chunks
}

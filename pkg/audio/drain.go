package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent goroutine leaks when a consumer stops reading a
// streaming channel early, e.g. a TTS audio stream after cancellation.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}

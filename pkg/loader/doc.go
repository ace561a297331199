// Package loader implements progressive streaming of chunked
// point-cloud datasets.
//
// A Loader turns one manifest into a load session: a bounded pool of
// chunk downloads feeding a capacity-bounded ready buffer, drained by a
// sequencer that delivers decoded geometry to the consumer in strict
// priority order no matter which downloads finish first.
//
// # Usage
//
//	l := loader.New(baseURL, loader.Options{})
//	session, err := l.Load(ctx, "castleton", consumer)
//	if errors.Is(err, loader.ErrNoChunkedVariant) {
//	    // fall back to a monolithic load
//	}
//	session.Wait()
//
// Starting a new load cancels any session still running on the same
// Loader. Cancellation is cooperative: in-flight downloads abort, the
// ready buffer is released, and no further consumer callbacks fire.
//
// # Ordering
//
// Downloads complete in arbitrary order. Chunks that finish early are
// held in the ready buffer until every lower-priority chunk has been
// delivered; a chunk that completes while the buffer is full is
// discarded and downloaded again when the sequencer catches up. This
// trades wasted bandwidth for a hard memory cap.
package loader

// Package kv is the embedded persistent store used by kiln applications.
//
// It is a thin bucket/key/value layer over bbolt. Writes are committed
// without fsync by default, like a write-back cache: they are durable only
// after [Store.Flush], which the shutdown coordinator calls once all
// scheduled tasks have quiesced. Use [WithSyncWrites] to fsync every commit
// instead.
//
//	store, err := kv.Open("data/app.db")
//	if err != nil {
//	    return err
//	}
//	coord := shutdown.New(shutdown.WithFlusher(store))
//
// Values are raw bytes; [PutJSON] and [GetJSON] cover the common case of
// storing structs.
package kv

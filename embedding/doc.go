// Package embedding wraps an ai.Embedder with the behavior needed to embed
// whole documents against throttled providers.
//
// A Gateway retries throttled calls with exponential backoff, splits batches
// into groups embedded concurrently, and spaces groups with a Pacer so a
// document of any size stays under a provider's per-window request cap.
// Clock and Pacer are injectable, which lets tests run the pacing schedule
// on simulated time.
//
//	gw, err := embedding.NewGateway(provider.Embedder(),
//		embedding.WithGroupSize(55),
//		embedding.WithPacer(embedding.NewIntervalPacer(61*time.Second, embedding.RealClock())),
//	)
//	vectors, err := gw.EmbedBatch(ctx, chunks)
package embedding

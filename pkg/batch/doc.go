// Package batch provides the bounded fan-out operations of the proxy.
//
// Aggregator joins subjects, classes and class schedules of a registration
// period into one flat list. Subjects are processed in sequential waves of
// ChunkSize; inside a wave every subject is fetched concurrently, and every
// class of a subject has its schedule fetched concurrently:
//
//	agg := batch.NewAggregator(portalClient, batch.DefaultConfig())
//	records, err := agg.Collect(ctx, token, periodID)
//
// Only the subject listing can fail the operation. A failed class listing
// drops that subject's records, and a failed schedule fetch yields a record
// with an empty schedule list. Output order follows subject order, then class
// order, independent of completion order.
//
// Registrar submits registrations for many classes at once and reports a
// per-class outcome instead of failing as a whole.
package batch

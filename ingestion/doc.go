// Package ingestion turns extracted document text into searchable chunks and
// attaches the resulting document to a tenant.
//
// Pipeline.Ingest runs the whole flow synchronously:
//   - create the document in the pending state
//   - split the text into overlapping windows
//   - embed every window through the paced batch path
//   - commit the chunk set and mark the document ready
//   - fill, extend or create the tenant's phone mapping
//
// Any failure after the document exists deletes it again. Cleanup failures
// are logged and the original error is returned.
//
// Pipeline.Submit runs the same flow on a worker pool and returns a job ID
// that can be polled with Pipeline.Job.
package ingestion

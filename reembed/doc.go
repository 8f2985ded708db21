// Package reembed rewrites the stored chunk vectors of ready documents with
// the currently configured embedding model. Run it after switching models:
// chunks embedded by a different model have a different dimension and are
// skipped by similarity search until they are reembedded.
package reembed

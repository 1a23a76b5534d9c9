// Package artifact stores files produced by a run in its output location.
//
// A Store is addressed by namespace and file name. The namespace is the
// run's "<conversation>/<run>" path, so every run writes into a location of
// its own. DiskStore writes below a root directory, InMemoryStore keeps data
// in process, and the s3 subpackage targets an S3-compatible bucket.
package artifact

package kvdb

// Buckets hold the service's bookkeeping: reindex run progress keyed by run
// id, documents still waiting to be flushed at shutdown, and the last report
// of each background job.
const (
	RunsBucket    = "reindex_runs"
	PendingBucket = "pending_documents"
	JobsBucket    = "job_reports"
)

var buckets = []string{RunsBucket, PendingBucket, JobsBucket}

type DB interface {
	Set(bucket string, key string, value string) error
	Get(bucket string, key string) (string, error)
	Delete(bucket string, key string) error
	GetAllKeys(bucket string) ([]string, error)
	Close() error
}

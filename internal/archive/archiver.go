// Package archive exports transaction records to object storage before they
// are purged.
package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/dvloznov/fundnote-ledger/internal/domain"
	"github.com/dvloznov/fundnote-ledger/internal/ledger"
)

const uploadTimeout = 2 * time.Minute

// Archiver writes purge exports as JSON lines, one transaction per line,
// under purges/{user}/{timestamp}.jsonl.
type Archiver struct {
	storage ObjectStorage
	bucket  string
	clock   func() time.Time
}

// New creates an Archiver writing to bucket. A nil clock defaults to time.Now.
func New(storage ObjectStorage, bucket string, clock func() time.Time) *Archiver {
	if clock == nil {
		clock = time.Now
	}
	return &Archiver{storage: storage, bucket: bucket, clock: clock}
}

// ObjectName returns the object name of an export taken at ts.
func ObjectName(userID string, ts time.Time) string {
	return path.Join("purges", userID, ts.UTC().Format("20060102T150405.000000000Z")+".jsonl")
}

// ArchivePurge implements ledger.Archiver. It returns the gs:// URI of the
// export. Storage failures wrap domain.ErrStoreUnavailable.
func (a *Archiver) ArchivePurge(ctx context.Context, userID string, txs []*domain.Transaction) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("ArchivePurge: %w", domain.Invalid(domain.ReasonMissingUserID, "user_id"))
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	object := ObjectName(userID, a.clock())
	w := a.storage.NewWriter(ctx, a.bucket, object)

	if err := encode(w, txs); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("ArchivePurge: write %s: %w: %w", object, domain.ErrStoreUnavailable, err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("ArchivePurge: finalize upload: %w: %w", domain.ErrStoreUnavailable, err)
	}

	return "gs://" + a.bucket + "/" + object, nil
}

func encode(w io.Writer, txs []*domain.Transaction) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, t := range txs {
		if err := enc.Encode(t); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Fetch reads an export back from its gs:// URI.
func (a *Archiver) Fetch(ctx context.Context, uri string) ([]*domain.Transaction, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	r, err := a.storage.NewReader(ctx, bucket, object)
	if err != nil {
		return nil, fmt.Errorf("Fetch: %w", err)
	}
	defer r.Close()

	var txs []*domain.Transaction
	dec := json.NewDecoder(r)
	for dec.More() {
		var t domain.Transaction
		if err := dec.Decode(&t); err != nil {
			return nil, fmt.Errorf("Fetch: decode record %d: %w", len(txs)+1, err)
		}
		txs = append(txs, &t)
	}
	return txs, nil
}

// ParseURI splits a gs://bucket/object URI.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

var _ ledger.Archiver = (*Archiver)(nil)

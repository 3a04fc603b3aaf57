package build

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hangarhq/hangar/internal/domain"
	"github.com/hangarhq/hangar/internal/storage"
)

// ObjectStore is the subset of the storage client the uploader needs.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) error
}

// UploadResult reports how many files made it to storage.
type UploadResult struct {
	Uploaded int
	Failed   int
}

// UploadDir walks the build output directory and uploads every regular file
// under the tenant's artifact prefix. A single file failing does not abort
// the walk; failures are reported through the emitter and counted.
func UploadDir(ctx context.Context, store ObjectStore, emitter *Emitter, root, prefix, subdomain string) (UploadResult, error) {
	var result UploadResult
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if err := uploadFile(ctx, store, path, storage.ObjectKey(prefix, subdomain, rel), rel); err != nil {
			result.Failed++
			emitter.Log(domain.LogLevelError, fmt.Sprintf("upload failed: %s: %v", rel, err))
			return nil
		}
		result.Uploaded++
		emitter.Log(domain.LogLevelInfo, "uploaded "+rel)
		return nil
	})
	return result, err
}

func uploadFile(ctx context.Context, store ObjectStore, path, key, rel string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return store.Put(ctx, key, storage.ContentTypeFor(rel), f)
}

// pkg/progress/progress.go - byte counting reader used while streaming payload files.

package progress

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Reader wraps an io.Reader and counts the bytes read through it.
type Reader struct {
	reader io.Reader
	total  int64
	read   int64
	onRead func(read, total int64)
}

// NewReader wraps r. onRead, when non-nil, is called after every read with the
// running byte count; it must not block.
func NewReader(r io.Reader, total int64, onRead func(read, total int64)) *Reader {
	return &Reader{reader: r, total: total, onRead: onRead}
}

// Read implements io.Reader.
func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		read := atomic.AddInt64(&pr.read, int64(n))
		if pr.onRead != nil {
			pr.onRead(read, pr.total)
		}
	}
	return n, err
}

// BytesRead returns the number of bytes read so far.
func (pr *Reader) BytesRead() int64 {
	return atomic.LoadInt64(&pr.read)
}

// FormatBytes formats byte counts in human readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// Package audit records clone outcomes in a hash-chained JSONL log. Each
// record carries the hash of the one before it, so edits and deletions in
// the middle of the log are detectable with Verify.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/foldersmith/foldersmith/pkg/errclass"
	"github.com/foldersmith/foldersmith/pkg/jsonutil"
	"github.com/foldersmith/foldersmith/pkg/model"
)

// FileAppender appends audit records to a JSONL file with hash chain.
// Writers in other processes are serialized through a lock file next to
// the log.
type FileAppender struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
	now  func() time.Time
}

// NewFileAppender creates a new FileAppender.
func NewFileAppender(path string) *FileAppender {
	return &FileAppender{
		path: path,
		lock: flock.New(path + ".lock"),
		now:  time.Now,
	}
}

// Path returns the log file path.
func (a *FileAppender) Path() string {
	return a.path
}

// Append records the outcome of one backend's clone attempt.
func (a *FileAppender) Append(requestID string, res *model.CloneResult) error {
	details := map[string]any{
		"folders_created":   res.FoldersCreated,
		"documents_created": res.DocumentsCreated,
	}
	if res.Link != "" {
		details["link"] = res.Link
	}
	if res.Detail != "" {
		details["detail"] = res.Detail
	}
	if res.Partial {
		details["partial"] = true
	}

	return a.append(&model.AuditRecord{
		EventType: model.AuditEventFor(res.Status),
		RequestID: requestID,
		Backend:   res.Backend,
		Request:   res.Request,
		Status:    res.Status,
		Details:   details,
	})
}

func (a *FileAppender) append(record *model.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}
	if err := a.lock.Lock(); err != nil {
		return fmt.Errorf("lock audit log: %w", err)
	}
	defer a.lock.Unlock()

	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	prevHash, err := lastRecordHash(file)
	if err != nil {
		return fmt.Errorf("get last record hash: %w", err)
	}

	record.Timestamp = a.now().UTC()
	record.PrevHash = prevHash
	record.RecordHash, err = computeRecordHash(record)
	if err != nil {
		return fmt.Errorf("compute record hash: %w", err)
	}

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek to end: %w", err)
	}
	if _, err := file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	return nil
}

// GetLastRecordHash returns the hash of the last record in the log.
func (a *FileAppender) GetLastRecordHash() (model.HashValue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	file, err := os.Open(a.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	return lastRecordHash(file)
}

func lastRecordHash(file *os.File) (model.HashValue, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek to start: %w", err)
	}

	var lastHash model.HashValue
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record model.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue // skip malformed lines
		}
		lastHash = record.RecordHash
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan audit log: %w", err)
	}
	return lastHash, nil
}

// Verify checks every record's hash and its link to the previous record. It
// returns the number of records checked. A missing log verifies as empty.
func Verify(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("open audit log: %w", err)
	}
	defer file.Close()

	var (
		count    int
		prevHash model.HashValue
	)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		count++
		var record model.AuditRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return count - 1, errclass.ErrAuditChainBroken.WithMessagef("line %d: malformed record: %v", count, err)
		}
		if record.PrevHash != prevHash {
			return count - 1, errclass.ErrAuditChainBroken.WithMessagef("line %d: prev_hash does not match previous record", count)
		}
		want, err := computeRecordHash(&record)
		if err != nil {
			return count - 1, fmt.Errorf("line %d: %w", count, err)
		}
		if record.RecordHash != want {
			return count - 1, errclass.ErrAuditChainBroken.WithMessagef("line %d: record_hash mismatch", count)
		}
		prevHash = record.RecordHash
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("scan audit log: %w", err)
	}
	return count, nil
}

func computeRecordHash(record *model.AuditRecord) (model.HashValue, error) {
	hashRecord := *record
	hashRecord.RecordHash = ""

	data, err := jsonutil.CanonicalMarshal(&hashRecord)
	if err != nil {
		return "", fmt.Errorf("canonical marshal: %w", err)
	}

	hash := sha256.Sum256(data)
	return model.HashValue(hex.EncodeToString(hash[:])), nil
}

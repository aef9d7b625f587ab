// pkg/extract/extract.go - materializes package payload under the install root.
//
// Every directory level and file the run creates is appended to the ledger
// right after it exists. The first failure stops the run; undoing what was
// recorded is the caller's job.

package extract

import (
	"context"
	"fmt"

	"github.com/windowsadmins/msixinstaller/pkg/appx"
	"github.com/windowsadmins/msixinstaller/pkg/ledger"
	"github.com/windowsadmins/msixinstaller/pkg/logging"
	"github.com/windowsadmins/msixinstaller/pkg/progress"
	"github.com/windowsadmins/msixinstaller/pkg/resource"
	"github.com/windowsadmins/msixinstaller/pkg/utils"
)

// Recorder is the part of the ledger extraction needs.
type Recorder interface {
	Append(e ledger.Entry) error
}

// ExtractionError reports the entry that stopped extraction. Entry is empty
// when the install root itself could not be created.
type ExtractionError struct {
	Entry string
	Err   error
}

func (e *ExtractionError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("creating install root: %v", e.Err)
	}
	return fmt.Sprintf("extracting %s: %v", e.Entry, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Job describes one extraction run.
type Job struct {
	Root    string
	Entries []appx.Entry
	FS      resource.FileSystem
	Ledger  Recorder
	// Tracker receives one step per entry. Optional.
	Tracker *progress.Tracker
}

// Result summarizes a finished run.
type Result struct {
	Files       int
	Directories int
	Bytes       int64
}

type run struct {
	job    Job
	result Result
}

// Run extracts job.Entries in order. On failure the returned Result still
// counts what was created and recorded.
func Run(ctx context.Context, job Job) (Result, error) {
	r := &run{job: job}
	if job.Tracker != nil {
		job.Tracker.Begin("Extracting", len(job.Entries))
	}

	for _, level := range utils.PathLevels(job.Root) {
		if err := r.createDir(level); err != nil {
			return r.result, &ExtractionError{Err: err}
		}
	}

	for _, entry := range job.Entries {
		if err := ctx.Err(); err != nil {
			logging.Warn("Extraction cancelled", "next_entry", entry.Name)
			return r.result, &ExtractionError{Entry: entry.Name, Err: err}
		}
		if err := r.extractOne(entry); err != nil {
			logging.Error("Extraction failed", "entry", entry.Name, "error", err)
			return r.result, &ExtractionError{Entry: entry.Name, Err: err}
		}
		if job.Tracker != nil {
			job.Tracker.Step(entry.Name)
		}
	}

	logging.Info("Extraction complete", "root", job.Root, "files", r.result.Files,
		"directories", r.result.Directories, "size", progress.FormatBytes(r.result.Bytes))
	return r.result, nil
}

func (r *run) createDir(path string) error {
	created, err := r.job.FS.CreateDir(path)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	if err := r.job.Ledger.Append(ledger.DirectoryCreated(path)); err != nil {
		logging.Error("Directory created but not recorded", "path", path, "error", err)
		return err
	}
	r.result.Directories++
	return nil
}

func (r *run) extractOne(entry appx.Entry) error {
	target, err := utils.SafeJoin(r.job.Root, entry.Name)
	if err != nil {
		return &resource.ResourceCreationError{Kind: resource.KindFile, Target: entry.Name, Err: err}
	}
	for _, dir := range utils.Ancestors(r.job.Root, target) {
		if err := r.createDir(dir); err != nil {
			return err
		}
	}

	rc, err := entry.Open()
	if err != nil {
		return &resource.ResourceCreationError{Kind: resource.KindFile, Target: target, Err: err}
	}
	defer rc.Close()

	pr := progress.NewReader(rc, entry.Size, nil)
	res, err := r.job.FS.WriteFile(target, pr)
	if err != nil {
		return err
	}
	if pr.BytesRead() != entry.Size {
		logging.Warn("Entry size differs from package directory", "entry", entry.Name,
			"expected", entry.Size, "read", pr.BytesRead())
	}
	if err := r.job.Ledger.Append(ledger.FileWritten(res.Path, res.Size, res.SHA256)); err != nil {
		logging.Error("File written but not recorded", "path", res.Path, "error", err)
		return err
	}

	r.result.Files++
	r.result.Bytes += res.Size
	logging.Debug("Extracted file", "path", res.Path, "size", res.Size)
	return nil
}

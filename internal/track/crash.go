package track

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/nubrick/nubrick-go/internal/storage"
	"github.com/nubrick/nubrick-go/pkg/models"
)

const (
	// crashRecordKey is the durable slot a crash is written to before the
	// process dies and read back from on the next boot.
	crashRecordKey = "crash_record"

	// maxCauseChain bounds the unwrap walk so a cyclic cause chain cannot
	// hang the crash handler.
	maxCauseChain = 20

	// sdkModulePrefix marks stack frames as our own code.
	sdkModulePrefix = "github.com/nubrick/nubrick-go"

	maxStackFrames = 64
)

// CrashStore persists and recovers crash records through the durable KV
// store. Separate from the pipeline so the handler can write without any
// pipeline alive.
type CrashStore struct {
	kv storage.KVStore
}

// NewCrashStore creates a crash store over kv.
func NewCrashStore(kv storage.KVStore) *CrashStore {
	return &CrashStore{kv: kv}
}

// Record walks err's cause chain into exception records and persists them.
// Called on the crash path: every failure is swallowed, a crash reporter
// must never raise.
func (c *CrashStore) Record(ctx context.Context, err error) {
	if err == nil || c.kv == nil {
		return
	}
	records := recordsFromError(err)
	data, marshalErr := json.Marshal(records)
	if marshalErr != nil {
		return
	}
	_ = c.kv.Set(ctx, crashRecordKey, string(data))
}

// Recover reads and clears the stored crash record. Returns nil when no
// record exists or the stored payload cannot be decoded.
func (c *CrashStore) Recover(ctx context.Context) []models.ExceptionRecord {
	if c.kv == nil {
		return nil
	}
	raw, err := c.kv.Get(ctx, crashRecordKey)
	if err != nil {
		return nil
	}
	_ = c.kv.Delete(ctx, crashRecordKey)

	var records []models.ExceptionRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		// A corrupt record is dropped, never reported.
		return nil
	}
	if len(records) == 0 {
		return nil
	}
	return records
}

// recordsFromError flattens an error's unwrap chain, attaching the current
// goroutine's stack to the outermost record.
func recordsFromError(err error) []models.ExceptionRecord {
	var records []models.ExceptionRecord
	for cause := err; cause != nil && len(records) < maxCauseChain; cause = errors.Unwrap(cause) {
		rec := models.ExceptionRecord{
			Type:    fmt.Sprintf("%T", cause),
			Message: cause.Error(),
		}
		if len(records) == 0 {
			rec.CallStacks = captureStack(3)
		}
		records = append(records, rec)
	}
	return records
}

func captureStack(skip int) []models.StackFrame {
	pcs := make([]uintptr, maxStackFrames)
	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])
	var stack []models.StackFrame
	for {
		frame, more := frames.Next()
		line := frame.Line
		stack = append(stack, models.StackFrame{
			FileName:   frame.File,
			ClassName:  frame.Function,
			LineNumber: &line,
		})
		if !more {
			break
		}
	}
	return stack
}

// inSDK reports whether any frame of any record belongs to this module.
func inSDK(records []models.ExceptionRecord) bool {
	for _, rec := range records {
		for _, f := range rec.CallStacks {
			if strings.Contains(f.ClassName, sdkModulePrefix) || strings.Contains(f.FileName, sdkModulePrefix) {
				return true
			}
		}
	}
	return false
}

// RecoverCrash enqueues telemetry for a crash stored by a previous run:
// an error marker always, plus the crash payload and an in-SDK marker
// when our own frames appear in the stack.
func (p *Pipeline) RecoverCrash(ctx context.Context, crashes *CrashStore) {
	records := crashes.Recover(ctx)
	if records == nil {
		return
	}
	now := p.now()
	p.Enqueue(models.NewCrashEvent(records))
	p.Enqueue(models.NewUserEvent(models.TriggerErrorRecord, now))
	if inSDK(records) {
		p.Enqueue(models.NewUserEvent(models.TriggerErrorInSDKRecord, now))
	}
}

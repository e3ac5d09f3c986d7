package trace

import (
	"context"
	"fmt"
	"sync"
	"time"

	plog "github.com/phuslu/log"
	"github.com/tekert/goetw/etw"

	"counterlens/internal/logger"
)

// Kernel MOF class GUIDs for the NT Kernel Logger providers consumed here.
// https://learn.microsoft.com/en-us/windows/win32/etw/nt-kernel-logger-constants
var (
	// Thread MOF class - context switches and thread lifecycle
	// [Guid("{3d6fa8d1-fe05-11d0-9dda-00c04fd7ba7c}")]
	threadKernelGUID = etw.MustParseGUID("{3d6fa8d1-fe05-11d0-9dda-00c04fd7ba7c}")

	// Process MOF class - process start/end/rundown
	// [Guid("{3d6fa8d2-fe05-11d0-9dda-00c04fd7ba7c}")]
	processKernelGUID = etw.MustParseGUID("{3d6fa8d2-fe05-11d0-9dda-00c04fd7ba7c}")

	// PageFault_V2 MOF class - page fault events
	// [Guid("{3d6fa8d3-fe05-11d0-9dda-00c04fd7ba7c}")]
	pageFaultKernelGUID = etw.MustParseGUID("{3d6fa8d3-fe05-11d0-9dda-00c04fd7ba7c}")
)

// Kernel MOF opcodes routed by the recorder.
const (
	opcodeCSwitch        = 36
	opcodeThreadStart    = 1
	opcodeThreadEnd      = 2
	opcodeThreadDCStart  = 3
	opcodeThreadDCEnd    = 4
	opcodeProcessStart   = 1
	opcodeProcessEnd     = 2
	opcodeProcessDCStart = 3
	opcodeDemandZero     = 11 // soft fault, page satisfied without I/O
	opcodeHardFault      = 32 // hard fault, page read from disk
)

// Recorder captures a live NT Kernel Logger session into an in-memory
// Recording. It enables the context switch, dispatcher, thread, process and
// page fault kernel flags, routes the raw events into typed records, and
// tracks thread/process identity while the session runs. The analysis core
// consumes only the resulting Recording.
type Recorder struct {
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex

	session  *etw.RealTimeSession
	consumer *etw.Consumer
	registry *registry
	log      plog.Logger

	// evMu guards the event buffers separately from the lifecycle lock:
	// Stop drains the consumer while holding mu, and the drain still fires
	// callbacks that append here.
	evMu     sync.Mutex
	switches []ContextSwitch
	faults   []PageFault

	started time.Time
	running bool
}

// NewRecorder creates a recorder. Start must be called to begin capturing.
func NewRecorder() *Recorder {
	ctx, cancel := context.WithCancel(context.Background())
	return &Recorder{
		ctx:      ctx,
		cancel:   cancel,
		registry: newRegistry(),
		log:      logger.NewLoggerWithContext("trace-recorder"),
	}
}

// Start creates the kernel session and begins consuming events.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("recorder already running")
	}

	flags := uint32(etw.EVENT_TRACE_FLAG_CSWITCH |
		etw.EVENT_TRACE_FLAG_DISPATCHER |
		etw.EVENT_TRACE_FLAG_THREAD |
		etw.EVENT_TRACE_FLAG_PROCESS |
		etw.EVENT_TRACE_FLAG_MEMORY_PAGE_FAULTS)

	r.log.Debug().Uint32("kernel_flags", flags).Msg("Starting kernel trace session")

	// Kernel sessions must be explicitly started, unlike manifest providers.
	r.session = etw.NewKernelRealTimeSession(etw.KernelNtFlag(flags))
	if err := r.session.Start(); err != nil {
		return fmt.Errorf("failed to start kernel session: %w", err)
	}

	r.consumer = etw.NewConsumer(r.ctx).FromSessions(r.session)
	r.consumer.EventRecordCallback = r.eventRecordCallback
	r.consumer.EventPreparedCallback = r.eventPreparedCallback

	if err := r.consumer.Start(); err != nil {
		r.session.Stop()
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	r.started = time.Now()
	r.running = true
	r.log.Info().Msg("Kernel trace recording started")
	return nil
}

// Stop ends the session and returns the sealed recording.
func (r *Recorder) Stop() (*Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil, fmt.Errorf("recorder not running")
	}

	// Stop the session first so no further buffers are produced, then the
	// consumer so already-buffered events drain.
	if err := r.session.Stop(); err != nil {
		return nil, fmt.Errorf("failed to stop kernel session: %w", err)
	}
	if err := r.consumer.Stop(); err != nil {
		return nil, fmt.Errorf("failed to stop consumer: %w", err)
	}
	r.cancel()
	r.running = false

	rec := &Recording{
		Switches:  r.switches,
		Faults:    r.faults,
		Processes: r.registry.snapshot(),
		Start:     r.started,
		End:       time.Now(),
	}
	rec.seal()

	r.log.Info().
		Int("switches", len(rec.Switches)).
		Int("faults", len(rec.Faults)).
		Int("processes", len(rec.Processes)).
		Msg("Kernel trace recording stopped")
	return rec, nil
}

// eventRecordCallback is the raw fast path. Context switches are by far the
// highest-volume events, so they are decoded directly from the UserData
// buffer at known offsets, skipping helper creation entirely.
//
// CSwitch MOF layout (V2-V4):
//   - NewThreadId (uint32): offset 0
//   - OldThreadId (uint32): offset 4
//   - OldThreadState (int8): offset 14
func (r *Recorder) eventRecordCallback(er *etw.EventRecord) bool {
	if !er.EventHeader.ProviderId.Equals(threadKernelGUID) ||
		er.EventHeader.EventDescriptor.Opcode != opcodeCSwitch {
		return true // not a CSwitch, continue to the prepared path
	}

	newTID, err := er.GetUint32At(0)
	if err != nil {
		r.log.Debug().Err(err).Msg("Failed to read NewThreadId from raw CSwitch event")
		return false
	}
	oldTID, err := er.GetUint32At(4)
	if err != nil {
		r.log.Debug().Err(err).Msg("Failed to read OldThreadId from raw CSwitch event")
		return false
	}
	oldState, err := er.GetUint8At(14)
	if err != nil {
		r.log.Debug().Err(err).Msg("Failed to read OldThreadState from raw CSwitch event")
		return false
	}

	oldPID, _ := r.registry.pidForThread(oldTID)
	newPID, _ := r.registry.pidForThread(newTID)

	sw := ContextSwitch{
		Core:           int(er.ProcessorNumber()),
		Time:           etw.FromFiletime(er.EventHeader.TimeStamp),
		Ticks:          er.EventHeader.TimeStamp,
		OldThreadID:    oldTID,
		OldProcessID:   oldPID,
		NewThreadID:    newTID,
		NewProcessID:   newPID,
		OldThreadState: decodeThreadState(int8(oldState)),
	}

	r.evMu.Lock()
	r.switches = append(r.switches, sw)
	r.evMu.Unlock()

	return false // consumed, skip helper creation
}

// eventPreparedCallback routes the lower-volume thread, process and page
// fault events through the parsed-property path.
func (r *Recorder) eventPreparedCallback(helper *etw.EventRecordHelper) error {
	defer helper.Skip()

	er := helper.EventRec
	providerGUID := er.EventHeader.ProviderId
	opcode := er.EventHeader.EventDescriptor.Opcode

	switch {
	case providerGUID.Equals(threadKernelGUID):
		return r.handleThreadEvent(helper, opcode)
	case providerGUID.Equals(processKernelGUID):
		return r.handleProcessEvent(helper, opcode)
	case providerGUID.Equals(pageFaultKernelGUID):
		return r.handlePageFaultEvent(helper, opcode)
	}
	return nil
}

// handleThreadEvent maintains the TID -> PID registry from thread
// start/end/DCStart/DCEnd events.
func (r *Recorder) handleThreadEvent(helper *etw.EventRecordHelper, opcode uint8) error {
	switch opcode {
	case opcodeThreadStart, opcodeThreadDCStart:
		tid, _ := helper.GetPropertyUint("TThreadId")
		pid, _ := helper.GetPropertyUint("ProcessId")
		r.registry.addThread(uint32(tid), uint32(pid))
	case opcodeThreadEnd, opcodeThreadDCEnd:
		tid, _ := helper.GetPropertyUint("TThreadId")
		r.registry.removeThread(uint32(tid))
	}
	return nil
}

// handleProcessEvent maintains process identity from start/end/rundown
// events. DCStart rundowns enumerate processes already running when the
// session began.
func (r *Recorder) handleProcessEvent(helper *etw.EventRecordHelper, opcode uint8) error {
	when := helper.Timestamp()
	switch opcode {
	case opcodeProcessStart, opcodeProcessDCStart:
		pid, _ := helper.GetPropertyUint("ProcessId")
		name, _ := helper.GetPropertyString("ImageFileName")
		r.registry.addProcess(uint32(pid), name, when)
	case opcodeProcessEnd:
		pid, _ := helper.GetPropertyUint("ProcessId")
		r.registry.endProcess(uint32(pid), when)
	}
	return nil
}

// handlePageFaultEvent records demand-zero (minor) and hard (major) faults.
// The faulting thread is the one the event fired on.
func (r *Recorder) handlePageFaultEvent(helper *etw.EventRecordHelper, opcode uint8) error {
	var kind FaultKind
	switch opcode {
	case opcodeDemandZero:
		kind = FaultMinor
	case opcodeHardFault:
		kind = FaultMajor
	default:
		return nil // transition/copy-on-write faults are not tracked
	}

	er := helper.EventRec
	tid := er.EventHeader.ThreadId
	pid, _ := r.registry.pidForThread(tid)

	fault := PageFault{
		Core:      int(er.ProcessorNumber()),
		Time:      helper.Timestamp(),
		ProcessID: pid,
		ThreadID:  tid,
		Kind:      kind,
	}

	r.evMu.Lock()
	r.faults = append(r.faults, fault)
	r.evMu.Unlock()
	return nil
}

// decodeThreadState maps the raw CSwitch OldThreadState byte.
func decodeThreadState(raw int8) ThreadState {
	if raw < 0 || raw > int8(StateDeferredReady) {
		return StateUnknown
	}
	return ThreadState(raw)
}

package codehook

import (
	"github.com/sirupsen/logrus"
)

// Engine wires one architecture Backend together with its external
// collaborators and runs the hook-installation pipeline for a batch of
// requests. Per the design note on global state, callers construct their
// own Engine value rather than reaching for a package-level singleton;
// one Engine targets one architecture, matching how a single traced
// process is either ARM or x86-64.
type Engine struct {
	Backend        Backend
	Adapter        Adapter
	CodeManager    CodeManager
	MemoryModifier MemoryModifier
	CacheFlusher   CacheFlusher
	Template       HookTemplate

	// Logger receives one entry per rejected or failed hook. It is
	// optional: a nil Logger means failures are silently skipped, as
	// spec'd ("detailed per-hook errors are logged to an optional
	// logger supplied by the caller but do not abort the batch").
	Logger *logrus.Logger
}

// InstallReport is the per-status breakdown of a batch install, carried
// alongside the plain success count the public entry point returns.
type InstallReport struct {
	Requested int
	Installed int
	Rejected  map[Status]int
}

func (e *Engine) logger() *logrus.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

type pendingHook struct {
	req    HookRequest
	ctx    *CodeContext
	result *CheckCodeResult
	tramp  *Trampoline
}

// InstallHooks runs the pipeline — inspect, back-edge check, build
// trampoline — for each request, then applies every successfully built
// trampoline's patch record in a single MemoryModifier.ApplyBatch call,
// matching the batch nature of the memory-modify utility (§6). No
// request's failure aborts the batch (§7); InstallHooks returns the
// number of hooks successfully installed.
func (e *Engine) InstallHooks(reqs []HookRequest, entryCallback, returnCallback uintptr) (int, *InstallReport) {
	report := &InstallReport{Requested: len(reqs), Rejected: map[Status]int{}}
	log := e.logger()

	var pending []*pendingHook
	for _, req := range reqs {
		result, err := e.Backend.Inspect(e.Adapter, req.CodePoint)
		if err != nil {
			log.WithField("hook", req.Name).WithError(err).Warn("codehook: inspection failed")
			report.Rejected[StatusNotAccepted]++
			continue
		}
		if result.Status != StatusOk {
			log.WithField("hook", req.Name).WithField("status", result.Status.String()).Warn("codehook: prologue rejected")
			report.Rejected[result.Status]++
			continue
		}

		if checkBackEdge(e.Adapter, e.Backend, req.CodePoint, result.CodeLenToReplace) {
			log.WithField("hook", req.Name).Warn("codehook: back edge into overwritten region")
			report.Rejected[StatusBackEdge]++
			continue
		}

		ctx := e.CodeManager.NewContext(req.Name)
		tramp, err := buildTrampoline(e.Backend, e.Template, result, e.CodeManager, e.CacheFlusher, entryCallback, returnCallback)
		if err != nil {
			log.WithField("hook", req.Name).WithError(err).Warn("codehook: trampoline build failed")
			continue
		}
		ctx.TrampolineBase = tramp.Base
		ctx.CodePoint = req.CodePoint
		ctx.EntryCallback = entryCallback
		ctx.ReturnCallback = returnCallback

		pending = append(pending, &pendingHook{req: req, ctx: ctx, result: result, tramp: tramp})
	}

	if len(pending) == 0 {
		return 0, report
	}

	records := make([]PatchRecord, len(pending))
	for i, p := range pending {
		rec, err := e.Backend.PatchSite(p.req.CodePoint, p.tramp.Base)
		if err != nil {
			log.WithField("hook", p.req.Name).WithError(err).Warn("codehook: could not encode patch site")
			records[i] = PatchRecord{}
			continue
		}
		records[i] = rec
	}

	succeeded, err := e.MemoryModifier.ApplyBatch(records)
	if err != nil {
		log.WithError(err).Warn("codehook: batch patch application failed")
	}
	report.Installed = succeeded
	return succeeded, report
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Skryldev/batch-upscale/config"
	"github.com/Skryldev/batch-upscale/core"
	apperrors "github.com/Skryldev/batch-upscale/errors"
	"github.com/Skryldev/batch-upscale/source"
	"github.com/Skryldev/batch-upscale/utils"
)

// Progress keys and values written to the ProgressReporter.
const (
	KeyTotalZip = "TOTALZIP"
	KeyProgress = "PROGRESS"

	ProgressZipImage   = "postprocess_worker_zip_image"
	ProgressZipArchive = "postprocess_worker_zip_archive"
	ProgressFolder     = "postprocess_worker_folder"
	ProgressImage      = "postprocess_worker_image"
)

// Orchestrator runs batches for one RunContext.
type Orchestrator struct {
	rc *RunContext
}

// NewOrchestrator returns an Orchestrator bound to rc.
func NewOrchestrator(rc *RunContext) *Orchestrator { return &Orchestrator{rc: rc} }

// Execute runs the batch described by the RunContext configuration.  It
// returns ErrAborted, together with the partial summary, when the run was
// stopped through the Controller.
func (o *Orchestrator) Execute(ctx context.Context) (Summary, error) {
	cfg := o.rc.Config
	if err := config.Validate(cfg); err != nil {
		return Summary{}, apperrors.New(apperrors.CategoryConfig, "pipeline.execute", err)
	}

	start := time.Now()
	t := &tally{}
	var err error
	switch cfg.Mode {
	case config.ModeFile:
		if utils.IsArchiveExt(cfg.InputPath) {
			err = o.runArchiveFile(ctx, cfg.InputPath, t)
		} else {
			err = o.runImageFile(ctx, cfg.InputPath, t)
		}
	case config.ModeArchive:
		if !utils.IsArchiveExt(cfg.InputPath) {
			err = apperrors.New(apperrors.CategoryConfig, "pipeline.execute",
				fmt.Errorf("%w: %s is not a zip or rar container", apperrors.ErrUnsupportedFormat, cfg.InputPath))
			break
		}
		err = o.runArchiveFile(ctx, cfg.InputPath, t)
	case config.ModeFolder:
		err = o.runFolder(ctx, cfg.InputPath, t)
	}
	return o.finish(t, start, err)
}

// Run processes every entry of src into sink and closes the sink.
func (o *Orchestrator) Run(ctx context.Context, src source.Enumerator, sink source.Sink) (Summary, error) {
	start := time.Now()
	t := &tally{}
	err := o.run(ctx, src, sink, t)
	return o.finish(t, start, err)
}

func (o *Orchestrator) finish(t *tally, start time.Time, err error) (Summary, error) {
	s := t.summary()
	s.RunID = o.rc.ID.String()
	s.PeakInFlight = o.rc.PeakInFlight()
	s.Elapsed = time.Since(start)
	if err == nil && s.Aborted {
		err = apperrors.New(apperrors.CategoryPipeline, "pipeline.run", apperrors.ErrAborted)
	}
	return s, err
}

func (o *Orchestrator) runImageFile(ctx context.Context, p string, t *tally) error {
	cfg := o.rc.Config
	src, err := source.NewFile(p)
	if err != nil {
		return err
	}
	name := utils.OutputName(cfg.OutputFilename, filepath.Base(p)) + "." + cfg.Format.Extension()
	sink, err := source.NewFileSink(filepath.Join(cfg.OutputFolder, name), 0o644)
	if err != nil {
		src.Close()
		return err
	}
	return o.run(ctx, src, sink, t)
}

func (o *Orchestrator) runArchiveFile(ctx context.Context, p string, t *tally) error {
	cfg := o.rc.Config
	name := utils.OutputName(cfg.OutputFilename, filepath.Base(p)) + "." + cfg.ArchiveExtension
	return o.runArchive(ctx, p, filepath.Join(cfg.OutputFolder, name), t)
}

// runArchive processes one container into a new zip at dest.  Existing
// outputs are skipped unless overwrite is enabled.
func (o *Orchestrator) runArchive(ctx context.Context, p, dest string, t *tally) error {
	cfg := o.rc.Config
	if !cfg.Overwrite {
		if _, err := os.Stat(dest); err == nil {
			t.skipped.Add(1)
			o.rc.Logger.Info("archive.skipped", "input", p, "output", dest, "reason", "exists")
			return nil
		}
	}

	src, err := source.OpenArchive(p, cfg.LegacyFilenameEncoding)
	if err != nil {
		return err
	}
	if c, ok := src.(source.Counter); ok {
		o.rc.report(KeyTotalZip, strconv.Itoa(c.Count()))
	}
	sink, err := source.NewZipSink(dest, cfg.Format.Extension())
	if err != nil {
		src.Close()
		return err
	}
	o.rc.Logger.Info("archive.start", "input", p, "output", dest)
	return o.run(ctx, src, sink, t)
}

func (o *Orchestrator) runFolder(ctx context.Context, root string, t *tally) error {
	cfg := o.rc.Config
	src, err := source.NewFolder(root, cfg.UpscaleImages, cfg.UpscaleArchives)
	if err != nil {
		return err
	}
	sink, err := source.NewFolderSink(cfg.OutputFolder, cfg.OutputFilename, cfg.Format.Extension(), 0o644)
	if err != nil {
		src.Close()
		return err
	}
	return o.run(ctx, src, sink, t)
}

// archivePather is implemented by sinks that can place nested archive outputs.
type archivePather interface {
	ArchivePath(name, archiveExt string) string
}

// run wires the three stages.  Each stage forwards exactly one EndOfStream
// and returns; the write stage owns the sink and closes it.
func (o *Orchestrator) run(ctx context.Context, src source.Enumerator, sink source.Sink, t *tally) error {
	g, gctx := errgroup.WithContext(ctx)
	toInfer := make(chan Item, 1)
	toWrite := make(chan Item, 1)

	g.Go(func() error {
		defer src.Close()
		return o.produce(gctx, src, sink, toInfer, t)
	})
	g.Go(func() error { return o.infer(gctx, toInfer, toWrite, t) })
	g.Go(func() error { return o.write(gctx, toWrite, sink, t) })
	if err := g.Wait(); err != nil {
		// Items stranded in the channels still hold in-flight slots.
		o.drain(toInfer)
		o.drain(toWrite)
		return err
	}
	return nil
}

func (o *Orchestrator) drain(ch chan Item) {
	for {
		select {
		case it := <-ch:
			if _, eos := it.(EndOfStream); !eos {
				o.rc.release()
			}
		default:
			return
		}
	}
}

func send(ctx context.Context, ch chan<- Item, it Item) error {
	select {
	case ch <- it:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func recv(ctx context.Context, ch <-chan Item) (Item, error) {
	select {
	case it := <-ch:
		return it, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ── Produce ───────────────────────────────────────────────────────────────────

func (o *Orchestrator) produce(ctx context.Context, src source.Enumerator, sink source.Sink, out chan<- Item, t *tally) error {
	rc := o.rc
	prepare := rc.Prepare()

	err := src.Enumerate(ctx, func(e source.Entry) error {
		if rc.Controller.Aborted() {
			return errStop
		}
		if err := rc.Controller.wait(ctx); err != nil {
			return err
		}
		if rc.Controller.Aborted() {
			return errStop
		}
		t.enumerated.Add(1)

		if e.Archive {
			return o.nested(ctx, e, sink, t)
		}
		if e.IsImage() && !rc.Config.Overwrite && sink.Exists(e.Name) {
			t.skipped.Add(1)
			rc.Logger.Debug("entry.skipped", "name", e.Name, "reason", "exists")
			return nil
		}

		if err := rc.acquire(ctx); err != nil {
			return err
		}
		it, err := o.prepare(ctx, prepare, e, t)
		if err != nil || it == nil {
			rc.release()
			return err
		}
		if err := send(ctx, out, it); err != nil {
			rc.release()
			return err
		}
		return nil
	})
	if errors.Is(err, errStop) {
		t.aborted.Store(true)
		rc.Logger.Info("run.aborted", "run_id", rc.ID.String())
		err = nil
	}
	if err != nil {
		return err
	}
	return send(ctx, out, EndOfStream{})
}

var errStop = errors.New("stop requested")

// prepare reads one entry and turns it into an Item.  A nil Item with a nil
// error means the entry produced nothing.  Only fatal errors are returned.
func (o *Orchestrator) prepare(ctx context.Context, p *Pipeline, e source.Entry, t *tally) (Item, error) {
	rc := o.rc
	data, err := e.Read(ctx, rc.Config.ChunkSize, rc.Config.MaxImageBytes)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		rc.Logger.Warn("entry.read_failed", "name", e.Name, "error", err.Error())
		t.fail(e.Name, apperrors.Wrap(apperrors.CategoryInput, "entry.read", err))
		return nil, nil
	}
	if !e.IsImage() {
		return PassThrough{Name: e.Name, Data: data}, nil
	}

	img := &core.ImageData{Name: e.Name, Data: data, Format: utils.DetectFormat(data)}
	res, _, err := p.Run(ctx, img)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if rc.Config.StrictModels && isModelFailure(err) {
			return nil, err
		}
		step := FailedStep(err)
		rc.Logger.Warn("entry.passthrough", "name", e.Name, "step", step, "error", err.Error())
		t.fail(e.Name, err)
		return PassThrough{Name: e.Name, Data: data, Err: err, Step: step}, nil
	}
	return ImageItem{Data: res}, nil
}

func isModelFailure(err error) bool {
	return errors.Is(err, apperrors.ErrModelNotFound) ||
		errors.Is(err, apperrors.ErrNoUpscaler) ||
		apperrors.IsCategory(err, apperrors.CategoryModel)
}

// nested runs an archive found while walking a folder into a sibling output
// container.  It runs inside the producer and shares the in-flight limit.
func (o *Orchestrator) nested(ctx context.Context, e source.Entry, sink source.Sink, t *tally) error {
	ap, ok := sink.(archivePather)
	if !ok {
		return apperrors.New(apperrors.CategoryConfig, "pipeline.nested",
			fmt.Errorf("sink %s cannot hold nested archive %s", sink.Kind(), e.Name))
	}
	dest := ap.ArchivePath(e.Name, o.rc.Config.ArchiveExtension)
	if err := o.runArchive(ctx, e.Path, dest, t); err != nil {
		if ctx.Err() != nil || !apperrors.IsCategory(err, apperrors.CategoryInput) && !apperrors.IsCategory(err, apperrors.CategoryArchive) {
			return err
		}
		// An unreadable container inside a folder fails alone.
		o.rc.Logger.Warn("archive.failed", "name", e.Name, "error", err.Error())
		t.fail(e.Name, err)
	}
	o.rc.report(KeyProgress, ProgressFolder)
	return nil
}

// ── Infer ─────────────────────────────────────────────────────────────────────

func (o *Orchestrator) infer(ctx context.Context, in <-chan Item, out chan<- Item, t *tally) error {
	rc := o.rc
	p := rc.Infer()
	for {
		it, err := recv(ctx, in)
		if err != nil {
			return err
		}
		switch v := it.(type) {
		case EndOfStream:
			return send(ctx, out, v)
		case ImageItem:
			res, _, err := p.Run(ctx, v.Data)
			if err != nil {
				if ctx.Err() != nil {
					rc.release()
					return ctx.Err()
				}
				if rc.Config.StrictModels {
					rc.release()
					return err
				}
				step := FailedStep(err)
				rc.Logger.Warn("entry.passthrough", "name", v.Data.Name, "step", step, "error", err.Error())
				t.fail(v.Data.Name, err)
				it = PassThrough{Name: v.Data.Name, Data: v.Data.Data, Err: err, Step: step}
			} else {
				it = ImageItem{Data: res}
			}
		}
		if err := send(ctx, out, it); err != nil {
			rc.release()
			return err
		}
	}
}

// ── Write ─────────────────────────────────────────────────────────────────────

func (o *Orchestrator) write(ctx context.Context, in <-chan Item, sink source.Sink, t *tally) (err error) {
	rc := o.rc
	defer func() {
		if cerr := sink.Close(); err == nil {
			err = cerr
		}
	}()

	p := rc.Finalize()
	for {
		it, rerr := recv(ctx, in)
		if rerr != nil {
			return rerr
		}
		switch v := it.(type) {
		case EndOfStream:
			t.sentinels.Add(1)
			if sink.Kind() == source.KindZip {
				rc.report(KeyProgress, ProgressZipArchive)
			}
			return nil
		case PassThrough:
			err = o.put(ctx, sink, v.Name, v.Data, false, t)
		case ImageItem:
			err = o.finalize(ctx, p, sink, v.Data, t)
		}
		rc.release()
		if err != nil {
			return err
		}
	}
}

// finalize resizes and encodes one image and stores it.  An image that cannot
// be encoded is copied through with its original bytes.
func (o *Orchestrator) finalize(ctx context.Context, p *Pipeline, sink source.Sink, img *core.ImageData, t *tally) error {
	res, _, err := p.Run(ctx, img)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.rc.Logger.Warn("entry.passthrough", "name", img.Name, "step", FailedStep(err), "error", err.Error())
		t.fail(img.Name, err)
		return o.put(ctx, sink, img.Name, img.Data, false, t)
	}
	return o.put(ctx, sink, img.Name, res.Data, true, t)
}

func (o *Orchestrator) put(ctx context.Context, sink source.Sink, name string, data []byte, image bool, t *tally) error {
	var err error
	if image {
		err = sink.PutImage(ctx, name, data)
	} else {
		err = sink.PutRaw(ctx, name, data)
	}
	if err != nil {
		return err
	}

	t.bytes.Add(int64(len(data)))
	if image {
		t.processed.Add(1)
	} else {
		t.passed.Add(1)
	}
	switch sink.Kind() {
	case source.KindZip:
		o.rc.report(KeyProgress, ProgressZipImage)
	case source.KindFolder:
		o.rc.report(KeyProgress, ProgressFolder)
	case source.KindFile:
		o.rc.report(KeyProgress, ProgressImage)
	}
	o.rc.Logger.Debug("entry.written", "name", name, "bytes", len(data), "image", image)
	return nil
}

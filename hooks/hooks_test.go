package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/batch-upscale/core"
	apperrors "github.com/Skryldev/batch-upscale/errors"
)

func TestProgressLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)
	p.Report("TOTALZIP", "3")
	p.Report("PROGRESS", "postprocess_worker_zip_image")
	assert.Equal(t, "TOTALZIP=3\nPROGRESS=postprocess_worker_zip_image\n", buf.String())
}

func TestProgressCounter(t *testing.T) {
	c := NewProgressCounter()
	c.Report("PROGRESS", "x")
	c.Report("PROGRESS", "x")
	assert.Equal(t, 2, c.Count("PROGRESS=x"))
	assert.Zero(t, c.Count("PROGRESS=y"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewLogger(&buf, "json", "info")
	require.NoError(t, err)
	l.Debug("hidden")
	l.Info("shown", "name", "a.png", "width", 10)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "a.png", rec["name"])

	buf.Reset()
	l, err = NewLogger(&buf, "text", "debug")
	require.NoError(t, err)
	l.Warn("careful", "name", "b.png")
	assert.Contains(t, buf.String(), "careful")
	assert.Contains(t, buf.String(), "name=b.png")

	_, err = NewLogger(&buf, "xml", "info")
	assert.Error(t, err)
	_, err = NewLogger(&buf, "text", "loud")
	assert.Error(t, err)
}

func TestToFieldsOddCount(t *testing.T) {
	f := toFields([]interface{}{"a", 1, "dangling"})
	assert.Equal(t, 1, f["a"])
	assert.Equal(t, "dangling", f["!BADKEY"])
}

func TestMetricsHook(t *testing.T) {
	m := NewInMemoryMetrics()
	h := NewMetricsHook(m)
	ctx := context.Background()

	img := &core.ImageData{Raster: core.NewRaster(10, 10, 3)}
	img.Meta.SizeBytes = 1000
	h.AfterStep(ctx, "decode", img, 5*time.Millisecond, nil)
	h.AfterStep(ctx, "decode", nil, time.Millisecond,
		apperrors.New(apperrors.CategoryDecode, "decode", errors.New("bad")))
	h.AfterStep(ctx, "upscale", nil, time.Millisecond, errors.New("plain"))

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.StepCalls["decode"]+snap.StepCalls["upscale"])
	assert.Equal(t, int64(1), snap.StepErrors["decode"])
	assert.Equal(t, int64(1), snap.CategoryErrors["decode"])
	assert.Equal(t, int64(1), snap.CategoryErrors["pipeline"])
	assert.Equal(t, int64(1000), snap.TotalThroughputB)
	assert.Equal(t, int64(300), snap.PeakBufferB)
	assert.True(t, strings.HasPrefix(snap.String(), "decode"))
}

type recordingLogger struct{ msgs []string }

func (r *recordingLogger) Debug(msg string, _ ...interface{}) { r.msgs = append(r.msgs, "D "+msg) }
func (r *recordingLogger) Info(msg string, _ ...interface{})  { r.msgs = append(r.msgs, "I "+msg) }
func (r *recordingLogger) Warn(msg string, _ ...interface{})  { r.msgs = append(r.msgs, "W "+msg) }
func (r *recordingLogger) Error(msg string, _ ...interface{}) { r.msgs = append(r.msgs, "E "+msg) }

func TestLoggingHook(t *testing.T) {
	l := &recordingLogger{}
	h := NewLoggingHook(l)
	img := &core.ImageData{Name: "a.png"}
	h.BeforeStep(context.Background(), "decode", img)
	h.AfterStep(context.Background(), "decode", img, time.Millisecond, nil)
	h.AfterStep(context.Background(), "decode", nil, time.Millisecond, errors.New("x"))
	assert.Equal(t, []string{"D pipeline.step.start", "D pipeline.step.done", "W pipeline.step.error"}, l.msgs)
}

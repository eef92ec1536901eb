package pipeline

import "github.com/Skryldev/batch-upscale/core"

// Item is a unit of work handed between stages.  It is one of ImageItem,
// PassThrough or EndOfStream.  The stage holding an Item owns it; sending it
// on a channel hands ownership to the receiver.
type Item interface {
	item()
}

// ImageItem carries a decoded image through inference and encoding.
type ImageItem struct {
	Data *core.ImageData
}

// PassThrough carries bytes that are written unchanged under their original
// name.  Err is set when the entry was an image that could not be processed,
// and Step names the step it failed in.
type PassThrough struct {
	Name string
	Data []byte
	Err  error
	Step string
}

// EndOfStream is sent exactly once by each stage after its last item.
type EndOfStream struct{}

func (ImageItem) item()   {}
func (PassThrough) item() {}
func (EndOfStream) item() {}

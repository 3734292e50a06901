package vision

import (
	"fmt"
	"image"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Detection is one face box in source image coordinates.
type Detection struct {
	BBox       [4]float32 // x1, y1, x2, y2
	Confidence float32
	Landmarks  [5][2]float32 // eyes, nose tip, mouth corners
}

func (d Detection) width() float32  { return d.BBox[2] - d.BBox[0] }
func (d Detection) height() float32 { return d.BBox[3] - d.BBox[1] }

const (
	// det_10g places two anchors on every feature map cell.
	anchorsPerCell = 2
	nmsIoU         = 0.4
	// Boxes narrower than this in the source image carry too few pixels
	// for a usable embedding.
	minFaceSide = 16
)

var strides = [3]int{8, 16, 32}

type outputSpec struct {
	name  string
	shape ort.Shape
}

// detectorOutputs lists the det_10g output tensors for a square input of
// side pixels: scores, then boxes, then landmarks, each at strides 8/16/32.
// Shapes have no batch dimension.
func detectorOutputs(side int) []outputSpec {
	heads := []struct {
		names [3]string
		width int64
	}{
		{[3]string{"448", "471", "494"}, 1},
		{[3]string{"451", "474", "497"}, 4},
		{[3]string{"454", "477", "500"}, 10},
	}
	specs := make([]outputSpec, 0, len(heads)*len(strides))
	for _, h := range heads {
		for i, s := range strides {
			anchors := int64(side/s) * int64(side/s) * anchorsPerCell
			specs = append(specs, outputSpec{name: h.names[i], shape: ort.NewShape(anchors, h.width)})
		}
	}
	return specs
}

// Detector runs a RetinaFace det_10g model.
type Detector struct {
	session   *ort.AdvancedSession
	in        *ort.Tensor[float32]
	outs      []*ort.Tensor[float32]
	side      int
	threshold float32
}

// NewDetector loads the detector for a square input of side pixels, which
// must be a positive multiple of 32. opts may be nil.
func NewDetector(modelPath string, side int, threshold float32, opts *ort.SessionOptions) (*Detector, error) {
	if side <= 0 || side%32 != 0 {
		return nil, fmt.Errorf("detector input size %d is not a positive multiple of 32", side)
	}

	d := &Detector{side: side, threshold: threshold}
	var err error
	d.in, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(side), int64(side)))
	if err != nil {
		return nil, fmt.Errorf("create detector input: %w", err)
	}

	specs := detectorOutputs(side)
	names := make([]string, len(specs))
	values := make([]ort.Value, len(specs))
	for i, spec := range specs {
		t, err := ort.NewEmptyTensor[float32](spec.shape)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("create detector output %s: %w", spec.name, err)
		}
		d.outs = append(d.outs, t)
		names[i] = spec.name
		values[i] = t
	}

	d.session, err = ort.NewAdvancedSession(modelPath,
		[]string{"input.1"}, names,
		[]ort.Value{d.in}, values,
		opts,
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}
	return d, nil
}

// Detect finds faces in img. Results are relative to img.Bounds().Min,
// sorted by confidence and free of overlapping duplicates.
func (d *Detector) Detect(img image.Image) ([]Detection, error) {
	copy(d.in.GetData(), preprocessForDetection(img, d.side, d.side))
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: run detector: %v", ErrModel, err)
	}

	b := img.Bounds()
	sx := float32(b.Dx()) / float32(d.side)
	sy := float32(b.Dy()) / float32(d.side)

	var found []Detection
	for i, stride := range strides {
		found = d.decodeStride(found, i, stride, sx, sy, float32(b.Dx()), float32(b.Dy()))
	}

	kept := found[:0]
	for _, det := range found {
		if det.width() >= minFaceSide && det.height() >= minFaceSide {
			kept = append(kept, det)
		}
	}
	return nms(kept, nmsIoU), nil
}

// decodeStride appends the detections above threshold from the three heads
// of stride. Box and landmark offsets are in stride units from the anchor.
func (d *Detector) decodeStride(dst []Detection, head, stride int, sx, sy, maxX, maxY float32) []Detection {
	scores := d.outs[head].GetData()
	boxes := d.outs[head+len(strides)].GetData()
	marks := d.outs[head+2*len(strides)].GetData()

	cells := d.side / stride
	st := float32(stride)
	for i, score := range scores {
		if score < d.threshold {
			continue
		}
		cell := i / anchorsPerCell
		ax := float32(cell%cells) * st
		ay := float32(cell/cells) * st

		box := boxes[i*4 : i*4+4]
		det := Detection{
			Confidence: score,
			BBox: [4]float32{
				clamp((ax-box[0]*st)*sx, 0, maxX),
				clamp((ay-box[1]*st)*sy, 0, maxY),
				clamp((ax+box[2]*st)*sx, 0, maxX),
				clamp((ay+box[3]*st)*sy, 0, maxY),
			},
		}
		lm := marks[i*10 : i*10+10]
		for p := range det.Landmarks {
			det.Landmarks[p] = [2]float32{(ax + lm[2*p]*st) * sx, (ay + lm[2*p+1]*st) * sy}
		}
		dst = append(dst, det)
	}
	return dst
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.in != nil {
		d.in.Destroy()
	}
	for _, t := range d.outs {
		t.Destroy()
	}
}

// nms greedily keeps the most confident box of every cluster whose overlap
// exceeds threshold. dets is reordered.
func nms(dets []Detection, threshold float32) []Detection {
	sort.SliceStable(dets, func(i, j int) bool { return dets[i].Confidence > dets[j].Confidence })

	var out []Detection
next:
	for _, cand := range dets {
		for _, k := range out {
			if iou(k.BBox, cand.BBox) > threshold {
				continue next
			}
		}
		out = append(out, cand)
	}
	return out
}

func iou(a, b [4]float32) float32 {
	w := min(a[2], b[2]) - max(a[0], b[0])
	h := min(a[3], b[3]) - max(a[1], b[1])
	if w <= 0 || h <= 0 {
		return 0
	}
	inter := w * h
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clamp(v, lo, hi float32) float32 {
	return max(lo, min(v, hi))
}

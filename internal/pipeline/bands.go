package pipeline

// band is the slice of the progress range a stage owns.
type band struct {
	stage   string
	label   string
	start   float64
	end     float64
	message string
}

var (
	bandProbe    = band{stage: "probe", label: "Probe", start: 0, end: 0, message: "Analyzing video"}
	bandAudio    = band{stage: "audio", label: "Audio extraction", start: 0, end: 10, message: "Extracting audio"}
	bandFrames   = band{stage: "frames", label: "Frame extraction", start: 10, end: 20, message: "Extracting frames"}
	bandEnhance  = band{stage: "enhance", label: "Enhancement", start: 20, end: 80, message: "Enhancing frames"}
	bandMerge    = band{stage: "merge", label: "Merge", start: 80, end: 90, message: "Merging frames and audio"}
	bandOptimize = band{stage: "optimize", label: "Optimization", start: 90, end: 100, message: "Optimizing output"}
)

// scale maps a 0-100 percentage of this stage into the overall range.
func (b band) scale(percent float64) float64 {
	percent = min(max(percent, 0), 100)
	return b.start + (b.end-b.start)*percent/100
}

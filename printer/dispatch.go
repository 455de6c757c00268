package printer

import (
	"context"
	"errors"

	"github.com/john/conveyor_client/job"
)

var ErrNoJobManager = errors.New("printer has no job manager")

// SlicerConfig is passed through to the daemon untouched.
type SlicerConfig struct {
	Slicer              string  `json:"slicer" yaml:"slicer" toml:"slicer"`
	Extruder            string  `json:"extruder" yaml:"extruder" toml:"extruder"`
	Raft                bool    `json:"raft" yaml:"raft" toml:"raft"`
	Support             bool    `json:"support" yaml:"support" toml:"support"`
	Infill              float64 `json:"infill" yaml:"infill" toml:"infill"`
	LayerHeight         float64 `json:"layer_height" yaml:"layer_height" toml:"layer_height"`
	Shells              int     `json:"shells" yaml:"shells" toml:"shells"`
	ExtruderTemperature float64 `json:"extruder_temperature" yaml:"extruder_temperature" toml:"extruder_temperature"`
	PlatformTemperature float64 `json:"platform_temperature" yaml:"platform_temperature" toml:"platform_temperature"`
	PrintSpeed          float64 `json:"print_speed" yaml:"print_speed" toml:"print_speed"`
	TravelSpeed         float64 `json:"travel_speed" yaml:"travel_speed" toml:"travel_speed"`
	// Path names a slicer profile on the daemon host instead of the values above.
	Path string `json:"path,omitempty" yaml:"path" toml:"path"`
}

// PrintRequest asks the daemon to slice (if needed) and print on a printer.
type PrintRequest struct {
	Printer   string       `json:"printername"`
	InputFile string       `json:"inputpath"`
	Slicer    SlicerConfig `json:"slicer_settings"`
	Material  string       `json:"material"`
}

// PrintToFileRequest produces a machine-ready file for the printer instead of
// printing it.
type PrintToFileRequest struct {
	Printer    string       `json:"printername"`
	InputFile  string       `json:"inputpath"`
	OutputFile string       `json:"outputpath"`
	Slicer     SlicerConfig `json:"slicer_settings"`
	Material   string       `json:"material"`
}

// SliceRequest produces toolpaths for the printer without printing.
type SliceRequest struct {
	Printer    string       `json:"printername"`
	InputFile  string       `json:"inputpath"`
	OutputFile string       `json:"outputpath"`
	Slicer     SlicerConfig `json:"slicer_settings"`
	Material   string       `json:"material"`
}

// JobManager owns job creation and lifecycle on the daemon side. Errors it
// returns are handed back to callers unchanged.
type JobManager interface {
	Print(ctx context.Context, req PrintRequest) (*job.Job, error)
	PrintToFile(ctx context.Context, req PrintToFileRequest) (*job.Job, error)
	Slice(ctx context.Context, req SliceRequest) (*job.Job, error)
}

// Print forwards a print request for this printer and returns the job the
// manager created.
func (s *State) Print(ctx context.Context, inputFile string, cfg SlicerConfig, material string) (*job.Job, error) {
	if s.jobs == nil {
		return nil, ErrNoJobManager
	}
	return s.jobs.Print(ctx, PrintRequest{
		Printer:   s.uniqueName,
		InputFile: inputFile,
		Slicer:    cfg,
		Material:  material,
	})
}

// PrintToFile forwards a print-to-file request for this printer.
func (s *State) PrintToFile(ctx context.Context, inputFile, outputFile string, cfg SlicerConfig, material string) (*job.Job, error) {
	if s.jobs == nil {
		return nil, ErrNoJobManager
	}
	return s.jobs.PrintToFile(ctx, PrintToFileRequest{
		Printer:    s.uniqueName,
		InputFile:  inputFile,
		OutputFile: outputFile,
		Slicer:     cfg,
		Material:   material,
	})
}

// Slice forwards a slice request for this printer.
func (s *State) Slice(ctx context.Context, inputFile, outputFile string, cfg SlicerConfig, material string) (*job.Job, error) {
	if s.jobs == nil {
		return nil, ErrNoJobManager
	}
	return s.jobs.Slice(ctx, SliceRequest{
		Printer:    s.uniqueName,
		InputFile:  inputFile,
		OutputFile: outputFile,
		Slicer:     cfg,
		Material:   material,
	})
}

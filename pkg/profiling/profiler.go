// Package profiling writes pprof profiles and execution traces for one
// command run.
package profiling

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/tabular/pkg/errors"
)

// ProfileType represents the type of profiling to perform
type ProfileType string

const (
	CPUProfile       ProfileType = "cpu"
	MemoryProfile    ProfileType = "memory"
	BlockProfile     ProfileType = "block"
	MutexProfile     ProfileType = "mutex"
	GoroutineProfile ProfileType = "goroutine"
	TraceProfile     ProfileType = "trace"
)

// Config contains configuration for profiling
type Config struct {
	// Types to collect
	Types []ProfileType

	// OutputDir receives one file per profile type
	OutputDir string

	// BlockProfileRate is passed to runtime.SetBlockProfileRate when block profiling
	BlockProfileRate int

	// MutexProfileFraction is passed to runtime.SetMutexProfileFraction when mutex profiling
	MutexProfileFraction int
}

// DefaultConfig returns a default profiling configuration
func DefaultConfig() Config {
	return Config{
		Types:                []ProfileType{CPUProfile, MemoryProfile},
		OutputDir:            "./profiles",
		BlockProfileRate:     1,
		MutexProfileFraction: 1,
	}
}

// ParseTypes converts names such as "cpu,memory" into profile types.
func ParseTypes(names []string) ([]ProfileType, error) {
	types := make([]ProfileType, 0, len(names))
	for _, n := range names {
		t := ProfileType(strings.ToLower(strings.TrimSpace(n)))
		switch t {
		case CPUProfile, MemoryProfile, BlockProfile, MutexProfile, GoroutineProfile, TraceProfile:
			types = append(types, t)
		default:
			return nil, errors.New(errors.ErrorTypeValidation, "unknown profile type").WithDetail("type", n)
		}
	}
	return types, nil
}

// Profiler collects the configured profiles between Start and Stop.
type Profiler struct {
	config    Config
	logger    *zap.Logger
	stamp     string
	startTime time.Time
	cpuFile   *os.File
	traceFile *os.File
	files     []string
}

// New creates a profiler
func New(config Config, logger *zap.Logger) *Profiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Profiler{
		config: config,
		logger: logger.With(zap.String("component", "profiler")),
	}
}

func (p *Profiler) wants(t ProfileType) bool {
	for _, have := range p.config.Types {
		if have == t {
			return true
		}
	}
	return false
}

// Start creates the output directory and begins CPU profiling and
// tracing when requested.
func (p *Profiler) Start() error {
	p.startTime = time.Now()
	p.stamp = p.startTime.Format("20060102_150405")

	if err := os.MkdirAll(p.config.OutputDir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to create profile directory").
			WithDetail("dir", p.config.OutputDir)
	}

	if p.wants(BlockProfile) {
		runtime.SetBlockProfileRate(p.config.BlockProfileRate)
	}
	if p.wants(MutexProfile) {
		runtime.SetMutexProfileFraction(p.config.MutexProfileFraction)
	}

	if p.wants(CPUProfile) {
		f, err := p.create(CPUProfile, "prof")
		if err != nil {
			return err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return errors.Wrap(err, errors.ErrorTypeInternal, "failed to start CPU profiling")
		}
		p.cpuFile = f
	}

	if p.wants(TraceProfile) {
		f, err := p.create(TraceProfile, "out")
		if err != nil {
			p.stopCPU()
			return err
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			p.stopCPU()
			return errors.Wrap(err, errors.ErrorTypeInternal, "failed to start tracing")
		}
		p.traceFile = f
	}

	p.logger.Info("profiling started",
		zap.String("output_dir", p.config.OutputDir),
		zap.Any("types", p.config.Types))
	return nil
}

// Stop ends CPU profiling and tracing, writes the snapshot profiles and
// returns the paths written. Snapshot failures are logged and skipped.
func (p *Profiler) Stop() []string {
	p.stopCPU()

	if p.traceFile != nil {
		trace.Stop()
		_ = p.traceFile.Close()
		p.traceFile = nil
	}

	for _, t := range p.config.Types {
		var err error
		switch t {
		case MemoryProfile:
			runtime.GC()
			err = p.snapshot(t, "heap", 0)
		case BlockProfile:
			err = p.snapshot(t, "block", 0)
		case MutexProfile:
			err = p.snapshot(t, "mutex", 0)
		case GoroutineProfile:
			err = p.snapshot(t, "goroutine", 2)
		}
		if err != nil {
			p.logger.Error("failed to save profile", zap.String("type", string(t)), zap.Error(err))
		}
	}

	p.logger.Info("profiling completed",
		zap.Duration("duration", time.Since(p.startTime)),
		zap.Strings("files", p.files))
	return append([]string(nil), p.files...)
}

func (p *Profiler) stopCPU() {
	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		_ = p.cpuFile.Close()
		p.cpuFile = nil
	}
}

func (p *Profiler) snapshot(t ProfileType, name string, debug int) error {
	prof := pprof.Lookup(name)
	if prof == nil {
		return errors.New(errors.ErrorTypeInternal, "profile not available").WithDetail("profile", name)
	}

	f, err := p.create(t, "prof")
	if err != nil {
		return err
	}
	defer f.Close()

	if err := prof.WriteTo(f, debug); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to write profile").WithDetail("profile", name)
	}
	return nil
}

func (p *Profiler) create(t ProfileType, ext string) (*os.File, error) {
	path := filepath.Join(p.config.OutputDir, string(t)+"_"+p.stamp+"."+ext)
	f, err := os.Create(path) //nolint:gosec // G304: directory is chosen by the operator
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create profile file").
			WithDetail("path", path)
	}
	p.files = append(p.files, path)
	return f, nil
}

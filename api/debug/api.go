package debug

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"runtime/trace"
	"strings"
	"sync"
	"time"

	"github.com/ethhook/ethhook/log"
)

// Handler is the global debugging handler every cmd/* binary exposes on its
// pprof HTTP server.
var Handler = new(HandlerT)
var logger = log.NewModuleLogger(log.ModuleDebug)

// HandlerT implements the debugging surface shared by every binary: CPU,
// heap, block and mutex profiling, plus the pprof/memsize HTTP endpoints.
// Do not create values of this type, use the one in the Handler variable
// instead.
type HandlerT struct {
	mu        sync.Mutex
	cpuW      *os.File
	cpuFile   string
	traceW    *os.File
	traceFile string
	memFile   string

	handlerInited bool
	pprofServer   *http.Server
}

// MemStats returns detailed runtime memory statistics.
func (*HandlerT) MemStats() *runtime.MemStats {
	s := new(runtime.MemStats)
	runtime.ReadMemStats(s)
	return s
}

// GcStats returns GC statistics.
func (*HandlerT) GcStats() *debug.GCStats {
	s := new(debug.GCStats)
	debug.ReadGCStats(s)
	return s
}

// StartPProf starts the pprof/memsize HTTP server on address:port,
// defaulting to the values of pprofAddrFlag/pprofPortFlag.
func (h *HandlerT) StartPProf(address string, port int) error {
	if address == "" {
		address = pprofAddrFlag.Value
	}
	if port == 0 {
		port = pprofPortFlag.Value
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pprofServer != nil {
		return errors.New("pprof server is already running")
	}

	serverAddr := fmt.Sprintf("%s:%d", address, port)
	httpServer := &http.Server{Addr: serverAddr}

	if !h.handlerInited {
		http.Handle("/memsize/", http.StripPrefix("/memsize", &Memsize))
		h.handlerInited = true
	}

	logger.Info("starting pprof server", "addr", fmt.Sprintf("http://%s/debug/pprof", serverAddr))
	go func(handle *HandlerT) {
		if err := httpServer.ListenAndServe(); err != nil {
			if err == http.ErrServerClosed {
				logger.Info("pprof server is closed")
			} else {
				logger.Error("pprof server failed", "err", err)
			}
		}
		h.mu.Lock()
		h.pprofServer = nil
		h.mu.Unlock()
	}(h)

	h.pprofServer = httpServer
	return nil
}

func (h *HandlerT) StopPProf() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pprofServer == nil {
		return errors.New("pprof server is not running")
	}
	logger.Info("shutting down pprof server")
	h.pprofServer.Close()
	return nil
}

func (h *HandlerT) IsPProfRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pprofServer != nil
}

// CpuProfile turns on CPU profiling for nsec seconds and writes profile
// data to file.
func (h *HandlerT) CpuProfile(file string, nsec uint) error {
	if err := h.StartCPUProfile(file); err != nil {
		return err
	}
	time.Sleep(time.Duration(nsec) * time.Second)
	h.StopCPUProfile()
	return nil
}

func (h *HandlerT) StartCPUProfile(file string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cpuW != nil {
		return errors.New("CPU profiling already in progress")
	}
	f, err := os.Create(expandHome(file))
	if err != nil {
		return err
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return err
	}
	h.cpuW = f
	h.cpuFile = file
	logger.Info("CPU profiling started", "dump", h.cpuFile)
	return nil
}

func (h *HandlerT) StopCPUProfile() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	pprof.StopCPUProfile()
	if h.cpuW == nil {
		return errors.New("CPU profiling not in progress")
	}
	logger.Info("done writing CPU profile", "dump", h.cpuFile)
	h.cpuW.Close()
	h.cpuW = nil
	h.cpuFile = ""
	return nil
}

// GoTrace turns on tracing for nsec seconds and writes trace data to file.
func (h *HandlerT) GoTrace(file string, nsec uint) error {
	if err := h.StartGoTrace(file); err != nil {
		return err
	}
	time.Sleep(time.Duration(nsec) * time.Second)
	h.StopGoTrace()
	return nil
}

func (h *HandlerT) StartGoTrace(file string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.traceW != nil {
		return errors.New("trace already in progress")
	}
	f, err := os.Create(expandHome(file))
	if err != nil {
		return err
	}
	if err := trace.Start(f); err != nil {
		f.Close()
		return err
	}
	h.traceW = f
	h.traceFile = file
	logger.Info("go tracing started", "dump", h.traceFile)
	return nil
}

func (h *HandlerT) StopGoTrace() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	trace.Stop()
	if h.traceW == nil {
		return errors.New("trace not in progress")
	}
	logger.Info("done writing go trace", "dump", h.traceFile)
	h.traceW.Close()
	h.traceW = nil
	h.traceFile = ""
	return nil
}

// BlockProfile turns on goroutine block profiling for nsec seconds and
// writes profile data to file.
func (*HandlerT) BlockProfile(file string, nsec uint) error {
	runtime.SetBlockProfileRate(1)
	time.Sleep(time.Duration(nsec) * time.Second)
	defer runtime.SetBlockProfileRate(0)
	return writeProfile("block", file)
}

func (*HandlerT) SetBlockProfileRate(rate int) {
	runtime.SetBlockProfileRate(rate)
}

func (*HandlerT) WriteBlockProfile(file string) error {
	return writeProfile("block", file)
}

// MutexProfile turns on mutex profiling for nsec seconds and writes
// profile data to file.
func (*HandlerT) MutexProfile(file string, nsec uint) error {
	runtime.SetMutexProfileFraction(1)
	time.Sleep(time.Duration(nsec) * time.Second)
	defer runtime.SetMutexProfileFraction(0)
	return writeProfile("mutex", file)
}

func (*HandlerT) SetMutexProfileFraction(rate int) {
	runtime.SetMutexProfileFraction(rate)
}

func (*HandlerT) WriteMutexProfile(file string) error {
	return writeProfile("mutex", file)
}

// WriteMemProfile writes an allocation profile to the given file.
func (*HandlerT) WriteMemProfile(file string) error {
	return writeProfile("heap", file)
}

// Stacks returns a printed representation of the stacks of all goroutines.
func (*HandlerT) Stacks() string {
	buf := make([]byte, 1024*1024)
	buf = buf[:runtime.Stack(buf, true)]
	return string(buf)
}

func (*HandlerT) FreeOSMemory() {
	debug.FreeOSMemory()
}

func (*HandlerT) SetGCPercent(v int) int {
	return debug.SetGCPercent(v)
}

func writeProfile(name, file string) error {
	p := pprof.Lookup(name)
	logger.Info("writing profile records", "count", p.Count(), "type", name, "dump", file)
	f, err := os.Create(expandHome(file))
	if err != nil {
		return err
	}
	defer f.Close()
	return p.WriteTo(f, 0)
}

// expandHome expands a leading "~/" in file paths. ~someuser/tmp is left
// untouched.
func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") || strings.HasPrefix(p, "~\\") {
		home := os.Getenv("HOME")
		if home == "" {
			if usr, err := user.Current(); err == nil {
				home = usr.HomeDir
			}
		}
		if home != "" {
			p = home + p[1:]
		}
	}
	return filepath.Clean(p)
}

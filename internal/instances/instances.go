// Package instances implements the ~/.helix/instances.json registry:
// short-id generation, PID liveness probing, and port allocation for
// locally running helix dev instances.
package instances

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/helixdb/helixdb/internal/herrors"
	"github.com/helixdb/helixdb/internal/id"
)

// Instance is one entry in the registry.
type Instance struct {
	ID         string    `json:"id"`
	ProjectDir string    `json:"project_dir"`
	Port       int       `json:"port"`
	PID        int       `json:"pid"`
	BinaryPath string    `json:"binary_path"`
	Endpoints  []string  `json:"endpoints"`
	StartedAt  time.Time `json:"started_at"`
	Running    bool      `json:"running"`
}

// Registry is a file-backed, process-safe-within-one-host view of
// ~/.helix/instances.json. Each method reads, mutates, and writes the whole
// file under a lock: the registry is small (one entry per locally running
// instance) so this is simpler than incremental on-disk updates.
type Registry struct {
	path string
	mu   sync.Mutex
}

// DefaultPath returns ~/.helix/instances.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", herrors.Wrap(herrors.KindInvalid, "resolve home directory", err)
	}
	return filepath.Join(home, ".helix", "instances.json"), nil
}

// Open returns a Registry backed by path, creating its parent directory if
// necessary.
func Open(path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, herrors.Wrap(herrors.KindStorage, "create instances directory", err)
	}
	return &Registry{path: path}, nil
}

func (r *Registry) load() ([]Instance, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, herrors.Wrap(herrors.KindStorage, "read instances registry", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var list []Instance
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, herrors.Wrap(herrors.KindStorage, "parse instances registry", err)
	}
	return list, nil
}

func (r *Registry) save(list []Instance) error {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return herrors.Wrap(herrors.KindStorage, "marshal instances registry", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return herrors.Wrap(herrors.KindStorage, "write instances registry", err)
	}
	return nil
}

// List returns every registered instance after refreshing each entry's
// Running flag from a PID liveness probe, persisting the registry if any
// flag changed. Entries whose process has exited stay listed with Running
// set to false.
func (r *Registry) List() ([]Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list, err := r.load()
	if err != nil {
		return nil, err
	}
	changed := false
	live := make([]Instance, 0, len(list))
	for _, inst := range list {
		alive := isAlive(inst.PID)
		if inst.Running != alive {
			inst.Running = alive
			changed = true
		}
		live = append(live, inst)
	}
	if changed {
		if err := r.save(live); err != nil {
			return nil, err
		}
	}
	return live, nil
}

// Register adds a new instance entry for the current process and returns
// it. The id is the first 8 hex characters of a fresh time-ordered id, kept
// short since it is typed on a command line.
func (r *Registry) Register(projectDir, binaryPath string, port int, endpoints []string) (Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list, err := r.load()
	if err != nil {
		return Instance{}, err
	}
	inst := Instance{
		ID:         shortID(),
		ProjectDir: projectDir,
		BinaryPath: binaryPath,
		Port:       port,
		PID:        os.Getpid(),
		Endpoints:  endpoints,
		StartedAt:  time.Now(),
		Running:    true,
	}
	list = append(list, inst)
	if err := r.save(list); err != nil {
		return Instance{}, err
	}
	return inst, nil
}

// Deregister removes the instance with the given id.
func (r *Registry) Deregister(instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list, err := r.load()
	if err != nil {
		return err
	}
	out := make([]Instance, 0, len(list))
	for _, inst := range list {
		if inst.ID != instanceID {
			out = append(out, inst)
		}
	}
	return r.save(out)
}

func shortID() string {
	return id.New().String()[:8]
}

func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	// Signal 0 performs no-op liveness checking (see kill(2)): it returns
	// an error iff the process doesn't exist or isn't ours to signal.
	return syscall.Kill(pid, 0) == nil
}

// AllocatePort probes preferred, then ports 8000 through 8099 in order, for
// the first port free to listen on.
func AllocatePort(preferred int) (int, error) {
	if preferred > 0 {
		if p, ok := tryListen(preferred); ok {
			return p, nil
		}
	}
	for p := 8000; p < 8100; p++ {
		if port, ok := tryListen(p); ok {
			return port, nil
		}
	}
	return 0, herrors.New(herrors.KindStorage, "no free port found")
}

func tryListen(port int) (int, bool) {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return 0, false
	}
	defer ln.Close()
	return port, true
}

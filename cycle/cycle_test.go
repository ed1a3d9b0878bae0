package cycle

import (
	"errors"
	"testing"

	"github.com/nginxgo/reactorcore/api"
	"github.com/nginxgo/reactorcore/config"
	"github.com/nginxgo/reactorcore/shm"
)

type fakeModule struct {
	name          string
	masterInits   int
	masterExits   int
	moduleInits   int
	initModuleErr error
}

func (m *fakeModule) Name() string { return m.name }
func (m *fakeModule) InitMaster() error {
	m.masterInits++
	return nil
}
func (m *fakeModule) InitModule(c any) error {
	m.moduleInits++
	return m.initModuleErr
}
func (m *fakeModule) InitProcess() error { return nil }
func (m *fakeModule) ExitProcess()       {}
func (m *fakeModule) ExitMaster()        { m.masterExits++ }
func (m *fakeModule) Commands() map[string]func(args []string) error {
	return nil
}

func noModules(name string) (api.Module, error) {
	return nil, errors.New("unknown module: " + name)
}

func TestNewBuildsFirstCycleAndInitializesModules(t *testing.T) {
	fm := &fakeModule{name: "echo"}
	cfg := &config.StaticConfig{WorkerProcesses: 1, WorkerConnections: 8, ArenaSize: 4096, Modules: []string{"echo"}}

	c, err := New(cfg, func(name string) (api.Module, error) { return fm, nil })
	if err != nil {
		t.Fatal(err)
	}
	if fm.masterInits != 1 {
		t.Fatalf("expected InitMaster called once, got %d", fm.masterInits)
	}
	if len(c.Modules) != 1 {
		t.Fatalf("expected one loaded module, got %d", len(c.Modules))
	}
}

func TestReloadAppliesNewConfigAndReleasesPreviousCycle(t *testing.T) {
	cfg1 := &config.StaticConfig{WorkerProcesses: 1, WorkerConnections: 8, ArenaSize: 4096}
	c1, err := New(cfg1, noModules)
	if err != nil {
		t.Fatal(err)
	}

	cfg2 := &config.StaticConfig{WorkerProcesses: 1, WorkerConnections: 16, ArenaSize: 4096}
	c2, err := c1.Reload(cfg2, noModules)
	if err != nil {
		t.Fatal(err)
	}
	if c2.Config.WorkerConnections != 16 {
		t.Fatalf("expected reloaded config to take effect, got %d", c2.Config.WorkerConnections)
	}
	c2.ReleasePrevious()
}

func TestNewPropagatesModuleInitFailure(t *testing.T) {
	fm := &fakeModule{name: "broken", initModuleErr: errors.New("boom")}
	cfg := &config.StaticConfig{
		WorkerProcesses:   1,
		WorkerConnections: 8,
		ArenaSize:         4096,
		Modules:           []string{"broken"},
		SharedZones:       []shm.Declaration{{Name: "z", Size: 4096}},
	}
	_, err := New(cfg, func(name string) (api.Module, error) { return fm, nil })
	if err == nil {
		t.Fatal("expected module InitModule error to propagate")
	}
	if fm.moduleInits != 1 {
		t.Fatalf("expected InitModule invoked once for the declared zone, got %d", fm.moduleInits)
	}
}

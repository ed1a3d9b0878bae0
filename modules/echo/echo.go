// File: modules/echo/echo.go
// Package echo is the reference handler module spec.md §4.15 describes:
// a minimal api.Module/api.Handler implementation that proves the
// reactor-to-handler contract end to end (accept -> read -> handle ->
// write -> reuse or close) without pulling in a real protocol stack.
//
// Grounded on the teacher's protocol/ws_protocol.go Handle method shape
// (read available bytes from the connection's pool-backed buffer, act,
// write a reply) simplified to loopback semantics.
//
// Author: reactorcore contributors
// License: Apache-2.0
package echo

import (
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/nginxgo/reactorcore/api"
)

// Module implements api.Module, exercising every lifecycle hook and
// registering itself as the connection Handler for any listener pointed
// at it.
type Module struct {
	log          *logrus.Logger
	bytesEchoed  atomic.Int64
	connsHandled atomic.Int64
}

func New(log *logrus.Logger) *Module {
	return &Module{log: log}
}

func (m *Module) Name() string { return "echo" }

func (m *Module) InitMaster() error {
	m.log.Info("echo module: master init")
	return nil
}

// InitModule receives the zone this module declared, if any; the echo
// module has no shared state, so it only logs that it ran (proving the
// cycle wiring invokes it).
func (m *Module) InitModule(c any) error {
	m.log.Debug("echo module: module init")
	return nil
}

func (m *Module) InitProcess() error {
	m.log.Debug("echo module: process init")
	return nil
}

func (m *Module) ExitProcess() {
	m.log.WithFields(logrus.Fields{
		"connections": m.connsHandled.Load(),
		"bytes":       m.bytesEchoed.Load(),
	}).Info("echo module: process exit")
}

func (m *Module) ExitMaster() {}

func (m *Module) Commands() map[string]func(args []string) error {
	return map[string]func(args []string) error{}
}

// Handle implements api.Handler: read whatever is available and write it
// straight back, taking a fresh 4096-byte scratch buffer from the request
// pool on every call; the buffer lives until that pool is destroyed
// (spec.md §4.1, §6).
func (m *Module) Handle(req *api.Request) api.Result {
	buf := req.Pool.Alloc(4096)
	n, err := req.Conn.Read(buf)
	if n > 0 {
		m.bytesEchoed.Add(int64(n))
		if _, werr := req.Conn.Write(buf[:n]); werr != nil {
			return api.Error
		}
	}
	if err != nil {
		if err == io.EOF {
			m.connsHandled.Add(1)
			return api.OK
		}
		return api.Error
	}
	return api.Again
}

var _ api.Handler = (*Module)(nil)
var _ api.Module = (*Module)(nil)

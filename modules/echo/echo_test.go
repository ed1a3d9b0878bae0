package echo

import (
	"io"

	"testing"

	"github.com/sirupsen/logrus"

	"github.com/nginxgo/reactorcore/api"
	"github.com/nginxgo/reactorcore/pool"
)

type fakeConn struct {
	in       []byte
	readPos  int
	written  []byte
	instance bool
}

func (c *fakeConn) Read(dst []byte) (int, error) {
	if c.readPos >= len(c.in) {
		return 0, io.EOF
	}
	n := copy(dst, c.in[c.readPos:])
	c.readPos += n
	return n, nil
}
func (c *fakeConn) Write(src []byte) (int, error) {
	c.written = append(c.written, src...)
	return len(src), nil
}
func (c *fakeConn) Close() error     { return nil }
func (c *fakeConn) Instance() bool   { return c.instance }

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.FatalLevel)
	return l
}

func TestHandleEchoesInputBackToConnection(t *testing.T) {
	m := New(newLogger())
	p := pool.New(4096)
	defer p.Destroy()

	conn := &fakeConn{in: []byte("hello")}
	res := m.Handle(&api.Request{Conn: conn, Pool: p})

	if res != api.Again {
		t.Fatalf("expected Again after a successful partial read, got %v", res)
	}
	if string(conn.written) != "hello" {
		t.Fatalf("expected echoed bytes, got %q", conn.written)
	}
}

func TestHandleReturnsOKOnEOF(t *testing.T) {
	m := New(newLogger())
	p := pool.New(4096)
	defer p.Destroy()

	conn := &fakeConn{}
	res := m.Handle(&api.Request{Conn: conn, Pool: p})
	if res != api.OK {
		t.Fatalf("expected OK on EOF, got %v", res)
	}
}

func TestModuleLifecycleHooksDoNotError(t *testing.T) {
	m := New(newLogger())
	if err := m.InitMaster(); err != nil {
		t.Fatal(err)
	}
	if err := m.InitModule(nil); err != nil {
		t.Fatal(err)
	}
	if err := m.InitProcess(); err != nil {
		t.Fatal(err)
	}
	m.ExitProcess()
	m.ExitMaster()
}

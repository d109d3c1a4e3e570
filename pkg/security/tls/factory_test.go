package tls

import (
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"slices"
	"testing"
)

type stubFactory struct {
	params      string
	initialized SSLConfiguration
	updates     int
}

func (s *stubFactory) Initialize(c SSLConfiguration) error {
	s.initialized = c
	return nil
}

func (s *stubFactory) CreateServerEngine(conn net.Conn) (*tls.Conn, error) {
	return tls.Server(conn, &tls.Config{}), nil
}

func (s *stubFactory) Update(SSLConfiguration) (bool, error) {
	s.updates++
	return false, nil
}

func TestNewFactory_Default(t *testing.T) {
	for _, name := range []string{"", DefaultFactoryName} {
		f, err := NewFactory(name, "", nil)
		if err != nil {
			t.Fatalf("NewFactory(%q) error = %v", name, err)
		}
		if _, ok := f.(*FileFactory); !ok {
			t.Errorf("NewFactory(%q) = %T, want *FileFactory", name, f)
		}
	}
}

func TestNewFactory_Unknown(t *testing.T) {
	_, err := NewFactory("does-not-exist", "", nil)
	if !errors.Is(err, ErrUnknownFactory) {
		t.Errorf("expected ErrUnknownFactory, got %v", err)
	}
}

func TestRegisterFactory(t *testing.T) {
	var created *stubFactory
	RegisterFactory("stub-registry-test", func(params string, _ *slog.Logger) (Factory, error) {
		created = &stubFactory{params: params}
		return created, nil
	})

	f, err := NewFactory("stub-registry-test", "k=v", nil)
	if err != nil {
		t.Fatalf("NewFactory() error = %v", err)
	}
	if f != Factory(created) || created.params != "k=v" {
		t.Errorf("expected stub factory with params, got %#v", f)
	}
	if !slices.Contains(Factories(), "stub-registry-test") {
		t.Errorf("expected registered name in %v", Factories())
	}
}

func TestRegisterFactory_NilPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for nil constructor")
		}
	}()
	RegisterFactory("nil", nil)
}

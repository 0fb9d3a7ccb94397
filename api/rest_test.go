package api

import (
	"net"
	"strconv"
	"testing"
	"time"
)

func TestInitPortInUse(t *testing.T) {
	e := setup(t, 0)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Error listening:%v", err)
	}
	defer ln.Close()

	port := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)

	done := make(chan error, 1)

	go func() { done <- e.svc.Init("127.0.0.1", port, "", "", "") }()

	select {
	case err = <-done:
		if err == nil {
			t.Errorf("Init returned no error with its port in use")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Init did not return with its port in use")
	}
}

func TestInitBadCertificate(t *testing.T) {
	e := setup(t, 0)

	done := make(chan error, 1)

	go func() { done <- e.svc.Init("127.0.0.1", "0", "0", "nocert.pem", "nokey.pem") }()

	select {
	case err := <-done:
		if err == nil {
			t.Errorf("Init returned no error without certificate files")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Init did not return without certificate files")
	}
}

package logging

import (
	"bytes"
	"strings"
	"testing"

	clog "github.com/charmbracelet/log"
)

func TestHelpers(t *testing.T) {
	var buf bytes.Buffer

	prev := L
	L = clog.New(&buf)
	L.SetLevel(clog.DebugLevel)

	defer func() { L = prev }()

	Debugf("hello %s", "dbg")
	Infof("info %d", 1)
	Warnf("warn")
	Errorf("err %v", "E")
	Std().Printf("httpreq from %s", "127.0.0.1")

	out := buf.String()
	for _, exp := range []string{"hello dbg", "info 1", "warn", "err E", "httpreq from 127.0.0.1"} {
		if !strings.Contains(out, exp) {
			t.Errorf("missing %q in output: %s", exp, out)
		}
	}
}

func TestSetLevel(t *testing.T) {
	prev := L.GetLevel()
	defer L.SetLevel(prev)

	if err := SetLevel("warn"); err != nil {
		t.Fatalf("SetLevel(warn) err:%v", err)
	}

	if L.GetLevel() != clog.WarnLevel {
		t.Errorf("level is %s expected warn", L.GetLevel())
	}

	if err := SetLevel("loud"); err == nil {
		t.Errorf("SetLevel(loud) should fail")
	}
}

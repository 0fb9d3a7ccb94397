//go:build integration

package mongo

import (
	"os"
	"testing"

	"github.com/tarancss/rentguard/lib/store/storetest"
)

func uri() string {
	if u := os.Getenv("RENTGUARD_TEST_MONGO"); u != "" {
		return u
	}

	return "mongodb://localhost:27017"
}

func TestNewMongo(t *testing.T) {
	m, err := New(uri())
	if err != nil {
		t.Fatalf("err:%v", err)
	}

	if err = m.CloseMongo(); err != nil {
		t.Errorf("err:%v", err)
	}
}

func TestMongo(t *testing.T) {
	m, err := New(uri())
	if err != nil {
		t.Fatalf("err:%v", err)
	}
	defer m.CloseMongo()

	storetest.Run(t, m)
}

package hotswap_test

import (
	"context"
	"log"

	"github.com/GoCodeAlone/hotswap"
	"github.com/GoCodeAlone/hotswap/transport"
)

func ExampleNewRuntime() {
	tr, err := transport.NewHTTPTransport("http://localhost:8787/")
	if err != nil {
		log.Fatal(err)
	}
	rt, err := hotswap.NewRuntime(hotswap.WithTransport(tr))
	if err != nil {
		log.Fatal(err)
	}

	err = rt.Define("app", func(m *hotswap.Module, require hotswap.RequireFunc) error {
		m.Exports = "app"
		m.Hot.AcceptSelf(nil)
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}
	if _, err := rt.Require("app"); err != nil {
		log.Fatal(err)
	}

	// later, when a new build is announced
	outdated, err := rt.Check(context.Background(), &hotswap.ApplyOptions{})
	if err != nil {
		log.Fatal(err)
	}
	log.Println("replaced", outdated)
}

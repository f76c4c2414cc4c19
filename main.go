// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

// Package main wires configuration loading, dependency bootstrap, and
// process lifecycle for the quartzmongo scheduler instance.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime"

	"github.com/seakee/quartzmongo/app"
	"github.com/seakee/quartzmongo/bootstrap"
)

// main initializes runtime settings, boots the application, registers this
// scheduler instance, and blocks until an OS termination signal arrives.
func main() {
	// Use all available CPUs because the service starts concurrent workers.
	runtime.GOMAXPROCS(runtime.NumCPU())

	config, err := app.LoadConfig()
	if err != nil {
		log.Fatal("Loading config error: ", err)
	}

	a, err := bootstrap.NewApp(config)
	if err != nil {
		log.Fatal("New App error: ", err)
	}

	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		log.Fatal("Start error: ", err)
	}

	s := waitForSignal()
	log.Println("Signal received, shutting down.", s)

	if err := a.Shutdown(ctx); err != nil {
		log.Println("Shutdown error: ", err)
	}
}

// waitForSignal blocks until an interrupt or kill signal is received.
//
// Example:
//
//	sig := waitForSignal()
//	log.Println("shutdown:", sig)
func waitForSignal() os.Signal {
	signalChan := make(chan os.Signal, 1)
	defer close(signalChan)
	signal.Notify(signalChan, os.Kill, os.Interrupt)
	s := <-signalChan
	signal.Stop(signalChan)
	return s
}

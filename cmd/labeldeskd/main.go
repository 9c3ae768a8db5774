package main

import (
	"context"
	"errors"
	"log"
)

func main() {
	if err := newDaemonCommand().Execute(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("labeldeskd: %v", err)
	}
}

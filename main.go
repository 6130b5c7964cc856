package main

import (
	"log"

	"tikz-playground/internal/bootstrap"
)

func main() {
	app, err := bootstrap.New()
	if err != nil {
		log.Fatalf("bootstrap app: %v", err)
	}

	if err := app.RunDesktop(); err != nil {
		log.Fatalf("run desktop app: %v", err)
	}
}

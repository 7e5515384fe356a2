// cmd/gestorbff/main.go
package main

import (
	"context"
	"os"

	"github.com/dalemusser/gestorbff/app"
)

func main() {
	if err := app.Run(context.Background()); err != nil {
		os.Exit(1)
	}
}

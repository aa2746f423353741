// @title Clean City Reporter API
// @version 1.0
// @description Citizen litter reporting: photo capture, report submission, tracking and on-site verification
// @host localhost:8080
// @BasePath /api
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"cleancity-server-go/internal/bootstrap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	if err := bootstrap.Run(context.Background(), *configPath); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "cleancity-server failed: %v\n", err)
		os.Exit(1)
	}
}

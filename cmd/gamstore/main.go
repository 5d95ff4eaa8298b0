// Command gamstore はゲームストアのWebフロントエンドを起動する。
//
//	gamstore [serve|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/gamstore/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "gamstore: %v\n", err)
		os.Exit(1)
	}
}

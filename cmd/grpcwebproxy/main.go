// Command grpcwebproxy serves a gRPC service to gRPC-Web browsers: native
// gRPC passes through on HTTP/2, browser traffic is translated, everything
// else lands on plain HTTP routes.
package main

import (
	"log"

	"github.com/spf13/cobra"
	_ "go.uber.org/automaxprocs"
)

func main() {
	root := &cobra.Command{
		Use:   "grpcwebproxy",
		Short: "gRPC-Web to gRPC translation proxy",
		Run: func(c *cobra.Command, _ []string) {
			_ = c.Help()
		},
	}
	root.AddCommand(newServeCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

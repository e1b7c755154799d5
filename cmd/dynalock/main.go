// Command dynalock acquires and holds distributed lease locks from the shell.
package main

import "github.com/nimburion/dynalock/pkg/cli"

func main() {
	cli.Execute(cli.NewRootCommand(cli.Options{
		Name:        "dynalock",
		Description: "Distributed lease locks over DynamoDB, Redis or PostgreSQL",
		EnvPrefix:   "DYNALOCK",
	}))
}

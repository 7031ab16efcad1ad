package main

import "github.com/flashbackbot/filestore/cmd/filestore/cmd"

func main() {
	cmd.Execute()
}

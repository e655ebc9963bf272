package main

import "github.com/arnold/kumbara-api/cmd"

func main() {
	cmd.Execute()
}

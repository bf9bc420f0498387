package main

import "linkchaser/cmd/linkchaser/cmd"

func main() {
	cmd.Execute()
}

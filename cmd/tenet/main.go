package main

import "github.com/tenet-verify/tenet/cmd"

func main() {
	cmd.Execute()
}

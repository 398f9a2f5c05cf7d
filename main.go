package main

import "github.com/endorses/mtmon/cmd"

func main() {
	cmd.Execute()
}

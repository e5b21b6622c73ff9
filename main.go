package main

import "github.com/lemonhall/radioscribe/cmd"

func main() {
	cmd.Execute()
}

package main

import "github.com/tcassar-diss/xdpfilter/cmd"

func main() {
	cmd.Execute()
}

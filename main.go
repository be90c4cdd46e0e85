package main

import "github.com/awd2211/lnk.day-sub003/cmd"

func main() {
	cmd.Execute()
}
